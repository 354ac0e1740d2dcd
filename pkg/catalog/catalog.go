package catalog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kbi-protocol/kbi-go/pkg/kbi"
)

// Catalog construction and lookup errors.
var (
	// ErrUnknownCommand indicates no entry matches the command text.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrInvalidEntry indicates a malformed entry rejected at load.
	ErrInvalidEntry = errors.New("invalid catalog entry")
)

// TranslationError reports a parameter that failed to encode or
// decode. Position is 1-based.
type TranslationError struct {
	// Entry is the command name being translated.
	Entry string

	// Position is the 1-based index of the offending parameter.
	Position int

	// Name is the parameter name, if declared.
	Name string

	// Cause describes what was wrong with the value.
	Cause error
}

func (e *TranslationError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s: parameter %d (%s): %v", e.Entry, e.Position, e.Name, e.Cause)
	}
	return fmt.Sprintf("%s: parameter %d: %v", e.Entry, e.Position, e.Cause)
}

func (e *TranslationError) Unwrap() error {
	return e.Cause
}

// Entry is one static opcode descriptor: the command text, its wire
// opcode, the parameter signature and the response rendering.
type Entry struct {
	// Name is the full command text ("config channel").
	Name string

	// Class is the command class byte (kbi.ClassCommand or
	// kbi.ClassPrivileged).
	Class uint8

	// Code is the opcode with the operation bits folded in.
	Code uint8

	// Params is the ordered parameter signature.
	Params []Param

	// Response selects how a value payload is rendered back to text.
	Response RenderKind

	// ResponseEnum maps wire values back to tokens for RenderEnum.
	ResponseEnum map[string]uint8
}

// words is the number of leading words forming the command name.
func (e *Entry) words() int {
	return len(strings.Fields(e.Name))
}

// minArgs is the number of required parameters.
func (e *Entry) minArgs() int {
	n := len(e.Params)
	if n > 0 && e.Params[n-1].Optional {
		n--
	}
	return n
}

// Catalog is the immutable opcode table. Construct with New; safe for
// concurrent use afterwards.
type Catalog struct {
	byName   map[string]*Entry
	byOpcode map[uint16]*Entry
	maxWords int
}

// opcodeKey packs class and code into one lookup key. Response
// classes map onto their command class so a response resolves to the
// entry that produced it.
func opcodeKey(class, code uint8) uint16 {
	class &= 0x10 // privileged bit only
	return uint16(class)<<8 | uint16(code)
}

// New validates the entries and builds a Catalog. Duplicate names,
// malformed signatures and conflicting response renderings for one
// opcode are all rejected here, once, instead of at each invocation.
func New(entries []Entry) (*Catalog, error) {
	c := &Catalog{
		byName:   make(map[string]*Entry, len(entries)),
		byOpcode: make(map[uint16]*Entry, len(entries)),
	}

	for i := range entries {
		e := &entries[i]
		if err := validateEntry(e); err != nil {
			return nil, err
		}
		if _, dup := c.byName[e.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate name %q", ErrInvalidEntry, e.Name)
		}
		c.byName[e.Name] = e
		if w := e.words(); w > c.maxWords {
			c.maxWords = w
		}

		// Several names may share an opcode (e.g. "... remove" and
		// "... remove all"); their response renderings must agree so
		// a received opcode resolves to exactly one text form.
		key := opcodeKey(e.Class, e.Code)
		if prev, ok := c.byOpcode[key]; ok {
			if prev.Response != e.Response {
				return nil, fmt.Errorf("%w: %q and %q share opcode %02x/%02x with different response renderings",
					ErrInvalidEntry, prev.Name, e.Name, e.Class, e.Code)
			}
		} else {
			c.byOpcode[key] = e
		}
	}
	return c, nil
}

func validateEntry(e *Entry) error {
	if e.Name == "" || strings.TrimSpace(e.Name) != e.Name {
		return fmt.Errorf("%w: bad name %q", ErrInvalidEntry, e.Name)
	}
	if e.Class != kbi.ClassCommand && e.Class != kbi.ClassPrivileged {
		return fmt.Errorf("%w: %q: class 0x%02x", ErrInvalidEntry, e.Name, e.Class)
	}
	for i, p := range e.Params {
		last := i == len(e.Params)-1
		if p.Optional && !last {
			return fmt.Errorf("%w: %q: optional parameter %d is not last", ErrInvalidEntry, e.Name, i+1)
		}
		if p.consumesRest() && !last {
			return fmt.Errorf("%w: %q: variable-tail parameter %d is not last", ErrInvalidEntry, e.Name, i+1)
		}
		if p.Type == TypeFixedBytes && p.Size <= 0 {
			return fmt.Errorf("%w: %q: fixed-bytes parameter %d has no size", ErrInvalidEntry, e.Name, i+1)
		}
		if p.Type == TypeEnum && len(p.Enum) == 0 {
			return fmt.Errorf("%w: %q: enum parameter %d has no tokens", ErrInvalidEntry, e.Name, i+1)
		}
	}
	if e.Response == RenderEnum && len(e.ResponseEnum) == 0 {
		return fmt.Errorf("%w: %q: enum response has no tokens", ErrInvalidEntry, e.Name)
	}
	return nil
}

// LookupName resolves command text to its entry by longest
// leading-word match, plus the remaining words as arguments.
func (c *Catalog) LookupName(text string) (*Entry, []string, error) {
	words := strings.Fields(text)
	limit := len(words)
	if limit > c.maxWords {
		limit = c.maxWords
	}
	for n := limit; n > 0; n-- {
		if e, ok := c.byName[strings.Join(words[:n], " ")]; ok {
			return e, words[n:], nil
		}
	}
	return nil, nil, fmt.Errorf("%w: %q", ErrUnknownCommand, text)
}

// LookupOpcode resolves a received class/code pair to its entry.
func (c *Catalog) LookupOpcode(class, code uint8) (*Entry, bool) {
	e, ok := c.byOpcode[opcodeKey(class, code)]
	return e, ok
}

// EncodeParams converts text arguments into the entry's wire payload.
// Nothing is emitted when any argument is bad.
func (c *Catalog) EncodeParams(e *Entry, args []string) ([]byte, error) {
	if len(args) < e.minArgs() || len(args) > len(e.Params) {
		return nil, &TranslationError{
			Entry:    e.Name,
			Position: len(args) + 1,
			Cause:    fmt.Errorf("want %d argument(s), got %d", e.minArgs(), len(args)),
		}
	}

	var payload []byte
	for i, arg := range args {
		p := e.Params[i]
		b, err := p.encode(arg)
		if err != nil {
			return nil, &TranslationError{Entry: e.Name, Position: i + 1, Name: p.Name, Cause: err}
		}
		payload = append(payload, b...)
	}
	return payload, nil
}

// DecodeParams inverts EncodeParams: it parses a wire payload back
// into canonical text arguments.
func (c *Catalog) DecodeParams(e *Entry, payload []byte) ([]string, error) {
	var args []string
	rest := payload
	for i, p := range e.Params {
		if len(rest) == 0 && p.Optional {
			break
		}
		arg, n, err := p.decode(rest)
		if err != nil {
			return nil, &TranslationError{Entry: e.Name, Position: i + 1, Name: p.Name, Cause: err}
		}
		args = append(args, arg)
		rest = rest[n:]
	}
	if len(rest) != 0 {
		return nil, &TranslationError{
			Entry:    e.Name,
			Position: len(e.Params),
			Cause:    fmt.Errorf("%d trailing byte(s)", len(rest)),
		}
	}
	return args, nil
}

// Translate turns a full shell line into a ready-to-send command.
// The correlation token is left for the session to assign.
func (c *Catalog) Translate(line string) (kbi.Command, *Entry, error) {
	e, args, err := c.LookupName(line)
	if err != nil {
		return kbi.Command{}, nil, err
	}
	payload, err := c.EncodeParams(e, args)
	if err != nil {
		return kbi.Command{}, nil, err
	}
	return kbi.Command{Class: e.Class, Code: e.Code, Payload: payload}, e, nil
}
