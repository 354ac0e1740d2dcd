package catalog

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/kbi-protocol/kbi-go/pkg/kbi"
)

// yamlCatalog is the on-disk catalog document.
type yamlCatalog struct {
	Entries []yamlEntry `yaml:"entries"`
}

type yamlEntry struct {
	Name         string           `yaml:"name"`
	Class        string           `yaml:"class"`
	Code         uint8            `yaml:"code"`
	Op           string           `yaml:"op"`
	Params       []yamlParam      `yaml:"params"`
	Response     string           `yaml:"response"`
	ResponseEnum map[string]uint8 `yaml:"response_enum"`
}

type yamlParam struct {
	Name     string           `yaml:"name"`
	Type     string           `yaml:"type"`
	Size     int              `yaml:"size"`
	Enum     map[string]uint8 `yaml:"enum"`
	Optional bool             `yaml:"optional"`
}

// LoadYAML reads catalog entries from a YAML document and builds a
// validated Catalog. Vendor-specific or experimental command tables
// live in files instead of recompiled code.
func LoadYAML(r io.Reader) (*Catalog, error) {
	var doc yamlCatalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	entries := make([]Entry, 0, len(doc.Entries))
	for _, ye := range doc.Entries {
		e, err := ye.toEntry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return New(entries)
}

func (ye yamlEntry) toEntry() (Entry, error) {
	e := Entry{Name: ye.Name, ResponseEnum: ye.ResponseEnum}

	switch ye.Class {
	case "", "command":
		e.Class = kbi.ClassCommand
	case "privileged":
		e.Class = kbi.ClassPrivileged
	default:
		return Entry{}, fmt.Errorf("%w: %q: class %q", ErrInvalidEntry, ye.Name, ye.Class)
	}

	var op uint8
	switch ye.Op {
	case "", "exec", "write":
		op = kbi.OpWrite
	case "read":
		op = kbi.OpRead
	case "delete":
		op = kbi.OpDelete
	default:
		return Entry{}, fmt.Errorf("%w: %q: op %q", ErrInvalidEntry, ye.Name, ye.Op)
	}
	if ye.Code > 0x3F {
		return Entry{}, fmt.Errorf("%w: %q: code 0x%02x exceeds opcode space", ErrInvalidEntry, ye.Name, ye.Code)
	}
	e.Code = ye.Code | op

	if ye.Response != "" {
		kind, ok := renderKindNames[ye.Response]
		if !ok {
			return Entry{}, fmt.Errorf("%w: %q: response rendering %q", ErrInvalidEntry, ye.Name, ye.Response)
		}
		e.Response = kind
	}

	for _, yp := range ye.Params {
		t, ok := paramTypeNames[yp.Type]
		if !ok {
			return Entry{}, fmt.Errorf("%w: %q: parameter type %q", ErrInvalidEntry, ye.Name, yp.Type)
		}
		e.Params = append(e.Params, Param{
			Name:     yp.Name,
			Type:     t,
			Size:     yp.Size,
			Enum:     yp.Enum,
			Optional: yp.Optional,
		})
	}
	return e, nil
}
