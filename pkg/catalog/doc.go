// Package catalog holds the bidirectional opcode table that maps
// human-readable shell commands to binary opcodes and decodes device
// responses back into text.
//
// A Catalog is built once from a static entry table (Builtin or a YAML
// file via LoadYAML), validated at construction, and immutable
// afterwards, so it is safely shared without synchronization. Command
// names resolve by longest leading-word match: "config joiner remove
// all" wins over "config joiner remove" when both apply.
//
// Parameter encoding is total in both directions for well-formed
// input: DecodeParams inverts EncodeParams for every entry, and a
// malformed argument yields a TranslationError naming its position
// before anything reaches the wire.
package catalog
