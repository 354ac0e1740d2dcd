// Package device defines the collaborator boundary of the protocol
// stack: device descriptors, the raw byte Transport the stack talks
// through, and serial/USB enumeration.
//
// The protocol layers never open or discover devices themselves; they
// borrow a Device and its Transport for the duration of an operation.
// A Transport is exclusively owned by one session at a time.
package device
