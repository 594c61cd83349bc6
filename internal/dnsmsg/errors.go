// Package dnsmsg is a trimmed structural DNS codec used where the
// forwarder's raw-byte wire package is not enough: synthesizing
// authoritative answers for the curated local zone, and the CLI tools
// that need to print or build full messages. The hot forwarding path
// never imports this package — see internal/wire for that.
package dnsmsg

import "errors"

// ErrMalformed is the sentinel wrapped by every parse error in this
// package. Wrap it with fmt.Errorf("...: %w", ErrMalformed) to add context.
var ErrMalformed = errors.New("dnsmsg: malformed message")
