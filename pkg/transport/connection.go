// Package transport defines the radio-link boundary this module consumes.
//
// Device discovery, pairing UI and the real BLE stack live with the caller;
// this package only specifies what the protocol core needs from an already
// connected link: datagram send, a notify callback and teardown. The Pipe in
// this package is an in-memory implementation for tests and demos.
package transport

import "errors"

// Errors returned by the transport package.
var (
	// ErrClosed is returned for operations on a closed connection.
	ErrClosed = errors.New("transport: connection closed")
)

// Connection is one point-to-point link to a device. Implementations must
// preserve message boundaries: one Send arrives as one notify callback on
// the peer, or not at all.
//
// SetNotifyHandler installs the single inbound callback; bytes received
// before a handler is installed are dropped. Close tears the link down and
// stops notifications; implementations must tolerate Close being called more
// than once.
type Connection interface {
	Send(b []byte) error
	SetNotifyHandler(h func(b []byte))
	Close() error
}
