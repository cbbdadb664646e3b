// Package transport defines the external collaborator spec section 1
// places out of scope as a concept ("wire framing below the submessage
// level; UDP/TCP socket I/O") while still giving this module one
// concrete, exercised implementation to wire against the domain
// dependency stack: a QUIC-backed Transport, grounded on
// sockatz/common's QUICProxyConn (Accept/Dial wrapping a QUIC stream in
// a net.Conn).
package transport

import (
	"context"
	"net"
)

// Transport is the narrow boundary above raw sockets that the
// reliability/matching kernel sends submessages through: Dial opens an
// outbound stream to a locator, Listen accepts inbound ones. Nothing in
// whc/rhc/reliability/match depends on a specific Transport
// implementation; wire.Heartbeat/AckNack/Gap/NackFrag bytes flow over
// whatever net.Conn a Transport hands back.
type Transport interface {
	// Dial opens a stream to locator, a host:port or bare hostname as
	// validated by match.ValidateLocators.
	Dial(ctx context.Context, locator string) (net.Conn, error)
	// Listen begins accepting inbound streams on localAddr.
	Listen(ctx context.Context, localAddr string) (Listener, error)
}

// Listener accepts inbound Transport streams.
type Listener interface {
	Accept(ctx context.Context) (net.Conn, error)
	Addr() net.Addr
	Close() error
}
