package signalr

import "errors"

var (
	// ErrNegotiate indicates the HTTP handshake failed or returned a
	// malformed response.
	ErrNegotiate = errors.New("signalr: negotiation failed")

	// ErrMissingToken indicates the negotiate response carried no
	// connection token.
	ErrMissingToken = errors.New("signalr: negotiate response missing connection token")

	// ErrTransport indicates the socket closed or broke mid-stream.
	ErrTransport = errors.New("signalr: transport error")
)
