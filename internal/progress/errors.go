package progress

import "errors"

var (
	// ErrConnectionFailure is reported when the websocket could not be
	// established. It is handled as an unclean close; there is no retry.
	ErrConnectionFailure = errors.New("connection failure")

	// ErrUnexpectedClose is reported when an open stream ends without a
	// close handshake.
	ErrUnexpectedClose = errors.New("unexpected close")

	// ErrMalformedMessage is returned by Decode for payloads that match
	// neither wire shape. The frame is dropped and the stream continues.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrUnknownMessageType marks a tagged envelope whose type is not
	// recognised. Such messages are ignored.
	ErrUnknownMessageType = errors.New("unknown message type")

	// ErrInvalidTarget is returned when a connection target cannot be built.
	ErrInvalidTarget = errors.New("invalid target")
)
