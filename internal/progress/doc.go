// Package progress implements the client side of a task progress stream.
//
// A Client opens a websocket to one task's progress endpoint, asks for the
// latest status every heartbeat interval, renders every answer into a
// borrowed Surface and shuts down when the task completes or the connection
// goes away.
//
// # Lifecycle
//
//	Idle -> Connecting -> Open -> Closing -> Closed
//
// New starts connecting before it returns. On Open the client sends one
// request immediately and starts the heartbeat. Any close (clean or not),
// a "complete" message, Close or cancellation of the construction context
// moves the client to Closed and stops the heartbeat. A closed client never
// reconnects; create a new one for a new stream.
//
// # Wire formats
//
// Requests are produced by an Encoder: LegacyEncoder sends the bare text
// "progress", CommandEncoder sends {"command":"progress"}. Replies are
// either a raw HTML/text fragment or a tagged envelope
// {"type":"progress|complete|...","data":"<fragment>"}; Decode handles both.
//
// # Concurrency
//
// Each client runs one event-loop goroutine that owns the connection, the
// heartbeat ticker and all surface writes. Open, message, tick and close
// events are handled one at a time on that goroutine.
package progress
