// Package testutil provides shared test utilities for taskwatch.
//
// # Contexts
//
// The timeout.go file provides contexts that respect the test deadline:
//
//   - ContextWithTestDeadline(t, fallback) - deadline minus a cleanup buffer
//   - ShortOperationContext(t) - 30 second budget for quick operations
//
// # Websocket servers
//
// The wsserver.go file starts httptest servers that upgrade every request
// with gorilla/websocket and hand the connection to a test handler:
//
//	srv := testutil.NewWSServer(t, func(conn *websocket.Conn, r *http.Request) {
//	    _, msg, _ := conn.ReadMessage()
//	    conn.WriteMessage(websocket.TextMessage, msg)
//	})
//	target := progress.Target{Host: srv.Host(), TaskID: "42"}
//
// # Environment
//
// The env.go file provides SetupTestDir, WriteTestFile and JSON helpers.
package testutil
