package testutil

import (
	"net/http"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWSServerEcho(t *testing.T) {
	t.Parallel()

	srv := NewWSServer(t, func(conn *websocket.Conn, r *http.Request) {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.WriteMessage(mt, msg)
	})

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+srv.Host()+"/echo", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("progress")))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "progress", string(msg))
	assert.Equal(t, []string{"/echo"}, srv.Paths())
}

func TestSetupTestDir(t *testing.T) {
	t.Parallel()

	dir := SetupTestDir(t)
	assert.FileExists(t, dir+"/.taskwatch/config.yaml")
}
