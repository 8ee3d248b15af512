package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/thruflo/taskwatch/internal/progress"
)

// CloseUnknownTask is the close code sent for an unknown task ID.
const CloseUnknownTask = 4404

const (
	writeWait = 10 * time.Second

	// closeGrace is how long the server waits for the peer's close reply.
	closeGrace = 5 * time.Second

	maxRequestSize = 4096
)

type requestKind int

const (
	requestNone requestKind = iota
	requestLegacy
	requestCommand
)

// parseRequest classifies an inbound frame.
func parseRequest(data []byte) requestKind {
	if string(data) == progress.CommandProgress {
		return requestLegacy
	}
	var cmd progress.Command
	if err := json.Unmarshal(data, &cmd); err == nil && cmd.Command == progress.CommandProgress {
		return requestCommand
	}
	return requestNone
}

// handleProgress handles GET /tasks/{id}/progress.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ip := extractIP(r)
	log := s.logger.WithFields(map[string]interface{}{"task": id, "ip": ip})

	if res := s.limiter.check(ip); !res.Allowed {
		log.Warn("progress connection refused", "reason", res.Reason, "retry_after", res.RetryAfter.String())
		w.Header().Set("Retry-After", res.retryAfterSeconds())
		http.Error(w, res.Reason, http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxRequestSize)

	if _, ok := s.tasks.Get(id); !ok {
		if block := s.limiter.recordMiss(ip); block > 0 {
			log.Warn("blocking client probing unknown tasks", "block", block.String())
		}
		s.closeWith(conn, CloseUnknownTask, fmt.Sprintf("no task with ID %s found", id))
		return
	}
	s.limiter.recordHit(ip)
	log.Debug("progress stream open")

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-s.ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			conn.Close()
		case <-stop:
		}
	}()

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			log.Debug("progress stream ended", "error", err)
			return
		}
		if mt != websocket.TextMessage {
			continue
		}

		task, ok := s.tasks.Get(id)
		if !ok {
			s.closeWith(conn, CloseUnknownTask, fmt.Sprintf("no task with ID %s found", id))
			return
		}

		switch parseRequest(data) {
		case requestLegacy:
			if err := s.write(conn, []byte(task.ProgressHTML())); err != nil {
				log.Debug("failed to write progress", "error", err)
				return
			}
			if task.Status.Finished() {
				s.closeWith(conn, websocket.CloseNormalClosure, "process stopped")
				return
			}
		case requestCommand:
			msgType := progress.TypeProgress
			if task.Status.Finished() {
				msgType = progress.TypeComplete
			}
			payload, err := progress.Envelope(msgType, task.ProgressHTML())
			if err != nil {
				log.Error("failed to encode progress", "error", err)
				return
			}
			if err := s.write(conn, payload); err != nil {
				log.Debug("failed to write progress", "error", err)
				return
			}
		default:
			log.Debug("ignoring unknown request", "bytes", len(data))
		}
	}
}

func (s *Server) write(conn *websocket.Conn, payload []byte) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// closeWith sends a close frame and drains the connection until the peer
// replies or closeGrace passes.
func (s *Server) closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		return
	}
	conn.SetReadDeadline(time.Now().Add(closeGrace))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
