package httpapi

import (
	"net/http"

	"github.com/gorilla/websocket"
)

// handleWS runs one duplex voice session over a WebSocket. Text frames
// carry the JSON control protocol, binary frames carry raw PCM audio.
// A single writer goroutine drains the session's outbound envelopes.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("session_id")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "session_id", id, "error", err)
		return
	}
	defer conn.Close()

	sess, err := s.live.Connect(r.Context(), id)
	if err != nil {
		s.logger.Error("session connect failed", "session_id", id, "error", err)
		conn.WriteJSON(map[string]any{"type": "error", "error": err.Error()})
		return
	}
	defer s.live.Disconnect(id)

	go func() {
		for {
			select {
			case <-sess.Done():
				return
			case env := <-sess.Out():
				if err := conn.WriteJSON(env); err != nil {
					s.logger.Warn("websocket write failed", "session_id", id, "error", err)
					return
				}
			}
		}
	}()

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		switch mt {
		case websocket.BinaryMessage:
			if err := s.live.HandleAudio(id, data); err != nil {
				s.logger.Warn("audio forward failed", "session_id", id, "error", err)
			}
		case websocket.TextMessage:
			if err := s.live.HandleText(id, data); err != nil {
				s.logger.Warn("control message failed", "session_id", id, "error", err)
			}
		}
	}
}
