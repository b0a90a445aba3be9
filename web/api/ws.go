package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// wsTickInterval is how often the progress feed pushes an update
const wsTickInterval = time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsProgressHandler streams batch progress over a WebSocket. It pushes
// one update immediately, then every tick, and closes the connection
// once the batch reaches a terminal state.
func (s *Server) wsProgressHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		batchID := strings.TrimPrefix(r.URL.Path, "/api/v1/ws/batches/")
		batchID = strings.TrimSuffix(batchID, "/")
		if batchID == "" || strings.Contains(batchID, "/") {
			writeError(w, http.StatusBadRequest, "batch ID required")
			return
		}
		// reject unknown batches before committing to the upgrade
		if _, err := s.orch.Status(batchID); err != nil {
			writeDomainError(w, err)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.log.Warn("websocket upgrade failed", "batch_id", batchID, "error", err)
			return
		}
		defer conn.Close()

		// the read pump only detects client disconnects; inbound
		// messages are ignored
		clientGone := make(chan struct{})
		go func() {
			defer close(clientGone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(wsTickInterval)
		defer ticker.Stop()

		for {
			progress, err := s.orch.Progress(batchID)
			if err != nil {
				return
			}
			if err := conn.WriteJSON(progress); err != nil {
				return
			}
			if progress.Status.IsTerminal() {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "batch finished"))
				return
			}

			select {
			case <-ticker.C:
			case <-clientGone:
				return
			case <-r.Context().Done():
				return
			}
		}
	}
}
