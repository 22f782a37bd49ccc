package websocket

import (
	"net/http"

	ws "github.com/coder/websocket"
)

// HandleWebSocket upgrades the request and streams hub events to it.
// An empty originPatterns list accepts any origin.
func HandleWebSocket(hub *Hub, originPatterns ...string) http.HandlerFunc {
	opts := &ws.AcceptOptions{OriginPatterns: originPatterns}
	if len(originPatterns) == 0 {
		opts.InsecureSkipVerify = true
	}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := ws.Accept(w, r, opts)
		if err != nil {
			hub.logger.Warn("websocket accept failed", "error", err)
			return
		}
		NewClient(hub, conn).Run(r.Context())
	}
}
