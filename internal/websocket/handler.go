package websocket

import (
	"context"
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/chorewheel/internal/model"
)

// HouseholdResolver looks up a household by its join code.
type HouseholdResolver interface {
	GetByCode(ctx context.Context, code string) (*model.Household, error)
}

// HandleWebSocket upgrades GET /api/households/{code}/ws and streams live
// updates for that household until the client disconnects.
func HandleWebSocket(hub *Hub, households HouseholdResolver, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h, err := households.GetByCode(r.Context(), r.PathValue("code"))
		if err != nil {
			logger.Error("websocket: resolve household", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if h == nil {
			http.Error(w, "household not found", http.StatusNotFound)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			logger.Warn("websocket: accept", "error", err)
			return
		}

		NewClient(hub, conn, h.ID).Run(r.Context())
	}
}
