// Package api holds the HTTP handlers the service mounts on its base server.
package api

import (
	"net/http"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/hearthhub/go-realtime-notify/internal/realtime"
	"github.com/hearthhub/go-realtime-notify/internal/registry"
)

// RealtimeAPI upgrades authenticated requests to websocket connections and
// hands them to the channel registry. Subscription management happens over
// the socket itself, not over further HTTP calls.
type RealtimeAPI struct {
	Registry *registry.Registry
	Logger   *slog.Logger

	upgrader websocket.Upgrader
}

func NewRealtimeAPI(reg *registry.Registry, allowedOrigins []string, logger *slog.Logger) *RealtimeAPI {
	origins := make(map[string]struct{}, len(allowedOrigins))
	allowAll := false
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		origins[o] = struct{}{}
	}

	return &RealtimeAPI{
		Registry: reg,
		Logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The CORS middleware does not cover websocket upgrades, so the
			// origin allowlist is enforced again here.
			CheckOrigin: func(r *http.Request) bool {
				if allowAll {
					return true
				}
				_, ok := origins[r.Header.Get("Origin")]
				return ok
			},
		},
	}
}

// Attach is the GET /ws handler.
func (api *RealtimeAPI) Attach(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := middleware.GetUserHandleFromContext(ctx)
	if !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	ws, err := api.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		api.Logger.Warn("Websocket upgrade failed", "user", userID, "err", err)
		return
	}

	conn := realtime.NewServerConn(ws, api.Logger)
	api.Logger.Info("Realtime connection attached", "user", userID, "conn", conn.ID())

	// Run blocks for the lifetime of the connection; the request goroutine is
	// exactly that lifetime.
	conn.Run(ctx, api.Registry)
}
