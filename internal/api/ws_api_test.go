package api_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/hearthhub/go-realtime-notify/internal/api"
	"github.com/hearthhub/go-realtime-notify/internal/registry"
	"github.com/hearthhub/go-realtime-notify/pkg/notify"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// authAs simulates the JWKS auth middleware having validated a user.
func authAs(userID string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := middleware.ContextWithUserID(r.Context(), userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func TestRealtimeAPI_RejectsUnauthenticated(t *testing.T) {
	reg := registry.New(nil, newTestLogger())
	handler := api.NewRealtimeAPI(reg, []string{"*"}, newTestLogger())

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	w := httptest.NewRecorder()
	handler.Attach(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRealtimeAPI_AttachesAuthenticatedConnection(t *testing.T) {
	reg := registry.New(nil, newTestLogger())
	handler := api.NewRealtimeAPI(reg, []string{"*"}, newTestLogger())

	server := httptest.NewServer(authAs("urn:test:user:alice", http.HandlerFunc(handler.Attach)))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	ws, resp, err := websocket.DefaultDialer.DialContext(context.Background(), url, nil)
	require.NoError(t, err)
	defer func() { _ = ws.Close() }()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	topic := notify.HouseTopic("42")
	require.NoError(t, ws.WriteJSON(map[string]string{"action": "subscribe", "topic": topic.String()}))

	require.Eventually(t, func() bool {
		return reg.SubscriberCount(topic) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRealtimeAPI_EnforcesOriginAllowlist(t *testing.T) {
	reg := registry.New(nil, newTestLogger())
	handler := api.NewRealtimeAPI(reg, []string{"https://app.example.com"}, newTestLogger())

	server := httptest.NewServer(authAs("urn:test:user:bob", http.HandlerFunc(handler.Attach)))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.DialContext(context.Background(), url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
