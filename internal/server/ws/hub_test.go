package ws

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func originRequest(origin string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	if origin != "" {
		r.Header.Set("Origin", origin)
	}
	return r
}

func TestUpgraderOriginPolicy(t *testing.T) {
	t.Run("configured origins are enforced", func(t *testing.T) {
		up := newUpgrader([]string{"https://app.example.com"})

		assert.True(t, up.CheckOrigin(originRequest("https://app.example.com")))
		assert.True(t, up.CheckOrigin(originRequest("HTTPS://APP.EXAMPLE.COM")))
		assert.False(t, up.CheckOrigin(originRequest("https://evil.example.com")))
	})

	t.Run("no origin header is same-origin and passes", func(t *testing.T) {
		up := newUpgrader([]string{"https://app.example.com"})
		assert.True(t, up.CheckOrigin(originRequest("")))
	})

	t.Run("empty list admits anything", func(t *testing.T) {
		up := newUpgrader(nil)
		assert.True(t, up.CheckOrigin(originRequest("https://anything.example.com")))
	})

	t.Run("wildcard entry admits anything", func(t *testing.T) {
		up := newUpgrader([]string{"https://app.example.com", "*"})
		assert.True(t, up.CheckOrigin(originRequest("https://anything.example.com")))
	})
}

func TestForbiddenOriginRejectsUpgrade(t *testing.T) {
	hub := NewHub(nil, []string{"https://app.example.com"}, slog.New(slog.DiscardHandler))

	rec := httptest.NewRecorder()
	req := originRequest("https://evil.example.com")
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Version", "13")
	req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")

	hub.HandleWS(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
