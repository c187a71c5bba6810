//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadscope/directory/internal/audit"
	inats "github.com/leadscope/directory/internal/nats"
)

func TestAuditEndpoint(t *testing.T) {
	env := SetupTestEnv(t)

	RegisterUser(t, env, "audit@example.org", "password123")
	token := LoginUser(t, env, "audit@example.org", "password123")

	t.Run("empty history", func(t *testing.T) {
		resp := DoRequest(t, env, "GET", "/api/v1/audit", nil, token)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		parsed := ParseResponse(t, resp)
		assert.Zero(t, parsed["total_count"].(float64))
	})

	t.Run("persisted events are listed newest first", func(t *testing.T) {
		// Find the user ID the way the consumer sees it: from the event.
		user, err := env.UserSvc.GetByEmail(context.Background(), "audit@example.org")
		require.NoError(t, err)
		userID := user.ID.String()

		repo := audit.NewRepository(env.Pool)
		details, _ := json.Marshal(map[string]int{"count": 5})
		for i, eventType := range []string{inats.EventLimitReached, inats.EventWindowReset} {
			err := repo.Insert(context.Background(), &audit.Entry{
				UserID:    userID,
				EventType: eventType,
				Details:   details,
				CreatedAt: time.Now().Add(time.Duration(i) * time.Second),
			})
			require.NoError(t, err)
		}

		resp := DoRequest(t, env, "GET", "/api/v1/audit", nil, token)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		parsed := ParseResponse(t, resp)
		assert.Equal(t, float64(2), parsed["total_count"])
		entries := parsed["data"].([]any)
		require.Len(t, entries, 2)
		assert.Equal(t, inats.EventWindowReset, entries[0].(map[string]any)["event_type"])
	})

	t.Run("filter by event type", func(t *testing.T) {
		resp := DoRequest(t, env, "GET", "/api/v1/audit?event_type="+inats.EventLimitReached, nil, token)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		parsed := ParseResponse(t, resp)
		assert.Equal(t, float64(1), parsed["total_count"])
	})
}
