//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectoryEndpoints(t *testing.T) {
	env := SetupTestEnv(t)
	SeedDirectory(t, env, "dir-agency", 3)

	RegisterUser(t, env, "dir@example.org", "password123")
	token := LoginUser(t, env, "dir@example.org", "password123")

	t.Run("list agencies", func(t *testing.T) {
		resp := DoRequest(t, env, "GET", "/api/v1/agencies", nil, token)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		result := ParseResponse(t, resp)
		assert.GreaterOrEqual(t, result["total_count"].(float64), float64(1))
	})

	t.Run("list contacts paginated", func(t *testing.T) {
		resp := DoRequest(t, env, "GET", "/api/v1/contacts?page=1&page_size=2", nil, token)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		result := ParseResponse(t, resp)
		contacts := result["data"].([]any)
		assert.Len(t, contacts, 2)
		assert.GreaterOrEqual(t, result["total_count"].(float64), float64(3))
	})

	t.Run("search contacts by name", func(t *testing.T) {
		resp := DoRequest(t, env, "GET", "/api/v1/contacts/search?q=Last1", nil, token)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		result := ParseResponse(t, resp)
		contacts := result["data"].([]any)
		require.NotEmpty(t, contacts)
		first := contacts[0].(map[string]any)
		assert.Equal(t, "Last1", first["last_name"])
	})

	t.Run("search without query is rejected", func(t *testing.T) {
		resp := DoRequest(t, env, "GET", "/api/v1/contacts/search?q=", nil, token)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}
