package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTManager_GenerateAndValidate(t *testing.T) {
	mgr := NewJWTManager("access-secret-32-chars-long!!!!!", 15*time.Minute)

	t.Run("generate and validate access token", func(t *testing.T) {
		token, err := mgr.GenerateAccessToken("user-123", "test@example.com", "student")
		require.NoError(t, err)
		assert.NotEmpty(t, token)

		claims, err := mgr.ValidateAccessToken(token)
		require.NoError(t, err)
		assert.Equal(t, "user-123", claims.UserID)
		assert.Equal(t, "test@example.com", claims.Email)
		assert.Equal(t, "student", claims.Role)
	})

	t.Run("role claim round-trips for advisors", func(t *testing.T) {
		token, err := mgr.GenerateAccessToken("user-456", "advisor@example.com", "advisor")
		require.NoError(t, err)

		claims, err := mgr.ValidateAccessToken(token)
		require.NoError(t, err)
		assert.Equal(t, "advisor", claims.Role)
	})

	t.Run("invalid token fails validation", func(t *testing.T) {
		_, err := mgr.ValidateAccessToken("invalid-token")
		assert.Error(t, err)
	})

	t.Run("token signed with another secret fails", func(t *testing.T) {
		other := NewJWTManager("different-secret-32-chars-long!!!", 15*time.Minute)
		token, err := other.GenerateAccessToken("user-789", "x@x.com", "admin")
		require.NoError(t, err)

		_, err = mgr.ValidateAccessToken(token)
		assert.Error(t, err)
	})

	t.Run("expired token fails", func(t *testing.T) {
		shortMgr := NewJWTManager("access-secret-32-chars-long!!!!!", -1*time.Second)
		token, err := shortMgr.GenerateAccessToken("user-exp", "exp@test.com", "student")
		require.NoError(t, err)

		_, err = shortMgr.ValidateAccessToken(token)
		assert.Error(t, err)
	})
}
