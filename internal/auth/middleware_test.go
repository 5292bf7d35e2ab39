package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/modelgate/tokenpool/internal/auth"
)

func setupRouter(adminKey string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(auth.AdminAuthMiddleware(adminKey))
	router.GET("/admin/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return router
}

func get(router http.Handler, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAdminAuthMiddleware(t *testing.T) {
	t.Run("EmptyKeyDisablesTheCheck", func(t *testing.T) {
		router := setupRouter("")
		assert.Equal(t, http.StatusOK, get(router, "").Code)
	})

	t.Run("MissingHeader", func(t *testing.T) {
		router := setupRouter("hunter2")
		assert.Equal(t, http.StatusUnauthorized, get(router, "").Code)
	})

	t.Run("BearerPrefix", func(t *testing.T) {
		router := setupRouter("hunter2")
		assert.Equal(t, http.StatusOK, get(router, "Bearer hunter2").Code)
	})

	t.Run("AdminPrefix", func(t *testing.T) {
		router := setupRouter("hunter2")
		assert.Equal(t, http.StatusOK, get(router, "ADMIN hunter2").Code)
	})

	t.Run("WrongKey", func(t *testing.T) {
		router := setupRouter("hunter2")
		assert.Equal(t, http.StatusUnauthorized, get(router, "Bearer wrong").Code)
	})

	t.Run("UnknownScheme", func(t *testing.T) {
		router := setupRouter("hunter2")
		assert.Equal(t, http.StatusUnauthorized, get(router, "Basic hunter2").Code)
	})
}
