package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func runAuth(t *testing.T, token, header string) *gin.Context {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/api/v1/reports", nil)
	if header != "" {
		c.Request.Header.Set("Authorization", header)
	}
	TokenAuth(token)(c)
	return c
}

func TestTokenAuthOpenWithoutToken(t *testing.T) {
	c := runAuth(t, "", "")
	require.False(t, c.IsAborted())
}

func TestTokenAuthAccepts(t *testing.T) {
	c := runAuth(t, "s3cret", "Bearer s3cret")
	require.False(t, c.IsAborted())

	// scheme is case-insensitive
	c = runAuth(t, "s3cret", "bearer s3cret")
	require.False(t, c.IsAborted())
}

func TestTokenAuthRejects(t *testing.T) {
	require.True(t, runAuth(t, "s3cret", "").IsAborted())
	require.True(t, runAuth(t, "s3cret", "Bearer wrong").IsAborted())
	require.True(t, runAuth(t, "s3cret", "Basic s3cret").IsAborted())
	require.True(t, runAuth(t, "s3cret", "s3cret").IsAborted())
}

func TestRequestIDGenerated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest("GET", "/api/v1/healthz", nil)
	RequestID()(c)

	id, ok := c.Get(RequestIDKey)
	require.True(t, ok)
	require.NotEmpty(t, id)
	require.Equal(t, id, rec.Header().Get("X-Request-Id"))
}

func TestRequestIDHonorsUpstream(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest("GET", "/api/v1/healthz", nil)
	c.Request.Header.Set("X-Request-Id", "upstream-1")
	RequestID()(c)

	id, _ := c.Get(RequestIDKey)
	require.Equal(t, "upstream-1", id)
	require.Equal(t, "upstream-1", rec.Header().Get("X-Request-Id"))
}
