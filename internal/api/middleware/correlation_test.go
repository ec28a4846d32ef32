package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestCorrelationID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("generates an id when the header is absent", func(t *testing.T) {
		router := gin.New()
		router.Use(CorrelationID())
		var contextID string
		router.GET("/payments", func(c *gin.Context) {
			contextID = c.GetString(CorrelationIDKey)
			c.Status(http.StatusOK)
		})

		req, _ := http.NewRequest(http.MethodGet, "/payments", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		headerID := rr.Header().Get(CorrelationIDHeader)
		assert.NotEmpty(t, headerID)
		_, err := uuid.Parse(headerID)
		assert.NoError(t, err)

		// Header and context must carry the same id so a log line can be
		// matched to the response the caller saw.
		assert.Equal(t, headerID, contextID)
	})

	t.Run("propagates a caller-provided id", func(t *testing.T) {
		router := gin.New()
		router.Use(CorrelationID())
		var contextID string
		router.GET("/payments", func(c *gin.Context) {
			contextID = c.GetString(CorrelationIDKey)
			c.Status(http.StatusOK)
		})

		providedID := uuid.New().String()
		req, _ := http.NewRequest(http.MethodGet, "/payments", nil)
		req.Header.Set(CorrelationIDHeader, providedID)

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, providedID, rr.Header().Get(CorrelationIDHeader))
		assert.Equal(t, providedID, contextID)
	})

	t.Run("replaces an oversized inbound id", func(t *testing.T) {
		router := gin.New()
		router.Use(CorrelationID())
		router.GET("/payments", func(c *gin.Context) {
			c.Status(http.StatusOK)
		})

		oversized := strings.Repeat("x", 65)
		req, _ := http.NewRequest(http.MethodGet, "/payments", nil)
		req.Header.Set(CorrelationIDHeader, oversized)

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		headerID := rr.Header().Get(CorrelationIDHeader)
		assert.NotEqual(t, oversized, headerID)
		_, err := uuid.Parse(headerID)
		assert.NoError(t, err)
	})
}

func TestGetCorrelationID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("returns the stored id", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		id := uuid.New().String()
		c.Set(CorrelationIDKey, id)

		assert.Equal(t, id, GetCorrelationID(c))
	})

	t.Run("returns empty when unset", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		assert.Empty(t, GetCorrelationID(c))
	})

	t.Run("returns empty for a non-string value", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Set(CorrelationIDKey, 12345)

		assert.Empty(t, GetCorrelationID(c))
	})
}
