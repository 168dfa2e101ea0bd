package render

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metasync/seo-gateway/pkg/types"
)

func interceptingEngine(transform TransformFunc, handler gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(gin.CustomRecovery(func(c *gin.Context, _ any) {
		c.AbortWithStatus(http.StatusInternalServerError)
	}))
	r.Use(func(c *gin.Context) {
		interceptor, err := StartIntercept(c, transform, testLogger())
		if err != nil {
			c.Next()
			return
		}
		defer interceptor.Finalize()
		c.Next()
	})
	r.GET("/*path", handler)
	return r
}

func upper(page Page) (string, bool) {
	return strings.ToUpper(page.Body), true
}

func TestInterceptorRewritesOutput(t *testing.T) {
	r := interceptingEngine(upper, func(c *gin.Context) {
		c.Header("Content-Length", "11")
		c.Data(http.StatusCreated, "text/html", []byte("hello world"))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/page", nil))

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "HELLO WORLD", w.Body.String())
	assert.Equal(t, "true", w.Header().Get(types.HeaderProcessed))
	assert.Equal(t, "11", w.Header().Get("Content-Length"))
}

func TestInterceptorSeesDepthAndStatus(t *testing.T) {
	var seen Page
	var depth int
	r := interceptingEngine(func(page Page) (string, bool) {
		seen = page
		return page.Body, false
	}, func(c *gin.Context) {
		depth = BufferDepth(c.Request.Context())
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusNotFound, "missing")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, 1, depth)
	assert.Equal(t, http.StatusNotFound, seen.Status)
	assert.Equal(t, "missing", seen.Body)
	assert.Contains(t, seen.ContentType, "text/html")
	assert.Equal(t, "false", w.Header().Get(types.HeaderProcessed))
}

func TestInterceptorTransformPanicServesOriginal(t *testing.T) {
	r := interceptingEngine(func(Page) (string, bool) {
		panic("boom")
	}, func(c *gin.Context) {
		c.String(http.StatusOK, "original")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "original", w.Body.String())
}

func TestInterceptorHandlerPanicBeforeOutput(t *testing.T) {
	r := interceptingEngine(upper, func(c *gin.Context) {
		panic("handler exploded")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code, "recovery still owns the response")
	assert.Empty(t, w.Body.String())
}

func TestFinalizeRunsOnce(t *testing.T) {
	calls := 0
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	interceptor, err := StartIntercept(c, func(page Page) (string, bool) {
		calls++
		return page.Body + "!", true
	}, testLogger())
	require.NoError(t, err)

	_, _ = c.Writer.WriteString("body")
	assert.Empty(t, w.Body.String(), "nothing reaches the client before finalize")

	interceptor.Finalize()
	interceptor.Finalize()

	assert.Equal(t, 1, calls)
	assert.Equal(t, "body!", w.Body.String())
	assert.True(t, interceptor.Processed())
	_, buffered := c.Writer.(*bufferWriter)
	assert.False(t, buffered, "original writer restored")
}

func TestStartInterceptRejectedAfterHeadersSent(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Writer.WriteHeaderNow()

	_, err := StartIntercept(c, upper, testLogger())
	assert.ErrorIs(t, err, ErrInterceptRejected)
}

func TestBufferWriterRefusesHijack(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	bw := newBufferWriter(c.Writer)
	_, _, err := bw.Hijack()
	assert.ErrorIs(t, err, ErrInterceptRejected)
	assert.Equal(t, -1, bw.Size())
	assert.Equal(t, http.StatusOK, bw.Status())
}
