package render

import (
	"errors"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/metasync/seo-gateway/pkg/types"
)

// ErrInterceptRejected means output interception could not start.
var ErrInterceptRejected = errors.New("output interception rejected")

// TransformFunc rewrites a captured page. It must not panic.
type TransformFunc func(page Page) (string, bool)

// Interceptor captures a request's output and rewrites it exactly once.
type Interceptor struct {
	ctx       *gin.Context
	original  gin.ResponseWriter
	writer    *bufferWriter
	transform TransformFunc
	logger    *logrus.Logger

	once      sync.Once
	processed bool
}

// StartIntercept swaps c.Writer for a buffering writer. It must be called
// before any handler writes; callers defer Finalize right after.
func StartIntercept(c *gin.Context, transform TransformFunc, logger *logrus.Logger) (*Interceptor, error) {
	if c.Writer == nil || c.Writer.Written() {
		return nil, ErrInterceptRejected
	}

	i := &Interceptor{
		ctx:       c,
		original:  c.Writer,
		writer:    newBufferWriter(c.Writer),
		transform: transform,
		logger:    logger,
	}
	c.Writer = i.writer
	c.Request = WithBufferDepth(c.Request)
	return i, nil
}

// Finalize restores the original writer and emits the (possibly rewritten)
// output. Only the first call does anything.
func (i *Interceptor) Finalize() {
	i.once.Do(i.finalize)
}

// Processed reports whether finalize served a rewritten body.
func (i *Interceptor) Processed() bool {
	return i.processed
}

func (i *Interceptor) finalize() {
	i.ctx.Writer = i.original

	// Nothing was produced: let whoever handles the abort write the response.
	if !i.writer.written && i.writer.body.Len() == 0 {
		return
	}

	body := i.writer.body.String()
	out := body
	if i.transform != nil {
		out, i.processed = i.safeTransform(Page{
			Body:        body,
			Status:      i.writer.status,
			ContentType: i.original.Header().Get("Content-Type"),
		})
	}

	header := i.original.Header()
	header.Set(types.HeaderProcessed, strconv.FormatBool(i.processed))
	if header.Get("Content-Length") != "" {
		header.Set("Content-Length", strconv.Itoa(len(out)))
	}

	i.original.WriteHeader(i.writer.status)
	if _, err := i.original.WriteString(out); err != nil {
		i.logger.WithError(err).Debug("Client went away while writing intercepted output")
	}
}

func (i *Interceptor) safeTransform(page Page) (out string, processed bool) {
	defer func() {
		if r := recover(); r != nil {
			i.logger.WithField("panic", r).Error("Output transform panicked, serving original")
			out, processed = page.Body, false
		}
	}()
	return i.transform(page)
}
