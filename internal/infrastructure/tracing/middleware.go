package tracing

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"strings"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
)

// DefaultMaxBodySize caps captured request and response bodies.
const DefaultMaxBodySize = 1024

// MiddlewareConfig configures HTTPMiddleware.
type MiddlewareConfig struct {
	// IgnorePaths are path prefixes, or doublestar globs when they contain
	// glob metacharacters, that are not traced
	IgnorePaths         []string
	CaptureRequestBody  bool
	CaptureResponseBody bool
	MaxBodySize         int
}

// HTTPMiddleware creates Gin middleware for HTTP tracing
func HTTPMiddleware(tracer *Tracer, cfg MiddlewareConfig) gin.HandlerFunc {
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}
	ignore := newPathMatcher(cfg.IgnorePaths)

	return func(c *gin.Context) {
		req := c.Request
		if ignore.match(req.URL.Path) {
			c.Next()
			return
		}

		// Extract trace context from headers
		ctx := req.Context()
		if parent, ok := Extract(HeaderCarrier(req.Header)); ok {
			ctx = ContextWithRemoteSpanContext(ctx, parent)
		}

		route := c.FullPath()
		if route == "" {
			route = req.URL.Path
		}

		ctx, span := tracer.StartSpan(ctx, req.Method+" "+route,
			WithSpanKind(SpanKindServer),
			WithAttributes(map[string]any{
				"http.method":     req.Method,
				"http.url":        req.URL.String(),
				"http.host":       req.Host,
				"http.scheme":     requestScheme(req),
				"http.user_agent": req.UserAgent(),
				"net.peer.ip":     c.ClientIP(),
				"http.route":      route,
			}),
		)

		if cfg.CaptureRequestBody && req.Body != nil && req.Body != http.NoBody {
			head, err := peekBody(req, cfg.MaxBodySize)
			if err == nil && len(head) > 0 {
				span.SetAttribute("http.request.body", summarizeBody(head, cfg.MaxBodySize))
			}
		}

		writer := &tracedWriter{ResponseWriter: c.Writer, span: span, capture: cfg.CaptureResponseBody, limit: cfg.MaxBodySize}
		c.Writer = writer
		c.Request = req.WithContext(ctx)
		c.Header(TraceparentHeader, FormatTraceparent(span.SpanContext()))

		defer func() {
			if r := recover(); r != nil {
				span.recordPanic(r, debug.Stack())
				span.SetAttribute("http.status_code", http.StatusInternalServerError)
				span.SetStatus(StatusError, panicMessage(r))
				span.End()
				panic(r)
			}
		}()

		// Process request
		c.Next()

		status := writer.Status()
		span.SetAttribute("http.status_code", status)
		if writer.capture && writer.body.Len() > 0 {
			span.SetAttribute("http.response.body", summarizeBody(writer.body.Bytes(), cfg.MaxBodySize))
		}

		failed := writer.failed
		message := writer.failure
		if len(c.Errors) > 0 {
			last := c.Errors.Last()
			span.RecordError(last.Err)
			failed = true
			message = last.Error()
		}
		if status >= http.StatusBadRequest {
			failed = true
			if message == "" {
				message = http.StatusText(status)
			}
		}

		if failed {
			span.SetStatus(StatusError, message)
		} else {
			span.SetStatus(StatusOK, "")
		}
		span.End()
	}
}

// tracedWriter records response write failures on the span and optionally
// keeps the first bytes of the body.
type tracedWriter struct {
	gin.ResponseWriter
	span    *Span
	capture bool
	limit   int
	body    bytes.Buffer
	failed  bool
	failure string
}

func (w *tracedWriter) Write(b []byte) (int, error) {
	w.keep(b)
	n, err := w.ResponseWriter.Write(b)
	w.observe(err)
	return n, err
}

func (w *tracedWriter) WriteString(s string) (int, error) {
	w.keep([]byte(s))
	n, err := w.ResponseWriter.WriteString(s)
	w.observe(err)
	return n, err
}

func (w *tracedWriter) keep(b []byte) {
	if !w.capture {
		return
	}
	if room := w.limit + 1 - w.body.Len(); room > 0 {
		if len(b) > room {
			b = b[:room]
		}
		w.body.Write(b)
	}
}

func (w *tracedWriter) observe(err error) {
	if err == nil {
		return
	}
	// The span may already have ended; mutations are then ignored.
	w.span.RecordError(err)
	w.span.SetStatus(StatusError, err.Error())
	w.failed = true
	w.failure = err.Error()
}

// peekBody reads up to limit+1 bytes of the request body and puts them back
// in front of the unread remainder.
func peekBody(req *http.Request, limit int) ([]byte, error) {
	head := make([]byte, limit+1)
	n, err := io.ReadFull(req.Body, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	head = head[:n]
	req.Body = &replayBody{Reader: io.MultiReader(bytes.NewReader(head), req.Body), Closer: req.Body}
	return head, nil
}

type replayBody struct {
	io.Reader
	io.Closer
}

// summarizeBody returns text bodies truncated to limit bytes and a
// placeholder naming the detected type for binary ones.
func summarizeBody(b []byte, limit int) string {
	mtype := mimetype.Detect(b)
	if !isText(mtype) {
		return fmt.Sprintf("[binary %s]", mtype.String())
	}
	if len(b) <= limit {
		return string(b)
	}
	cut := b[:limit]
	for len(cut) > 0 && !utf8.Valid(cut) {
		cut = cut[:len(cut)-1]
	}
	return string(cut) + "...(truncated)"
}

func isText(mtype *mimetype.MIME) bool {
	for m := mtype; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

func requestScheme(req *http.Request) string {
	if proto := req.Header.Get("X-Forwarded-Proto"); proto != "" {
		return strings.ToLower(proto)
	}
	if req.TLS != nil {
		return "https"
	}
	return "http"
}

// pathMatcher matches request paths against prefixes and glob patterns.
type pathMatcher struct {
	prefixes []string
	globs    []string
}

func newPathMatcher(paths []string) pathMatcher {
	var m pathMatcher
	for _, p := range paths {
		if p == "" {
			continue
		}
		if strings.ContainsAny(p, "*?[{") && doublestar.ValidatePattern(p) {
			m.globs = append(m.globs, p)
		} else {
			m.prefixes = append(m.prefixes, p)
		}
	}
	return m
}

func (m pathMatcher) match(path string) bool {
	for _, p := range m.prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	for _, g := range m.globs {
		if ok, _ := doublestar.Match(g, path); ok {
			return true
		}
	}
	return false
}
