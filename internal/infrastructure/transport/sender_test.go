package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"

	"github.com/loggy-dev/loggy-go/internal/infrastructure/resilience"
)

type capturedRequest struct {
	header http.Header
	body   []byte
}

type ingestServer struct {
	*httptest.Server
	mu       sync.Mutex
	requests []capturedRequest
	status   atomic.Int32
}

func newIngestServer(t *testing.T) *ingestServer {
	t.Helper()
	s := &ingestServer{}
	s.status.Store(http.StatusOK)
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.requests = append(s.requests, capturedRequest{header: r.Header.Clone(), body: body})
		s.mu.Unlock()
		w.WriteHeader(int(s.status.Load()))
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *ingestServer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *ingestServer) last() capturedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[len(s.requests)-1]
}

func TestNewSenderRequiresToken(t *testing.T) {
	_, err := NewSender(SenderConfig{Endpoint: "http://localhost"})
	assert.ErrorIs(t, err, ErrNoToken)

	_, err = NewSender(SenderConfig{Token: "tok"})
	assert.Error(t, err)
}

func TestSenderPostsJSONWithToken(t *testing.T) {
	srv := newIngestServer(t)
	sender, err := NewSender(SenderConfig{Endpoint: srv.URL, Token: "project-token"})
	require.NoError(t, err)

	body := []byte(`{"spans":[]}`)
	require.NoError(t, sender.Send(context.Background(), body))

	req := srv.last()
	assert.Equal(t, "project-token", req.header.Get(TokenHeader))
	assert.Equal(t, ContentTypeJSON, req.header.Get("Content-Type"))
	assert.JSONEq(t, string(body), string(req.body))
}

func TestSenderNonSuccessStatus(t *testing.T) {
	srv := newIngestServer(t)
	srv.status.Store(http.StatusServiceUnavailable)

	sender, err := NewSender(SenderConfig{Endpoint: srv.URL, Token: "tok"})
	require.NoError(t, err)

	err = sender.Send(context.Background(), []byte(`{}`))
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Equal(t, 1, srv.count(), "sender must not retry on its own")
}

func TestSenderNetworkError(t *testing.T) {
	srv := newIngestServer(t)
	url := srv.URL
	srv.Close()

	sender, err := NewSender(SenderConfig{Endpoint: url, Token: "tok"})
	require.NoError(t, err)

	assert.Error(t, sender.Send(context.Background(), []byte(`{}`)))
}

func TestSenderEncryptsPayload(t *testing.T) {
	priv, pubPEM := testKeys(t)
	enc, err := NewEncryptorFromPEM(pubPEM, "")
	require.NoError(t, err)

	srv := newIngestServer(t)
	sender, err := NewSender(SenderConfig{Endpoint: srv.URL, Token: "tok", Encryptor: enc})
	require.NoError(t, err)

	body := []byte(`{"logs":[{"message":"secret"}]}`)
	require.NoError(t, sender.Send(context.Background(), body))

	req := srv.last()
	assert.Equal(t, ContentTypeEncrypted, req.header.Get("Content-Type"))
	assert.NotContains(t, string(req.body), "secret")

	var env Envelope
	require.NoError(t, json.Unmarshal(req.body, &env))
	plaintext, err := Decrypt(&env, priv)
	require.NoError(t, err)
	assert.Equal(t, body, plaintext)
}

func TestSenderCompressesPayload(t *testing.T) {
	srv := newIngestServer(t)
	sender, err := NewSender(SenderConfig{Endpoint: srv.URL, Token: "tok", Compress: true})
	require.NoError(t, err)

	body := []byte(`{"metrics":[{"path":"/users"}]}`)
	require.NoError(t, sender.Send(context.Background(), body))

	req := srv.last()
	assert.Equal(t, "gzip", req.header.Get("Content-Encoding"))

	zr, err := gzip.NewReader(bytes.NewReader(req.body))
	require.NoError(t, err)
	plain, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, body, plain)
}

func TestSenderBreakerFailsFast(t *testing.T) {
	srv := newIngestServer(t)
	srv.status.Store(http.StatusInternalServerError)

	sender, err := NewSender(SenderConfig{
		Endpoint: srv.URL,
		Token:    "tok",
		Breaker: &resilience.Settings{
			Timeout: time.Minute,
			ReadyToTrip: func(c resilience.Counts) bool {
				return c.ConsecutiveFailures >= 2
			},
		},
		Clock: clockz.NewFakeClock(),
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		assert.Error(t, sender.Send(context.Background(), []byte(`{}`)))
	}

	assert.Equal(t, 2, srv.count())
	assert.Equal(t, resilience.StateOpen, sender.BreakerState())
}

func TestSenderRateLimitHonoursContext(t *testing.T) {
	srv := newIngestServer(t)
	sender, err := NewSender(SenderConfig{Endpoint: srv.URL, Token: "tok", RateLimit: 0.001})
	require.NoError(t, err)

	require.NoError(t, sender.Send(context.Background(), []byte(`{}`)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, sender.Send(ctx, []byte(`{}`)))
	assert.Equal(t, 1, srv.count())
}
