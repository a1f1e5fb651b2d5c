package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/klauspost/compress/gzip"
	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/loggy-dev/loggy-go/internal/infrastructure/resilience"
)

const (
	TokenHeader          = "x-loggy-token"
	ContentTypeJSON      = "application/json"
	ContentTypeEncrypted = "application/json+encrypted"
)

var ErrNoToken = errors.New("remote delivery requires a token")

// StatusError reports a non-2xx ingestion response.
type StatusError struct {
	Endpoint   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ingest %s: unexpected status %d", e.Endpoint, e.StatusCode)
}

// SenderConfig configures a Sender.
type SenderConfig struct {
	Endpoint  string
	Token     string
	Encryptor *Encryptor
	Compress  bool
	// RateLimit caps sends per second; zero means unlimited
	RateLimit float64
	// Breaker overrides the default circuit breaker settings
	Breaker    *resilience.Settings
	HTTPClient *http.Client
	UserAgent  string
	Clock      clockz.Clock
	Logger     *zap.Logger
}

// Sender POSTs encoded batches to one ingestion endpoint. It never retries
// on its own: a failed send is reported to the Batcher, which requeues.
type Sender struct {
	endpoint  string
	token     string
	resty     *resty.Client
	encryptor *Encryptor
	compress  bool
	limiter   *rate.Limiter
	breaker   *resilience.Breaker
	logger    *zap.Logger
}

// NewSender creates a sender for cfg.Endpoint.
func NewSender(cfg SenderConfig) (*Sender, error) {
	if cfg.Token == "" {
		return nil, ErrNoToken
	}
	if cfg.Endpoint == "" {
		return nil, errors.New("remote delivery requires an endpoint")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "loggy-go"
	}
	logger := cfg.Logger.With(zap.String("endpoint", cfg.Endpoint))

	var restyClient *resty.Client
	if cfg.HTTPClient != nil {
		restyClient = resty.NewWithClient(cfg.HTTPClient)
	} else {
		// Pooled transport from retryablehttp; its retry loop is not used,
		// requeue-on-failure is the only retry.
		retryClient := retryablehttp.NewClient()
		retryClient.Logger = nil
		restyClient = resty.New()
		restyClient.SetTransport(retryClient.HTTPClient.Transport)
	}
	restyClient.
		SetRetryCount(0).
		SetLogger(logger.Sugar()).
		SetHeader("User-Agent", cfg.UserAgent)

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	settings := resilience.Settings{
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			// Telemetry is never worth hammering a dead endpoint for.
			return counts.ConsecutiveFailures >= 10
		},
	}
	if cfg.Breaker != nil {
		settings = *cfg.Breaker
	}
	if settings.Clock == nil {
		settings.Clock = cfg.Clock
	}
	settings.OnStateChange = chainStateChange(settings.OnStateChange, logger)

	return &Sender{
		endpoint:  cfg.Endpoint,
		token:     cfg.Token,
		resty:     restyClient,
		encryptor: cfg.Encryptor,
		compress:  cfg.Compress,
		limiter:   limiter,
		breaker:   resilience.New("loggy-"+cfg.Endpoint, settings),
		logger:    logger,
	}, nil
}

func chainStateChange(next func(string, resilience.State, resilience.State), logger *zap.Logger) func(string, resilience.State, resilience.State) {
	return func(name string, from, to resilience.State) {
		logger.Warn("ingest circuit breaker state change",
			zap.Stringer("from", from), zap.Stringer("to", to))
		if next != nil {
			next(name, from, to)
		}
	}
}

// Endpoint returns the ingestion URL.
func (s *Sender) Endpoint() string {
	return s.endpoint
}

// BreakerState returns the current circuit breaker state.
func (s *Sender) BreakerState() resilience.State {
	return s.breaker.State()
}

// Send delivers body, encrypting and compressing it as configured.
func (s *Sender) Send(ctx context.Context, body []byte) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit error: %w", err)
	}

	payload, contentType, err := s.encode(body)
	if err != nil {
		return err
	}

	return s.breaker.Execute(func() error {
		req := s.resty.R().
			SetContext(ctx).
			SetHeader("Content-Type", contentType).
			SetHeader(TokenHeader, s.token).
			SetBody(payload)
		if s.compress {
			req.SetHeader("Content-Encoding", "gzip")
		}

		resp, err := req.Post(s.endpoint)
		if err != nil {
			return fmt.Errorf("ingest %s: %w", s.endpoint, err)
		}
		if !resp.IsSuccess() {
			return &StatusError{Endpoint: s.endpoint, StatusCode: resp.StatusCode()}
		}
		return nil
	})
}

func (s *Sender) encode(body []byte) ([]byte, string, error) {
	payload, contentType := body, ContentTypeJSON

	if s.encryptor != nil {
		env, err := s.encryptor.Encrypt(body)
		if err != nil {
			return nil, "", fmt.Errorf("encrypt batch: %w", err)
		}
		if payload, err = sonic.Marshal(env); err != nil {
			return nil, "", fmt.Errorf("encode envelope: %w", err)
		}
		contentType = ContentTypeEncrypted
	}

	if s.compress {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(payload); err != nil {
			return nil, "", fmt.Errorf("compress batch: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, "", fmt.Errorf("compress batch: %w", err)
		}
		payload = buf.Bytes()
	}

	return payload, contentType, nil
}
