package http

import (
	"bytes"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
	"github.com/zoobzio/clockz"
	"go.uber.org/zap"

	"github.com/loggy-dev/loggy-go/internal/infrastructure/transport"
)

// DefaultMaxBodyBytes caps a single ingestion request, after decompression.
const DefaultMaxBodyBytes = 10 << 20

// payloadKeys maps the signal in the URL to the key its batch uses.
var payloadKeys = map[string]string{
	"traces":  "spans",
	"logs":    "logs",
	"metrics": "metrics",
}

var (
	errBodyTooLarge     = errors.New("request body too large")
	errEncryptionNotSet = errors.New("encrypted payloads are not enabled")
)

// HandlersConfig configures the ingestion handlers.
type HandlersConfig struct {
	// Tokens lists accepted tokens; empty accepts any non-empty token
	Tokens       []string
	PrivateKey   *rsa.PrivateKey
	Store        *Store
	MaxBodyBytes int64
	// EchoLogs writes every received log record to Logger
	EchoLogs bool
	Clock    clockz.Clock
	Logger   *zap.Logger
}

// Handlers serves the ingestion API.
type Handlers struct {
	tokens     map[string]struct{}
	privateKey *rsa.PrivateKey
	store      *Store
	maxBody    int64
	echoLogs   bool
	clock      clockz.Clock
	logger     *zap.Logger
}

// NewHandlers creates handlers from cfg.
func NewHandlers(cfg HandlersConfig) *Handlers {
	if cfg.Store == nil {
		cfg.Store = NewStore(DefaultRetain)
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.Clock == nil {
		cfg.Clock = clockz.RealClock
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	tokens := make(map[string]struct{}, len(cfg.Tokens))
	for _, t := range cfg.Tokens {
		if t = strings.TrimSpace(t); t != "" {
			tokens[t] = struct{}{}
		}
	}

	return &Handlers{
		tokens:     tokens,
		privateKey: cfg.PrivateKey,
		store:      cfg.Store,
		maxBody:    cfg.MaxBodyBytes,
		echoLogs:   cfg.EchoLogs,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
	}
}

// Store returns the batch store.
func (h *Handlers) Store() *Store { return h.store }

// Health reports liveness and per-signal record totals.
func (h *Handlers) Health(c *gin.Context) {
	totals := make(map[string]int, len(payloadKeys))
	for signal := range payloadKeys {
		totals[signal] = h.store.Total(signal)
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"received": totals,
	})
}

// Ingest accepts one batch for the signal named in the path.
func (h *Handlers) Ingest(c *gin.Context) {
	signal := c.Param("signal")
	key, ok := payloadKeys[signal]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown signal"})
		return
	}

	token := c.GetHeader(transport.TokenHeader)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing " + transport.TokenHeader + " header"})
		return
	}
	if len(h.tokens) > 0 {
		if _, ok := h.tokens[token]; !ok {
			c.JSON(http.StatusForbidden, gin.H{"error": "invalid token"})
			return
		}
	}

	body, err := h.readBody(c)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	encrypted := strings.HasPrefix(c.ContentType(), transport.ContentTypeEncrypted)
	if encrypted {
		if body, err = h.decrypt(body); err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, errEncryptionNotSet) {
				status = http.StatusUnsupportedMediaType
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
	}

	var payload map[string][]json.RawMessage
	if err := sonic.Unmarshal(body, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid batch format"})
		return
	}
	records, ok := payload[key]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("batch has no %q key", key)})
		return
	}

	h.store.Add(Batch{
		Signal:     signal,
		Token:      token,
		ReceivedAt: h.clock.Now(),
		Encrypted:  encrypted,
		Compressed: isGzip(c),
		Records:    records,
	})
	h.logger.Info("Batch received",
		zap.String("signal", signal),
		zap.Int("records", len(records)),
		zap.Bool("encrypted", encrypted),
	)
	if h.echoLogs && signal == "logs" {
		h.echo(records)
	}

	c.JSON(http.StatusAccepted, gin.H{"accepted": len(records)})
}

// List returns the retained records for a signal. The optional limit query
// parameter keeps only the newest records.
func (h *Handlers) List(c *gin.Context) {
	signal := c.Param("signal")
	if _, ok := payloadKeys[signal]; !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown signal"})
		return
	}

	records := h.store.Records(signal)
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		if limit < len(records) {
			records = records[len(records)-limit:]
		}
	}
	if records == nil {
		records = []json.RawMessage{}
	}

	c.JSON(http.StatusOK, gin.H{
		"signal":  signal,
		"total":   h.store.Total(signal),
		"records": records,
	})
}

func isGzip(c *gin.Context) bool {
	return strings.EqualFold(c.GetHeader("Content-Encoding"), "gzip")
}

func (h *Handlers) readBody(c *gin.Context) ([]byte, error) {
	body, err := readLimited(c.Request.Body, h.maxBody)
	if err != nil {
		return nil, err
	}
	if !isGzip(c) {
		return body, nil
	}

	zr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("invalid gzip body: %w", err)
	}
	defer zr.Close()
	return readLimited(zr, h.maxBody)
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, errBodyTooLarge
	}
	return body, nil
}

func (h *Handlers) decrypt(body []byte) ([]byte, error) {
	if h.privateKey == nil {
		return nil, errEncryptionNotSet
	}
	var env transport.Envelope
	if err := sonic.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}
	plain, err := transport.Decrypt(&env, h.privateKey)
	if err != nil {
		return nil, err
	}
	return plain, nil
}

// receivedLog is the subset of a log record echoed locally.
type receivedLog struct {
	Level    string         `json:"level"`
	Message  string         `json:"message"`
	Service  string         `json:"service"`
	TraceID  string         `json:"traceId"`
	SpanID   string         `json:"spanId"`
	Metadata map[string]any `json:"metadata"`
}

// echo re-logs received log records at their own level
func (h *Handlers) echo(records []json.RawMessage) {
	for _, raw := range records {
		var entry receivedLog
		if err := sonic.Unmarshal(raw, &entry); err != nil {
			h.logger.Debug("Skipping malformed log record", zap.Error(err))
			continue
		}

		fields := make([]zap.Field, 0, len(entry.Metadata)+3)
		fields = append(fields,
			zap.String("service", entry.Service),
			zap.String("trace_id", entry.TraceID),
			zap.String("span_id", entry.SpanID),
		)
		for k, v := range entry.Metadata {
			fields = append(fields, zap.Any(k, v))
		}

		logger := h.logger.Named("remote")
		switch entry.Level {
		case "error":
			logger.Error(entry.Message, fields...)
		case "warn":
			logger.Warn(entry.Message, fields...)
		case "debug":
			logger.Debug(entry.Message, fields...)
		default:
			logger.Info(entry.Message, fields...)
		}
	}
}
