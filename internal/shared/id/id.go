// Package id provides centralized ID generation for the SDK.
//
// This package offers:
//   - Trace IDs: 128-bit CSPRNG values, 32 lowercase hex characters
//   - Span IDs: 64-bit CSPRNG values, 16 lowercase hex characters
//   - Record IDs: ULIDs for log records (lexicographically sortable)
//   - Instance IDs: UUIDv4 identifying one SDK instance in a process
//
// Trace and span IDs never take the all-zero value; a zero draw is redrawn.
package id

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TraceIDHexLen is the rendered length of a trace ID.
	TraceIDHexLen = 32
	// SpanIDHexLen is the rendered length of a span ID.
	SpanIDHexLen = 16
)

// ============================================================================
// Generator
// ============================================================================

// Generator draws identifiers from an entropy source
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand
func NewGenerator() *Generator {
	return &Generator{
		entropy: rand.Reader,
	}
}

// NewGeneratorWithEntropy creates a generator with custom entropy source
// Useful for testing with deterministic entropy
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{
		entropy: entropy,
	}
}

// TraceID returns a new non-zero 128-bit trace ID
func (g *Generator) TraceID() trace.TraceID {
	var tid trace.TraceID
	for !tid.IsValid() {
		g.fill(tid[:])
	}
	return tid
}

// SpanID returns a new non-zero 64-bit span ID
func (g *Generator) SpanID() trace.SpanID {
	var sid trace.SpanID
	for !sid.IsValid() {
		g.fill(sid[:])
	}
	return sid
}

// RecordID returns a new ULID string
func (g *Generator) RecordID() string {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy).String()
}

// fill reads len(b) bytes of entropy. A failing entropy source is unrecoverable.
func (g *Generator) fill(b []byte) {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	if _, err := io.ReadFull(g.entropy, b); err != nil {
		panic(fmt.Sprintf("id: entropy source failed: %v", err))
	}
}

// ============================================================================
// Package helpers
// ============================================================================

// NewTraceID generates a trace ID as 32 lowercase hex characters
func NewTraceID() string {
	return Default().TraceID().String()
}

// NewSpanID generates a span ID as 16 lowercase hex characters
func NewSpanID() string {
	return Default().SpanID().String()
}

// NewRecordID generates a log record ID
func NewRecordID() string {
	return Default().RecordID()
}

// NewInstanceID generates an SDK instance ID
func NewInstanceID() string {
	return uuid.New().String()
}

// ============================================================================
// Validation
// ============================================================================

// IsValidTraceID reports whether s is 32 lowercase hex characters and not all zero
func IsValidTraceID(s string) bool {
	return isValidHexID(s, TraceIDHexLen)
}

// IsValidSpanID reports whether s is 16 lowercase hex characters and not all zero
func IsValidSpanID(s string) bool {
	return isValidHexID(s, SpanIDHexLen)
}

// IsLowerHex reports whether s is non-empty and consists only of 0-9 and a-f
func IsLowerHex(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

func isValidHexID(s string, length int) bool {
	if len(s) != length || !IsLowerHex(s) {
		return false
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return false
	}
	for _, v := range b {
		if v != 0 {
			return true
		}
	}
	return false
}

// IsValidRecordID checks if a string is a valid ULID
func IsValidRecordID(s string) bool {
	_, err := ulid.Parse(s)
	return err == nil
}

// RecordTimestamp extracts the timestamp from a record ID
func RecordTimestamp(s string) (time.Time, error) {
	parsed, err := ulid.Parse(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
