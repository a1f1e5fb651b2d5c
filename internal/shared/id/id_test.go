package id

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceIDUniqueAndFormatted(t *testing.T) {
	const n = 5000
	seen := make(map[string]bool, n)

	for i := 0; i < n; i++ {
		tid := NewTraceID()
		if len(tid) != TraceIDHexLen {
			t.Fatalf("Trace ID should be %d characters, got %d: %s", TraceIDHexLen, len(tid), tid)
		}
		if !IsValidTraceID(tid) {
			t.Fatalf("Trace ID should be valid lowercase hex: %s", tid)
		}
		if seen[tid] {
			t.Fatalf("Duplicate trace ID: %s", tid)
		}
		seen[tid] = true
	}
}

func TestSpanIDUniqueAndFormatted(t *testing.T) {
	const n = 5000
	seen := make(map[string]bool, n)

	for i := 0; i < n; i++ {
		sid := NewSpanID()
		if len(sid) != SpanIDHexLen {
			t.Fatalf("Span ID should be %d characters, got %d: %s", SpanIDHexLen, len(sid), sid)
		}
		if !IsValidSpanID(sid) {
			t.Fatalf("Span ID should be valid lowercase hex: %s", sid)
		}
		if seen[sid] {
			t.Fatalf("Duplicate span ID: %s", sid)
		}
		seen[sid] = true
	}
}

func TestZeroDrawsAreRedrawn(t *testing.T) {
	// 16 zero bytes first, then a usable draw.
	entropy := bytes.NewReader(append(make([]byte, 16), bytes.Repeat([]byte{0xab}, 16)...))
	gen := NewGeneratorWithEntropy(entropy)

	tid := gen.TraceID()
	assert.True(t, tid.IsValid())
	assert.Equal(t, strings.Repeat("ab", 16), tid.String())
}

func TestEntropyFailurePanics(t *testing.T) {
	gen := NewGeneratorWithEntropy(bytes.NewReader(nil))

	assert.Panics(t, func() {
		gen.SpanID()
	})
}

func TestIsValidHexIDs(t *testing.T) {
	tests := []struct {
		name  string
		input string
		trace bool
		want  bool
	}{
		{"valid trace", "0af7651916cd43dd8448eb211c80319c", true, true},
		{"zero trace", strings.Repeat("0", 32), true, false},
		{"uppercase trace", "0AF7651916CD43DD8448EB211C80319C", true, false},
		{"short trace", "0af7651916cd43dd", true, false},
		{"non hex trace", "0af7651916cd43dd8448eb211c80319z", true, false},
		{"valid span", "b7ad6b7169203331", false, true},
		{"zero span", strings.Repeat("0", 16), false, false},
		{"long span", "b7ad6b716920333100", false, false},
		{"empty span", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got bool
			if tt.trace {
				got = IsValidTraceID(tt.input)
			} else {
				got = IsValidSpanID(tt.input)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecordID(t *testing.T) {
	before := time.Now()
	rid := NewRecordID()
	after := time.Now()

	require.True(t, IsValidRecordID(rid))
	assert.Len(t, rid, 26)

	ts, err := RecordTimestamp(rid)
	require.NoError(t, err)

	// ULID timestamps have millisecond precision
	assert.GreaterOrEqual(t, ts.UnixMilli(), before.UnixMilli())
	assert.LessOrEqual(t, ts.UnixMilli(), after.UnixMilli())

	assert.False(t, IsValidRecordID("invalid"))
}

func TestInstanceID(t *testing.T) {
	iid := NewInstanceID()

	parsed, err := uuid.Parse(iid)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(4), parsed.Version())
}

func TestConcurrentGeneration(t *testing.T) {
	gen := NewGenerator()

	const goroutines = 50
	const idsPerGoroutine = 100

	var wg sync.WaitGroup
	idChan := make(chan string, goroutines*idsPerGoroutine)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < idsPerGoroutine; j++ {
				idChan <- gen.SpanID().String()
			}
		}()
	}

	wg.Wait()
	close(idChan)

	seen := make(map[string]bool)
	for sid := range idChan {
		if seen[sid] {
			t.Errorf("Duplicate ID generated: %s", sid)
		}
		seen[sid] = true
	}

	assert.Len(t, seen, goroutines*idsPerGoroutine)
}
