package tracing

import (
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/metadata"

	"github.com/loggy-dev/loggy-go/internal/shared/id"
)

// Propagation header names
const (
	TraceparentHeader = "traceparent"
	TracestateHeader  = "tracestate"

	traceparentVersion = "00"
)

// SpanContext is the propagatable identity of a span.
type SpanContext struct {
	TraceID    trace.TraceID
	SpanID     trace.SpanID
	TraceFlags trace.TraceFlags
	TraceState TraceState
	Remote     bool
}

// IsValid reports whether both IDs are non-zero.
func (sc SpanContext) IsValid() bool {
	return sc.TraceID.IsValid() && sc.SpanID.IsValid()
}

// IsSampled reports whether the sampled flag is set.
func (sc SpanContext) IsSampled() bool {
	return sc.TraceFlags.IsSampled()
}

func (sc SpanContext) TraceIDString() string { return sc.TraceID.String() }
func (sc SpanContext) SpanIDString() string  { return sc.SpanID.String() }

type spanContextJSON struct {
	TraceID    string `json:"traceId"`
	SpanID     string `json:"spanId"`
	TraceFlags int    `json:"traceFlags"`
	TraceState string `json:"traceState,omitempty"`
	Remote     bool   `json:"remote,omitempty"`
}

// MarshalJSON encodes the IDs as lowercase hex.
func (sc SpanContext) MarshalJSON() ([]byte, error) {
	return sonic.Marshal(spanContextJSON{
		TraceID:    sc.TraceID.String(),
		SpanID:     sc.SpanID.String(),
		TraceFlags: int(sc.TraceFlags),
		TraceState: sc.TraceState.String(),
		Remote:     sc.Remote,
	})
}

// ParseTraceparent decodes a W3C traceparent header. It reports false for
// any malformed input and never panics.
func ParseTraceparent(h string) (SpanContext, bool) {
	parts := strings.Split(h, "-")
	if len(parts) != 4 {
		return SpanContext{}, false
	}
	if parts[0] != traceparentVersion {
		return SpanContext{}, false
	}
	if !id.IsValidTraceID(parts[1]) || !id.IsValidSpanID(parts[2]) {
		return SpanContext{}, false
	}
	if len(parts[3]) != 2 || !id.IsLowerHex(parts[3]) {
		return SpanContext{}, false
	}

	var sc SpanContext
	if _, err := hex.Decode(sc.TraceID[:], []byte(parts[1])); err != nil {
		return SpanContext{}, false
	}
	if _, err := hex.Decode(sc.SpanID[:], []byte(parts[2])); err != nil {
		return SpanContext{}, false
	}
	var flags [1]byte
	if _, err := hex.Decode(flags[:], []byte(parts[3])); err != nil {
		return SpanContext{}, false
	}
	sc.TraceFlags = trace.TraceFlags(flags[0])
	return sc, true
}

// FormatTraceparent encodes sc as a W3C traceparent header.
func FormatTraceparent(sc SpanContext) string {
	var b strings.Builder
	b.Grow(55)
	b.WriteString(traceparentVersion)
	b.WriteByte('-')
	b.WriteString(sc.TraceID.String())
	b.WriteByte('-')
	b.WriteString(sc.SpanID.String())
	b.WriteByte('-')
	b.WriteString(hex.EncodeToString([]byte{byte(sc.TraceFlags)}))
	return b.String()
}

// Carrier is a string key/value store that propagation headers travel in.
type Carrier interface {
	Get(key string) string
	Set(key, value string)
	Keys() []string
}

// MapCarrier is a Carrier over a plain map. Lookups are exact.
type MapCarrier map[string]string

func (c MapCarrier) Get(key string) string { return c[key] }
func (c MapCarrier) Set(key, value string) { c[key] = value }

func (c MapCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// HeaderCarrier adapts http.Header.
type HeaderCarrier http.Header

func (c HeaderCarrier) Get(key string) string { return http.Header(c).Get(key) }
func (c HeaderCarrier) Set(key, value string) { http.Header(c).Set(key, value) }

func (c HeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// MetadataCarrier adapts gRPC metadata. Keys are lowercased by metadata.MD.
type MetadataCarrier metadata.MD

func (c MetadataCarrier) Get(key string) string {
	vals := metadata.MD(c).Get(key)
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

func (c MetadataCarrier) Set(key, value string) { metadata.MD(c).Set(key, value) }

func (c MetadataCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// Inject writes sc into carrier and returns it. A nil carrier gets a fresh
// MapCarrier; an invalid context leaves the carrier untouched.
func Inject(sc SpanContext, carrier Carrier) Carrier {
	if carrier == nil {
		carrier = MapCarrier{}
	}
	if !sc.IsValid() {
		return carrier
	}
	carrier.Set(TraceparentHeader, FormatTraceparent(sc))
	if ts := sc.TraceState.String(); ts != "" {
		carrier.Set(TracestateHeader, ts)
	}
	return carrier
}

// Extract reads a remote parent from carrier.
func Extract(carrier Carrier) (SpanContext, bool) {
	if carrier == nil {
		return SpanContext{}, false
	}

	var header string
	for _, key := range []string{TraceparentHeader, "Traceparent", "TRACEPARENT"} {
		if header = carrier.Get(key); header != "" {
			break
		}
	}
	if header == "" {
		return SpanContext{}, false
	}

	sc, ok := ParseTraceparent(strings.TrimSpace(header))
	if !ok {
		return SpanContext{}, false
	}
	sc.Remote = true

	state := carrier.Get(TracestateHeader)
	if state == "" {
		state = carrier.Get("Tracestate")
	}
	sc.TraceState = ParseTraceState(state)
	return sc, true
}
