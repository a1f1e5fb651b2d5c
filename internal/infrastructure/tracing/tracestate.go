package tracing

import "strings"

// TraceMember is one key=value entry of a tracestate header.
type TraceMember struct {
	Key   string
	Value string
}

// TraceState is the ordered vendor list carried in the tracestate header.
// It is passed through unchanged; the SDK never adds its own entry.
type TraceState struct {
	members []TraceMember
}

// ParseTraceState splits a tracestate header. Entries without '=' or with an
// empty key are skipped.
func ParseTraceState(s string) TraceState {
	if strings.TrimSpace(s) == "" {
		return TraceState{}
	}

	var ts TraceState
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		key, value, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		ts.members = append(ts.members, TraceMember{Key: key, Value: strings.TrimSpace(value)})
	}
	return ts
}

// Len returns the number of entries.
func (ts TraceState) Len() int { return len(ts.members) }

// Get returns the value for key, or "".
func (ts TraceState) Get(key string) string {
	for _, m := range ts.members {
		if m.Key == key {
			return m.Value
		}
	}
	return ""
}

// Members returns a copy of the entries in order.
func (ts TraceState) Members() []TraceMember {
	return append([]TraceMember(nil), ts.members...)
}

// String re-encodes the header in its original order.
func (ts TraceState) String() string {
	if len(ts.members) == 0 {
		return ""
	}
	var b strings.Builder
	for i, m := range ts.members {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(m.Key)
		b.WriteByte('=')
		b.WriteString(m.Value)
	}
	return b.String()
}
