package logging

import "go.uber.org/zap/zapcore"

// Field names lifted out of zap fields into the record's correlation IDs.
const (
	TraceIDField = "trace_id"
	SpanIDField  = "span_id"
)

// remoteCore is a zapcore.Core that forwards entries to a RemoteLogger, so
// a host's existing zap logger can ship to Loggy with zapcore.NewTee.
type remoteCore struct {
	zapcore.LevelEnabler
	remote *RemoteLogger
	fields []zapcore.Field
}

// NewCore returns a core that ships entries at or above level to remote.
func NewCore(remote *RemoteLogger, level zapcore.LevelEnabler) zapcore.Core {
	if level == nil {
		level = remote.level
	}
	return &remoteCore{LevelEnabler: level, remote: remote}
}

func (c *remoteCore) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.fields = make([]zapcore.Field, 0, len(c.fields)+len(fields))
	clone.fields = append(clone.fields, c.fields...)
	clone.fields = append(clone.fields, fields...)
	return &clone
}

func (c *remoteCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *remoteCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}

	metadata := enc.Fields
	if ent.LoggerName != "" {
		metadata["logger"] = ent.LoggerName
	}
	if ent.Caller.Defined {
		metadata["caller"] = ent.Caller.TrimmedPath()
	}

	traceID, _ := metadata[TraceIDField].(string)
	spanID, _ := metadata[SpanIDField].(string)
	delete(metadata, TraceIDField)
	delete(metadata, SpanIDField)

	ts := ent.Time
	if ts.IsZero() {
		ts = c.remote.clock.Now()
	}
	c.remote.enqueue(ent.Level, ent.Message, metadata, ts, traceID, spanID)
	return nil
}

// Sync is a no-op; delivery happens on the batcher's schedule.
func (c *remoteCore) Sync() error {
	return nil
}
