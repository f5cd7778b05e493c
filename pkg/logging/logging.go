// Package logging provides structured logging for the module.
// Log entries are JSON lines; details can be attached per call or through the context.
package logging

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"go.llib.dev/testcase/clock"
)

type Logger struct {
	// Out is where the log entries are written.
	//
	// default: os.Stderr
	Out io.Writer
	// Level is the logging level.
	// Entries below this level are dropped.
	//
	// default: LevelInfo
	Level Level

	MessageKey   string
	LevelKey     string
	TimestampKey string

	// MarshalFunc is used to serialise the logging entry.
	// When nil, it defaults to JSON format.
	MarshalFunc func(any) ([]byte, error)

	outLock sync.Mutex
}

type Level int8

const (
	LevelDebug Level = iota - 1
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

func (l *Logger) Debug(ctx context.Context, msg string, ds ...Detail) {
	l.log(ctx, LevelDebug, msg, ds)
}

func (l *Logger) Info(ctx context.Context, msg string, ds ...Detail) {
	l.log(ctx, LevelInfo, msg, ds)
}

func (l *Logger) Warn(ctx context.Context, msg string, ds ...Detail) {
	l.log(ctx, LevelWarn, msg, ds)
}

func (l *Logger) Error(ctx context.Context, msg string, ds ...Detail) {
	l.log(ctx, LevelError, msg, ds)
}

func (l *Logger) log(ctx context.Context, level Level, msg string, ds []Detail) {
	if level < l.Level {
		return
	}
	entry := Fields{}
	for _, d := range lookupDetails(ctx) {
		d.addTo(entry)
	}
	for _, d := range ds {
		d.addTo(entry)
	}
	entry[l.key(l.LevelKey, "level")] = level.String()
	entry[l.key(l.MessageKey, "message")] = msg
	entry[l.key(l.TimestampKey, "timestamp")] = clock.Now().UTC()
	data, err := l.marshal(entry)
	if err != nil {
		data = []byte(`{"level":"error","message":"logging entry marshaling failed"}`)
	}
	l.outLock.Lock()
	defer l.outLock.Unlock()
	_, _ = l.out().Write(append(data, '\n'))
}

func (l *Logger) key(key, fallback string) string {
	if key != "" {
		return key
	}
	return fallback
}

func (l *Logger) out() io.Writer {
	if l.Out != nil {
		return l.Out
	}
	return os.Stderr
}

func (l *Logger) marshal(v any) ([]byte, error) {
	if l.MarshalFunc != nil {
		return l.MarshalFunc(v)
	}
	return json.Marshal(v)
}

// Detail is a logging entry detail, such as a Field or Fields.
type Detail interface{ addTo(Fields) }

// Field creates a single key-value logging detail.
func Field(key string, value any) Detail {
	return Fields{key: value}
}

// Fields is a logging detail that holds multiple key-value pairs.
type Fields map[string]any

func (fs Fields) addTo(entry Fields) {
	for k, v := range fs {
		entry[k] = v
	}
}

// ErrField formats an error value as a logging detail.
func ErrField(err error) Detail {
	if err == nil {
		return Fields{}
	}
	return Field("error", err.Error())
}

type ctxKeyDetails struct{}

// ContextWith returns a context that carries the given logging details.
// Every log entry made with that context will include them.
func ContextWith(ctx context.Context, ds ...Detail) context.Context {
	if len(ds) == 0 {
		return ctx
	}
	return context.WithValue(ctx, ctxKeyDetails{}, append(lookupDetails(ctx), ds...))
}

func lookupDetails(ctx context.Context) []Detail {
	if ctx == nil {
		return nil
	}
	ds, _ := ctx.Value(ctxKeyDetails{}).([]Detail)
	return ds
}
