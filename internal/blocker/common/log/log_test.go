package log

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

type recordingLogger struct {
	entries []string
}

func (l *recordingLogger) Info(_ map[string]any, msg string)  { l.entries = append(l.entries, "INFO:"+msg) }
func (l *recordingLogger) Error(_ map[string]any, msg string) { l.entries = append(l.entries, "ERROR:"+msg) }
func (l *recordingLogger) Debug(_ map[string]any, msg string) { l.entries = append(l.entries, "DEBUG:"+msg) }
func (l *recordingLogger) Warn(_ map[string]any, msg string)  { l.entries = append(l.entries, "WARN:"+msg) }
func (l *recordingLogger) Panic(map[string]any, string)       {}
func (l *recordingLogger) Fatal(map[string]any, string)       {}

func TestZapLogger_Levels(t *testing.T) {
	l := newZapLogger(true, zapcore.DebugLevel)
	l.Debug(map[string]any{"tab": "t1", "err": errors.New("boom")}, "debug line")
	l.Info(nil, "info line")
	l.Warn(nil, "warn line")
	l.Error(nil, "error line")

	assert.Panics(t, func() { l.Panic(nil, "panic line") })
}

func TestGlobalDelegation(t *testing.T) {
	orig := GetLogger()
	defer SetLogger(orig)

	rec := &recordingLogger{}
	SetLogger(rec)

	Info(nil, "a")
	Warn(nil, "b")
	Error(nil, "c")
	Debug(nil, "d")

	assert.Equal(t, []string{"INFO:a", "WARN:b", "ERROR:c", "DEBUG:d"}, rec.entries)
}

func TestConfigure(t *testing.T) {
	orig := GetLogger()
	defer SetLogger(orig)

	require.NoError(t, Configure("dev", "debug"))
	require.NoError(t, Configure("prod", "WARN"))
	assert.Error(t, Configure("prod", "verbose"))
}

func TestZapFields_ErrorsFlattened(t *testing.T) {
	fields := zapFields(map[string]any{"error": errors.New("store down")})
	require.Len(t, fields, 1)
	assert.Equal(t, "store down", fields[0].String)
}

func TestNoopLogger(t *testing.T) {
	l := NewNoopLogger()
	assert.NotPanics(t, func() {
		l.Info(nil, "x")
		l.Panic(nil, "x")
		l.Fatal(nil, "x")
	})
}
