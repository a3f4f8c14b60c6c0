package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"
)

func TestModuleLoggerLevels(t *testing.T) {
	tests := []struct {
		level     LogLevel
		logs      func(Logger)
		wantEmpty bool
	}{
		{LogLevelInfo, func(l Logger) { l.Debug("hidden") }, true},
		{LogLevelInfo, func(l Logger) { l.Info("shown") }, false},
		{LogLevelWarn, func(l Logger) { l.Info("hidden") }, true},
		{LogLevelTrace, func(l Logger) { l.Trace("shown") }, false},
		{LogLevelError, func(l Logger) { l.Log(LogLevelWarn, "hidden") }, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			buf := &bytes.Buffer{}
			tt.logs(NewSlogLogger(buf, tt.level))
			assert.Equal(t, tt.wantEmpty, buf.Len() == 0, buf.String())
		})
	}
}

func TestTraceLevelRenderedByName(t *testing.T) {
	buf := &bytes.Buffer{}
	NewSlogLogger(buf, LogLevelTrace).Trace("sql query")
	assert.Contains(t, buf.String(), "level=TRACE")
	assert.NotContains(t, buf.String(), "time=")
}

func TestModuleAndFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewSlogLogger(buf, LogLevelDebug).
		Module("validation").
		Module("rfid").
		With(Uint64("incident_id", 42))

	log.Info("correlated",
		Float64("confidence", 33.33333),
		Duration("elapsed", 1500*time.Microsecond),
		Bool("fallback", false),
		Error(errors.New("boom")))

	out := buf.String()
	assert.Contains(t, out, "module=validation.rfid")
	assert.Contains(t, out, "incident_id=42")
	assert.Contains(t, out, "confidence=33.333")
	assert.Contains(t, out, "elapsed=2ms")
	assert.Contains(t, out, "fallback=false")
	assert.Contains(t, out, "error=boom")
}

func TestWithDoesNotMutateParent(t *testing.T) {
	buf := &bytes.Buffer{}
	parent := NewSlogLogger(buf, LogLevelInfo).Module("api")
	_ = parent.With(String("request", "r1"))

	parent.Info("plain")
	assert.NotContains(t, buf.String(), "request=r1")
}

func TestWithContextAddsTraceID(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewSlogLogger(buf, LogLevelInfo)

	log.WithContext(context.Background()).Info("no trace")
	assert.NotContains(t, buf.String(), "trace_id")

	ctx := WithTraceID(context.Background(), "run-1")
	log.WithContext(ctx).Info("traced")
	assert.Contains(t, buf.String(), "trace_id=run-1")
	assert.Equal(t, "run-1", TraceIDFromContext(ctx))
}

func TestCentralLoggerModuleLevels(t *testing.T) {
	console := &bytes.Buffer{}
	cl, err := newCentralLogger(&LoggingConfig{
		DefaultLevel: "warn",
		Console:      &ConsoleOutput{Enabled: true, Level: "trace"},
		ModuleLevels: map[string]string{"datastore": "trace"},
	}, console)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cl.Close() })

	cl.Module("validation").Info("suppressed by default level")
	cl.Module("datastore").Trace("sql query")

	out := console.String()
	assert.NotContains(t, out, "suppressed")
	assert.Contains(t, out, "module=datastore")
}

func TestCentralLoggerFileOutputIsJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "roadguard.log")
	cl, err := newCentralLogger(&LoggingConfig{
		DefaultLevel: "info",
		Timezone:     "UTC",
		Console:      &ConsoleOutput{Enabled: false},
		FileOutput:   &FileOutput{Enabled: true, Path: path, Level: "info"},
	}, &bytes.Buffer{})
	require.NoError(t, err)

	cl.Module("mqtt").Info("connected", String("broker", "tcp://localhost:1883"))
	require.NoError(t, cl.Flush())
	require.NoError(t, cl.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(data))), &record))
	assert.Equal(t, "connected", record["msg"])
	assert.Equal(t, "mqtt", record["module"])
	assert.True(t, strings.HasSuffix(record["time"].(string), "Z"))
}

func TestCentralLoggerFanout(t *testing.T) {
	console := &bytes.Buffer{}
	path := filepath.Join(t.TempDir(), "app.log")
	cl, err := newCentralLogger(&LoggingConfig{
		DefaultLevel: "debug",
		Console:      &ConsoleOutput{Enabled: true, Level: "warn"},
		FileOutput:   &FileOutput{Enabled: true, Path: path, Level: "debug"},
	}, console)
	require.NoError(t, err)

	cl.Module("seed").Debug("file only")
	require.NoError(t, cl.Close())

	assert.Empty(t, console.String())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "file only")
}

func TestNewCentralLoggerRejectsBadInput(t *testing.T) {
	_, err := NewCentralLogger(nil)
	require.Error(t, err)

	_, err = NewCentralLogger(&LoggingConfig{Timezone: "Mars/Olympus"})
	require.Error(t, err)
}

func TestGormAdapterTrace(t *testing.T) {
	buf := &bytes.Buffer{}
	adapter := NewGormLoggerAdapter(NewSlogLogger(buf, LogLevelTrace), 50*time.Millisecond)
	assert.Same(t, adapter, adapter.LogMode(gorm_logger.Silent))

	sqlFn := func() (string, int64) { return "SELECT 1", 1 }

	adapter.Trace(context.Background(), time.Now(), sqlFn, nil)
	assert.Contains(t, buf.String(), "msg=\"sql query\"")

	buf.Reset()
	adapter.Trace(context.Background(), time.Now(), sqlFn, gorm.ErrRecordNotFound)
	assert.Contains(t, buf.String(), "sql query")

	buf.Reset()
	adapter.Trace(context.Background(), time.Now(), sqlFn, errors.New("disk I/O error"))
	assert.Contains(t, buf.String(), "query error")

	buf.Reset()
	adapter.Trace(context.Background(), time.Now().Add(-time.Second), sqlFn, nil)
	assert.Contains(t, buf.String(), "slow query")
}
