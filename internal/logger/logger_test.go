package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
	}{
		{
			name:   "default config",
			config: nil,
		},
		{
			name: "custom json config",
			config: &Config{
				Level:  "debug",
				Format: "json",
			},
		},
		{
			name: "console config",
			config: &Config{
				Level:  "info",
				Format: "console",
				Output: io.Discard,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotNil(t, New(tt.config))
		})
	}
}

func TestLogger_JSONOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(&Config{Level: "info", Format: "json", Output: buf})

	logger.Info("test message")

	entry := decode(t, buf)
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "test message", entry["message"])
	assert.NotEmpty(t, entry["time"])
}

func TestLogger_WithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(&Config{Level: "info", Format: "json", Output: buf})

	logger.With().
		Str("table", "Customer").
		Int("rows", 3).
		Logger().
		Info("saved")

	entry := decode(t, buf)
	assert.Equal(t, "Customer", entry["table"])
	assert.Equal(t, float64(3), entry["rows"])
	assert.Equal(t, "saved", entry["message"])
}

func TestLogger_Component(t *testing.T) {
	buf := &bytes.Buffer{}
	New(&Config{Level: "info", Output: buf}).Component("executor").Info("ready")

	assert.Equal(t, "executor", decode(t, buf)["component"])
}

func TestLogger_ErrorWithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(&Config{Level: "error", Format: "json", Output: buf})

	logger.ErrorWith("failed to connect", errors.New("database connection failed"), map[string]any{
		"host": "localhost",
		"port": 5432,
	})

	entry := decode(t, buf)
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "failed to connect", entry["message"])
	assert.Equal(t, "database connection failed", entry["error"])
	assert.Equal(t, "localhost", entry["host"])
	assert.Equal(t, float64(5432), entry["port"])
}

func TestLogger_Command(t *testing.T) {
	t.Run("success logs at debug", func(t *testing.T) {
		buf := &bytes.Buffer{}
		New(&Config{Level: "debug", Output: buf}).Command("execute", "DELETE FROM T WHERE Id = 1;", time.Millisecond, nil)

		entry := decode(t, buf)
		assert.Equal(t, "debug", entry["level"])
		assert.Equal(t, "execute", entry["op"])
		assert.Equal(t, "DELETE FROM T WHERE Id = 1;", entry["command"])
	})

	t.Run("failure logs at error", func(t *testing.T) {
		buf := &bytes.Buffer{}
		New(&Config{Level: "error", Output: buf}).Command("execute", "SELEC", time.Millisecond, errors.New("syntax"))

		entry := decode(t, buf)
		assert.Equal(t, "error", entry["level"])
		assert.Equal(t, "syntax", entry["error"])
	})
}

func TestLogger_Context(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(&Config{Level: "info", Format: "json", Output: buf})

	ctx := logger.WithContext(context.Background())
	FromContext(ctx).Info("from context")

	assert.Equal(t, "from context", decode(t, buf)["message"])
}

func TestLogger_Levels(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		logFunc  func(*Logger)
		expected bool // should log or not
	}{
		{
			name:     "debug level logs debug",
			level:    "debug",
			logFunc:  func(l *Logger) { l.Debug("debug message") },
			expected: true,
		},
		{
			name:     "info level skips debug",
			level:    "info",
			logFunc:  func(l *Logger) { l.Debug("debug message") },
			expected: false,
		},
		{
			name:     "error level logs error",
			level:    "error",
			logFunc:  func(l *Logger) { l.Error("error message") },
			expected: true,
		},
		{
			name:     "error level skips info",
			level:    "error",
			logFunc:  func(l *Logger) { l.Info("info message") },
			expected: false,
		},
		{
			name:     "disabled logs nothing",
			level:    "disabled",
			logFunc:  func(l *Logger) { l.Error("error message") },
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			tt.logFunc(New(&Config{Level: tt.level, Format: "json", Output: buf}))

			if tt.expected {
				assert.NotEmpty(t, buf.String(), "expected log output")
			} else {
				assert.Empty(t, buf.String(), "expected no log output")
			}
		})
	}
}

func TestLogger_FieldsInKeyOrder(t *testing.T) {
	buf := &bytes.Buffer{}
	New(&Config{Level: "warn", Output: buf}).WarnWith("slow", map[string]any{"b": 2, "a": 1, "c": 3})

	line := buf.String()
	assert.Less(t, strings.Index(line, `"a":1`), strings.Index(line, `"b":2`))
	assert.Less(t, strings.Index(line, `"b":2`), strings.Index(line, `"c":3`))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zerolog.Level
		wantErr bool
	}{
		{"", zerolog.InfoLevel, false},
		{"DEBUG", zerolog.DebugLevel, false},
		{" warn ", zerolog.WarnLevel, false},
		{"disabled", zerolog.Disabled, false},
		{"loud", zerolog.InfoLevel, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.wantErr, err != nil, tt.in)
	}
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.NoError(t, (&Config{}).Validate())
	assert.Error(t, (&Config{Format: "xml"}).Validate())
	assert.Error(t, (&Config{TimeFormat: "iso"}).Validate())
	assert.Error(t, (&Config{Level: "verbose"}).Validate())
}

func TestNop(t *testing.T) {
	assert.NotPanics(t, func() {
		Nop().Error("dropped")
		OrNop(nil).Info("dropped")
	})
}

func BenchmarkLogger_Info(b *testing.B) {
	logger := New(&Config{Level: "info", Format: "json", Output: io.Discard})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Info("benchmark message")
	}
}

func BenchmarkLogger_Command(b *testing.B) {
	logger := New(&Config{Level: "debug", Format: "json", Output: io.Discard})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Command("execute", "UPDATE Customer SET Name = 'x' WHERE Id = 1;", time.Microsecond, nil)
	}
}
