package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNew(t *testing.T) {
	log := New()
	if log.GetLevel() == zerolog.Disabled {
		t.Error("Expected logger to be enabled")
	}
}

func TestNewWithWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf)
	
	log.Info().Msg("test message")
	
	output := buf.String()
	if output == "" {
		t.Error("Expected log output, got empty string")
	}
	if !strings.Contains(output, "test message") {
		t.Errorf("Expected output to contain 'test message', got: %s", output)
	}
}

func TestWithContext(t *testing.T) {
	log := New()
	ctx := context.Background()
	
	ctxWithLogger := WithContext(ctx, log)
	
	if ctxWithLogger.Value(LoggerKey) == nil {
		t.Error("Expected logger in context, got nil")
	}
}

func TestFromContext(t *testing.T) {
	buf := &bytes.Buffer{}
	testLog := NewWithWriter(buf)
	ctx := WithContext(context.Background(), testLog)
	
	retrievedLog := FromContext(ctx)
	retrievedLog.Info().Msg("test")
	
	if buf.Len() == 0 {
		t.Error("Expected log output from retrieved logger")
	}
}

func TestFromContext_DefaultLogger(t *testing.T) {
	ctx := context.Background()
	
	// Should return a default logger when none is in context
	log := FromContext(ctx)
	
	if log.GetLevel() == zerolog.Disabled {
		t.Error("Expected default logger to be enabled")
	}
}

func TestWithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf)
	
	fields := map[string]interface{}{
		"user_id": "123",
		"action":  "test",
	}
	
	logWithFields := WithFields(log, fields)
	logWithFields.Info().Msg("test message")
	
	output := buf.String()
	if !strings.Contains(output, "user_id") || !strings.Contains(output, "123") {
		t.Errorf("Expected output to contain user_id field, got: %s", output)
	}
	if !strings.Contains(output, "action") || !strings.Contains(output, "test") {
		t.Errorf("Expected output to contain action field, got: %s", output)
	}
}



func TestNewFromConfig(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		format    string
		wantLevel zerolog.Level
		wantJSON  bool
	}{
		{name: "json debug", level: "debug", format: "json", wantLevel: zerolog.DebugLevel, wantJSON: true},
		{name: "console warn", level: "WARN", format: "console", wantLevel: zerolog.WarnLevel},
		{name: "unknown level", level: "loud", format: "json", wantLevel: zerolog.InfoLevel, wantJSON: true},
		{name: "empty level", level: "", format: "", wantLevel: zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			log := NewFromConfig(tt.level, tt.format, buf)
			if log.GetLevel() != tt.wantLevel {
				t.Errorf("GetLevel() = %v, want %v", log.GetLevel(), tt.wantLevel)
			}

			log.Error().Msg("hello")
			isJSON := strings.HasPrefix(buf.String(), "{")
			if isJSON != tt.wantJSON {
				t.Errorf("JSON output = %v, want %v: %s", isJSON, tt.wantJSON, buf.String())
			}
		})
	}
}

func TestWithStringField(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := WithContext(context.Background(), NewWithWriter(buf))
	ctx = WithStringField(ctx, "upload_id", "abc-123")

	log := FromContext(ctx)
	log.Info().Msg("stage done")

	if !strings.Contains(buf.String(), `"upload_id":"abc-123"`) {
		t.Errorf("Expected upload_id field, got: %s", buf.String())
	}
}
