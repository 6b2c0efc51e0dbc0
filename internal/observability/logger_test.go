package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/shopdesk/shopdesk/internal/config"
)

func TestNewLoggerRedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Config{
		Profile:       config.ProfileTest,
		Service:       config.ServiceConfig{Name: "shopdesk-api"},
		Observability: config.ObservabilityConfig{LogLevel: slog.LevelInfo, LogJSON: true},
	}
	logger := NewLogger(cfg, &buf)
	logger.Info("startup", slog.String("dsn", "postgres://reader:hunter2@db/shop"), slog.String("driver", "pgx"))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["dsn"] != "[redacted]" {
		t.Fatalf("dsn = %v", line["dsn"])
	}
	if line["driver"] != "pgx" || line["service"] != "shopdesk-api" || line["profile"] != string(config.ProfileTest) {
		t.Fatalf("unexpected log line %v", line)
	}
}
