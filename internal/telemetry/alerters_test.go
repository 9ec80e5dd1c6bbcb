package telemetry

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"CompetitorReports/internal/domain"
	"CompetitorReports/internal/logging"
)

func TestLogAlerterWritesSeverityLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	alerter := NewLogAlerter(logging.NewWithWriter(&buf, "warn"))

	_ = alerter.Send(context.Background(), domain.Alert{Severity: domain.SeverityInfo, Message: "quiet"})
	if err := alerter.Send(context.Background(), domain.Alert{Severity: domain.SeverityCritical, Operation: OpIntegrityCheck, Message: "zombie report"}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Fatalf("info alert should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, "level=ERROR") || !strings.Contains(out, "zombie report") {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestFanOutDeliversToAllSinks(t *testing.T) {
	t.Parallel()

	first := &recordingAlerter{err: errors.New("down")}
	second := &recordingAlerter{}
	fan := FanOut{first, nil, second}

	err := fan.Send(context.Background(), domain.Alert{Message: "x"})
	if err == nil || !strings.Contains(err.Error(), "down") {
		t.Fatalf("expected joined sink error, got %v", err)
	}
	if len(first.alerts) != 1 || len(second.alerts) != 1 {
		t.Fatalf("alert not delivered to every sink: %d %d", len(first.alerts), len(second.alerts))
	}
}
