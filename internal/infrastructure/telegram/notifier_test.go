package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"CompetitorReports/internal/domain"
)

func TestNotifierSend(t *testing.T) {
	t.Parallel()

	type call struct{ path, chat, text string }
	calls := make(chan call, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		calls <- call{path: r.URL.Path, chat: r.PostForm.Get("chat_id"), text: r.PostForm.Get("text")}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewNotifier("token", "42")
	n.apiBase = server.URL
	n.client = server.Client()

	alert := domain.Alert{
		Severity:  domain.SeverityCritical,
		Operation: "integrity-check",
		ProjectID: "proj-1",
		ReportID:  "rep-1",
		Message:   "report rep-1 has no content",
		At:        time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	if err := n.Send(context.Background(), alert); err != nil {
		t.Fatalf("Send: %v", err)
	}

	got := <-calls
	if got.path != "/bottoken/sendMessage" || got.chat != "42" {
		t.Fatalf("unexpected call: %+v", got)
	}
	if !strings.Contains(got.text, "CRITICAL") || !strings.Contains(got.text, "rep-1") {
		t.Fatalf("unexpected text: %q", got.text)
	}
}

func TestNotifierMisconfigured(t *testing.T) {
	t.Parallel()

	if err := NewNotifier("", "").Send(context.Background(), domain.Alert{}); err == nil {
		t.Fatalf("expected error for missing credentials")
	}
}

func TestNotifierUpstreamError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	n := NewNotifier("token", "42")
	n.apiBase = server.URL
	if err := n.Send(context.Background(), domain.Alert{Message: "x"}); err == nil {
		t.Fatalf("expected error for 403")
	}
}
