package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

type recordingSender struct {
	name string
	err  error

	mu   sync.Mutex
	sent []*Message
}

func (s *recordingSender) Name() string { return s.name }

func (s *recordingSender) Send(_ context.Context, msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDispatcherRoutesByChannelName(t *testing.T) {
	d := NewDispatcher(discardLogger())
	slack := &recordingSender{name: "slack:#eng-leads"}
	mail := &recordingSender{name: "email:oncall@example.com"}
	d.Register(slack)
	d.Register(mail)

	msg := &Message{Subject: "approval needed", Body: "details"}
	delivered := d.Notify(context.Background(), []string{"slack:#eng-leads"}, msg)

	if delivered != 1 {
		t.Errorf("delivered = %d, want 1", delivered)
	}
	if len(slack.sent) != 1 {
		t.Errorf("slack sent = %d", len(slack.sent))
	}
	if len(mail.sent) != 0 {
		t.Errorf("email sent = %d, want 0", len(mail.sent))
	}
}

func TestDispatcherUnknownChannelIsSoftFailure(t *testing.T) {
	d := NewDispatcher(discardLogger())
	known := &recordingSender{name: "log"}
	d.Register(known)

	delivered := d.Notify(context.Background(), []string{"slack:#nobody", "log"}, &Message{Body: "x"})
	if delivered != 1 {
		t.Errorf("delivered = %d, want 1", delivered)
	}
	if len(known.sent) != 1 {
		t.Errorf("log channel sent = %d", len(known.sent))
	}
}

func TestDispatcherSendFailureDoesNotStopFanout(t *testing.T) {
	d := NewDispatcher(discardLogger())
	broken := &recordingSender{name: "slack:#down", err: errors.New("webhook 500")}
	healthy := &recordingSender{name: "slack:#up"}
	d.Register(broken)
	d.Register(healthy)

	delivered := d.Notify(context.Background(), []string{"slack:#down", "slack:#up"}, &Message{Body: "x"})
	if delivered != 1 {
		t.Errorf("delivered = %d, want 1", delivered)
	}
	if len(healthy.sent) != 1 {
		t.Errorf("healthy channel sent = %d", len(healthy.sent))
	}
}

func TestSplitRef(t *testing.T) {
	tests := []struct {
		ref, kind, target string
	}{
		{"slack:#eng-leads", "slack", "#eng-leads"},
		{"email:oncall@example.com", "email", "oncall@example.com"},
		{"dana", "log", "dana"},
		{"log:", "log", ""},
	}
	for _, tt := range tests {
		kind, target := SplitRef(tt.ref)
		if kind != tt.kind || target != tt.target {
			t.Errorf("SplitRef(%q) = (%q, %q), want (%q, %q)", tt.ref, kind, target, tt.kind, tt.target)
		}
	}
}

func TestSlackSenderPostsWebhook(t *testing.T) {
	var got map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	s := NewSlackSender("slack:#eng-leads", ts.URL)
	err := s.Send(context.Background(), &Message{Subject: "approval needed", Body: "dave wants delete_repo"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	text, _ := got["text"].(string)
	if !strings.Contains(text, "*approval needed*") || !strings.Contains(text, "delete_repo") {
		t.Errorf("text = %q", text)
	}
}

func TestSlackSenderNon200IsError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid_payload", http.StatusBadRequest)
	}))
	defer ts.Close()

	s := NewSlackSender("slack:#eng-leads", ts.URL)
	err := s.Send(context.Background(), &Message{Body: "x"})
	if err == nil {
		t.Fatal("expected error on 400 response")
	}
	if !strings.Contains(err.Error(), "400") {
		t.Errorf("error = %v", err)
	}
}

func TestEmailSenderRequiresRecipients(t *testing.T) {
	s := NewEmailSender("email:", "localhost:25", "warden@example.com", "")
	if err := s.Send(context.Background(), &Message{Body: "x"}); err == nil {
		t.Fatal("expected error with no recipients")
	}
}

func TestFormatApprovalBody(t *testing.T) {
	body := FormatApprovalBody("alice", "github", "delete_repo", "abc-123", 2)
	for _, want := range []string{"alice", "github/delete_repo", "abc-123", "2"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q: %s", want, body)
		}
	}
}
