// Package notify delivers approval request notifications to humans through
// configured channels (Slack webhook, email, log). Delivery is best-effort
// and never blocks the request pipeline; the approval state machine is
// advanced only by explicit approver actions, not by delivery outcomes.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Message is the payload sent through a notification channel.
type Message struct {
	Subject  string            // Used by email; prepended in bold by chat channels.
	Body     string            // Plain text body.
	Metadata map[string]string // Extra data (approval_id, state, etc.).
}

// Sender is the interface for a single notification channel backend.
type Sender interface {
	// Name returns the channel ref approval rules address, e.g. "slack:#eng-leads".
	Name() string
	// Send delivers a message to the channel's target.
	Send(ctx context.Context, msg *Message) error
}

// Dispatcher fans messages out to named channels. Thread-safe.
type Dispatcher struct {
	mu      sync.RWMutex
	senders map[string]Sender
	logger  *slog.Logger
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		senders: make(map[string]Sender),
		logger:  logger,
	}
}

// Register adds a channel backend under its name.
func (d *Dispatcher) Register(s Sender) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.senders[s.Name()] = s
}

// Notify sends the message to every named channel. Unknown channels and send
// failures are logged and counted but never returned as hard errors; the
// caller's pipeline must not stall on chat outages.
func (d *Dispatcher) Notify(ctx context.Context, channels []string, msg *Message) (delivered int) {
	for _, name := range channels {
		d.mu.RLock()
		sender, ok := d.senders[name]
		d.mu.RUnlock()
		if !ok {
			d.logger.Warn("no sender registered for channel", "channel", name)
			continue
		}

		if err := sender.Send(ctx, msg); err != nil {
			d.logger.Warn("notification send failed",
				"channel", name,
				"error", err,
			)
			continue
		}
		delivered++
		d.logger.Info("notification sent", "channel", name)
	}
	return delivered
}

// SplitRef splits a channel ref "slack:#eng-leads" into type and target.
// Refs without a type default to "log".
func SplitRef(ref string) (kind, target string) {
	if i := strings.IndexByte(ref, ':'); i >= 0 {
		return ref[:i], ref[i+1:]
	}
	return "log", ref
}

// LogSender writes notifications to the structured log. Used as the default
// channel in development and in tests.
type LogSender struct {
	name   string
	logger *slog.Logger
}

// NewLogSender creates a log-backed sender with the given channel name.
func NewLogSender(name string, logger *slog.Logger) *LogSender {
	return &LogSender{name: name, logger: logger}
}

func (s *LogSender) Name() string { return s.name }

func (s *LogSender) Send(_ context.Context, msg *Message) error {
	attrs := []any{"subject", msg.Subject, "body", msg.Body}
	for k, v := range msg.Metadata {
		attrs = append(attrs, k, v)
	}
	s.logger.Info("notification", attrs...)
	return nil
}

// FormatApprovalBody renders the standard notification body for an approval
// request.
func FormatApprovalBody(requester, server, method, approvalID string, require int) string {
	return fmt.Sprintf(
		"%s requests approval for %s/%s\napproval id: %s\nrequired approvals: %d",
		requester, server, method, approvalID, require,
	)
}
