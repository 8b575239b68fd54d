package security

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Audit event names, one per record.
const (
	EventToolCallAllowed  = "tool_call_allowed"
	EventToolCallDenied   = "tool_call_denied"
	EventMessageReceived  = "message_received"
	EventUnauthorizedUser = "unauthorized_user"
	EventAPICall          = "api_call"
)

// AuditEvent is one tamper-evident record. Each event is rendered as a single
// JSON line carrying at minimum `event` and `ts` (seconds since the epoch).
type AuditEvent struct {
	Event    string `json:"event"`
	TS       int64  `json:"ts"`
	Tool     string `json:"tool,omitempty"`
	Params   string `json:"params,omitempty"`
	Reason   string `json:"reason,omitempty"`
	ChatID   string `json:"chat_id,omitempty"`
	UserID   string `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
	Status   int    `json:"status,omitempty"` // HTTP status; only api_call events carry one
}

// Auditor appends audit records to stderr and, when configured, to a log
// file. Writes are line-atomic; the auditor is the file's exclusive writer.
type Auditor struct {
	mu   sync.Mutex
	file *os.File
	now  func() time.Time
}

// NewAuditor opens the optional audit log file in append mode. An empty path
// disables the file sink; a file that cannot be opened is reported and
// skipped so auditing to stderr continues.
func NewAuditor(logPath string) *Auditor {
	a := &Auditor{now: time.Now}
	if logPath == "" {
		return a
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		slog.Warn("audit: cannot open log file", "path", logPath, "error", err)
		return a
	}
	a.file = f
	return a
}

// Close releases the audit log file, if any.
func (a *Auditor) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}

// Log emits one event. Emission failures are swallowed: auditing must never
// take down the dispatch path.
func (a *Auditor) Log(ev AuditEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ev.TS = a.now().Unix()
	line, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("audit: marshal failed", "event", ev.Event, "error", err)
		return
	}
	fmt.Fprintf(os.Stderr, "audit: %s\n", line)
	if a.file != nil {
		fmt.Fprintf(a.file, "%s\n", line)
	}
}

// ToolCallAllowed records an authorized tool invocation. Emitted before the
// operation executes.
func (a *Auditor) ToolCallAllowed(tool, params string) {
	a.Log(AuditEvent{Event: EventToolCallAllowed, Tool: tool, Params: params})
}

// ToolCallDenied records a capability denial with its reason.
func (a *Auditor) ToolCallDenied(tool, params, reason string) {
	a.Log(AuditEvent{Event: EventToolCallDenied, Tool: tool, Params: params, Reason: reason})
}

// MessageReceived records an inbound chat message.
func (a *Auditor) MessageReceived(chatID, userID, username string) {
	a.Log(AuditEvent{Event: EventMessageReceived, ChatID: chatID, UserID: userID, Username: username})
}

// UnauthorizedUser records a sender rejected by the user allowlist.
func (a *Auditor) UnauthorizedUser(userID, username string) {
	a.Log(AuditEvent{Event: EventUnauthorizedUser, UserID: userID, Username: username})
}

// APICall records an upstream API round trip.
func (a *Auditor) APICall(endpoint string, status int) {
	a.Log(AuditEvent{Event: EventAPICall, Endpoint: endpoint, Status: status})
}
