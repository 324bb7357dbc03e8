package protocol

import "time"

// Version is the wire protocol version spoken to handler subprocesses.
const Version = 1

// Statuses a handler subprocess may report.
const (
	StatusOK       = "ok"
	StatusDeclined = "declined"
	StatusError    = "error"
)

// Request is the envelope written to a handler subprocess via stdin.
type Request struct {
	Protocol   int            `json:"protocol"`
	RequestID  string         `json:"request_id"`
	Capability string         `json:"capability"`
	Params     map[string]any `json:"params"`
	DeadlineAt time.Time      `json:"deadline_at"`
}

// Response is the envelope read from a handler subprocess via stdout.
//
// status=ok means the request was handled, status=declined means the
// handler passes without error, status=error reports a fault with a
// message.
type Response struct {
	Status string     `json:"status"`
	Error  string     `json:"error,omitempty"`
	Logs   []LogEntry `json:"logs,omitempty"`
}

// LogEntry is a log message relayed from a handler subprocess.
type LogEntry struct {
	Level   string `json:"level"` // info | warn | error | debug
	Message string `json:"message"`
}
