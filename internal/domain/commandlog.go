package domain

import "time"

// Dispatch outcomes recorded on a command log entry.
const (
	OutcomeSent   = "sent"
	OutcomeFailed = "failed"
)

// CommandLog is an immutable record of one dispatch attempt. Command
// holds the exact rendered string that was sent, so a resend is immune
// to later edits of the command template.
type CommandLog struct {
	ID          string           `json:"id"`
	Time        time.Time        `json:"time"`
	Username    string           `json:"username"`
	CommandName string           `json:"command_name"`
	Command     string           `json:"command"`
	ServerID    string           `json:"server_id"`
	Trigger     Trigger          `json:"trigger"`
	Message     string           `json:"message,omitempty"`
	Event       IntegrationEvent `json:"event"`
	Outcome     string           `json:"outcome"`
	Error       string           `json:"error,omitempty"`
}
