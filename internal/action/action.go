package action

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type classifies an observed user or system event.
type Type string

const (
	SessionStart   Type = "session_start"
	SessionEnd     Type = "session_end"
	MouseClick     Type = "mouse_click"
	KeyboardInput  Type = "keyboard_input"
	VoiceCommand   Type = "voice_command"
	WindowSwitch   Type = "window_switch"
	FileOperation  Type = "file_operation"
	AutomationTask Type = "automation_task"
	Error          Type = "error"
	Custom         Type = "custom"
)

var ErrInvalidType = errors.New("invalid action type")

var knownTypes = map[Type]bool{
	SessionStart:   true,
	SessionEnd:     true,
	MouseClick:     true,
	KeyboardInput:  true,
	VoiceCommand:   true,
	WindowSwitch:   true,
	FileOperation:  true,
	AutomationTask: true,
	Error:          true,
	Custom:         true,
}

func (t Type) Valid() bool {
	return knownTypes[t]
}

// ParseType converts a string into a known Type.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidType, s)
	}
	return t, nil
}

// Status of the action the record describes.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusPending Status = "pending"
)

// Record is one entry in the action log. Records are never mutated after
// creation; a session appends them in the order they were created.
type Record struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	UserID    string         `json:"user_id"`
	Seq       int            `json:"seq"`
	Timestamp time.Time      `json:"timestamp"`
	Type      Type           `json:"action_type"`
	Details   map[string]any `json:"details"`
	Status    Status         `json:"status"`
}

// NewRecord builds a record stamped with the current UTC time. The details
// map is copied so later mutation by the caller cannot reach the record.
func NewRecord(sessionID, userID string, seq int, t Type, details map[string]any, status Status) Record {
	return Record{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		UserID:    userID,
		Seq:       seq,
		Timestamp: time.Now().UTC(),
		Type:      t,
		Details:   copyDetails(details),
		Status:    status,
	}
}

func copyDetails(details map[string]any) map[string]any {
	out := make(map[string]any, len(details))
	for k, v := range details {
		out[k] = v
	}
	return out
}
