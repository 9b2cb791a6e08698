package domain

import "time"

type CommandAction string

const (
	ActionUpdateStatus CommandAction = "UPDATE_STATUS"
	ActionLogSession   CommandAction = "LOG_SESSION"
)

type CommandStatus string

const (
	CommandPending    CommandStatus = "pending"
	CommandDispatched CommandStatus = "dispatched"
	CommandFailed     CommandStatus = "failed"
)

// Command is an outbound remote write. ID doubles as the idempotency token.
type Command struct {
	ID        string         `json:"id"`
	Action    CommandAction  `json:"action"`
	Updates   []StatusUpdate `json:"updates,omitempty"`
	LogData   *SessionLog    `json:"log_data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

type StatusUpdate struct {
	EquipmentID string          `json:"equipmentId"`
	Status      EquipmentStatus `json:"status"`
	Condition   string          `json:"condition,omitempty"`
}

// SessionLog is the flat record appended to the remote log sheet when a
// session closes.
type SessionLog struct {
	SessionID    string `json:"SessionID"`
	Project      string `json:"Project"`
	UserID       string `json:"UserID"`
	UserName     string `json:"UserName"`
	Start        string `json:"Start"`
	End          string `json:"End"`
	Items        string `json:"Items"`
	Type         string `json:"Type"`
	Observations string `json:"Observations"`
}

// CommandRecord tracks a command through the outbox.
type CommandRecord struct {
	Command      Command       `json:"command"`
	Status       CommandStatus `json:"status"`
	Attempts     int           `json:"attempts"`
	LastError    string        `json:"last_error,omitempty"`
	UpdatedAt    time.Time     `json:"updated_at"`
	DispatchedAt *time.Time    `json:"dispatched_at,omitempty"`
}
