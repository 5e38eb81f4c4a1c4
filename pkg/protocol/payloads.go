package protocol

import "time"

// HumanInput is the payload of envelopes on the human-input channel.
type HumanInput struct {
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}

// ChatterOutput is the payload of envelopes on the chatter-output channel.
// Error is set when the reply is a failure summary rather than a synthesized
// answer.
type ChatterOutput struct {
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Error     bool      `json:"error,omitempty"`
}

// Question is the payload of consultation requests sent to sibling agents.
type Question struct {
	Question   string   `json:"question"`
	Context    string   `json:"context,omitempty"`
	Priority   string   `json:"priority,omitempty"`
	Repos      []string `json:"repos,omitempty"`
	FocusAreas []string `json:"focus_areas,omitempty"`
}

// Task is the payload of task envelopes consumed by worker supervisors.
// CommandFile is the full command document the worker materialises to disk;
// TimeoutMs overrides the worker's default execution timeout when non-zero.
type Task struct {
	TaskID            string `json:"task_id"`
	CommandFile       string `json:"command_file"`
	Priority          string `json:"priority,omitempty"`
	EstimatedDuration string `json:"estimated_duration,omitempty"`
	TimeoutMs         int64  `json:"timeout_ms,omitempty"`
}

// Task terminal statuses.
const (
	TaskCompleted = "completed"
	TaskFailed    = "failed"
	TaskRejected  = "rejected"
)

// ExecResult captures the subprocess outcome inside a task response.
type ExecResult struct {
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

// TaskResponse is the terminal payload a worker publishes when a task ends.
type TaskResponse struct {
	TaskID     string      `json:"task_id"`
	Status     string      `json:"status"`
	Reason     string      `json:"reason,omitempty"`
	Result     *ExecResult `json:"result,omitempty"`
	DurationMs int64       `json:"duration_ms,omitempty"`
}

// Progress is the payload of streamed subprocess output chunks.
type Progress struct {
	TaskID string `json:"task_id"`
	Output string `json:"output"`
	Stream string `json:"stream,omitempty"`
}

// WorkerStatus values reported in status heartbeats.
const (
	StatusStarting     = "starting"
	StatusIdle         = "idle"
	StatusWorking      = "working"
	StatusShuttingDown = "shutting-down"
	StatusOffline      = "offline"
)

// Status is the payload of periodic heartbeats on agent:status.
type Status struct {
	Status         string `json:"status"`
	CurrentTaskID  string `json:"current_task_id,omitempty"`
	CompletedCount int    `json:"completed_count"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
}

// Command is the payload of broadcast system messages.
type Command struct {
	Command string `json:"command"`
}

// CommandShutdown asks every agent to begin its graceful shutdown path.
const CommandShutdown = "shutdown"
