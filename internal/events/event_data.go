package events

// EventData is the interface that all event data types must implement
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// RunStartedData contains data for RunStarted events
type RunStartedData struct {
	RunID     string    `json:"run_id"`
	Kernel    string    `json:"kernel"`
	Optimizer string    `json:"optimizer"`
	Initial   []float64 `json:"initial"`
	Terms     int       `json:"terms"`
}

// EventType returns the event type for RunStartedData
func (d *RunStartedData) EventType() EventType {
	return RunStarted
}

// EvaluationCompletedData contains data for EvaluationCompleted events
type EvaluationCompletedData struct {
	RunID    string    `json:"run_id"`
	Sequence int       `json:"sequence"`
	Params   []float64 `json:"params"`
	Energy   float64   `json:"energy"`
}

// EventType returns the event type for EvaluationCompletedData
func (d *EvaluationCompletedData) EventType() EventType {
	return EvaluationCompleted
}

// RunCompletedData contains data for RunCompleted events
type RunCompletedData struct {
	RunID         string    `json:"run_id"`
	Energy        float64   `json:"energy"`
	Params        []float64 `json:"params"`
	Status        string    `json:"status"`
	Evaluations   int       `json:"evaluations"`
	ExecutorCalls int64     `json:"executor_calls"`
	DurationMs    int64     `json:"duration_ms"`
}

// EventType returns the event type for RunCompletedData
func (d *RunCompletedData) EventType() EventType {
	return RunCompleted
}

// RunFailedData contains data for RunFailed events
type RunFailedData struct {
	RunID       string `json:"run_id"`
	Error       string `json:"error"`
	Evaluations int    `json:"evaluations"`
}

// EventType returns the event type for RunFailedData
func (d *RunFailedData) EventType() EventType {
	return RunFailed
}

// RunCancelledData contains data for RunCancelled events
type RunCancelledData struct {
	RunID       string `json:"run_id"`
	Evaluations int    `json:"evaluations"`
}

// EventType returns the event type for RunCancelledData
func (d *RunCancelledData) EventType() EventType {
	return RunCancelled
}

// RunsPrunedData contains data for RunsPruned events
type RunsPrunedData struct {
	Deleted       int64 `json:"deleted"`
	RetentionDays int   `json:"retention_days"`
}

// EventType returns the event type for RunsPrunedData
func (d *RunsPrunedData) EventType() EventType {
	return RunsPruned
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}
