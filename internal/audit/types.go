package audit

import "time"

// EventType represents the type of audit event
type EventType string

const (
	// Request lifecycle events
	EventRequestStarted   EventType = "request.started"
	EventRequestCompleted EventType = "request.completed"
	EventRequestFailed    EventType = "request.failed"

	// Pipeline stage events
	EventStageCompleted EventType = "stage.completed"
	EventStageFailed    EventType = "stage.failed"

	// Outcome events
	EventAdviceEmitted EventType = "advice.emitted"
	EventReportEmitted EventType = "report.emitted"

	// Configuration events
	EventConfigLoaded EventType = "config.loaded"
	EventConfigReload EventType = "config.reload"

	// System events
	EventAdvisorStarted  EventType = "system.advisor_started"
	EventAdvisorShutdown EventType = "system.advisor_shutdown"
	EventBackendProbe    EventType = "system.backend_probe"
)

// Result represents the outcome of an audited action
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
	ResultPending Result = "pending"
)

// Event represents a single audit event
type Event struct {
	// Core fields
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id"`
	EventType     EventType `json:"event_type"`
	Result        Result    `json:"result"`

	// Pipeline context
	Stage  string `json:"stage,omitempty"`
	Intent string `json:"intent,omitempty"`

	// Event details
	Description string                 `json:"description,omitempty"`
	Decisions   []string               `json:"decisions,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`

	// Error information
	Error string `json:"error,omitempty"`

	// Duration tracking
	DurationMs int64 `json:"duration_ms,omitempty"`
}

// NewEvent creates a new audit event with default values
func NewEvent(eventType EventType) *Event {
	return &Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Result:    ResultPending,
		Metadata:  make(map[string]interface{}),
	}
}

// WithCorrelationID sets the correlation ID for event tracking
func (e *Event) WithCorrelationID(id string) *Event {
	e.CorrelationID = id
	return e
}

// WithStage sets the pipeline stage the event belongs to
func (e *Event) WithStage(stage string) *Event {
	e.Stage = stage
	return e
}

// WithIntent sets the classified intent of the request
func (e *Event) WithIntent(intent string) *Event {
	e.Intent = intent
	return e
}

// WithDescription sets a human-readable description
func (e *Event) WithDescription(desc string) *Event {
	e.Description = desc
	return e
}

// WithDecisions attaches the per-node decision lines produced by a stage
func (e *Event) WithDecisions(lines []string) *Event {
	e.Decisions = lines
	return e
}

// WithResult sets the result of the event
func (e *Event) WithResult(result Result) *Event {
	e.Result = result
	return e
}

// WithError sets error information
func (e *Event) WithError(err error) *Event {
	if err != nil {
		e.Error = err.Error()
		e.Result = ResultFailure
	}
	return e
}

// WithDuration sets the duration in milliseconds
func (e *Event) WithDuration(duration time.Duration) *Event {
	e.DurationMs = duration.Milliseconds()
	return e
}

// WithMetadata adds metadata to the event
func (e *Event) WithMetadata(key string, value interface{}) *Event {
	e.Metadata[key] = value
	return e
}
