package models

import "time"

// EventKind tags a progress event
type EventKind string

const (
	EventInfo     EventKind = "info"
	EventProgress EventKind = "progress"
	EventWarning  EventKind = "warning"
	EventError    EventKind = "error"
	EventSuccess  EventKind = "success"
	EventComplete EventKind = "complete" // terminal, nothing follows it
)

// ProgressEvent is one status message of a pipeline run
type ProgressEvent struct {
	Kind     EventKind `json:"status"`
	Message  string    `json:"message,omitempty"`
	Current  int       `json:"current,omitempty"`
	Total    int       `json:"total,omitempty"`
	Step     string    `json:"step,omitempty"`
	CSVFile  string    `json:"csv_file,omitempty"`
	JSONFile string    `json:"json_file,omitempty"`
	Time     time.Time `json:"-"`
}

func InfoEvent(message string) ProgressEvent {
	return ProgressEvent{Kind: EventInfo, Message: message, Time: time.Now()}
}

func ProgressUpdate(message string, current, total int) ProgressEvent {
	return ProgressEvent{Kind: EventProgress, Message: message, Current: current, Total: total, Time: time.Now()}
}

func WarningEvent(message string) ProgressEvent {
	return ProgressEvent{Kind: EventWarning, Message: message, Time: time.Now()}
}

// ErrorEvent reports a failure together with the step it originated in
func ErrorEvent(step, message string) ProgressEvent {
	return ProgressEvent{Kind: EventError, Step: step, Message: message, Time: time.Now()}
}

func SuccessEvent(message string) ProgressEvent {
	return ProgressEvent{Kind: EventSuccess, Message: message, Time: time.Now()}
}

func CompleteEvent() ProgressEvent {
	return ProgressEvent{Kind: EventComplete, Time: time.Now()}
}

// IsTerminal reports whether the event ends a stream
func (e ProgressEvent) IsTerminal() bool {
	return e.Kind == EventComplete
}
