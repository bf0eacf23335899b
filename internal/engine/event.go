package engine

import "fmt"

// Event is the payload of a process-message job.
type Event struct {
	MessageID      string `json:"messageId"`
	ProjectID      string `json:"projectId"`
	ConversationID string `json:"conversationId"`
	Message        string `json:"message"`
}

// CancelEvent names the in-flight message to cancel.
type CancelEvent struct {
	MessageID string `json:"messageId"`
}

// NonRetriableError marks a step failure that retrying cannot fix. The step
// runner gives up immediately and the job goes straight to its failure
// handler.
type NonRetriableError struct {
	Err error
}

func (e *NonRetriableError) Error() string {
	return fmt.Sprintf("non-retriable: %v", e.Err)
}

func (e *NonRetriableError) Unwrap() error {
	return e.Err
}

// NonRetriable wraps err so the step runner will not retry it.
func NonRetriable(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetriableError{Err: err}
}
