// Package dispatch hands finished email content to an external delivery
// provider and reports the delivery identifier.
package dispatch

import "context"

// Message is one outbound email.
type Message struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Dispatcher is the narrow delivery collaborator interface.
type Dispatcher interface {
	// Dispatch sends msg and returns the provider's delivery ID.
	Dispatch(ctx context.Context, msg Message) (string, error)
}
