// Package job defines the unit of pipeline work for one card image and the
// status/error vocabulary shared by the store and the orchestrator.
package job

import (
	"time"

	"github.com/google/uuid"

	"cardflow/internal/compose"
	"cardflow/internal/parse"
)

// Payload is the immutable input of a job: a reference to the card image
// plus its declared MIME type.
type Payload struct {
	ImagePath string `json:"image_path"`
	MIMEType  string `json:"mime_type"`
}

// Job tracks one card image through the pipeline. The job store is the
// single writer of Status/Progress/Attempt; everything else reads snapshots.
type Job struct {
	ID      uuid.UUID `json:"id"`
	Payload Payload   `json:"payload"`

	Status   Status `json:"status"`
	Progress int    `json:"progress"` // 0..100, non-decreasing within one attempt
	Attempt  int    `json:"attempt"`

	Contact    *parse.ContactRecord  `json:"contact,omitempty"`
	Email      *compose.EmailContent `json:"email,omitempty"`
	DeliveryID string                `json:"delivery_id,omitempty"`

	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`

	// EligibleAt delays re-dispatch after a retry decision (backoff).
	EligibleAt time.Time `json:"eligible_at"`
}

// Clone returns a detached copy safe to hand to callers while the store
// keeps mutating the original.
func (j *Job) Clone() Job {
	cp := *j
	if j.Contact != nil {
		c := *j.Contact
		cp.Contact = &c
	}
	if j.Email != nil {
		e := *j.Email
		cp.Email = &e
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	return cp
}
