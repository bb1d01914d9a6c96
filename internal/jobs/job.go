// Package jobs runs improvement requests asynchronously for the HTTP API.
package jobs

import (
	"time"

	"github.com/google/uuid"

	"github.com/copyleftdev/uitest/internal/improve"
	"github.com/copyleftdev/uitest/internal/improvetypes"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Done reports whether s is final.
func (s Status) Done() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Job is one submitted improvement run. Report is set once the job
// completes; Error and Hint once it fails.
type Job struct {
	ID          uuid.UUID            `json:"jobId"`
	Status      Status               `json:"status"`
	Options     improve.Options      `json:"options"`
	CallbackURL string               `json:"callbackUrl,omitempty"`
	ReportPath  string               `json:"reportPath,omitempty"`
	OutputPath  string               `json:"outputPath,omitempty"`
	Report      *improvetypes.Report `json:"report,omitempty"`
	Error       string               `json:"error,omitempty"`
	Hint        string               `json:"hint,omitempty"`
	CreatedAt   time.Time            `json:"createdAt"`
	UpdatedAt   time.Time            `json:"updatedAt"`
}
