package mcp

import (
	"encoding/json"
	"time"

	"github.com/copyleftdev/uitest/internal/improvetypes"
)

// ReportSchema identifies the content of a report envelope.
const ReportSchema = "uitest.improve-report/v1"

func marshalMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// FormatStatus wraps a plain status line. sourceURI is the test file.
func FormatStatus(jobID, status, sourceURI string, now time.Time) ([]byte, error) {
	msg := NewBaseMessage(jobID, now)
	msg.Context.Metadata.SourceURI = sourceURI
	msg.Context.Content = Content{
		MIMEType: "text/plain",
		Data:     status,
	}
	return marshalMessage(msg)
}

// FormatError reports a failed job. A hint, when present, is carried next
// to the message.
func FormatError(jobID string, err error, hint, sourceURI string, now time.Time) ([]byte, error) {
	msg := NewBaseMessage(jobID, now)
	msg.Context.Metadata.SourceURI = sourceURI
	msg.Context.Metadata.Custom = map[string]any{"status": "failed"}
	data := map[string]string{"error": err.Error()}
	if hint != "" {
		data["hint"] = hint
	}
	msg.Context.Content = Content{
		MIMEType: "application/json",
		Data:     data,
	}
	return marshalMessage(msg)
}

// FormatReport carries a finished report with its summary counts lifted
// into the metadata, so receivers can triage without decoding the report.
func FormatReport(jobID string, report *improvetypes.Report, reportPath string, now time.Time) ([]byte, error) {
	msg := NewBaseMessage(jobID, now)
	msg.Context.Schema = ReportSchema
	msg.Context.Metadata.SourceURI = report.TestFile
	custom := map[string]any{
		"status":             "completed",
		"report_path":        reportPath,
		"improved":           report.Summary.Improved,
		"applied_assertions": report.Summary.AppliedAssertions,
		"failed_steps":       report.Summary.FailedSteps,
		"warnings":           report.Summary.Warnings,
	}
	if report.OutputPath != "" {
		custom["output_path"] = report.OutputPath
	}
	msg.Context.Metadata.Custom = custom
	msg.Context.Content = Content{
		MIMEType: "application/json",
		Data:     report,
	}
	return marshalMessage(msg)
}
