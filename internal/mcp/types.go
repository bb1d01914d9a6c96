// Package mcp builds the context envelopes posted to job callback URLs.
package mcp

import (
	"time"
)

const MCPVersion = "2025-03-26"

// ActorID names this tool in every envelope it sends.
const ActorID = "uitest-agent"

type Message struct {
	MCPVersion string  `json:"mcp_version"`
	Context    Context `json:"context"`
	RequestID  string  `json:"request_id,omitempty"`
	TaskID     string  `json:"task_id,omitempty"`
}

type Context struct {
	Metadata Metadata `json:"metadata"`
	Actors   []Actor  `json:"actors,omitempty"`
	Content  Content  `json:"content"`
	ParentID string   `json:"parent_id,omitempty"`
	Schema   string   `json:"schema,omitempty"`
}

type Metadata struct {
	SourceURI string         `json:"source_uri,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Custom    map[string]any `json:"custom,omitempty"`
}

type Actor struct {
	ID     string         `json:"id"`
	Role   string         `json:"role"`
	Custom map[string]any `json:"custom,omitempty"`
}

type Content struct {
	MIMEType string         `json:"mime_type"`
	Data     any            `json:"data"`
	Encoding string         `json:"encoding,omitempty"`
	Custom   map[string]any `json:"custom,omitempty"`
}

// NewBaseMessage returns an envelope for jobID with no content. now is the
// envelope timestamp.
func NewBaseMessage(jobID string, now time.Time) Message {
	return Message{
		MCPVersion: MCPVersion,
		TaskID:     jobID,
		Context: Context{
			Metadata: Metadata{
				Timestamp: now.UTC(),
			},
			Actors: []Actor{
				{ID: ActorID, Role: "test_improvement_tool"},
			},
		},
	}
}
