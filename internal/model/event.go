package model

import (
	"encoding/json"
	"time"
)

// Event kind constants.
const (
	EventStatus   = "status"
	EventLog      = "log"
	EventOutput   = "output"
	EventArtifact = "artifact"
	EventError    = "error"
	EventComplete = "complete"
)

// Event is one entry in a run's ordered event stream. Seq is assigned by the
// event bus and is strictly increasing per run with no gaps, starting at 1.
type Event struct {
	RunID   string          `json:"run_id"`
	Seq     int64           `json:"seq"`
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
	At      time.Time       `json:"at"`
}

// Payload builders. Marshal failures cannot occur for these shapes, so the
// error from json.Marshal is discarded.

// StatusPayload builds the payload for a status event.
func StatusPayload(status string) json.RawMessage {
	b, _ := json.Marshal(map[string]any{"status": status})
	return b
}

// SnapshotPayload builds the payload for a synthetic status snapshot event
// delivered to a late subscriber.
func SnapshotPayload(status string) json.RawMessage {
	b, _ := json.Marshal(map[string]any{"status": status, "snapshot": true})
	return b
}

// LogPayload builds the payload for a log event.
func LogPayload(stream, line string) json.RawMessage {
	b, _ := json.Marshal(map[string]any{"stream": stream, "line": line})
	return b
}

// OutputPayload builds the payload for an output event.
func OutputPayload(outputs map[string]any) json.RawMessage {
	b, err := json.Marshal(map[string]any{"outputs": outputs})
	if err != nil {
		b, _ = json.Marshal(map[string]any{"outputs": map[string]any{}})
	}
	return b
}

// ArtifactPayload builds the payload for an artifact event.
func ArtifactPayload(filename, url string, sizeBytes int64) json.RawMessage {
	b, _ := json.Marshal(map[string]any{
		"filename":   filename,
		"url":        url,
		"size_bytes": sizeBytes,
	})
	return b
}

// ErrorPayload builds the payload for an error event.
func ErrorPayload(message string) json.RawMessage {
	b, _ := json.Marshal(map[string]any{"message": message})
	return b
}

// CompletePayload builds the payload for the final complete event.
func CompletePayload(status string, durationMS int) json.RawMessage {
	b, _ := json.Marshal(map[string]any{"status": status, "duration_ms": durationMS})
	return b
}
