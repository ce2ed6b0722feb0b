package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Endpoints recorded in the audit log.
const (
	EndpointCoach  = "coach"
	EndpointSprint = "generate-sprint"
)

// Interaction is one audited request. Source says whether the reply came
// from the model, fallback copy or a static template.
type Interaction struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"createdAt"`
	Endpoint      string    `json:"endpoint"`
	Utterance     string    `json:"utterance,omitempty"`
	Route         string    `json:"route,omitempty"`
	Topic         string    `json:"topic,omitempty"`
	Source        string    `json:"source,omitempty"`
	Model         string    `json:"model,omitempty"`
	UpstreamError string    `json:"upstreamError,omitempty"`
	Reply         string    `json:"reply,omitempty"`
	LatencyMs     int64     `json:"latencyMs"`
}
