package pactmock

import (
	"encoding/json"

	"github.com/form3tech-oss/pact-consumer/internal/app/configuration"
)

type ServerStatus configuration.ServerStatus

type Verification configuration.Verification

// Capture is a request received by a mock server.
type Capture struct {
	Sequence int               `json:"sequence"`
	Method   string            `json:"method"`
	Path     string            `json:"path"`
	Query    json.RawMessage   `json:"query"`
	Headers  map[string]string `json:"headers"`
	Body     json.RawMessage   `json:"body,omitempty"`
	Error    string            `json:"error,omitempty"`
}
