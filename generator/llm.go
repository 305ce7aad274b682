package generator

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrUnsupportedCall signals that a backend does not accept the requested
// call shape. It is the only error that lets the adapter advance to the
// next shape; everything else propagates to the caller unchanged.
var ErrUnsupportedCall = errors.New("call shape not supported by backend")

// ChatRequest is one invocation shape. Backends are free to reject shapes
// they cannot express by returning ErrUnsupportedCall.
type ChatRequest struct {
	// System carries the instructions, User the payload.
	System string
	User   string

	// JSONMode asks the backend to emit a structured object.
	JSONMode bool

	// InstructionsFirst sends the instructions as a leading user turn
	// instead of a dedicated system message, for backends without a
	// system role.
	InstructionsFirst bool
}

// ChatResult holds whatever the backend produced: raw text, or an already
// parsed object when the backend supports structured output natively.
type ChatResult struct {
	Text   string
	Object json.RawMessage
}

// LLMClient abstracts the text-generation backend so it can be swapped or
// mocked.
type LLMClient interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResult, error)
}

// LLMSettings is the base configuration handed to concrete clients.
type LLMSettings struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}
