package generator

import (
	"context"
	"errors"
	"strings"
)

// Adapter invokes the backend with a fixed ordered list of call shapes and
// returns the first accepted result. Only ErrUnsupportedCall advances to
// the next shape; the probe set is finite and never loops.
type Adapter struct {
	llm LLMClient
}

func NewAdapter(llm LLMClient) (*Adapter, error) {
	if llm == nil {
		return nil, errors.New("llm client is required")
	}
	return &Adapter{llm: llm}, nil
}

// Generate sends instructions plus payload through each call shape in
// order: structured-output hint, plain, instructions-first, and
// instructions-first with the structured-output hint.
func (a *Adapter) Generate(ctx context.Context, system, user string) (ChatResult, error) {
	shapes := []ChatRequest{
		{System: system, User: user, JSONMode: true},
		{System: system, User: user},
		{System: system, User: user, InstructionsFirst: true},
		{System: system, User: user, InstructionsFirst: true, JSONMode: true},
	}

	var attempts []string
	for _, req := range shapes {
		res, err := a.llm.Chat(ctx, req)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, ErrUnsupportedCall) {
			return ChatResult{}, err
		}
		attempts = append(attempts, err.Error())
	}
	return ChatResult{}, &ExhaustedError{Attempts: attempts}
}

// ExhaustedError reports that no call shape was accepted by the backend.
// It keeps every attempted error message for diagnosis.
type ExhaustedError struct {
	Attempts []string
}

func (e *ExhaustedError) Error() string {
	return "backend accepted no call shape; attempted variants yielded: " +
		strings.Join(e.Attempts, "; ")
}
