package publisher

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingSysID means the store's create response omitted an identifier,
// leaving the new record unaddressable. Nothing runs after it.
var ErrMissingSysID = errors.New("store create response missing sys_id")

// MalformedPlanError means the generated output was not a single JSON
// object. It keeps a snippet of the raw output for diagnosis.
type MalformedPlanError struct {
	Reason string
	Raw    string
}

func (e *MalformedPlanError) Error() string {
	raw := strings.TrimSpace(e.Raw)
	if len(raw) > 200 {
		raw = raw[:200] + "..."
	}
	return fmt.Sprintf("malformed plan: %s: %s", e.Reason, raw)
}

// SchemaViolationError means the normalized plan failed schema validation.
// It is fatal before any write happens.
type SchemaViolationError struct {
	Violations []string
}

func (e *SchemaViolationError) Error() string {
	return "plan failed schema validation: " + strings.Join(e.Violations, "; ")
}
