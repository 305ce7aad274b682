package generator

import (
	"context"
	"encoding/json"
	"html"
	"regexp"
	"strings"
)

// MockLLM is a deterministic stand-in for local runs and tests. It builds a
// plan object straight from the payload without calling any model.
type MockLLM struct{}

var headingRe = regexp.MustCompile(`(?m)^#\s+(.+)$`)

func (m MockLLM) Chat(_ context.Context, req ChatRequest) (ChatResult, error) {
	title := firstHeading(req.User)
	if title == "" {
		title = "Generated operating procedure"
	}

	var body strings.Builder
	body.WriteString("<h2>" + html.EscapeString(title) + "</h2>")
	body.WriteString("<pre>" + html.EscapeString(req.User) + "</pre>")

	plan := map[string]any{
		"short_description": title,
		"html":              body.String(),
		"tags":              []string{"generated"},
	}
	obj, err := json.Marshal(plan)
	if err != nil {
		return ChatResult{}, err
	}
	return ChatResult{Object: obj}, nil
}

func firstHeading(text string) string {
	m := headingRe.FindStringSubmatch(text)
	if len(m) >= 2 {
		return strings.TrimSpace(m[1])
	}
	return ""
}
