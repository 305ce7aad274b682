package publisher

import (
	"bytes"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/yuin/goldmark"

	"kb_article_publisher/generator"
	"kb_article_publisher/kbschema"
)

// Plan is the candidate article derived from generated text. It is
// immutable once normalized.
type Plan struct {
	ShortDescription string   `json:"short_description"`
	HTML             string   `json:"html"`
	KBBaseSysID      string   `json:"kb_base_sys_id"`
	Category         string   `json:"category,omitempty"`
	ValidTo          string   `json:"valid_to,omitempty"`
	Tags             []string `json:"tags,omitempty"`
}

// Defaults are the caller-supplied values merged into a plan during
// normalization. The plan wins wherever it carries a non-empty value;
// caller values only fill gaps, except tags, which are unioned.
type Defaults struct {
	KBBaseSysID string
	Category    string
	Tags        []string
}

// ExtractPlan turns the adapter's output into a raw Plan. A structured
// object is used directly; text gets a single surrounding code fence
// stripped and is then parsed as JSON. Missing required fields are left
// empty here and surface later as validation errors.
func ExtractPlan(res generator.ChatResult) (Plan, error) {
	var root gjson.Result
	switch {
	case len(res.Object) > 0:
		if !gjson.ValidBytes(res.Object) {
			return Plan{}, &MalformedPlanError{Reason: "backend object is not valid JSON", Raw: string(res.Object)}
		}
		root = gjson.ParseBytes(res.Object)
	default:
		text := stripCodeFence(res.Text)
		if !gjson.Valid(text) {
			return Plan{}, &MalformedPlanError{Reason: "response is not valid JSON", Raw: res.Text}
		}
		root = gjson.Parse(text)
	}
	if !root.IsObject() {
		return Plan{}, &MalformedPlanError{Reason: "response is not a JSON object", Raw: root.Raw}
	}

	plan := Plan{
		ShortDescription: root.Get("short_description").String(),
		HTML:             root.Get("html").String(),
		KBBaseSysID:      root.Get("kb_base_sys_id").String(),
		Category:         root.Get("category").String(),
		ValidTo:          root.Get("valid_to").String(),
	}
	tags := root.Get("tags")
	if tags.IsArray() {
		for _, t := range tags.Array() {
			plan.Tags = append(plan.Tags, t.String())
		}
	} else if tags.Type == gjson.String {
		plan.Tags = append(plan.Tags, tags.String())
	}
	return plan, nil
}

// stripCodeFence removes one leading/trailing fenced block marker. It does
// not attempt arbitrary markdown stripping.
func stripCodeFence(text string) string {
	stripped := strings.TrimSpace(text)
	if !strings.HasPrefix(stripped, "```") {
		return stripped
	}
	lines := strings.Split(stripped, "\n")
	if len(lines) > 1 {
		lines = lines[1:]
		if strings.TrimSpace(lines[len(lines)-1]) == "```" {
			lines = lines[:len(lines)-1]
		}
		stripped = strings.TrimSpace(strings.Join(lines, "\n"))
	}
	return stripped
}

// Normalize applies caller defaults, merges tags, coerces the body to
// sanitized HTML, and trims every scalar field. It is pure and idempotent:
// Normalize(Normalize(p, d), d) == Normalize(p, d).
func Normalize(p Plan, d Defaults) Plan {
	out := Plan{
		ShortDescription: strings.TrimSpace(p.ShortDescription),
		KBBaseSysID:      strings.TrimSpace(p.KBBaseSysID),
		Category:         strings.TrimSpace(p.Category),
		ValidTo:          strings.TrimSpace(p.ValidTo),
	}
	if out.KBBaseSysID == "" {
		out.KBBaseSysID = strings.TrimSpace(d.KBBaseSysID)
	}
	if out.Category == "" {
		out.Category = strings.TrimSpace(d.Category)
	}
	out.Tags = mergeTags(p.Tags, d.Tags)
	out.HTML = normalizeBody(p.HTML)
	return out
}

// mergeTags splits delimited entries on comma and semicolon, trims, drops
// empties, and dedupes case-sensitively preserving first-seen order with
// plan tags before caller tags.
func mergeTags(planTags, callerTags []string) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(raw string) {
		for _, part := range strings.FieldsFunc(raw, func(r rune) bool {
			return r == ',' || r == ';'
		}) {
			tag := strings.TrimSpace(part)
			if tag == "" {
				continue
			}
			if _, ok := seen[tag]; ok {
				continue
			}
			seen[tag] = struct{}{}
			out = append(out, tag)
		}
	}
	for _, t := range planTags {
		add(t)
	}
	for _, t := range callerTags {
		add(t)
	}
	return out
}

// normalizeBody sanitizes the body, then coerces it to HTML when the
// sanitized form carries no markup at all. Models asked for HTML still
// return markdown often enough that a markup-free body is treated as
// markdown. The coercion decision is made on the sanitized form so that
// a body whose only markup gets stripped (say, a lone script element)
// reaches the same fixed point on every pass.
func normalizeBody(body string) string {
	body = strings.TrimSpace(kbschema.Sanitize(strings.TrimSpace(body)))
	if body == "" || strings.Contains(body, "<") {
		return body
	}
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(body), &buf); err == nil {
		body = strings.TrimSpace(kbschema.Sanitize(buf.String()))
	}
	return body
}
