package publisher

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kb_article_publisher/generator"
)

func TestExtractPlanFromObject(t *testing.T) {
	obj := json.RawMessage(`{"short_description":"Reboot","html":"<p>x</p>","tags":["a","b"]}`)
	plan, err := ExtractPlan(generator.ChatResult{Object: obj})
	require.NoError(t, err)
	assert.Equal(t, "Reboot", plan.ShortDescription)
	assert.Equal(t, []string{"a", "b"}, plan.Tags)
}

func TestExtractPlanFromFencedText(t *testing.T) {
	text := "```json\n{\"short_description\":\"Reboot\",\"html\":\"<p>x</p>\"}\n```"
	plan, err := ExtractPlan(generator.ChatResult{Text: text})
	require.NoError(t, err)
	assert.Equal(t, "Reboot", plan.ShortDescription)
	assert.Equal(t, "<p>x</p>", plan.HTML)
}

func TestExtractPlanDelimitedTagString(t *testing.T) {
	text := `{"short_description":"x","html":"<p>x</p>","tags":"ops; site-a, ops"}`
	plan, err := ExtractPlan(generator.ChatResult{Text: text})
	require.NoError(t, err)
	// Splitting happens during normalization, not extraction.
	require.Equal(t, []string{"ops; site-a, ops"}, plan.Tags)

	norm := Normalize(plan, Defaults{})
	assert.Equal(t, []string{"ops", "site-a"}, norm.Tags)
}

func TestExtractPlanRejectsNonObject(t *testing.T) {
	for name, res := range map[string]generator.ChatResult{
		"array":    {Text: `["a","b"]`},
		"not json": {Text: "here is your article"},
		"scalar":   {Text: `"just a string"`},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ExtractPlan(res)
			var malformed *MalformedPlanError
			require.ErrorAs(t, err, &malformed)
		})
	}
}

func TestNormalizeTagMerge(t *testing.T) {
	plan := Plan{
		ShortDescription: "x",
		HTML:             "<p>x</p>",
		Tags:             []string{"ops", "OPS", "ops", " "},
	}
	norm := Normalize(plan, Defaults{Tags: []string{"ops", "site-a"}})
	assert.Equal(t, []string{"ops", "OPS", "site-a"}, norm.Tags)
}

func TestNormalizeIdempotent(t *testing.T) {
	d := Defaults{KBBaseSysID: "kb001", Category: "Ops", Tags: []string{"caller"}}
	plans := []Plan{
		{ShortDescription: " Reboot ", HTML: "# Title\n\n1. step one", Tags: []string{"a,b", "a"}},
		{ShortDescription: "x", HTML: "<p>hello <script>evil()</script>world</p>", Category: "Existing"},
		{ShortDescription: "x", HTML: "<h2>done</h2>", KBBaseSysID: "kb002", ValidTo: "2027-01-01"},
		// Sanitization strips the only markup here; coercion must still
		// reach a fixed point instead of converting on the second pass.
		{ShortDescription: "x", HTML: "<script>evil()</script>Power off, then on."},
	}
	for _, p := range plans {
		once := Normalize(p, d)
		twice := Normalize(once, d)
		assert.Equal(t, once, twice)
	}
}

func TestNormalizeCategoryPrecedence(t *testing.T) {
	// Plan value wins; caller fills the gap only.
	norm := Normalize(Plan{Category: "Plan Cat"}, Defaults{Category: "Caller Cat"})
	assert.Equal(t, "Plan Cat", norm.Category)

	norm = Normalize(Plan{}, Defaults{Category: "Caller Cat"})
	assert.Equal(t, "Caller Cat", norm.Category)
}

func TestNormalizeKBBaseDefault(t *testing.T) {
	norm := Normalize(Plan{KBBaseSysID: "kb-from-plan"}, Defaults{KBBaseSysID: "kb-from-caller"})
	assert.Equal(t, "kb-from-plan", norm.KBBaseSysID)

	norm = Normalize(Plan{KBBaseSysID: "  "}, Defaults{KBBaseSysID: "kb-from-caller"})
	assert.Equal(t, "kb-from-caller", norm.KBBaseSysID)
}

func TestNormalizeBodyCoercesMarkdown(t *testing.T) {
	norm := Normalize(Plan{HTML: "# Reboot\n\nPower off, then on."}, Defaults{})
	assert.Contains(t, norm.HTML, "<h1")
	assert.Contains(t, norm.HTML, "Power off, then on.")
}

func TestNormalizeBodyCoercesAfterSanitizing(t *testing.T) {
	// The body's only markup is disallowed: sanitization leaves plain
	// text, which is then coerced to HTML like any markup-free body.
	norm := Normalize(Plan{HTML: "<script>evil()</script>Power off, then on."}, Defaults{})
	assert.Equal(t, "<p>Power off, then on.</p>", norm.HTML)
	assert.Equal(t, norm, Normalize(norm, Defaults{}))
}

func TestNormalizeBodySanitizes(t *testing.T) {
	norm := Normalize(Plan{HTML: `<p>ok</p><script>alert(1)</script>`}, Defaults{})
	assert.Contains(t, norm.HTML, "<p>ok</p>")
	assert.NotContains(t, norm.HTML, "<script>")
	assert.NotContains(t, norm.HTML, "alert(1)")
}
