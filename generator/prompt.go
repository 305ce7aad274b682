package generator

import (
	"fmt"
	"strings"

	"kb_article_publisher/kbschema"
)

// BuildPlanPrompt builds the instruction/payload pair that turns an SOP
// into a candidate article plan. The article schema is embedded verbatim
// so the model and the validator share one contract.
func BuildPlanPrompt(sopMarkdown, kbBaseSysID, category string, tags []string) (system, user string) {
	system = "You extract structured fields for a knowledge base article. " +
		"Return ONLY JSON matching this schema: " + kbschema.ArticleSchema

	suggestedCategory := category
	if suggestedCategory == "" {
		suggestedCategory = "unknown"
	}
	suggestedTags := "none"
	if len(tags) > 0 {
		suggestedTags = strings.Join(tags, ", ")
	}

	user = fmt.Sprintf(
		"SOP (Markdown):\n%s\n\nKB base sys_id: %s\nSuggested category: %s\nSuggested tags: %s",
		strings.TrimSpace(sopMarkdown), kbBaseSysID, suggestedCategory, suggestedTags,
	)
	return system, user
}
