package kbschema

import "github.com/microcosm-cc/bluemonday"

// htmlPolicy keeps basic rich-text structure (headings, lists, links,
// emphasis, tables) and strips scripts, event handlers and styles.
var htmlPolicy = func() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowTables()
	return p
}()

// Sanitize strips unsafe markup from a rich-text body.
func Sanitize(html string) string {
	return htmlPolicy.Sanitize(html)
}
