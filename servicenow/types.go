package servicenow

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// Record is the persisted form of a knowledge article as the store returns
// it. The store owns the record; this is a transient copy.
type Record struct {
	SysID            string          `json:"sys_id"`
	Number           string          `json:"number,omitempty"`
	ShortDescription string          `json:"short_description"`
	HTML             string          `json:"html"`
	KBBaseSysID      string          `json:"kb_base_sys_id"`
	Category         string          `json:"category,omitempty"`
	ValidTo          string          `json:"valid_to,omitempty"`
	Tags             []string        `json:"tags,omitempty"`
	WorkflowState    string          `json:"workflow_state,omitempty"`
	Raw              json.RawMessage `json:"raw,omitempty"`
}

// AttachResult describes one uploaded attachment.
type AttachResult struct {
	SysID    string          `json:"sys_id"`
	FileName string          `json:"file_name"`
	Raw      json.RawMessage `json:"raw,omitempty"`
}

// ResolveReference extracts a usable identifier from a ServiceNow field
// that may be a plain string or a reference object.
func ResolveReference(v gjson.Result) string {
	if v.IsObject() {
		for _, key := range []string{"value", "sys_id", "display_value"} {
			if s := strings.TrimSpace(v.Get(key).String()); s != "" {
				return s
			}
		}
		return ""
	}
	return strings.TrimSpace(v.String())
}

func parseRecord(result gjson.Result) Record {
	rec := Record{
		SysID:            ResolveReference(result.Get("sys_id")),
		Number:           ResolveReference(result.Get("number")),
		ShortDescription: result.Get("short_description").String(),
		HTML:             result.Get("text").String(),
		KBBaseSysID:      ResolveReference(result.Get("kb_knowledge_base")),
		Category:         ResolveReference(result.Get("category")),
		ValidTo:          ResolveReference(result.Get("valid_to")),
		WorkflowState:    ResolveReference(result.Get("workflow_state")),
		Raw:              json.RawMessage(result.Raw),
	}
	if tags := result.Get("tags").String(); tags != "" {
		for _, t := range strings.Split(tags, ",") {
			if t = strings.TrimSpace(t); t != "" {
				rec.Tags = append(rec.Tags, t)
			}
		}
	}
	return rec
}

func parseAttachResult(result gjson.Result) AttachResult {
	return AttachResult{
		SysID:    ResolveReference(result.Get("sys_id")),
		FileName: result.Get("file_name").String(),
		Raw:      json.RawMessage(result.Raw),
	}
}
