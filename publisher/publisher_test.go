package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kb_article_publisher/generator"
	"kb_article_publisher/kbschema"
	"kb_article_publisher/servicenow"
)

// stubLLM hands back a fixed response for every call shape.
type stubLLM struct {
	text string
	obj  json.RawMessage
}

func (s stubLLM) Chat(context.Context, generator.ChatRequest) (generator.ChatResult, error) {
	return generator.ChatResult{Text: s.text, Object: s.obj}, nil
}

type fakeStore struct {
	sysID      string
	createErr  error
	updateErr  error
	publishErr error
	getErr     error
	attachErr  map[string]error

	createCalls int
	updateCalls []map[string]string
	attachCalls []string
	getCalls    int
	last        servicenow.Record
}

func newFakeStore() *fakeStore {
	return &fakeStore{sysID: "sys123", attachErr: map[string]error{}}
}

func (f *fakeStore) Create(_ context.Context, shortDescription, html, kbBaseSysID string, extra map[string]string) (servicenow.Record, error) {
	f.createCalls++
	if f.createErr != nil {
		return servicenow.Record{}, f.createErr
	}
	rec := servicenow.Record{
		SysID:            f.sysID,
		ShortDescription: shortDescription,
		HTML:             html,
		KBBaseSysID:      kbBaseSysID,
		Category:         extra["category"],
		ValidTo:          extra["valid_to"],
	}
	if tags := extra["tags"]; tags != "" {
		rec.Tags = strings.Split(tags, ",")
	}
	f.last = rec
	return rec, nil
}

func (f *fakeStore) Update(_ context.Context, sysID string, fields map[string]string) (servicenow.Record, error) {
	f.updateCalls = append(f.updateCalls, fields)
	if _, isPublish := fields["workflow_state"]; isPublish {
		if f.publishErr != nil {
			return servicenow.Record{}, f.publishErr
		}
		f.last.WorkflowState = fields["workflow_state"]
		return f.last, nil
	}
	if f.updateErr != nil {
		return servicenow.Record{}, f.updateErr
	}
	f.last = servicenow.Record{
		SysID:            sysID,
		ShortDescription: fields["short_description"],
		HTML:             fields["text"],
		Category:         fields["category"],
		ValidTo:          fields["valid_to"],
	}
	if tags := fields["tags"]; tags != "" {
		f.last.Tags = strings.Split(tags, ",")
	}
	return f.last, nil
}

func (f *fakeStore) Get(context.Context, string) (servicenow.Record, error) {
	f.getCalls++
	if f.getErr != nil {
		return servicenow.Record{}, f.getErr
	}
	return f.last, nil
}

func (f *fakeStore) Attach(_ context.Context, _ string, path string) (servicenow.AttachResult, error) {
	f.attachCalls = append(f.attachCalls, path)
	if err := f.attachErr[path]; err != nil {
		return servicenow.AttachResult{}, err
	}
	return servicenow.AttachResult{SysID: "att-" + path, FileName: path}, nil
}

const rebootPlanJSON = `{
	"short_description": "Reboot Procedure",
	"html": "<h1>Reboot Procedure</h1><ol><li>Power off</li><li>Power on</li></ol>",
	"tags": ["hardware", "reboot"]
}`

func newTestPublisher(t *testing.T, llm generator.LLMClient, store Store) *Publisher {
	t.Helper()
	adapter, err := generator.NewAdapter(llm)
	require.NoError(t, err)
	validator, err := kbschema.NewValidator()
	require.NoError(t, err)
	pub, err := New(adapter, store, validator, nil)
	require.NoError(t, err)
	return pub
}

func TestRunCreateMode(t *testing.T) {
	store := newFakeStore()
	pub := newTestPublisher(t, stubLLM{text: rebootPlanJSON}, store)

	result, err := pub.Run(context.Background(), RunParams{
		SOPMarkdown: "# Reboot Procedure\n1. Power off\n2. Power on",
		KBBaseSysID: "kb001",
		Tags:        []string{"hardware"},
	})
	require.NoError(t, err)

	assert.Equal(t, "create", result.Mode)
	assert.False(t, result.Publish.Attempted)
	assert.Equal(t, 1, store.createCalls)
	assert.Empty(t, store.updateCalls)
	assert.Equal(t, "kb001", result.Plan.KBBaseSysID)
	assert.True(t, result.Validated)

	count := 0
	for _, tag := range result.Plan.Tags {
		if tag == "hardware" {
			count++
		}
	}
	assert.Equal(t, 1, count, "caller tag must appear exactly once after the union")

	require.NotNil(t, result.Verification)
	assert.True(t, result.Verification.OK)
	assert.False(t, result.Verification.Drift)
	assert.Equal(t, result.Fingerprint, result.Verification.Fingerprint)
}

func TestRunUpdateMode(t *testing.T) {
	store := newFakeStore()
	pub := newTestPublisher(t, stubLLM{text: rebootPlanJSON}, store)

	result, err := pub.Run(context.Background(), RunParams{
		SOPMarkdown:   "# Reboot Procedure",
		KBBaseSysID:   "kb001",
		ExistingSysID: "existing42",
	})
	require.NoError(t, err)

	assert.Equal(t, "update", result.Mode)
	assert.Equal(t, 0, store.createCalls)
	require.Len(t, store.updateCalls, 1)
	fields := store.updateCalls[0]
	assert.Equal(t, "Reboot Procedure", fields["short_description"])
	assert.NotEmpty(t, fields["text"])
	assert.Contains(t, fields["tags"], "hardware")
	assert.Equal(t, "existing42", result.Record.SysID)
}

func TestRunCreateMissingSysID(t *testing.T) {
	store := newFakeStore()
	store.sysID = ""
	pub := newTestPublisher(t, stubLLM{text: rebootPlanJSON}, store)

	_, err := pub.Run(context.Background(), RunParams{
		SOPMarkdown: "# Reboot Procedure",
		KBBaseSysID: "kb001",
		Attachments: []string{"a.pdf"},
		Publish:     true,
	})
	require.ErrorIs(t, err, ErrMissingSysID)
	// No further stages run without an identifier.
	assert.Empty(t, store.attachCalls)
	assert.Empty(t, store.updateCalls)
	assert.Equal(t, 0, store.getCalls)
}

func TestRunSchemaViolationBeforeWrite(t *testing.T) {
	store := newFakeStore()
	pub := newTestPublisher(t, stubLLM{text: `{"html":"<p>x</p>"}`}, store)

	_, err := pub.Run(context.Background(), RunParams{
		SOPMarkdown: "# No title",
		KBBaseSysID: "kb001",
	})
	var violation *SchemaViolationError
	require.ErrorAs(t, err, &violation)
	assert.NotEmpty(t, violation.Violations)
	assert.Equal(t, 0, store.createCalls, "schema violation must abort before any write")
}

func TestRunWithoutValidatorSkipsValidation(t *testing.T) {
	store := newFakeStore()
	adapter, err := generator.NewAdapter(stubLLM{text: `{"html":"<p>x</p>","short_description":"x"}`})
	require.NoError(t, err)
	pub, err := New(adapter, store, nil, nil)
	require.NoError(t, err)

	result, err := pub.Run(context.Background(), RunParams{
		SOPMarkdown: "# x",
		KBBaseSysID: "kb001",
	})
	require.NoError(t, err)
	assert.False(t, result.Validated)
	require.NotNil(t, result.Verification)
	assert.False(t, result.Verification.Validated)
}

func TestRunPublishFailureIsStructured(t *testing.T) {
	store := newFakeStore()
	store.publishErr = errors.New("workflow transition rejected")
	pub := newTestPublisher(t, stubLLM{text: rebootPlanJSON}, store)

	result, err := pub.Run(context.Background(), RunParams{
		SOPMarkdown: "# Reboot Procedure\n1. Power off\n2. Power on",
		KBBaseSysID: "kb001",
		Publish:     true,
	})
	require.NoError(t, err, "a failed publish transition must not fail the run")

	assert.Equal(t, "create", result.Mode)
	assert.True(t, result.Publish.Attempted)
	assert.Equal(t, "failed", result.Publish.Status)
	assert.Contains(t, result.Publish.Error, "workflow transition rejected")
	assert.NotEmpty(t, result.Plan.ShortDescription)
}

func TestRunPublishSuccess(t *testing.T) {
	store := newFakeStore()
	pub := newTestPublisher(t, stubLLM{text: rebootPlanJSON}, store)

	result, err := pub.Run(context.Background(), RunParams{
		SOPMarkdown: "# Reboot Procedure",
		KBBaseSysID: "kb001",
		Publish:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, "success", result.Publish.Status)
	require.NotNil(t, result.Publish.Result)
	assert.Equal(t, "published", result.Publish.Result.WorkflowState)
}

func TestRunAttachmentsFailFast(t *testing.T) {
	store := newFakeStore()
	store.attachErr["b.pdf"] = errors.New("disk full")
	pub := newTestPublisher(t, stubLLM{text: rebootPlanJSON}, store)

	result, err := pub.Run(context.Background(), RunParams{
		SOPMarkdown: "# Reboot Procedure",
		KBBaseSysID: "kb001",
		Attachments: []string{"a.pdf", "b.pdf", "c.pdf"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"a.pdf", "b.pdf"}, store.attachCalls, "c.pdf must be skipped after the failure")
	require.Len(t, result.Attachments, 3)
	assert.Equal(t, "a.pdf", result.Attachments[0].File)
	assert.Empty(t, result.Attachments[0].Error)
	assert.Equal(t, "b.pdf", result.Attachments[1].File)
	assert.Contains(t, result.Attachments[1].Error, "disk full")
	assert.Equal(t, "c.pdf", result.Attachments[2].File)
	assert.True(t, result.Attachments[2].Skipped)
	assert.Empty(t, result.Attachments[2].Error)
}

func TestRunVerificationReadFailure(t *testing.T) {
	store := newFakeStore()
	store.getErr = errors.New("record vanished")
	pub := newTestPublisher(t, stubLLM{text: rebootPlanJSON}, store)

	result, err := pub.Run(context.Background(), RunParams{
		SOPMarkdown: "# Reboot Procedure",
		KBBaseSysID: "kb001",
	})
	require.NoError(t, err, "verification is diagnostic and must not abort the run")

	require.NotNil(t, result.Verification)
	assert.False(t, result.Verification.OK)
	assert.Nil(t, result.Verification.Record)
	require.NotEmpty(t, result.Verification.Errors)
	assert.Contains(t, result.Verification.Errors[0], "record vanished")
}

func TestRunVerificationDetectsDrift(t *testing.T) {
	store := newFakeStore()
	pub := newTestPublisher(t, stubLLM{text: rebootPlanJSON}, store)

	result, err := pub.Run(context.Background(), RunParams{
		SOPMarkdown: "# Reboot Procedure",
		KBBaseSysID: "kb001",
	})
	require.NoError(t, err)
	require.NotNil(t, result.Verification)
	assert.False(t, result.Verification.Drift)

	// Corrupt the stored body and re-verify: the fingerprints must diverge.
	store.last.HTML = "<p>someone edited this</p>"
	v := pub.verify(context.Background(), "sys123", result.Fingerprint)
	assert.True(t, v.Drift)
	assert.NotEqual(t, result.Fingerprint, v.Fingerprint)
}

func TestRunNoDriftWhenSanitizerStripsAllMarkup(t *testing.T) {
	// The generated body's only markup is disallowed; the written record
	// must verify clean, not read back as drifted.
	store := newFakeStore()
	plan := `{"short_description":"Reboot","html":"<script>evil()</script>Power off, then on."}`
	pub := newTestPublisher(t, stubLLM{text: plan}, store)

	result, err := pub.Run(context.Background(), RunParams{
		SOPMarkdown: "# Reboot",
		KBBaseSysID: "kb001",
	})
	require.NoError(t, err)
	assert.Equal(t, "<p>Power off, then on.</p>", result.Plan.HTML)
	require.NotNil(t, result.Verification)
	assert.False(t, result.Verification.Drift)
	assert.Equal(t, result.Fingerprint, result.Verification.Fingerprint)
}

func TestRunTransportErrorIsFatal(t *testing.T) {
	store := newFakeStore()
	store.createErr = &servicenow.TransportError{Op: "create", Err: errors.New("connection refused")}
	pub := newTestPublisher(t, stubLLM{text: rebootPlanJSON}, store)

	_, err := pub.Run(context.Background(), RunParams{
		SOPMarkdown: "# Reboot Procedure",
		KBBaseSysID: "kb001",
	})
	var transport *servicenow.TransportError
	require.ErrorAs(t, err, &transport)
	assert.Equal(t, 0, store.getCalls)
}
