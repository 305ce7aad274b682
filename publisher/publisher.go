// Package publisher turns an SOP into a validated knowledge article and
// reconciles it with the external store: plan, normalize, validate,
// create-or-update, attach, optionally publish, then verify the stored
// record against the plan.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"go.uber.org/zap"

	"kb_article_publisher/generator"
	"kb_article_publisher/kbschema"
	"kb_article_publisher/servicenow"
)

// Store is the article-store port the pipeline writes through.
type Store interface {
	Create(ctx context.Context, shortDescription, html, kbBaseSysID string, extra map[string]string) (servicenow.Record, error)
	Update(ctx context.Context, sysID string, fields map[string]string) (servicenow.Record, error)
	Get(ctx context.Context, sysID string) (servicenow.Record, error)
	Attach(ctx context.Context, sysID, path string) (servicenow.AttachResult, error)
}

// Validator is the optional schema-check capability. A nil Validator skips
// validation entirely; results report whether it actually ran.
type Validator interface {
	Validate(docJSON []byte) []string
}

// RunParams are the caller inputs for one publication run.
type RunParams struct {
	SOPMarkdown   string
	KBBaseSysID   string
	Category      string
	Tags          []string
	Attachments   []string
	Publish       bool
	ExistingSysID string
}

// AttachmentResult pairs one upload with its source path. Error is set
// when the upload failed; uploads after the first failure are itemized
// with Skipped set so callers can tell "not attempted" from "never
// requested".
type AttachmentResult struct {
	File    string                   `json:"file"`
	Result  *servicenow.AttachResult `json:"result,omitempty"`
	Error   string                   `json:"error,omitempty"`
	Skipped bool                     `json:"skipped,omitempty"`
}

// PublishOutcome reports the optional lifecycle transition. It never
// carries an error out of the run as a failure; a failed publish is an
// expected partial-success case.
type PublishOutcome struct {
	Attempted bool               `json:"attempted"`
	Status    string             `json:"status,omitempty"`
	Result    *servicenow.Record `json:"result,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// VerificationResult is the re-read-and-recompare outcome. A read failure
// yields OK=false with the error captured; verification is diagnostic and
// never aborts the run.
type VerificationResult struct {
	OK          bool               `json:"ok"`
	Errors      []string           `json:"errors,omitempty"`
	Record      *servicenow.Record `json:"record"`
	Normalized  *Plan              `json:"normalized,omitempty"`
	Fingerprint string             `json:"fingerprint,omitempty"`
	Drift       bool               `json:"drift"`
	Validated   bool               `json:"validated"`
}

// RunResult describes how far the pipeline got and what it produced.
type RunResult struct {
	Plan         Plan                `json:"plan"`
	Fingerprint  string              `json:"fingerprint"`
	Mode         string              `json:"mode"`
	Validated    bool                `json:"validated"`
	Record       *servicenow.Record  `json:"record,omitempty"`
	Attachments  []AttachmentResult  `json:"attachments,omitempty"`
	Publish      PublishOutcome      `json:"publish"`
	Verification *VerificationResult `json:"verification,omitempty"`
}

// Publisher orchestrates the SOP → knowledge article workflow.
type Publisher struct {
	adapter   *generator.Adapter
	store     Store
	validator Validator
	logger    *zap.Logger
}

func New(adapter *generator.Adapter, store Store, validator Validator, logger *zap.Logger) (*Publisher, error) {
	if adapter == nil {
		return nil, errors.New("generation adapter is required")
	}
	if store == nil {
		return nil, errors.New("article store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{adapter: adapter, store: store, validator: validator, logger: logger}, nil
}

// Run executes one publication. Failures before the first write abort the
// run; failures at or after it are captured in the result, except
// transport failures during the authoritative write, which are fatal.
func (p *Publisher) Run(ctx context.Context, params RunParams) (*RunResult, error) {
	log := p.logger

	// PLANNING
	system, user := generator.BuildPlanPrompt(params.SOPMarkdown, params.KBBaseSysID, params.Category, params.Tags)
	res, err := p.adapter.Generate(ctx, system, user)
	if err != nil {
		return nil, err
	}
	raw, err := ExtractPlan(res)
	if err != nil {
		return nil, err
	}
	log.Info("plan extracted", zap.String("short_description", raw.ShortDescription))

	// NORMALIZING
	plan := Normalize(raw, Defaults{
		KBBaseSysID: params.KBBaseSysID,
		Category:    params.Category,
		Tags:        params.Tags,
	})
	log.Info("plan normalized", zap.Strings("tags", plan.Tags))

	// VALIDATING
	validated, err := p.validate(plan)
	if err != nil {
		return nil, err
	}
	if !validated {
		log.Warn("schema validation skipped: no validator available")
	}

	fingerprint := kbschema.Fingerprint(plan.ShortDescription, plan.HTML)

	result := &RunResult{
		Plan:        plan,
		Fingerprint: fingerprint,
		Validated:   validated,
	}

	// RECONCILING
	sysID, err := p.reconcile(ctx, plan, params.ExistingSysID, result)
	if err != nil {
		return nil, err
	}
	log.Info("record reconciled", zap.String("mode", result.Mode), zap.String("sys_id", sysID))

	// ATTACHING
	result.Attachments = p.attach(ctx, sysID, params.Attachments)

	// PUBLISHING
	result.Publish = p.maybePublish(ctx, sysID, params.Publish)

	// VERIFYING
	result.Verification = p.verify(ctx, sysID, fingerprint)

	return result, nil
}

func (p *Publisher) validate(plan Plan) (bool, error) {
	if p.validator == nil {
		return false, nil
	}
	docJSON, err := json.Marshal(plan)
	if err != nil {
		return false, err
	}
	if violations := p.validator.Validate(docJSON); len(violations) > 0 {
		return false, &SchemaViolationError{Violations: violations}
	}
	return true, nil
}

// reconcile decides create vs update and performs the single authoritative
// write. The store is the source of truth; transport errors are fatal and
// not retried here.
func (p *Publisher) reconcile(ctx context.Context, plan Plan, existingSysID string, result *RunResult) (string, error) {
	if existingSysID != "" {
		fields := map[string]string{
			"short_description": plan.ShortDescription,
			"text":              plan.HTML,
		}
		addOptionalFields(fields, plan)
		rec, err := p.store.Update(ctx, existingSysID, fields)
		if err != nil {
			return "", err
		}
		result.Mode = "update"
		result.Record = &rec
		return existingSysID, nil
	}

	extra := map[string]string{}
	addOptionalFields(extra, plan)
	rec, err := p.store.Create(ctx, plan.ShortDescription, plan.HTML, plan.KBBaseSysID, extra)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(rec.SysID) == "" {
		return "", ErrMissingSysID
	}
	result.Mode = "create"
	result.Record = &rec
	return rec.SysID, nil
}

func addOptionalFields(fields map[string]string, plan Plan) {
	if plan.Category != "" {
		fields["category"] = plan.Category
	}
	if plan.ValidTo != "" {
		fields["valid_to"] = plan.ValidTo
	}
	if len(plan.Tags) > 0 {
		fields["tags"] = strings.Join(plan.Tags, ",")
	}
}

// attach uploads in the order given and stops at the first failure so the
// record's attachment set stays predictable. Every requested path shows up
// in the results: uploaded, failed, or skipped.
func (p *Publisher) attach(ctx context.Context, sysID string, paths []string) []AttachmentResult {
	var results []AttachmentResult
	for i, path := range paths {
		res, err := p.store.Attach(ctx, sysID, path)
		if err != nil {
			p.logger.Warn("attachment upload failed; skipping the rest",
				zap.String("file", path), zap.Error(err))
			results = append(results, AttachmentResult{File: path, Error: err.Error()})
			for _, rest := range paths[i+1:] {
				results = append(results, AttachmentResult{File: rest, Skipped: true})
			}
			break
		}
		results = append(results, AttachmentResult{File: path, Result: &res})
	}
	return results
}

func (p *Publisher) maybePublish(ctx context.Context, sysID string, publish bool) PublishOutcome {
	if !publish {
		return PublishOutcome{Attempted: false}
	}
	rec, err := p.store.Update(ctx, sysID, map[string]string{"workflow_state": "published"})
	if err != nil {
		p.logger.Warn("publish transition failed", zap.String("sys_id", sysID), zap.Error(err))
		return PublishOutcome{Attempted: true, Status: "failed", Error: err.Error()}
	}
	return PublishOutcome{Attempted: true, Status: "success", Result: &rec}
}

// verify re-reads the stored record, normalizes it into plan shape,
// recomputes the fingerprint, and re-validates the read-back to catch
// store-side corruption or partial writes.
func (p *Publisher) verify(ctx context.Context, sysID, planFingerprint string) *VerificationResult {
	rec, err := p.store.Get(ctx, sysID)
	if err != nil {
		return &VerificationResult{OK: false, Errors: []string{err.Error()}}
	}

	normalized := Normalize(Plan{
		ShortDescription: rec.ShortDescription,
		HTML:             rec.HTML,
		KBBaseSysID:      rec.KBBaseSysID,
		Category:         rec.Category,
		ValidTo:          rec.ValidTo,
		Tags:             rec.Tags,
	}, Defaults{})

	v := &VerificationResult{
		Record:      &rec,
		Normalized:  &normalized,
		Fingerprint: kbschema.Fingerprint(normalized.ShortDescription, normalized.HTML),
	}
	v.Drift = v.Fingerprint != planFingerprint

	if p.validator != nil {
		v.Validated = true
		if docJSON, err := json.Marshal(normalized); err != nil {
			v.Errors = append(v.Errors, err.Error())
		} else {
			v.Errors = append(v.Errors, p.validator.Validate(docJSON)...)
		}
	}
	v.OK = len(v.Errors) == 0
	return v
}
