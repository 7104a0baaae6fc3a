// ABOUTME: Built-in procurement processes: document_analysis and tender_review
// ABOUTME: Document analysis contains stage-4 image derivation failures instead of aborting

package workflow

import (
	"context"
	"encoding/json"
	"fmt"
)

// Built-in process names.
const (
	ProcessDocumentAnalysis = "document_analysis"
	ProcessTenderReview     = "tender_review"
)

// RegisterDefaults installs the built-in procurement processes.
func RegisterDefaults(e *Engine) {
	e.Register(documentAnalysisProcess())
	e.Register(tenderReviewProcess())
}

// documentAnalysisProcess is the fixed 5-stage document pipeline. Stage 4
// (image derivation) is optional: its failure is reported as completed with
// imageGenerated:false and the run continues.
func documentAnalysisProcess() Process {
	return Process{
		Name: ProcessDocumentAnalysis,
		Steps: []Step{
			{
				Name: "classify",
				Run: func(ctx context.Context, run *Run) (map[string]any, error) {
					raw, err := run.Dispatch(ctx, "classify_document", run.Content)
					if err != nil {
						return nil, err
					}
					return resultFromRaw(raw), nil
				},
			},
			{
				Name: "extract",
				Run: func(ctx context.Context, run *Run) (map[string]any, error) {
					prompt := fmt.Sprintf("Classification: %s\n\nDocument:\n%s",
						compactResult(run.Results["classify"]), run.Content)
					raw, err := run.Dispatch(ctx, "extract_document_fields", prompt)
					if err != nil {
						return nil, err
					}
					return resultFromRaw(raw), nil
				},
			},
			{
				Name: "validate",
				Run: func(ctx context.Context, run *Run) (map[string]any, error) {
					prompt := fmt.Sprintf("Extracted fields: %s\n\nDocument:\n%s",
						compactResult(run.Results["extract"]), run.Content)
					raw, err := run.Dispatch(ctx, "validate_extracted_fields", prompt)
					if err != nil {
						return nil, err
					}
					return resultFromRaw(raw), nil
				},
			},
			{
				Name: "derive_image",
				Run: func(ctx context.Context, run *Run) (map[string]any, error) {
					prompt := fmt.Sprintf("Extracted fields: %s",
						compactResult(run.Results["extract"]))
					raw, err := run.Dispatch(ctx, "derive_product_image_spec", prompt)
					if err != nil {
						return nil, err
					}
					result := resultFromRaw(raw)
					result["imageGenerated"] = true
					return result, nil
				},
				ContainFailure: func(err error) map[string]any {
					return map[string]any{
						"imageGenerated": false,
						"reason":         err.Error(),
					}
				},
			},
			{
				Name: "finalize",
				Run: func(ctx context.Context, run *Run) (map[string]any, error) {
					imageGenerated := false
					if derived, ok := run.Results["derive_image"]; ok {
						imageGenerated, _ = derived["imageGenerated"].(bool)
					}
					return map[string]any{
						"documentProcessed": true,
						"classification":    run.Results["classify"],
						"fields":            run.Results["extract"],
						"validation":        run.Results["validate"],
						"imageGenerated":    imageGenerated,
					}, nil
				},
			},
		},
	}
}

// tenderReviewProcess summarizes a tender, scans it for risks, then produces
// an award recommendation grounded on both.
func tenderReviewProcess() Process {
	return Process{
		Name: ProcessTenderReview,
		Steps: []Step{
			{
				Name: "summarize",
				Run: func(ctx context.Context, run *Run) (map[string]any, error) {
					raw, err := run.Dispatch(ctx, "summarize_tender", run.Content)
					if err != nil {
						return nil, err
					}
					return resultFromRaw(raw), nil
				},
			},
			{
				Name: "risk_scan",
				Run: func(ctx context.Context, run *Run) (map[string]any, error) {
					raw, err := run.Dispatch(ctx, "scan_tender_risks", run.Content)
					if err != nil {
						return nil, err
					}
					return resultFromRaw(raw), nil
				},
			},
			{
				Name: "recommend",
				Run: func(ctx context.Context, run *Run) (map[string]any, error) {
					prompt := fmt.Sprintf("Summary: %s\nRisks: %s",
						compactResult(run.Results["summarize"]),
						compactResult(run.Results["risk_scan"]))
					raw, err := run.Dispatch(ctx, "recommend_award_action", prompt)
					if err != nil {
						return nil, err
					}
					return resultFromRaw(raw), nil
				},
			},
		},
	}
}

// resultFromRaw decodes a provider reply into a step result. Non-object
// replies are preserved under a raw key rather than discarded.
func resultFromRaw(raw json.RawMessage) map[string]any {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err == nil {
		return m
	}
	return map[string]any{"raw": string(raw)}
}

func compactResult(m map[string]any) string {
	b, err := json.Marshal(m)
	if err != nil {
		return fmt.Sprintf("%v", m)
	}
	return string(b)
}
