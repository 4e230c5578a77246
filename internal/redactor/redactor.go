// Package redactor implements the PII Redactor (C4): identifies and replaces
// PII spans with type tags, using a worker pool sized to available cores so
// redaction — CPU-bound — never runs on the request goroutine alone.
//
// Grounded on the teacher's internal/service/redactor.go (Finding/ScanResult
// shape, descending-offset replacement to avoid index drift) reshaped from a
// single DLP API client into a worker pool whose workers each own an
// analyser/anonymiser pair, per original_source/core/pii_manager.py's
// ProcessPoolExecutor(initializer=...) pattern — translated to Go's idiom of
// fixed goroutines with owned state rather than OS processes.
package redactor

import (
	"context"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/sentinelrag/sentinel/internal/apperr"
)

// Finding is one detected PII span.
type Finding struct {
	InfoType   string
	StartIndex int
	EndIndex   int
}

// Redactor owns a fixed pool of per-worker analysers. Workers never migrate
// state (spec §5's shared-resource policy).
type Redactor struct {
	workers int
	newAnalyser func() *analyser
}

// New builds a Redactor with a worker pool sized to the number of available
// cores, unless workers is explicitly positive (used by tests to force
// single-worker determinism).
func New(workers int) *Redactor {
	if workers <= 0 {
		workers = runtime.NumCPU()
		if workers < 1 {
			workers = 1
		}
	}
	return &Redactor{workers: workers, newAnalyser: newAnalyser}
}

// Redact implements redact([text]) -> [text]: order and count are preserved,
// each PII span replaced with a tag of the form <TYPE>. Work is fanned out
// across the worker pool; each worker uses its own analyser instance, so no
// mutable state is shared across goroutines.
func (r *Redactor) Redact(ctx context.Context, texts []string) ([]string, []Finding, error) {
	if len(texts) == 0 {
		return nil, nil, nil
	}

	results := make([]string, len(texts))
	allFindings := make([][]Finding, len(texts))

	g, ctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, r.workers)

	for i, text := range texts {
		i, text := i, text
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return nil, nil, apperr.Wrap(apperr.KindInternal, "redaction cancelled", ctx.Err())
		}
		g.Go(func() error {
			defer func() { <-sem }()
			a := r.newAnalyser()
			findings := a.analyse(text)
			results[i] = a.anonymise(text, findings)
			allFindings[i] = findings
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, apperr.Wrap(apperr.KindInternal, "redaction worker failed", err)
	}

	var flat []Finding
	for _, f := range allFindings {
		flat = append(flat, f...)
	}
	return results, flat, nil
}

// Types returns the deduplicated, sorted set of info types found across findings.
func Types(findings []Finding) []string {
	seen := make(map[string]bool)
	for _, f := range findings {
		seen[f.InfoType] = true
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
