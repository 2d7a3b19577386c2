// Package ocr drives an external OCR engine over normalized page images.
// The engine is treated as a black box behind the Engine interface; crashes,
// errors and timeouts on one page are returned to the caller as page-level
// failures and never abort other pages.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// SegMode selects the engine's page segmentation assumption.
type SegMode int

// Segmentation modes used by the recognition passes.
const (
	// SegModeDense assumes a uniform block of text.
	SegModeDense SegMode = iota
	// SegModeSparse assumes scattered text, as in flyer layouts.
	SegModeSparse
)

func (m SegMode) String() string {
	switch m {
	case SegModeSparse:
		return "sparse"
	default:
		return "dense"
	}
}

// Result is the outcome of one recognition pass or a merged page result.
type Result struct {
	Text string
	// Confidence is the mean word confidence in [0, 1]; 0 means unknown.
	Confidence float64
	Pass       string
	Language   string
}

// Engine recognizes text in one encoded image.
type Engine interface {
	Recognize(ctx context.Context, img []byte, languages []string, mode SegMode) (Result, error)
}

// ErrPageTimeout is returned when a page exceeds the per-page OCR deadline.
var ErrPageTimeout = errors.New("ocr page timeout exceeded")

// Adapter runs the engine over a page in multiple configuration passes and
// merges the results.
type Adapter struct {
	engine    Engine
	languages []string
	timeout   time.Duration
	passes    []SegMode
}

// Option is custom configuration of Adapter.
type Option func(a *Adapter)

// NewAdapter returns new Adapter recognizing Arabic and English with a dense
// and a sparse segmentation pass.
func NewAdapter(engine Engine, timeout time.Duration, ops ...Option) *Adapter {
	adapter := &Adapter{
		engine:    engine,
		languages: []string{"ara", "eng"},
		timeout:   timeout,
		passes:    []SegMode{SegModeDense, SegModeSparse},
	}

	for _, op := range ops {
		op(adapter)
	}

	return adapter
}

// WithPasses overrides the segmentation passes.
func WithPasses(passes ...SegMode) Option {
	return func(a *Adapter) {
		a.passes = passes
	}
}

// ProcessPageFile recognizes the page image stored at imagePath.
func (a *Adapter) ProcessPageFile(ctx context.Context, imagePath string) (Result, error) {
	img, err := os.ReadFile(imagePath)
	if err != nil {
		return Result{}, fmt.Errorf("can't read page image: %w", err)
	}
	return a.ProcessPage(ctx, img)
}

// ProcessPage recognizes one encoded page image. All passes share the
// per-page timeout; the result is the pass with the higher mean confidence,
// falling back to concatenation when confidences are not comparable.
func (a *Adapter) ProcessPage(ctx context.Context, img []byte) (Result, error) {
	pageCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	results := make([]Result, 0, len(a.passes))

	for _, mode := range a.passes {
		result, err := a.runPass(pageCtx, img, mode)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				if len(results) > 0 {
					// keep what the earlier passes produced
					break
				}
				return Result{}, ErrPageTimeout
			}
			return Result{}, fmt.Errorf("can't run %s pass: %w", mode, err)
		}
		result.Pass = mode.String()
		results = append(results, result)
	}

	return mergeResults(results), nil
}

// runPass dispatches one engine invocation. The engine call is blocking, so
// it runs on its own goroutine and is abandoned cooperatively on timeout.
func (a *Adapter) runPass(ctx context.Context, img []byte, mode SegMode) (Result, error) {
	type passOutcome struct {
		result Result
		err    error
	}

	outcome := make(chan passOutcome, 1)
	go func() {
		result, err := a.engine.Recognize(ctx, img, a.languages, mode)
		outcome <- passOutcome{result: result, err: err}
	}()

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case out := <-outcome:
		return out.result, out.err
	}
}

// mergeResults prefers the pass with higher mean confidence. When no pass
// reported a comparable confidence the texts are concatenated instead.
func mergeResults(results []Result) Result {
	switch len(results) {
	case 0:
		return Result{}
	case 1:
		return results[0]
	}

	comparable := true
	for _, result := range results {
		if result.Confidence == 0 {
			comparable = false
			break
		}
	}

	if comparable {
		best := results[0]
		for _, result := range results[1:] {
			if result.Confidence > best.Confidence {
				best = result
			}
		}
		return best
	}

	texts := make([]string, 0, len(results))
	passes := make([]string, 0, len(results))
	for _, result := range results {
		if text := strings.TrimSpace(result.Text); text != "" {
			texts = append(texts, text)
		}
		passes = append(passes, result.Pass)
	}

	return Result{
		Text:     strings.Join(texts, "\n"),
		Pass:     strings.Join(passes, "+"),
		Language: results[0].Language,
	}
}
