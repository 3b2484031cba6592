// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package classify asks a language model which foreign countries,
// institutions and funding sources a publication involves, and parses the
// answer into a canonical AffiliationAnalysis.
//
// A Classifier never invents an analysis. When the model is unreachable or
// its answer does not parse, Classify returns an *Error and the caller skips
// the publication.
package classify

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/pdiddy/disclosure-engine/pkg/types"
)

const defaultMaxRetries = 3

// Request is one prompt sent to an Annotator.
type Request struct {
	// System is the system instruction establishing the model's role.
	System string
	// Prompt is the rendered user prompt describing the publication.
	Prompt string
}

// Annotator abstracts the language-model API so tests can supply a double.
// Implementations return the model's raw text answer for one request.
type Annotator interface {
	Annotate(ctx context.Context, req Request) (string, error)
}

// AnnotatorFunc adapts a function to the Annotator interface.
type AnnotatorFunc func(ctx context.Context, req Request) (string, error)

// Annotate calls f.
func (f AnnotatorFunc) Annotate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Error reports that a publication could not be classified. The pipeline
// records it as a skip and moves on.
type Error struct {
	Title      string
	Identifier string
	Err        error
}

func (e *Error) Error() string {
	if e.Identifier != "" {
		return fmt.Sprintf("classifying %q (%s): %v", e.Title, e.Identifier, e.Err)
	}
	return fmt.Sprintf("classifying %q: %v", e.Title, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Options configures a Classifier.
type Options struct {
	// Focus lists the countries the prompt asks the model to pay particular
	// attention to, usually the watchlist.
	Focus []string
	// MaxRetries bounds additional attempts after a failed or malformed
	// answer (default 3).
	MaxRetries int
}

// Classifier turns publications into affiliation analyses via an Annotator.
// It is safe for concurrent use if the Annotator is.
type Classifier struct {
	annotator  Annotator
	focus      []string
	maxRetries int
}

// New returns a Classifier backed by annotator.
func New(annotator Annotator, opts Options) *Classifier {
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	return &Classifier{
		annotator:  annotator,
		focus:      append([]string(nil), opts.Focus...),
		maxRetries: maxRetries,
	}
}

// Classify returns the model's analysis of pub. Every failure, including a
// malformed answer that survives all retries, is returned as *Error.
func (c *Classifier) Classify(ctx context.Context, pub types.Publication) (types.AffiliationAnalysis, error) {
	fail := func(err error) (types.AffiliationAnalysis, error) {
		return types.AffiliationAnalysis{}, &Error{Title: pub.Title, Identifier: pub.Identifier(), Err: err}
	}

	if c.annotator == nil {
		return fail(errors.New("no classifier backend configured"))
	}

	prompt, err := renderPrompt(pub, c.focus)
	if err != nil {
		return fail(fmt.Errorf("rendering prompt: %w", err))
	}

	analysis, err := callWithRetry(ctx, c.annotator, Request{System: systemInstruction, Prompt: prompt}, c.maxRetries)
	if err != nil {
		return fail(err)
	}
	return analysis, nil
}

// backoffBase controls the base duration for exponential backoff. Tests
// override this to avoid real sleeps.
var backoffBase = time.Second

// callWithRetry calls the annotator and parses its answer, retrying both
// transport failures and malformed answers with exponential backoff.
func callWithRetry(ctx context.Context, annotator Annotator, req Request, maxRetries int) (types.AffiliationAnalysis, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * backoffBase
			select {
			case <-ctx.Done():
				return types.AffiliationAnalysis{}, ctx.Err()
			case <-time.After(backoff):
			}
		}

		text, err := annotator.Annotate(ctx, req)
		if err == nil {
			analysis, perr := ParseAnalysis(text)
			if perr == nil {
				return analysis, nil
			}
			err = perr
		}
		if ctx.Err() != nil {
			return types.AffiliationAnalysis{}, fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
		}
		lastErr = err
	}
	return types.AffiliationAnalysis{}, fmt.Errorf("after %d retries: %w", maxRetries, lastErr)
}
