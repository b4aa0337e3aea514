package sanitize

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/gonkalabs/piiscan/internal/sanitize"

// Engine runs the category matchers. It holds only immutable tables after
// construction and is safe for concurrent Detect calls.
type Engine struct {
	patterns    *PatternTable
	names       *NameTable
	classifiers []Classifier
	budget      time.Duration
	tracer      trace.Tracer

	patternFile string
}

// Option configures an Engine.
type Option func(*Engine)

// WithPatternFile overlays the YAML file at path on the embedded patterns.
// A missing file is ignored.
func WithPatternFile(path string) Option {
	return func(e *Engine) { e.patternFile = path }
}

// WithPatterns uses t instead of loading patterns.
func WithPatterns(t *PatternTable) Option {
	return func(e *Engine) { e.patterns = t }
}

// WithNameTable replaces the embedded name lists.
func WithNameTable(t *NameTable) Option {
	return func(e *Engine) { e.names = t }
}

// WithClassifiers sets the person extractors, replacing the built-in
// heuristic. Pass NewHeuristicClassifier explicitly to keep it.
func WithClassifiers(cs ...Classifier) Option {
	return func(e *Engine) { e.classifiers = cs }
}

// WithClassifierBudget bounds how long Detect waits for person extractors.
func WithClassifierBudget(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.budget = d
		}
	}
}

// WithTracer sets the tracer used for detection spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// NewEngine builds an Engine. Without options it uses the embedded patterns
// and name lists and the built-in heuristic person extractor.
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{budget: defaultClassifierBudget}
	for _, opt := range opts {
		opt(e)
	}
	if e.patterns == nil {
		t, err := LoadPatterns(e.patternFile)
		if err != nil {
			return nil, fmt.Errorf("sanitize: %w", err)
		}
		e.patterns = t
	}
	if e.names == nil {
		e.names = DefaultNameTable()
	}
	if e.classifiers == nil {
		e.classifiers = []Classifier{NewHeuristicClassifier(e.names)}
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}
	return e, nil
}

// MustNewEngine is NewEngine that panics on error.
func MustNewEngine(opts ...Option) *Engine {
	e, err := NewEngine(opts...)
	if err != nil {
		panic(err)
	}
	return e
}

// Detect scans text for every category enabled in s and returns the report.
// Matchers run in scan order and each one scans the text as redacted by the
// previous ones. Context scores always use tokens from the original text.
func (e *Engine) Detect(ctx context.Context, text string, s Settings) *Report {
	ctx, span := e.tracer.Start(ctx, "sanitize.detect",
		trace.WithAttributes(attribute.Int("text.length", len(text))))
	defer span.End()

	rep := newReport(text)
	tokens := Tokenize(text)
	cur := text

	for _, c := range scanOrder {
		if !s.Enabled(c) {
			continue
		}
		var f *finding
		cur, f = e.scan(ctx, c, cur, tokens, s)
		if f != nil {
			rep.add(c, f)
		}
	}
	rep.Sanitized = cur

	span.SetAttributes(attribute.StringSlice("pii.detected", rep.Labels()))
	log.Debug().
		Int("len", len(text)).
		Strs("detected", rep.Labels()).
		Msg("sanitize: detect")
	return rep
}

func (e *Engine) scan(ctx context.Context, c Category, text string, tokens []string, s Settings) (string, *finding) {
	ctx, span := e.tracer.Start(ctx, "sanitize.match."+c.Key())
	defer span.End()

	var (
		out string
		f   *finding
	)
	if c == CategoryName {
		out, f = e.scanNames(ctx, text, s.PersonExtraction)
	} else if spec := e.patterns.Spec(c); spec != nil {
		out, f = patternScanners[c](spec, text, tokens)
	} else {
		out = text
	}
	span.SetAttributes(attribute.Bool("pii.found", f != nil))
	return out, f
}

// Status describes the loaded tables and person extractors.
type Status struct {
	Patterns         int      `json:"patterns"`
	FirstNames       int      `json:"firstNames"`
	LastNames        int      `json:"lastNames"`
	PersonExtractors []string `json:"personExtractors"`
	Categories       []string `json:"categories"`
}

// Status reports what the engine was built with.
func (e *Engine) Status() Status {
	first, last := e.names.Sizes()
	st := Status{
		Patterns:   e.patterns.Len(),
		FirstNames: first,
		LastNames:  last,
	}
	for _, c := range e.classifiers {
		st.PersonExtractors = append(st.PersonExtractors, classifierName(c))
	}
	for _, c := range scanOrder {
		st.Categories = append(st.Categories, c.String())
	}
	return st
}
