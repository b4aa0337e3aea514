package sanitize

import (
	"context"
	"fmt"
)

// LabelPerson is the span label person extractors emit.
const LabelPerson = "PERSON"

// Span describes a person mention detected within a text.
type Span struct {
	Start int     // byte offset of the first character (UTF-8)
	End   int     // byte offset one past the last character
	Label string  // e.g. "PERSON", "PER"
	Score float32 // backend confidence in [0,1]; informational only
}

// Classifier extracts person mentions from a text string. It backs the
// linguistic path of the name matcher.
// Implementations must be safe for concurrent use.
type Classifier interface {
	Classify(ctx context.Context, text string) ([]Span, error)
}

// Named is implemented by classifiers that report a display name in
// Engine.Status.
type Named interface {
	Name() string
}

func classifierName(c Classifier) string {
	if n, ok := c.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", c)
}
