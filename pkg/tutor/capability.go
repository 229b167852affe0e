package tutor

import (
	"context"
	"io"
)

// The request path consumes specialists through narrow capability
// interfaces so backends can be swapped and tests can inject fakes.

// Responder produces a tutoring answer for a prompt as the given
// specialist.
type Responder interface {
	Respond(ctx context.Context, handler Handler, prompt string) (string, error)
}

// ArtifactAnalyzer answers a prompt that already has the artifact's
// extracted content inlined.
type ArtifactAnalyzer interface {
	AnalyzeArtifact(ctx context.Context, prompt string) (string, error)
}

// FileAnalyzer answers a question about an opaque document payload
// whose text cannot be inlined into a prompt, such as a PDF. The
// payload is attached to the model request by reference.
type FileAnalyzer interface {
	AnalyzeFile(ctx context.Context, filename string, payload io.Reader, question string) (string, error)
}

// Searcher answers a query using live web results.
type Searcher interface {
	Search(ctx context.Context, query string, region Region) (string, error)
}

// Classifier picks a specialist for a routing prompt. Its raw output is
// untrusted; the Router recovers a closed-set Handler from it.
type Classifier interface {
	Classify(ctx context.Context, prompt string) (string, error)
}
