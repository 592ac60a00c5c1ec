// Package embedding provides text embedding backends.
//
// A Service is created once per process and passed explicitly to every
// scoring job. Implementations are used sequentially by a job; they are not
// required to be safe for concurrent jobs unless documented otherwise.
package embedding

import "context"

// Service maps a text to a dense vector.
type Service interface {
	// Embed returns the embedding of text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// Model returns the model identifier.
	Model() string
	// Close releases backend resources.
	Close() error
}

// Func adapts a plain function to the Service interface.
type Func func(ctx context.Context, text string) ([]float32, error)

// Embed calls f.
func (f Func) Embed(ctx context.Context, text string) ([]float32, error) {
	return f(ctx, text)
}

// Model returns "func".
func (f Func) Model() string { return "func" }

// Close is a no-op.
func (f Func) Close() error { return nil }
