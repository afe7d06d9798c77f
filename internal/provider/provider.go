// Package provider defines the generation capability the engine consumes.
//
// A Provider turns a prompt into a lazy, cancellable stream of text tokens.
// Vendor-specific request shaping lives outside this module; the engine only
// depends on this interface.
package provider

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

// TokenStream is a finite stream of text fragments. Recv returns io.EOF when
// the stream ends; Close releases the stream and unblocks the sender.
type TokenStream = *schema.StreamReader[string]

// Credentials carries whatever the provider needs to authenticate a request.
type Credentials struct {
	APIKey      string
	EndpointURL string
}

// Request describes one streaming generation.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	Model        string
	Credentials  Credentials
}

// Provider is the generation capability consumed by the stream coordinator.
type Provider interface {
	// ID returns the provider identifier.
	ID() string

	// Name returns the human-readable provider name.
	Name() string

	// Ping validates the credentials and connection.
	Ping(ctx context.Context, creds Credentials) error

	// ListModels returns the model identifiers the provider offers.
	ListModels(ctx context.Context, creds Credentials) ([]string, error)

	// GenerateStreaming opens a token stream for the request. The stream
	// terminates with io.EOF on success and with the underlying error on
	// failure; cancelling ctx tears the stream down.
	GenerateStreaming(ctx context.Context, req *Request) (TokenStream, error)

	// Preload asks the provider to load the model ahead of the first request.
	// Providers without explicit model loading return nil.
	Preload(ctx context.Context, model string, creds Credentials) error
}

// NewTokenPipe creates a bounded token pipe. The writer side is handed to
// whatever produces tokens; the reader side is a TokenStream.
func NewTokenPipe(cap int) (TokenStream, *schema.StreamWriter[string]) {
	return schema.Pipe[string](cap)
}

// TokensFromSlice builds a TokenStream over fixed tokens, mainly for tests
// and preloaded responses.
func TokensFromSlice(tokens []string) TokenStream {
	return schema.StreamReaderFromArray(tokens)
}
