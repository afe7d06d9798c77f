package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagforge/tagforge/pkg/types"
)

// fakeProvider is a minimal Provider for registry and monitor tests.
type fakeProvider struct {
	id     string
	models []string
	fail   bool
	lag    time.Duration
}

func (f *fakeProvider) ID() string   { return f.id }
func (f *fakeProvider) Name() string { return f.id }

func (f *fakeProvider) Ping(ctx context.Context, creds Credentials) error {
	if f.fail {
		return assert.AnError
	}
	return nil
}

func (f *fakeProvider) ListModels(ctx context.Context, creds Credentials) ([]string, error) {
	if f.fail {
		return nil, assert.AnError
	}
	if f.lag > 0 {
		time.Sleep(f.lag)
	}
	return f.models, nil
}

func (f *fakeProvider) GenerateStreaming(ctx context.Context, req *Request) (TokenStream, error) {
	return TokensFromSlice([]string{"ok"}), nil
}

func (f *fakeProvider) Preload(ctx context.Context, model string, creds Credentials) error {
	return nil
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeProvider{id: "Ollama"})

	// Case-insensitive lookup.
	p, err := reg.Get("ollama")
	require.NoError(t, err)
	assert.Equal(t, "Ollama", p.Name())

	_, err = reg.Get("missing")
	assert.Error(t, err)
}

func TestRegistry_List(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeProvider{id: "b"})
	reg.Register(&fakeProvider{id: "a"})

	assert.Equal(t, []string{"a", "b"}, reg.List())
}

func TestClassifyLatency(t *testing.T) {
	assert.Equal(t, StatusOffline, classifyLatency(0))
	assert.Equal(t, StatusOK, classifyLatency(50*time.Millisecond))
	assert.Equal(t, StatusDegraded, classifyLatency(500*time.Millisecond))
	assert.Equal(t, StatusSlow, classifyLatency(2*time.Second))
}

func TestMonitor_RecordLatency(t *testing.T) {
	m := NewMonitor(NewRegistry(), time.Minute)

	m.RecordLatency(120 * time.Millisecond)
	assert.Equal(t, StatusOK, m.Status())
	assert.Equal(t, 120*time.Millisecond, m.Latency())
}

func TestMonitor_PingFailureGoesOffline(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeProvider{id: "dead", fail: true})

	m := NewMonitor(reg, time.Minute)
	m.SetProfile(&types.AgentProfile{Name: "p", Provider: "dead"})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	m.pingOnce(ctx)

	assert.Equal(t, StatusOffline, m.Status())
	assert.Equal(t, time.Duration(0), m.Latency())
}

func TestMonitor_PingSuccess(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeProvider{id: "live", models: []string{"m1"}})

	m := NewMonitor(reg, time.Minute)
	m.SetProfile(&types.AgentProfile{Name: "p", Provider: "live"})

	m.pingOnce(context.Background())

	assert.NotEqual(t, StatusOffline, m.Status())
	assert.Greater(t, m.Latency(), time.Duration(0))
}
