package generator

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/storechat/storechat/pkg/contracts"
)

// mockDriver answers with a fixed text or fails, and can emit a partial
// delta before failing to exercise mid-stream behavior.
type mockDriver struct {
	name        string
	text        string
	fail        bool
	failMidway  bool
	calls       int
}

func (m *mockDriver) Name() string { return m.name }

func (m *mockDriver) Generate(ctx context.Context, req contracts.GenerateRequest) (*contracts.GenerateResult, error) {
	m.calls++
	if m.fail {
		return nil, fmt.Errorf("%s unavailable", m.name)
	}
	return &contracts.GenerateResult{Text: m.text, Driver: m.name}, nil
}

func (m *mockDriver) Stream(ctx context.Context, req contracts.GenerateRequest, sink contracts.StreamSink) (*contracts.GenerateResult, error) {
	m.calls++
	if m.fail {
		return nil, fmt.Errorf("%s unavailable", m.name)
	}
	for _, word := range strings.Fields(m.text) {
		if err := sink(word + " "); err != nil {
			return nil, err
		}
		if m.failMidway {
			return nil, fmt.Errorf("%s died mid-stream", m.name)
		}
	}
	return &contracts.GenerateResult{Text: m.text, Driver: m.name}, nil
}

func newTestRouter(t *testing.T, drivers ...Driver) *Router {
	t.Helper()
	r, err := NewRouter(drivers...)
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}
	return r
}

func TestGenerate_FallsBackInOrder(t *testing.T) {
	first := &mockDriver{name: "first", fail: true}
	second := &mockDriver{name: "second", text: "hello"}
	r := newTestRouter(t, first, second)

	got, err := r.Generate(context.Background(), contracts.GenerateRequest{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got.Driver != "second" || got.Text != "hello" {
		t.Errorf("Generate() = %+v, want answer from second driver", got)
	}
	if first.calls != 1 || second.calls != 1 {
		t.Errorf("calls = %d/%d, want 1/1", first.calls, second.calls)
	}
}

func TestGenerate_AllFail(t *testing.T) {
	r := newTestRouter(t, &mockDriver{name: "a", fail: true}, &mockDriver{name: "b", fail: true})
	if _, err := r.Generate(context.Background(), contracts.GenerateRequest{}); err == nil {
		t.Fatal("Generate() = nil error, want failure when every driver fails")
	}
}

func TestGenerate_TracksLatency(t *testing.T) {
	d := &mockDriver{name: "only", text: "x"}
	r := newTestRouter(t, d)

	if _, err := r.Generate(context.Background(), contracts.GenerateRequest{}); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if r.Latency("only") < 0 {
		t.Error("Latency() went negative")
	}
}

func TestStream_FailoverBeforeOutput(t *testing.T) {
	first := &mockDriver{name: "first", fail: true}
	second := &mockDriver{name: "second", text: "streamed answer"}
	r := newTestRouter(t, first, second)

	var got strings.Builder
	res, err := r.Stream(context.Background(), contracts.GenerateRequest{}, func(delta string) error {
		got.WriteString(delta)
		return nil
	})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if res.Driver != "second" {
		t.Errorf("Stream() driver = %q, want second", res.Driver)
	}
	if strings.TrimSpace(got.String()) != "streamed answer" {
		t.Errorf("sink collected %q", got.String())
	}
}

func TestStream_NoFailoverAfterOutput(t *testing.T) {
	first := &mockDriver{name: "first", text: "partial output", failMidway: true}
	second := &mockDriver{name: "second", text: "never used"}
	r := newTestRouter(t, first, second)

	_, err := r.Stream(context.Background(), contracts.GenerateRequest{}, func(string) error { return nil })
	if err == nil {
		t.Fatal("Stream() = nil error, want mid-stream failure surfaced")
	}
	if second.calls != 0 {
		t.Error("router fell over to a second driver after output had flowed")
	}
}

func TestNewRouter_RequiresDrivers(t *testing.T) {
	if _, err := NewRouter(); err == nil {
		t.Fatal("NewRouter() with no drivers should fail")
	}
}
