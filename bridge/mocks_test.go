package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glimte/nativebridge/contracts"
	"github.com/glimte/nativebridge/messaging"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// recordingPublisher keeps every published request and optionally reacts
// to it before Publish returns
type recordingPublisher struct {
	mu        sync.Mutex
	requests  []contracts.Request
	err       error
	onPublish func(req contracts.Request)
	published chan contracts.Request
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{published: make(chan contracts.Request, 64)}
}

func (p *recordingPublisher) Publish(ctx context.Context, body []byte) error {
	p.mu.Lock()
	err := p.err
	hook := p.onPublish
	p.mu.Unlock()

	if err != nil {
		return err
	}

	req, perr := contracts.ParseRequest(body)
	if perr != nil {
		return perr
	}

	p.mu.Lock()
	p.requests = append(p.requests, *req)
	p.mu.Unlock()

	if hook != nil {
		hook(*req)
	}
	select {
	case p.published <- *req:
	default:
	}
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) setError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

func (p *recordingPublisher) next(t *testing.T) contracts.Request {
	t.Helper()
	select {
	case req := <-p.published:
		return req
	case <-time.After(time.Second):
		t.Fatal("no request published")
		return contracts.Request{}
	}
}

// fakeSubscriber stores the inbound handler so tests can push deliveries
type fakeSubscriber struct {
	mu      sync.Mutex
	handler func(messaging.TransportDelivery) error
}

func (s *fakeSubscriber) Subscribe(ctx context.Context, handler func(messaging.TransportDelivery) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
	return nil
}

func (s *fakeSubscriber) Unsubscribe() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = nil
	return nil
}

func (s *fakeSubscriber) Close() error { return s.Unsubscribe() }

func (s *fakeSubscriber) deliver(body string) error {
	s.mu.Lock()
	handler := s.handler
	s.mu.Unlock()
	if handler == nil {
		return fmt.Errorf("no subscriber")
	}
	return handler(&fakeDelivery{body: []byte(body)})
}

type fakeDelivery struct {
	body  []byte
	acked atomic.Bool
}

func (d *fakeDelivery) Body() []byte                    { return d.body }
func (d *fakeDelivery) Acknowledge() error              { d.acked.Store(true); return nil }
func (d *fakeDelivery) Reject(requeue bool) error       { return nil }
func (d *fakeDelivery) Headers() map[string]interface{} { return nil }

// mockTransport pairs the fakes above with mocked connection management
type mockTransport struct {
	mock.Mock
	publisher  *recordingPublisher
	subscriber *fakeSubscriber
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		publisher:  newRecordingPublisher(),
		subscriber: &fakeSubscriber{},
	}
}

func (m *mockTransport) Publisher() messaging.TransportPublisher   { return m.publisher }
func (m *mockTransport) Subscriber() messaging.TransportSubscriber { return m.subscriber }

func (m *mockTransport) Connect(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockTransport) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *mockTransport) IsConnected() bool {
	args := m.Called()
	return args.Bool(0)
}

// recordingMetrics captures collector calls
type recordingMetrics struct {
	mu              sync.Mutex
	calls           []string
	outcomes        map[string][]Outcome
	events          map[string]int
	handlerFailures map[string]int
	dropped         map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		outcomes:        make(map[string][]Outcome),
		events:          make(map[string]int),
		handlerFailures: make(map[string]int),
		dropped:         make(map[string]int),
	}
}

func (r *recordingMetrics) RecordCall(command string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, command)
}

func (r *recordingMetrics) RecordCompletion(command string, outcome Outcome, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[command] = append(r.outcomes[command], outcome)
}

func (r *recordingMetrics) RecordEvent(event string, handlers int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[event] += handlers
}

func (r *recordingMetrics) RecordHandlerFailure(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlerFailures[event]++
}

func (r *recordingMetrics) RecordDropped(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped[reason]++
}

func (r *recordingMetrics) outcomesFor(command string) []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Outcome(nil), r.outcomes[command]...)
}

func (r *recordingMetrics) droppedFor(reason string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped[reason]
}

func (r *recordingMetrics) handlerFailuresFor(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handlerFailures[event]
}

// sequentialIDs yields req-1, req-2, ...
func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("req-%d", n.Add(1))
	}
}

func responseJSON(t *testing.T, id string, result interface{}) string {
	t.Helper()
	resp, err := contracts.NewResponse(id, result)
	require.NoError(t, err)
	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	return string(raw)
}

func awaitCall(t *testing.T, call *Call) (json.RawMessage, error) {
	t.Helper()
	select {
	case <-call.Done():
		return call.Result()
	case <-time.After(2 * time.Second):
		t.Fatalf("call %s did not complete", call.ID)
		return nil, nil
	}
}
