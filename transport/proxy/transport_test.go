package proxy

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proxy-transport/transport/proxy/domain"
	"proxy-transport/transport/proxy/infra"
	"proxy-transport/transport/proxy/proxyfn"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(1_700_000_000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// mockRPC responde com o status/headers configurados e conta as chamadas.
type mockRPC struct {
	mu      sync.Mutex
	status  int
	headers domain.Header
	calls   int32
	last    domain.DispatchRequest
}

func (m *mockRPC) respond(status int, headers domain.Header) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status, m.headers = status, headers
}

func (m *mockRPC) Invoke(_ context.Context, req domain.DispatchRequest) (domain.DispatchResponse, error) {
	atomic.AddInt32(&m.calls, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = req
	return domain.DispatchResponse{StatusCode: m.status, Headers: m.headers}, nil
}

func (m *mockRPC) Calls() int { return int(atomic.LoadInt32(&m.calls)) }

func (m *mockRPC) Last() domain.DispatchRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

func event(n int) domain.OutboundRequest {
	return domain.OutboundRequest{
		URL:  "https://o1.ingest.example/api/1/envelope/?sentry_key=abc",
		Body: make([]byte, n),
	}
}

func TestTransport_SuccessReleasesSlot(t *testing.T) {
	rpc := &mockRPC{status: http.StatusOK}
	tr, err := New(Options{Invoker: rpc})
	require.NoError(t, err)

	res := <-tr.Send(context.Background(), event(10))
	require.NoError(t, res.Err)
	assert.True(t, res.Outcome.Success())
	assert.Equal(t, 0, tr.InFlight())
	assert.Equal(t, DefaultCapacity, tr.Capacity())
	assert.Equal(t, 1, rpc.Calls())

	last := rpc.Last()
	assert.Equal(t, domain.MethodPost, last.Method)
	assert.Len(t, last.Body, 10)
	assert.NotContains(t, last.Headers, infra.HeaderContentEncoding)
}

func TestTransport_RateLimitLocksUntilRetryAfter(t *testing.T) {
	clock := newFakeClock()
	rpc := &mockRPC{status: http.StatusTooManyRequests, headers: domain.Header{"retry-after": {"1"}}}
	tr, err := New(Options{Invoker: rpc, Clock: clock.Now})
	require.NoError(t, err)

	out, err := tr.Do(context.Background(), event(10))
	var remote *domain.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.True(t, remote.RateLimited)
	assert.Equal(t, domain.OutcomeRateLimited, out.Kind)
	assert.Equal(t, time.Second, out.RetryAfter)

	rpc.respond(http.StatusOK, nil)

	clock.Advance(500 * time.Millisecond)
	_, err = tr.Do(context.Background(), event(10))
	assert.ErrorIs(t, err, domain.ErrLocked)
	assert.Equal(t, 1, rpc.Calls(), "locked send must not invoke the channel")

	clock.Advance(600 * time.Millisecond)
	out, err = tr.Do(context.Background(), event(10))
	require.NoError(t, err)
	assert.True(t, out.Success())
	assert.Equal(t, 2, rpc.Calls())
}

func TestTransport_GateWindowFromRetryAfter(t *testing.T) {
	clock := newFakeClock()
	rpc := &mockRPC{status: http.StatusTooManyRequests, headers: domain.Header{"retry-after": {"5"}}}
	tr, err := New(Options{Invoker: rpc, Clock: clock.Now})
	require.NoError(t, err)

	_, _ = tr.Do(context.Background(), event(10))
	assert.True(t, tr.IsLocked())
	assert.Equal(t, 5*time.Second, tr.CooldownRemaining())

	rpc.respond(http.StatusOK, nil)
	clock.Advance(4999 * time.Millisecond)
	_, err = tr.Do(context.Background(), event(10))
	assert.ErrorIs(t, err, domain.ErrLocked)
	assert.Equal(t, 1, rpc.Calls())

	clock.Advance(time.Millisecond)
	_, err = tr.Do(context.Background(), event(10))
	assert.NoError(t, err)
	assert.Equal(t, 2, rpc.Calls())
}

// blockingRPC segura todas as invocações até release ser fechado.
type blockingRPC struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingRPC) Invoke(ctx context.Context, _ domain.DispatchRequest) (domain.DispatchResponse, error) {
	b.started <- struct{}{}
	select {
	case <-b.release:
		return domain.DispatchResponse{StatusCode: http.StatusOK}, nil
	case <-ctx.Done():
		return domain.DispatchResponse{}, ctx.Err()
	}
}

func TestTransport_CapacityPlusOneYieldsOneBufferFull(t *testing.T) {
	const capacity = 3
	rpc := &blockingRPC{started: make(chan struct{}, capacity+1), release: make(chan struct{})}
	tr, err := New(Options{Invoker: rpc, Capacity: capacity})
	require.NoError(t, err)

	results := make([]<-chan Result, 0, capacity+1)
	for i := 0; i < capacity+1; i++ {
		results = append(results, tr.Send(context.Background(), event(10)))
	}

	bufferFull := 0
	for _, ch := range results {
		select {
		case res := <-ch:
			if errors.Is(res.Err, domain.ErrBufferFull) {
				bufferFull++
			}
		default:
		}
	}
	assert.Equal(t, 1, bufferFull)
	assert.Equal(t, capacity, tr.InFlight())

	close(rpc.release)
	require.NoError(t, tr.Flush(context.Background()))
	assert.Equal(t, 0, tr.InFlight())

	succeeded := 0
	for _, ch := range results[:capacity] {
		if res, ok := <-ch; ok && res.Err == nil {
			succeeded++
		}
	}
	assert.Equal(t, capacity, succeeded)
}

func TestTransport_FlushHonoursContext(t *testing.T) {
	rpc := &blockingRPC{started: make(chan struct{}, 1), release: make(chan struct{})}
	tr, err := New(Options{Invoker: rpc, Capacity: 1})
	require.NoError(t, err)

	ch := tr.Send(context.Background(), event(10))
	<-rpc.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, tr.Flush(ctx), context.DeadlineExceeded)

	close(rpc.release)
	res := <-ch
	assert.NoError(t, res.Err)
	assert.NoError(t, tr.Flush(context.Background()))
}

func TestTransport_AcquireTimeoutWaitsForSlot(t *testing.T) {
	rpc := &blockingRPC{started: make(chan struct{}, 2), release: make(chan struct{})}
	tr, err := New(Options{Invoker: rpc, Capacity: 1, AcquireTimeout: time.Second})
	require.NoError(t, err)

	first := tr.Send(context.Background(), event(10))
	<-rpc.started

	go func() {
		time.Sleep(10 * time.Millisecond)
		close(rpc.release)
	}()

	// espera a vaga do primeiro em vez de falhar com BufferFull
	second := tr.Send(context.Background(), event(10))
	assert.NoError(t, (<-first).Err)
	assert.NoError(t, (<-second).Err)
}

func TestTransport_CompressesLargeBodies(t *testing.T) {
	rpc := &mockRPC{status: http.StatusOK}
	tr, err := New(Options{Invoker: rpc})
	require.NoError(t, err)

	_, err = tr.Do(context.Background(), event(40000))
	require.NoError(t, err)
	last := rpc.Last()
	assert.Equal(t, "gzip", last.Headers[infra.HeaderContentEncoding])
	assert.Less(t, len(last.Body), 40000)

	_, err = tr.Do(context.Background(), event(100))
	require.NoError(t, err)
	last = rpc.Last()
	assert.NotContains(t, last.Headers, infra.HeaderContentEncoding)
	assert.Len(t, last.Body, 100)
}

func TestTransport_CompressionNone(t *testing.T) {
	rpc := &mockRPC{status: http.StatusOK}
	tr, err := New(Options{Invoker: rpc, Compression: CompressionNone})
	require.NoError(t, err)

	_, err = tr.Do(context.Background(), event(40000))
	require.NoError(t, err)
	assert.Len(t, rpc.Last().Body, 40000)
}

func TestTransport_URLPolicyAndHeaders(t *testing.T) {
	rpc := &mockRPC{status: http.StatusOK}
	tr, err := New(Options{
		Invoker:   rpc,
		URLPolicy: StripQuery,
		Headers:   map[string]string{"X-Sentry-Auth": "Sentry sentry_key=abc"},
		Timeout:   2 * time.Second,
	})
	require.NoError(t, err)

	_, err = tr.Do(context.Background(), event(10))
	require.NoError(t, err)

	last := rpc.Last()
	assert.Equal(t, "https://o1.ingest.example/api/1/envelope/", last.URL)
	assert.Equal(t, "Sentry sentry_key=abc", last.Headers["x-sentry-auth"])
	assert.Equal(t, 2*time.Second, last.Timeout)
}

func TestTransport_ThrottleDeniesWithoutInvoking(t *testing.T) {
	clock := newFakeClock()
	rpc := &mockRPC{status: http.StatusOK}
	tr, err := New(Options{Invoker: rpc, RateRPS: 0.25, RateBurst: 1, ThrottleRetryAfter: 3 * time.Second, Clock: clock.Now})
	require.NoError(t, err)

	rps, burst, ok := tr.ThrottleRate()
	assert.True(t, ok)
	assert.Equal(t, 0.25, rps)
	assert.Equal(t, 1, burst)

	_, err = tr.Do(context.Background(), event(10))
	require.NoError(t, err)

	_, err = tr.Do(context.Background(), event(10))
	var throttled *domain.ThrottledError
	require.ErrorAs(t, err, &throttled)
	assert.Equal(t, 4*time.Second, throttled.RetryAfter)
	assert.Equal(t, 1, rpc.Calls())

	// espera calculada abaixo do piso configurado
	clock.Advance(2 * time.Second)
	_, err = tr.Do(context.Background(), event(10))
	require.ErrorAs(t, err, &throttled)
	assert.Equal(t, 3*time.Second, throttled.RetryAfter)

	clock.Advance(2 * time.Second)
	_, err = tr.Do(context.Background(), event(10))
	require.NoError(t, err)
	assert.Equal(t, 2, rpc.Calls())

	usage := tr.ThrottleUsage()
	require.Len(t, usage, 1)
	assert.Equal(t, domain.Key("o1.ingest.example"), usage[0].Host)
	assert.Equal(t, int64(2), usage[0].Allowed)
	assert.Equal(t, int64(2), usage[0].Denied)
}

func TestTransport_StatsAndHook(t *testing.T) {
	rpc := &mockRPC{status: http.StatusServiceUnavailable, headers: domain.Header{"x-sentry-error": {"boom"}}}
	stats := infra.NewMemoryStatsStore()

	var crumbs int32
	tr, err := New(Options{
		Invoker: rpc,
		Stats:   stats,
		Hook:    func(domain.Breadcrumb) { atomic.AddInt32(&crumbs, 1) },
	})
	require.NoError(t, err)

	out, err := tr.Do(context.Background(), event(10))
	var remote *domain.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, http.StatusServiceUnavailable, remote.StatusCode)
	assert.Equal(t, "boom", remote.Detail)
	assert.Contains(t, out.Message, "503")
	assert.Contains(t, out.Message, "boom")

	assert.Equal(t, int32(1), atomic.LoadInt32(&crumbs))
	require.NoError(t, tr.Flush(context.Background()))
	assert.Equal(t, int64(1), stats.Total()[domain.ResultError])
}

// stuckStats segura cada Record até release fechar ou ctx encerrar.
type stuckStats struct {
	release chan struct{}
	calls   int32
}

func (s *stuckStats) Record(ctx context.Context, _ domain.StatsEvent) error {
	atomic.AddInt32(&s.calls, 1)
	select {
	case <-s.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestTransport_SlowStatsDoesNotHoldSlot(t *testing.T) {
	rpc := &mockRPC{status: http.StatusOK}
	stats := &stuckStats{release: make(chan struct{})}
	tr, err := New(Options{Invoker: rpc, Capacity: 1, Stats: stats})
	require.NoError(t, err)

	_, err = tr.Do(context.Background(), event(10))
	require.NoError(t, err)
	assert.Equal(t, 0, tr.InFlight())

	_, err = tr.Do(context.Background(), event(10))
	assert.NotErrorIs(t, err, domain.ErrBufferFull)
	require.NoError(t, err)
	assert.Equal(t, 2, rpc.Calls())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, tr.Flush(ctx), context.DeadlineExceeded)

	close(stats.release)
	require.NoError(t, tr.Flush(context.Background()))
	assert.Equal(t, int32(2), atomic.LoadInt32(&stats.calls))
}

func TestTransport_StatsTimeoutAndDrop(t *testing.T) {
	rpc := &mockRPC{status: http.StatusOK}
	stats := &stuckStats{release: make(chan struct{})}
	tr, err := New(Options{
		Invoker:         rpc,
		Stats:           stats,
		StatsTimeout:    200 * time.Millisecond,
		StatsMaxPending: 1,
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := tr.Do(context.Background(), event(10))
		require.NoError(t, err)
	}
	assert.Equal(t, int64(2), tr.StatsDropped())

	// a gravação presa é cortada pelo timeout
	require.NoError(t, tr.Flush(context.Background()))
	assert.Equal(t, int32(1), atomic.LoadInt32(&stats.calls))
}

func TestNew_Validates(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)

	_, err = New(Options{Invoker: &mockRPC{}, Capacity: -1})
	assert.Error(t, err)

	_, err = New(Options{Invoker: &mockRPC{}, Compression: "br"})
	assert.Error(t, err)
}

func TestTransport_EndToEndThroughProxyFunction(t *testing.T) {
	var hits int32
	ingest := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&hits, 1)
		if n == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ingest.Close()

	h, err := proxyfn.NewRPCHandler(&proxyfn.Function{})
	require.NoError(t, err)
	fnSrv := httptest.NewServer(h)
	defer fnSrv.Close()

	clock := newFakeClock()
	tr, err := New(Options{
		Invoker: infra.NewJSONRPCInvoker(fnSrv.URL, "relay"),
		Clock:   clock.Now,
	})
	require.NoError(t, err)

	req := domain.OutboundRequest{URL: ingest.URL + "/api/1/envelope/", Body: []byte("0123456789")}

	out, err := tr.Do(context.Background(), req)
	var remote *domain.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.True(t, remote.RateLimited)
	assert.Equal(t, domain.OutcomeRateLimited, out.Kind)

	clock.Advance(500 * time.Millisecond)
	_, err = tr.Do(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrLocked)

	clock.Advance(600 * time.Millisecond)
	out, err = tr.Do(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, out.StatusCode)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
	assert.Equal(t, 0, tr.InFlight())
}
