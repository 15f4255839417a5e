package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callcenter-gateway/internal/infrastructure/events"
	"callcenter-gateway/internal/infrastructure/hub"
	"callcenter-gateway/internal/infrastructure/logger"
	"callcenter-gateway/internal/infrastructure/metrics"
)

func newTestGateway(t *testing.T) (*Gateway, *captureLogger) {
	t.Helper()
	log := newCaptureLogger()
	gw := New(
		WithLogger(log),
		WithMetrics(metrics.MustNewMetrics(prometheus.NewRegistry())),
	)
	require.NoError(t, gw.Start())
	t.Cleanup(func() { gw.Stop(context.Background()) })
	return gw, log
}

func recordEvents(gw *Gateway) *[]events.Event {
	var got []events.Event
	for _, name := range events.Names {
		gw.Subscribe(name, func(e events.Event) error {
			got = append(got, e)
			return nil
		})
	}
	return &got
}

func TestGateway_StartStop(t *testing.T) {
	gw := New()

	require.NoError(t, gw.Start())
	assert.True(t, gw.IsRunning())
	assert.Error(t, gw.Start())

	conn := newMockConnection("ws-1")
	require.NoError(t, gw.OnOpen(conn))

	require.NoError(t, gw.Stop(context.Background()))
	assert.False(t, gw.IsRunning())
	assert.True(t, conn.IsClosed())
	assert.Equal(t, 0, gw.ConnectionCount())

	// Stopping twice is harmless.
	assert.NoError(t, gw.Stop(context.Background()))
}

func TestGateway_OpenRefusedWhenStopped(t *testing.T) {
	gw := New()
	assert.ErrorIs(t, gw.OnOpen(newMockConnection("ws-early")), ErrNotRunning)

	require.NoError(t, gw.Start())
	require.NoError(t, gw.Stop(context.Background()))

	assert.ErrorIs(t, gw.OnOpen(newMockConnection("ws-late")), ErrNotRunning)
	assert.Equal(t, 0, gw.ConnectionCount())
}

func TestGateway_DoneFollowsLifecycle(t *testing.T) {
	gw := New()
	select {
	case <-gw.Done():
	default:
		t.Fatal("Done should be closed before Start")
	}

	require.NoError(t, gw.Start())
	done := gw.Done()
	select {
	case <-done:
		t.Fatal("Done closed while running")
	default:
	}

	require.NoError(t, gw.Stop(context.Background()))
	select {
	case <-done:
	default:
		t.Fatal("Done not closed after Stop")
	}
}

func TestGateway_OpenCloseMembership(t *testing.T) {
	gw, _ := newTestGateway(t)

	conns := make([]*mockConnection, 5)
	for i := range conns {
		conns[i] = newMockConnection(fmt.Sprintf("ws-%d", i))
		gw.OnOpen(conns[i])
	}
	assert.Equal(t, 5, gw.ConnectionCount())

	gw.OnClose(conns[2])
	assert.Equal(t, 4, gw.ConnectionCount())
	for i, conn := range conns {
		_, present := gw.registry.Get(conn.ID())
		assert.Equal(t, i != 2, present, "connection %s", conn.ID())
	}
}

func TestGateway_OpenDoesNotEmitHello(t *testing.T) {
	gw, _ := newTestGateway(t)
	got := recordEvents(gw)

	gw.OnOpen(newMockConnection("ws-1"))

	assert.Empty(t, *got)
}

func TestGateway_HelloEmitsEvent(t *testing.T) {
	gw, _ := newTestGateway(t)
	got := recordEvents(gw)
	conn := newMockConnection("ws-1")
	gw.OnOpen(conn)

	gw.OnMessage(conn, "HELLO")

	require.Len(t, *got, 1)
	e := (*got)[0]
	assert.Equal(t, events.EventHello, e.Name())
	assert.Equal(t, events.Payload{events.KeyConnection: conn}, e.Payload())
}

func TestGateway_AgentCommandsEmitEvents(t *testing.T) {
	tests := []struct {
		msg       string
		wantEvent string
		wantAgent string
	}{
		{"PAUSE:42", events.EventPause, "42"},
		{"AVAIL:7", events.EventAvail, "7"},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			gw, _ := newTestGateway(t)
			got := recordEvents(gw)
			conn := newMockConnection("ws-1")
			gw.OnOpen(conn)

			gw.OnMessage(conn, tt.msg)

			require.Len(t, *got, 1)
			e := (*got)[0]
			assert.Equal(t, tt.wantEvent, e.Name())
			assert.Equal(t, events.Payload{
				events.KeyConnection: conn,
				events.KeyAgentID:    tt.wantAgent,
			}, e.Payload())
		})
	}
}

func TestGateway_MalformedCommands(t *testing.T) {
	for _, msg := range []string{"FOO:bar", "PAUSE", "AVAIL", ""} {
		t.Run(msg, func(t *testing.T) {
			gw, log := newTestGateway(t)
			got := recordEvents(gw)
			conn := newMockConnection("ws-1")
			gw.OnOpen(conn)

			assert.NotPanics(t, func() { gw.OnMessage(conn, msg) })

			assert.Empty(t, *got)
			require.Equal(t, 1, log.errorCount())
			assert.True(t, strings.HasPrefix(log.lastError(), "Malformed msg: "), log.lastError())
			assert.False(t, conn.IsClosed())
			assert.Equal(t, 1, gw.ConnectionCount())
		})
	}
}

func TestGateway_MessageAfterCloseIsDropped(t *testing.T) {
	gw, _ := newTestGateway(t)
	got := recordEvents(gw)
	conn := newMockConnection("ws-1")
	gw.OnOpen(conn)
	gw.OnClose(conn)

	gw.OnMessage(conn, "HELLO")

	assert.Empty(t, *got)
}

func TestGateway_ErrorClosesOnlyThatConnection(t *testing.T) {
	gw, _ := newTestGateway(t)
	failing := newMockConnection("ws-failing")
	healthy := newMockConnection("ws-healthy")
	gw.OnOpen(failing)
	gw.OnOpen(healthy)

	gw.OnError(failing, errors.New("connection reset by peer"))

	assert.True(t, failing.IsClosed())
	assert.False(t, healthy.IsClosed())
	// Membership ends with the close callback, not the error.
	assert.Equal(t, 2, gw.ConnectionCount())

	gw.OnClose(failing)
	assert.Equal(t, 1, gw.ConnectionCount())
}

func TestGateway_CloseAbsentIsNoop(t *testing.T) {
	gw, log := newTestGateway(t)
	member := newMockConnection("ws-1")
	gw.OnOpen(member)

	gw.OnClose(newMockConnection("ws-unknown"))

	assert.Equal(t, 1, gw.ConnectionCount())
	assert.Equal(t, 0, log.errorCount())
}

func TestGateway_SendToAll(t *testing.T) {
	gw, log := newTestGateway(t)
	a := newMockConnection("ws-a")
	b := newMockConnection("ws-b")
	gone := newMockConnection("ws-gone")
	broken := newMockConnection("ws-broken")
	broken.sendErr = hub.ErrSendBufferFull

	for _, conn := range []*mockConnection{a, broken, gone, b} {
		gw.OnOpen(conn)
	}
	gw.OnClose(gone)

	result := gw.SendToAll("X")

	assert.Equal(t, BroadcastResult{Delivered: 2, Failed: 1}, result)
	assert.Equal(t, []string{"X"}, a.sent())
	assert.Equal(t, []string{"X"}, b.sent())
	assert.Empty(t, gone.sent())
	assert.Equal(t, 1, log.errorCount())
}

func TestGateway_SubscriberMayBroadcast(t *testing.T) {
	gw, _ := newTestGateway(t)
	a := newMockConnection("ws-a")
	b := newMockConnection("ws-b")
	gw.OnOpen(a)
	gw.OnOpen(b)

	gw.Subscribe(events.EventPause, func(e events.Event) error {
		agentID, _ := e.AgentID()
		gw.SendToAll("paused:" + agentID)
		return nil
	})

	gw.OnMessage(a, "PAUSE:42")

	assert.Equal(t, []string{"paused:42"}, a.sent())
	assert.Equal(t, []string{"paused:42"}, b.sent())
}

func TestGateway_ConcurrentCallbacks(t *testing.T) {
	gw, _ := newTestGateway(t)

	var mu sync.Mutex
	pauses := 0
	gw.Subscribe(events.EventPause, func(events.Event) error {
		mu.Lock()
		pauses++
		mu.Unlock()
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := newMockConnection(fmt.Sprintf("ws-%d", i))
			gw.OnOpen(conn)
			gw.OnMessage(conn, fmt.Sprintf("PAUSE:%d", i))
			gw.SendToAll("tick")
			gw.OnClose(conn)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 32, pauses)
	assert.Equal(t, 0, gw.ConnectionCount())
}

// Mock implementations for testing

type mockConnection struct {
	id      string
	ctx     context.Context
	cancel  context.CancelFunc
	sendErr error

	mu       sync.Mutex
	closed   bool
	received []string
}

func newMockConnection(id string) *mockConnection {
	ctx, cancel := context.WithCancel(context.Background())
	return &mockConnection{id: id, ctx: ctx, cancel: cancel}
}

func (m *mockConnection) ID() string { return m.id }
func (m *mockConnection) Send(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	if m.closed {
		return hub.ErrConnectionClosed
	}
	m.received = append(m.received, text)
	return nil
}
func (m *mockConnection) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cancel()
	return nil
}
func (m *mockConnection) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
func (m *mockConnection) Context() context.Context { return m.ctx }
func (m *mockConnection) sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.received...)
}

// captureLogger counts error lines across all derived loggers.
type captureLogger struct {
	mu     *sync.Mutex
	errors *[]string
}

func newCaptureLogger() *captureLogger {
	return &captureLogger{mu: &sync.Mutex{}, errors: new([]string)}
}

func (c *captureLogger) errorCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(*c.errors)
}

func (c *captureLogger) lastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(*c.errors) == 0 {
		return ""
	}
	return (*c.errors)[len(*c.errors)-1]
}

func (c *captureLogger) record(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	*c.errors = append(*c.errors, msg)
}

func (c *captureLogger) Debug(msg string)                              {}
func (c *captureLogger) Debugf(format string, args ...any)             {}
func (c *captureLogger) Info(msg string)                               {}
func (c *captureLogger) Infof(format string, args ...any)              {}
func (c *captureLogger) Warn(msg string)                               {}
func (c *captureLogger) Warnf(format string, args ...any)              {}
func (c *captureLogger) Error(msg string)                              { c.record(msg) }
func (c *captureLogger) Errorf(format string, args ...any)             { c.record(fmt.Sprintf(format, args...)) }
func (c *captureLogger) Fatal(msg string)                              {}
func (c *captureLogger) Fatalf(format string, args ...any)             {}
func (c *captureLogger) WithField(key string, value any) logger.Logger { return c }
func (c *captureLogger) WithFields(fields logger.Fields) logger.Logger { return c }
func (c *captureLogger) WithContext(ctx context.Context) logger.Logger { return c }
func (c *captureLogger) SetLevel(level logger.Level)                   {}
func (c *captureLogger) SetOutput(output io.Writer)                    {}
