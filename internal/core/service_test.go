package core

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/csvreorder/csvreorder/internal/audit"
	"github.com/csvreorder/csvreorder/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Upload: config.UploadConfig{
			MaxFileSize:   1 << 20,
			MaxConcurrent: 2,
			MaxWaitTime:   100 * time.Millisecond,
		},
		Session: config.SessionConfig{
			IdleTimeout: time.Minute,
			MaxSessions: 10,
		},
	}
}

type serviceHarness struct {
	svc   *Service
	rec   *audit.Memory
	spans *tracetest.SpanRecorder
	now   time.Time
}

func newHarness(t *testing.T, cfg *config.Config) *serviceHarness {
	t.Helper()
	h := &serviceHarness{
		rec:   &audit.Memory{},
		spans: tracetest.NewSpanRecorder(),
		now:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(h.spans))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	h.svc = NewService(cfg, h.rec,
		WithTracerProvider(tp),
		WithClock(func() time.Time { return h.now }),
	)
	return h
}

func (h *serviceHarness) open(t *testing.T) string {
	t.Helper()
	sess, err := h.svc.Open(context.Background())
	require.NoError(t, err)
	return sess.ID()
}

func TestService_FullFlow(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := ContextWithClient(context.Background(), "203.0.113.9", "test-agent")
	id := h.open(t)

	snap, err := h.svc.Load(ctx, id, "people.csv", strings.NewReader("Name,Age\nAl,30\nBo,25\n"))
	require.NoError(t, err)
	assert.Equal(t, StateLoaded, snap.State)
	assert.Equal(t, []string{"Name", "Age"}, snap.Order)

	snap, err = h.svc.Reorder(ctx, id, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"Age", "Name"}, snap.Order)

	exp, err := h.svc.Export(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Age,Name\n30,Al\n25,Bo\n", string(exp.Data))

	got, err := h.svc.Download(ctx, id, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, exp.Data, got.Data)

	assert.Equal(t, []audit.Action{
		audit.ActionLoad, audit.ActionReorder, audit.ActionExport, audit.ActionDownload,
	}, h.rec.Actions())

	events := h.rec.Events()
	assert.Equal(t, "203.0.113.9", events[0].IPAddress)
	assert.Equal(t, "test-agent", events[0].UserAgent)
	assert.Equal(t, []string{"Name", "Age"}, events[0].Columns)
	assert.Equal(t, exp.ID, events[2].HandleID)
	assert.Equal(t, h.now, events[2].CreatedAt)

	var names []string
	for _, s := range h.spans.Ended() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"csvreorder.load", "csvreorder.reorder", "csvreorder.export"}, names)
}

func TestService_LoadFailureIsAudited(t *testing.T) {
	h := newHarness(t, testConfig())
	id := h.open(t)

	snap, err := h.svc.Load(context.Background(), id, "empty.csv", strings.NewReader(""))
	require.ErrorIs(t, err, ErrEmptyOrHeaderlessFile)
	assert.Equal(t, StateEmpty, snap.State)
	require.NotNil(t, snap.Error)

	events := h.rec.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.ActionLoadFailed, events[0].Action)
	assert.Equal(t, "FILE005", events[0].ErrorCode)

	ended := h.spans.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "FILE005", ended[0].Status().Description)
}

func TestService_LoadTooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.Upload.MaxFileSize = 16
	h := newHarness(t, cfg)
	id := h.open(t)

	_, err := h.svc.Load(context.Background(), id, "big.csv",
		strings.NewReader("A,B\n"+strings.Repeat("1,2\n", 100)))
	require.ErrorIs(t, err, ErrFileTooLarge)
	assert.Equal(t, "FILE001", MapError(err).Code)

	snap, err := h.svc.Snapshot(id)
	require.NoError(t, err)
	assert.Equal(t, StateEmpty, snap.State)
}

func TestService_CancelledLoadLeavesSessionUntouched(t *testing.T) {
	h := newHarness(t, testConfig())
	id := h.open(t)

	_, err := h.svc.Load(context.Background(), id, "a.csv", strings.NewReader("A,B\n1,2\n"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	snap, err := h.svc.Load(ctx, id, "b.csv", strings.NewReader("X\n1\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, StateLoaded, snap.State)
	assert.Equal(t, "a.csv", snap.Filename)
}

// blockingReader holds a parse open until released.
type blockingReader struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
	r       io.Reader
}

func (b *blockingReader) Read(p []byte) (int, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return b.r.Read(p)
}

func TestService_ParseLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Upload.MaxConcurrent = 1
	cfg.Upload.MaxWaitTime = 30 * time.Millisecond
	h := newHarness(t, cfg)
	first, second := h.open(t), h.open(t)

	br := &blockingReader{
		started: make(chan struct{}),
		release: make(chan struct{}),
		r:       strings.NewReader("A\n1\n"),
	}
	done := make(chan error, 1)
	go func() {
		_, err := h.svc.Load(context.Background(), first, "a.csv", br)
		done <- err
	}()
	<-br.started

	// The first session's parse is in flight, but its state is not yet visible.
	snap, err := h.svc.Snapshot(first)
	require.NoError(t, err)
	assert.Equal(t, StateEmpty, snap.State)

	_, err = h.svc.Load(context.Background(), second, "b.csv", strings.NewReader("B\n2\n"))
	require.ErrorIs(t, err, ErrTooManyParses)

	close(br.release)
	require.NoError(t, <-done)
	require.NoError(t, h.svc.WaitForParses(context.Background()))

	snap, err = h.svc.Snapshot(first)
	require.NoError(t, err)
	assert.Equal(t, StateLoaded, snap.State)
}

func TestService_UnknownSession(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()

	_, err := h.svc.Load(ctx, "nope", "a.csv", strings.NewReader("A\n1\n"))
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = h.svc.Reorder(ctx, "nope", 0, 0)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = h.svc.Export(ctx, "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = h.svc.Download(ctx, "nope", "h")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, h.svc.End(ctx, "nope"), ErrSessionNotFound)
}

func TestService_MaxSessions(t *testing.T) {
	cfg := testConfig()
	cfg.Session.MaxSessions = 2
	h := newHarness(t, cfg)

	h.open(t)
	id := h.open(t)
	_, err := h.svc.Open(context.Background())
	require.ErrorIs(t, err, ErrTooManySessions)

	require.NoError(t, h.svc.End(context.Background(), id))
	h.open(t)
}

func TestService_EndRevokesHandle(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	id := h.open(t)

	_, err := h.svc.Load(ctx, id, "a.csv", strings.NewReader("A\n1\n"))
	require.NoError(t, err)
	exp, err := h.svc.Export(ctx, id)
	require.NoError(t, err)

	sess, err := h.svc.Session(id)
	require.NoError(t, err)
	require.NoError(t, h.svc.End(ctx, id))

	_, err = sess.Download(exp.ID)
	assert.ErrorIs(t, err, ErrHandleRevoked)
	assert.Equal(t, 0, h.svc.SessionCount())
	assert.Contains(t, h.rec.Actions(), audit.ActionSessionEnd)
}

func TestService_EvictIdle(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()

	stale := h.open(t)
	_, err := h.svc.Load(ctx, stale, "a.csv", strings.NewReader("A\n1\n"))
	require.NoError(t, err)
	exp, err := h.svc.Export(ctx, stale)
	require.NoError(t, err)
	staleSess, err := h.svc.Session(stale)
	require.NoError(t, err)

	h.now = h.now.Add(45 * time.Second)
	fresh := h.open(t)

	h.now = h.now.Add(30 * time.Second)
	assert.Equal(t, 1, h.svc.EvictIdle(ctx))

	_, err = h.svc.Session(stale)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = h.svc.Session(fresh)
	assert.NoError(t, err)

	_, err = staleSess.Download(exp.ID)
	assert.ErrorIs(t, err, ErrHandleRevoked)
	assert.Contains(t, h.rec.Actions(), audit.ActionEvicted)
}

func TestService_StartJanitorStops(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.svc.StartJanitor(ctx, 5*time.Millisecond)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}

func TestService_Shutdown(t *testing.T) {
	h := newHarness(t, testConfig())
	h.open(t)
	h.open(t)

	h.svc.Shutdown(context.Background())
	assert.Equal(t, 0, h.svc.SessionCount())
}

type failingRecorder struct{}

func (failingRecorder) Record(context.Context, audit.Event) error {
	return errors.New("connection refused")
}
func (failingRecorder) Close() {}

func TestService_AuditFailureDoesNotFailAction(t *testing.T) {
	svc := NewService(testConfig(), failingRecorder{})
	sess, err := svc.Open(context.Background())
	require.NoError(t, err)

	_, err = svc.Load(context.Background(), sess.ID(), "a.csv", strings.NewReader("A\n1\n"))
	assert.NoError(t, err)
}
