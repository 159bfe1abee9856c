package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pendingEntry struct {
	consumer string
	idle     time.Duration
	retries  int64
}

// fakeStream 内存中的单流单组，模拟 PEL 语义
type fakeStream struct {
	mu       sync.Mutex
	messages map[string]redis.XMessage
	pending  map[string]*pendingEntry
	order    []string
	acked    []string
	dlq      []*redis.XAddArgs
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		messages: make(map[string]redis.XMessage),
		pending:  make(map[string]*pendingEntry),
	}
}

// deliver 放入一条已投递给 consumer 的消息
func (f *fakeStream) deliver(t *testing.T, id, consumer string, idle time.Duration, retries int64, msg *Message) redis.XMessage {
	t.Helper()
	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	f.mu.Lock()
	defer f.mu.Unlock()
	xmsg := redis.XMessage{ID: id, Values: map[string]any{"data": string(raw)}}
	f.messages[id] = xmsg
	f.pending[id] = &pendingEntry{consumer: consumer, idle: idle, retries: retries}
	f.order = append(f.order, id)
	return xmsg
}

func (f *fakeStream) isPending(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.pending[id]
	return ok
}

func (f *fakeStream) XGroupCreateMkStream(ctx context.Context, _, _, _ string) *redis.StatusCmd {
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeStream) XReadGroup(ctx context.Context, _ *redis.XReadGroupArgs) *redis.XStreamSliceCmd {
	select {
	case <-ctx.Done():
	case <-time.After(10 * time.Millisecond):
	}
	return redis.NewXStreamSliceCmdResult(nil, redis.Nil)
}

func (f *fakeStream) XAck(_ context.Context, _, _ string, ids ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		delete(f.pending, id)
		f.acked = append(f.acked, id)
	}
	return redis.NewIntResult(int64(len(ids)), nil)
}

func (f *fakeStream) XPendingExt(ctx context.Context, a *redis.XPendingExtArgs) *redis.XPendingExtCmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []redis.XPendingExt
	for _, id := range f.order {
		p, ok := f.pending[id]
		if !ok {
			continue
		}
		if a.Start != "-" && id != a.Start {
			continue
		}
		if a.Consumer != "" && p.consumer != a.Consumer {
			continue
		}
		out = append(out, redis.XPendingExt{ID: id, Consumer: p.consumer, Idle: p.idle, RetryCount: p.retries})
	}
	cmd := redis.NewXPendingExtCmd(ctx)
	cmd.SetVal(out)
	return cmd
}

func (f *fakeStream) XClaim(_ context.Context, a *redis.XClaimArgs) *redis.XMessageSliceCmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []redis.XMessage
	for _, id := range a.Messages {
		p, ok := f.pending[id]
		if !ok || p.idle < a.MinIdle {
			continue
		}
		p.consumer = a.Consumer
		p.idle = 0
		p.retries++
		out = append(out, f.messages[id])
	}
	return redis.NewXMessageSliceCmdResult(out, nil)
}

func (f *fakeStream) XAdd(_ context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dlq = append(f.dlq, a)
	return redis.NewStringResult("0-1", nil)
}

const testStream Stream = "stream:test"

func newTestConsumer(client streamClient, handler MessageHandler) *Consumer {
	c := NewConsumer(client, ConsumerConfig{
		Stream:       testStream,
		Group:        "g",
		ConsumerName: "me",
		RetryLimit:   3,
		Backoff:      BackoffConfig{Initial: time.Second, Max: 4 * time.Second, Multiplier: 2},
	})
	c.RegisterHandler(MessageTypeStepJob, handler)
	return c
}

func stepMessage(t *testing.T, id string) *Message {
	t.Helper()
	msg, err := NewMessage(id, MessageTypeStepJob, "g-1", "u-1", StepJobMessage{GenerationID: "g-1", JobID: "j-" + id})
	require.NoError(t, err)
	return msg
}

type countingHandler struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (h *countingHandler) handle(context.Context, *Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	return h.err
}

func (h *countingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

func TestConsumer_FailureBelowLimitStaysPending(t *testing.T) {
	fs := newFakeStream()
	h := &countingHandler{err: errors.New("provider down")}
	c := newTestConsumer(fs, h.handle)

	xmsg := fs.deliver(t, "1-0", "me", 0, 1, stepMessage(t, "m1"))
	c.processMessage(context.Background(), xmsg)

	assert.Equal(t, 1, h.count())
	assert.True(t, fs.isPending("1-0"))
	assert.Empty(t, fs.acked)
	assert.Empty(t, fs.dlq)
}

func TestConsumer_FailureAtLimitMovesToDLQ(t *testing.T) {
	fs := newFakeStream()
	h := &countingHandler{err: errors.New("provider down")}
	c := newTestConsumer(fs, h.handle)

	xmsg := fs.deliver(t, "1-0", "me", 0, 3, stepMessage(t, "m1"))
	c.processMessage(context.Background(), xmsg)

	assert.False(t, fs.isPending("1-0"))
	assert.Equal(t, []string{"1-0"}, fs.acked)
	require.Len(t, fs.dlq, 1)
	assert.Equal(t, testStream.DLQStream(), fs.dlq[0].Stream)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(fs.dlq[0].Values.(map[string]any)["data"].(string)), &entry))
	assert.Equal(t, string(testStream), entry["original_stream"])
	assert.Equal(t, "provider down", entry["error"])
}

func TestConsumer_MalformedMessageIsAcked(t *testing.T) {
	fs := newFakeStream()
	h := &countingHandler{}
	c := newTestConsumer(fs, h.handle)

	c.processMessage(context.Background(), redis.XMessage{ID: "9-0", Values: map[string]any{"data": "{broken"}})

	assert.Zero(t, h.count())
	assert.Equal(t, []string{"9-0"}, fs.acked)
}

func TestConsumer_ProcessDuePendingRespectsBackoff(t *testing.T) {
	fs := newFakeStream()
	h := &countingHandler{}
	c := newTestConsumer(fs, h.handle)

	// 投递 1 次后退避 2s
	fs.deliver(t, "1-0", "me", 3*time.Second, 1, stepMessage(t, "due"))
	fs.deliver(t, "2-0", "me", 500*time.Millisecond, 1, stepMessage(t, "early"))
	fs.deliver(t, "3-0", "other", time.Hour, 1, stepMessage(t, "foreign"))

	c.processDuePending(context.Background())

	assert.Equal(t, 1, h.count())
	assert.False(t, fs.isPending("1-0"))
	assert.True(t, fs.isPending("2-0"))
	assert.True(t, fs.isPending("3-0"))
}

func TestConsumer_ProcessDuePendingDeadLettersExhausted(t *testing.T) {
	fs := newFakeStream()
	h := &countingHandler{}
	c := newTestConsumer(fs, h.handle)

	fs.deliver(t, "1-0", "me", 0, 3, stepMessage(t, "spent"))
	c.processDuePending(context.Background())

	assert.Zero(t, h.count())
	assert.False(t, fs.isPending("1-0"))
	require.Len(t, fs.dlq, 1)
	assert.Equal(t, testStream.DLQStream(), fs.dlq[0].Stream)
}

func TestConsumer_ReclaimStaleTakesOverIdleMessages(t *testing.T) {
	fs := newFakeStream()
	h := &countingHandler{}
	c := newTestConsumer(fs, h.handle)

	fs.deliver(t, "1-0", "crashed", 10*time.Minute, 1, stepMessage(t, "stale"))
	fs.deliver(t, "2-0", "busy", time.Second, 1, stepMessage(t, "fresh"))
	fs.deliver(t, "3-0", "me", time.Hour, 1, stepMessage(t, "mine"))
	fs.deliver(t, "4-0", "crashed", 10*time.Minute, 3, stepMessage(t, "spent"))

	c.reclaimStale(context.Background())

	assert.Equal(t, 1, h.count())
	assert.False(t, fs.isPending("1-0"))
	assert.True(t, fs.isPending("2-0"))
	assert.True(t, fs.isPending("3-0"))
	assert.False(t, fs.isPending("4-0"))
	require.Len(t, fs.dlq, 1)
}

func TestConsumer_StartStop(t *testing.T) {
	fs := newFakeStream()
	c := newTestConsumer(fs, (&countingHandler{}).handle)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Start(ctx))
	assert.Error(t, c.Start(ctx))
	c.Stop()
}
