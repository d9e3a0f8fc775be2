package consumer

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/jsa498/digitalmarketing/internal/logger"
	"github.com/jsa498/digitalmarketing/internal/model"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chanReader serves messages from a channel and blocks when it is empty.
type chanReader struct {
	msgs   chan kafka.Message
	closed bool
}

func (r *chanReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	case m := <-r.msgs:
		return m, nil
	}
}

func (r *chanReader) Close() error {
	r.closed = true
	return nil
}

type recordingHandler struct {
	mu     sync.Mutex
	events []model.CheckoutEvent
}

func (h *recordingHandler) CompleteCheckout(ev model.CheckoutEvent) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
	return true
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

func message(t *testing.T, v interface{}) kafka.Message {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return kafka.Message{Value: data}
}

func TestCheckoutConsumer_HandlesEvents(t *testing.T) {
	reader := &chanReader{msgs: make(chan kafka.Message, 4)}
	handler := &recordingHandler{}
	c := NewCheckoutConsumer(reader, handler, logger.Discard())

	reader.msgs <- message(t, model.CheckoutEvent{UserID: "u1", SessionID: "cs_1"})
	reader.msgs <- kafka.Message{Value: []byte("not json")}
	reader.msgs <- message(t, model.CheckoutEvent{})
	reader.msgs <- message(t, model.CheckoutEvent{SessionID: "cs_2"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return handler.count() == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	handler.mu.Lock()
	assert.Equal(t, "u1", handler.events[0].UserID)
	assert.Equal(t, "cs_2", handler.events[1].SessionID)
	handler.mu.Unlock()

	require.NoError(t, c.Close())
	assert.True(t, reader.closed)
}

// topicLog is an in-memory topic. Readers in the same group share one offset,
// readers in different groups each see every message.
type topicLog struct {
	mu      sync.Mutex
	msgs    []kafka.Message
	offsets map[string]int
}

func newTopicLog() *topicLog {
	return &topicLog{offsets: make(map[string]int)}
}

func (l *topicLog) publish(m kafka.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, m)
}

func (l *topicLog) reader(groupID string) *groupReader {
	return &groupReader{log: l, group: groupID}
}

type groupReader struct {
	log   *topicLog
	group string
}

func (r *groupReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	for {
		r.log.mu.Lock()
		if off := r.log.offsets[r.group]; off < len(r.log.msgs) {
			r.log.offsets[r.group] = off + 1
			m := r.log.msgs[off]
			r.log.mu.Unlock()
			return m, nil
		}
		r.log.mu.Unlock()

		select {
		case <-ctx.Done():
			return kafka.Message{}, ctx.Err()
		case <-time.After(2 * time.Millisecond):
		}
	}
}

func (r *groupReader) Close() error { return nil }

// userHandler clears only for its own user.
type userHandler struct {
	userID string

	mu      sync.Mutex
	cleared int
}

func (h *userHandler) CompleteCheckout(ev model.CheckoutEvent) bool {
	if ev.UserID != h.userID {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cleared++
	return true
}

func (h *userHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cleared
}

func TestCheckoutConsumer_EveryAgentSeesEveryEvent(t *testing.T) {
	topic := newTopicLog()
	alice := &userHandler{userID: "u1"}
	bob := &userHandler{userID: "u2"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	for session, h := range map[string]*userHandler{"session-a": alice, "session-b": bob} {
		c := NewCheckoutConsumer(topic.reader(AgentGroupID("cart-agent", session)), h, logger.Discard())
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Run(ctx)
		}()
	}

	topic.publish(message(t, model.CheckoutEvent{UserID: "u1", SessionID: "cs_1"}))
	topic.publish(message(t, model.CheckoutEvent{UserID: "u2", SessionID: "cs_2"}))
	topic.publish(message(t, model.CheckoutEvent{UserID: "u1", SessionID: "cs_3"}))

	require.Eventually(t, func() bool { return alice.count() == 2 && bob.count() == 1 }, time.Second, 5*time.Millisecond)

	topic.mu.Lock()
	assert.Equal(t, 3, topic.offsets[AgentGroupID("cart-agent", "session-a")])
	assert.Equal(t, 3, topic.offsets[AgentGroupID("cart-agent", "session-b")])
	topic.mu.Unlock()

	cancel()
	wg.Wait()
}

func TestAgentGroupID(t *testing.T) {
	assert.Equal(t, "cart-agent-s1", AgentGroupID("cart-agent", "s1"))
	assert.NotEqual(t, AgentGroupID("cart-agent", "s1"), AgentGroupID("cart-agent", "s2"))
	assert.Equal(t, "cart-agent", AgentGroupID("cart-agent", ""))
}
