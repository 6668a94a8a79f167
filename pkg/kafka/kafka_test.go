package kafka

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Shopify/sarama"
	"github.com/Shopify/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaidashi/service-desk-api/pkg/logger"
	"github.com/vaidashi/service-desk-api/pkg/retry"
)

func TestProducerSendMessage(t *testing.T) {
	mock := mocks.NewSyncProducer(t, NewProducerConfig())
	mock.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != `{"event_type":"service_order_created"}` {
			return errors.New("unexpected payload " + string(val))
		}
		return nil
	})
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewProducerWith(mock, logger.NewNop())
	t.Cleanup(func() { _ = p.Close() })

	ctx := context.Background()
	require.NoError(t, p.SendMessage(ctx, "service-orders", "so-1", []byte(`{"event_type":"service_order_created"}`)))

	err := p.SendMessage(ctx, "service-orders", "so-1", []byte(`{}`))
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
}

func TestProducerRespectsCanceledContext(t *testing.T) {
	mock := mocks.NewSyncProducer(t, NewProducerConfig())
	p := NewProducerWith(mock, logger.NewNop())
	t.Cleanup(func() { _ = p.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, p.SendMessage(ctx, "service-orders", "", nil), context.Canceled)
}

type recordingHandler struct {
	seen []string
	// failures fails the first n calls; -1 fails every call
	failures int
}

func (h *recordingHandler) HandleMessage(_ context.Context, msg *sarama.ConsumerMessage) error {
	h.seen = append(h.seen, string(msg.Key))
	if h.failures != 0 {
		if h.failures > 0 {
			h.failures--
		}
		return errors.New("boom")
	}
	return nil
}

func newTestConsumer() *Consumer {
	c := NewConsumerWith(nil, logger.NewNop())
	c.SetRetryPolicy(3, &retry.ConstantBackoff{Interval: time.Millisecond})
	return c
}

func TestDispatch(t *testing.T) {
	ok := &recordingHandler{}
	flaky := &recordingHandler{failures: 1}

	c := newTestConsumer()
	c.Handle("service-orders", ok)
	c.Handle("flaky", flaky)
	assert.Equal(t, []string{"flaky", "service-orders"}, c.Topics())

	ctx := context.Background()
	assert.True(t, c.dispatch(ctx, &sarama.ConsumerMessage{Topic: "service-orders", Key: []byte("so-1")}))
	assert.True(t, c.dispatch(ctx, &sarama.ConsumerMessage{Topic: "flaky", Key: []byte("so-2")}))
	assert.True(t, c.dispatch(ctx, &sarama.ConsumerMessage{Topic: "unknown"}), "unrouted messages are committed")

	assert.Equal(t, []string{"so-1"}, ok.seen)
	assert.Equal(t, []string{"so-2", "so-2"}, flaky.seen, "a failed handler is retried before moving on")
}

func TestDispatchDropsAfterAttemptsRunOut(t *testing.T) {
	broken := &recordingHandler{failures: -1}
	c := newTestConsumer()
	c.Handle("service-orders", broken)

	assert.True(t, c.dispatch(context.Background(), &sarama.ConsumerMessage{Topic: "service-orders", Key: []byte("so-3")}))
	assert.Len(t, broken.seen, 3)
}

func TestDispatchLeavesMessageUncommittedWhenSessionEnds(t *testing.T) {
	broken := &recordingHandler{failures: -1}
	c := newTestConsumer()
	c.Handle("service-orders", broken)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.False(t, c.dispatch(ctx, &sarama.ConsumerMessage{Topic: "service-orders", Key: []byte("so-4")}))
}

// fakeSession records marked offsets
type fakeSession struct {
	sarama.ConsumerGroupSession
	ctx    context.Context
	marked []int64
}

func (s *fakeSession) Context() context.Context { return s.ctx }

func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.marked = append(s.marked, msg.Offset)
}

type fakeClaim struct {
	sarama.ConsumerGroupClaim
	messages chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

func TestConsumeClaimNeverCommitsPastAFailedMessage(t *testing.T) {
	handler := &recordingHandler{failures: 4}
	c := newTestConsumer()
	c.Handle("service-orders", handler)

	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 3)}
	for offset := range int64(3) {
		claim.messages <- &sarama.ConsumerMessage{Topic: "service-orders", Offset: offset, Key: []byte("so-5")}
	}
	close(claim.messages)

	session := &fakeSession{ctx: context.Background()}
	require.NoError(t, c.ConsumeClaim(session, claim))

	// offset 0 is dropped after three failures, offset 1 succeeds on its
	// second attempt and offset 2 on its first; marks stay in order
	assert.Equal(t, []int64{0, 1, 2}, session.marked)
	assert.Len(t, handler.seen, 6)
}

func TestConsumeClaimStopsWithoutMarkingWhenSessionEnds(t *testing.T) {
	c := newTestConsumer()
	c.Handle("service-orders", &recordingHandler{failures: -1})

	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 2)}
	claim.messages <- &sarama.ConsumerMessage{Topic: "service-orders", Offset: 7}
	claim.messages <- &sarama.ConsumerMessage{Topic: "service-orders", Offset: 8}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	session := &fakeSession{ctx: ctx}

	require.NoError(t, c.ConsumeClaim(session, claim))
	assert.Empty(t, session.marked)
}

// fakeGroup blocks in Consume until the context ends
type fakeGroup struct {
	sarama.ConsumerGroup
	errs     chan error
	sessions atomic.Int32
	closed   atomic.Bool
}

func newFakeGroup() *fakeGroup {
	return &fakeGroup{errs: make(chan error, 1)}
}

func (g *fakeGroup) Consume(ctx context.Context, topics []string, _ sarama.ConsumerGroupHandler) error {
	if g.sessions.Add(1) == 1 {
		// first session ends as if by a rebalance
		return errors.New("rebalance")
	}
	<-ctx.Done()
	return nil
}

func (g *fakeGroup) Errors() <-chan error { return g.errs }

func (g *fakeGroup) Close() error {
	if g.closed.CompareAndSwap(false, true) {
		close(g.errs)
	}
	return nil
}

func TestConsumerRunRejoinsUntilCanceled(t *testing.T) {
	group := newFakeGroup()
	c := NewConsumerWith(group, logger.NewNop())
	c.Handle("service-orders", &recordingHandler{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	group.errs <- errors.New("broker hiccup")
	require.Eventually(t, func() bool { return group.sessions.Load() >= 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
	assert.True(t, group.closed.Load())
}

func TestConsumerRunWithoutHandlers(t *testing.T) {
	c := NewConsumerWith(newFakeGroup(), logger.NewNop())
	assert.Error(t, c.Run(context.Background()))
}
