package eventbus

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type runFinished struct {
	id string
}

type otherEvent struct{}

func newBufferedLogger(level logrus.Level) (*logrus.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	log := logrus.New()
	log.SetOutput(buf)
	log.SetLevel(level)
	return log, buf
}

func TestMatchSignature(t *testing.T) {
	require.True(t, MatchSignature(func(e *runFinished) {}, []any{&runFinished{}}))
	require.False(t, MatchSignature(func(e *runFinished) {}, []any{&otherEvent{}}))
	require.False(t, MatchSignature(func(e *runFinished) {}, []any{}))
	require.False(t, MatchSignature(func(e *runFinished) {}, []any{&runFinished{}, &runFinished{}}))
	require.True(t, MatchSignature(func(ctx context.Context) {}, []any{context.Background()}))
	require.True(t, MatchSignature(func(e *runFinished) {}, []any{nil}))
	require.False(t, MatchSignature("not a func", []any{}))
}

func TestPublish_DeliversToMatchingHandlers(t *testing.T) {
	log, _ := newBufferedLogger(logrus.WarnLevel)
	bus := NewEventPublisher(log)

	var got []string
	bus.Subscribe(func(e *runFinished) { got = append(got, e.id) })
	bus.Subscribe(func(e *otherEvent) { t.Error("should not be called") })

	bus.Publish(&runFinished{id: "r1"})
	require.Equal(t, []string{"r1"}, got)
	require.Equal(t, 2, bus.SubscribersCount())
}

func TestPublish_WarnsWithoutSubscribers(t *testing.T) {
	log, buf := newBufferedLogger(logrus.WarnLevel)
	bus := NewEventPublisher(log)
	bus.Subscribe(func(e *otherEvent) {})

	bus.Publish(&runFinished{})
	require.Contains(t, buf.String(), "eventbus.Publish: no matching subscribers")
}

func TestPublish_RecoversPanics(t *testing.T) {
	log, buf := newBufferedLogger(logrus.WarnLevel)
	bus := NewEventPublisher(log)

	calls := 0
	bus.Subscribe(func(e *runFinished) { calls++ })
	bus.Subscribe(func(e *runFinished) { panic("boom") })
	bus.Subscribe(func(e *runFinished) { calls++ })

	require.NotPanics(t, func() { bus.Publish(&runFinished{id: "x"}) })
	require.Equal(t, 2, calls)
	require.Contains(t, buf.String(), "panicked")
	require.Contains(t, buf.String(), "boom")
	require.NotContains(t, buf.String(), "no matching subscribers")
}

func TestPublish_AllHandlersPanicCountsAsUndelivered(t *testing.T) {
	log, buf := newBufferedLogger(logrus.WarnLevel)
	bus := NewEventPublisher(log)
	bus.Subscribe(func(e *runFinished) { panic("always") })

	bus.Publish(&runFinished{})
	require.Contains(t, buf.String(), "no matching subscribers")
}

func TestPublishE(t *testing.T) {
	errSink := errors.New("sink unavailable")

	t.Run("no subscribers", func(t *testing.T) {
		bus := NewEventPublisher(nil)
		require.ErrorIs(t, bus.PublishE(&runFinished{}), ErrNoSubscribers)
	})

	t.Run("joins handler errors and panics", func(t *testing.T) {
		bus := NewEventPublisher(nil)
		bus.Subscribe(func(e *runFinished) error { return nil })
		bus.Subscribe(func(e *runFinished) error { return errSink })
		bus.Subscribe(func(e *runFinished) error { panic("bad") })

		err := bus.PublishE(&runFinished{})
		require.ErrorIs(t, err, errSink)
		require.ErrorContains(t, err, "panicked")
	})

	t.Run("rejects non-error returns", func(t *testing.T) {
		bus := NewEventPublisher(nil)
		bus.Subscribe(func(e *runFinished) int { return 1 })
		require.ErrorIs(t, bus.PublishE(&runFinished{}), ErrInvalidHandlerReturn)
	})
}

func TestUnsubscribeAndClear(t *testing.T) {
	bus := NewEventPublisher(nil)
	h1 := func(e *runFinished) {}
	h2 := func(e *otherEvent) {}
	bus.Subscribe(h1)
	bus.Subscribe(h2)

	bus.Unsubscribe(h1)
	require.Equal(t, 1, bus.SubscribersCount())

	bus.Clear()
	require.Equal(t, 0, bus.SubscribersCount())
}
