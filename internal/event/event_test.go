package event_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/keiko/internal/event"
)

func TestBus_PublishSubscribe(t *testing.T) {
	type subscriber struct {
		name        string
		subscribeTo []string
	}

	tests := map[string]struct {
		published   []event.Event
		subscribers []subscriber
		want        map[string][]event.Event
	}{
		"a subscriber only receives the events it subscribed to": {
			published:   []event.Event{named("quiz.completed"), named("notice.raised")},
			subscribers: []subscriber{{name: "analytics", subscribeTo: []string{"quiz.completed"}}},
			want: map[string][]event.Event{
				"analytics": {named("quiz.completed")},
			},
		},

		"an event is dispatched to every subscriber": {
			published: []event.Event{named("notice.raised")},
			subscribers: []subscriber{
				{name: "pubsub", subscribeTo: []string{"notice.raised"}},
				{name: "audit", subscribeTo: []string{"notice.raised"}},
			},
			want: map[string][]event.Event{
				"pubsub": {named("notice.raised")},
				"audit":  {named("notice.raised")},
			},
		},

		"repeated events are all delivered": {
			published: []event.Event{named("notice.raised"), named("quiz.completed"), named("notice.raised")},
			subscribers: []subscriber{
				{name: "pubsub", subscribeTo: []string{"notice.raised"}},
				{name: "all", subscribeTo: []string{"notice.raised", "quiz.completed"}},
			},
			want: map[string][]event.Event{
				"pubsub": {named("notice.raised"), named("notice.raised")},
				"all":    {named("notice.raised"), named("notice.raised"), named("quiz.completed")},
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var mu sync.Mutex
			received := make(map[string][]event.Event)

			b := event.NewBus()
			for _, s := range tt.subscribers {
				for _, e := range s.subscribeTo {
					b.Subscribe(e, func(ctx context.Context, e event.Event) error {
						mu.Lock()
						received[s.name] = append(received[s.name], e)
						mu.Unlock()
						return nil
					})
				}
			}

			for _, e := range tt.published {
				b.Publish(context.Background(), e)
			}
			b.Stop()

			for s, want := range tt.want {
				assert.ElementsMatch(t, want, received[s], "subscriber %s", s)
			}
		})
	}
}

func TestBus_SlowSubscriberDoesNotBlockOthers(t *testing.T) {
	b := event.NewBus(event.WithPoolSize(1))

	release := make(chan struct{})
	b.Subscribe("notice.raised", func(ctx context.Context, e event.Event) error {
		<-release
		return nil
	})

	fast := make(chan struct{}, 2)
	b.Subscribe("notice.raised", func(ctx context.Context, e event.Event) error {
		fast <- struct{}{}
		return nil
	})

	b.Publish(context.Background(), named("notice.raised"))

	select {
	case <-fast:
	case <-time.After(time.Second):
		t.Fatal("fast subscriber should receive the event while the slow one is busy")
	}

	close(release)
	b.Stop()
}

func TestBus_HandlerPanicIsRecovered(t *testing.T) {
	b := event.NewBus()

	var calls atomic.Int32
	b.Subscribe("quiz.completed", func(ctx context.Context, e event.Event) error {
		calls.Add(1)
		panic("boom")
	})

	b.Publish(context.Background(), named("quiz.completed"))
	b.Publish(context.Background(), named("quiz.completed"))
	b.Stop()

	require.EqualValues(t, 2, calls.Load())
}

type named string

func (e named) Name() string {
	return string(e)
}
