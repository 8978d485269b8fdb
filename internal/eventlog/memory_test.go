package eventlog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vitaex/internal/event"
	id "vitaex/pkg/domain"
)

func publish(t *testing.T, log *Memory, topic string, subject id.SubjectID, seq int) {
	t.Helper()
	ev, err := event.New(topic, "test", subject, id.NewCorrelationID(), map[string]int{"seq": seq})
	require.NoError(t, err)
	require.NoError(t, log.Publish(context.Background(), ev))
}

func TestMemory_PerSubjectOrdering(t *testing.T) {
	log := NewMemory(nil)
	defer log.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	seen := make(map[id.SubjectID][]int)
	done := make(chan struct{})

	go func() {
		_ = log.Subscribe(ctx, "g1", []string{"t"}, func(_ context.Context, ev event.Event) error {
			var payload struct {
				Seq int `json:"seq"`
			}
			if err := ev.DecodePayload(&payload); err != nil {
				return err
			}
			mu.Lock()
			seen[ev.SubjectID] = append(seen[ev.SubjectID], payload.Seq)
			total := len(seen["a"]) + len(seen["b"])
			mu.Unlock()
			if total == 20 {
				close(done)
			}
			return nil
		})
	}()
	// Let the subscription register before publishing.
	time.Sleep(10 * time.Millisecond)

	for i := 0; i < 10; i++ {
		publish(t, log, "t", "a", i)
		publish(t, log, "t", "b", i)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for deliveries")
	}

	mu.Lock()
	defer mu.Unlock()
	// Within one subject the publish order is preserved even though the two
	// subjects are delivered concurrently.
	for _, subject := range []id.SubjectID{"a", "b"} {
		require.Len(t, seen[subject], 10)
		for i, seq := range seen[subject] {
			assert.Equal(t, i, seq, "subject %s out of order", subject)
		}
	}
}

func TestMemory_RedeliversOnHandlerError(t *testing.T) {
	log := NewMemory(nil)
	defer log.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	attempts := 0
	done := make(chan struct{})

	go func() {
		_ = log.Subscribe(ctx, "g1", []string{"t"}, func(context.Context, event.Event) error {
			mu.Lock()
			defer mu.Unlock()
			attempts++
			if attempts < 3 {
				return assert.AnError
			}
			close(done)
			return nil
		})
	}()
	time.Sleep(10 * time.Millisecond)

	publish(t, log, "t", "a", 1)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for redelivery")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, attempts)
}

func TestMemory_TopicIsolation(t *testing.T) {
	log := NewMemory(nil)
	defer log.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	delivered := make(chan string, 4)
	go func() {
		_ = log.Subscribe(ctx, "g1", []string{"wanted"}, func(_ context.Context, ev event.Event) error {
			delivered <- ev.Topic
			return nil
		})
	}()
	time.Sleep(10 * time.Millisecond)

	publish(t, log, "other", "a", 1)
	publish(t, log, "wanted", "a", 2)

	select {
	case topic := <-delivered:
		assert.Equal(t, "wanted", topic)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
	select {
	case topic := <-delivered:
		t.Fatalf("unexpected extra delivery on %s", topic)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemory_FanOutToMultipleGroups(t *testing.T) {
	log := NewMemory(nil)
	defer log.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	groupA := make(chan struct{}, 1)
	groupB := make(chan struct{}, 1)
	go func() {
		_ = log.Subscribe(ctx, "a", []string{"t"}, func(context.Context, event.Event) error {
			groupA <- struct{}{}
			return nil
		})
	}()
	go func() {
		_ = log.Subscribe(ctx, "b", []string{"t"}, func(context.Context, event.Event) error {
			groupB <- struct{}{}
			return nil
		})
	}()
	time.Sleep(10 * time.Millisecond)

	publish(t, log, "t", "a", 1)

	for name, ch := range map[string]chan struct{}{"a": groupA, "b": groupB} {
		select {
		case <-ch:
		case <-time.After(5 * time.Second):
			t.Fatalf("group %s never saw the event", name)
		}
	}
}
