package eventbus

import (
	"sync"
	"testing"
	"time"
)

func TestSubscribeEmitOrdered(t *testing.T) {
	b := New()
	var mu sync.Mutex
	var got []int

	unsub := b.Subscribe(TopicConfigChanged, func(payload interface{}) {
		mu.Lock()
		got = append(got, payload.(int))
		mu.Unlock()
	})
	defer unsub()

	for i := 0; i < 5; i++ {
		b.Emit(TopicConfigChanged, i)
	}

	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n == 5 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for events, got %d/5", n)
		}
		time.Sleep(time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		if v != i {
			t.Fatalf("expected order-preserving delivery, got %v", got)
		}
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	var mu sync.Mutex
	count := 0

	unsub := b.Subscribe(TopicToolRegistryChanged, func(payload interface{}) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	b.Emit(TopicToolRegistryChanged, "a")
	time.Sleep(10 * time.Millisecond)
	unsub()
	b.Emit(TopicToolRegistryChanged, "b")
	time.Sleep(10 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Fatalf("expected exactly 1 delivery before unsubscribe, got %d", count)
	}
}

func TestSlowSubscriberDropsOldestNotBlockEmit(t *testing.T) {
	b := New()
	block := make(chan struct{})
	started := make(chan struct{}, 1)

	b.Subscribe(TopicWSMessageReceived, func(payload interface{}) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
	})

	<-time.After(5 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberQueueCapacity+10; i++ {
			b.Emit(TopicWSMessageReceived, i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked on a slow subscriber")
	}
	close(block)
}
