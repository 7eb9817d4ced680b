package channel

import (
	"testing"

	"github.com/sat20-labs/walletd/pkg/protocol"
)

func TestGroupFanOut(t *testing.T) {
	g := NewGroup()
	a := g.Subscribe()
	b := g.Subscribe()

	g.Publish(testEnvelope(protocol.ActionNetworkChanged))

	for _, ch := range []chan protocol.Envelope{a, b} {
		select {
		case env := <-ch:
			if env.Action != protocol.ActionNetworkChanged {
				t.Fatalf("action = %s", env.Action)
			}
		default:
			t.Fatal("subscriber missed the envelope")
		}
	}
}

func TestGroupUnsubscribe(t *testing.T) {
	g := NewGroup()
	a := g.Subscribe()
	g.Unsubscribe(a)

	if _, open := <-a; open {
		t.Fatal("unsubscribed channel not closed")
	}

	// Publishing after unsubscribe must not panic.
	g.Publish(testEnvelope(protocol.ActionNetworkChanged))
}

func TestGroupDropsSlowSubscriber(t *testing.T) {
	g := NewGroup()
	slow := g.Subscribe()

	// Fill the buffer and one more; the overflow is dropped silently.
	for i := 0; i < 70; i++ {
		g.Publish(testEnvelope(protocol.ActionAccountsChanged))
	}
	if len(slow) != 64 {
		t.Fatalf("buffered = %d, want 64", len(slow))
	}
	g.Close()
}
