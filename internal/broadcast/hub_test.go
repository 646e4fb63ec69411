package broadcast

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type inbox struct {
	mu   sync.Mutex
	msgs []Message
}

func (i *inbox) Receive(msg Message) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.msgs = append(i.msgs, msg)
}

func (i *inbox) len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.msgs)
}

func (i *inbox) all() []Message {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]Message, len(i.msgs))
	copy(out, i.msgs)
	return out
}

func TestHubPublishSkipsOrigin(t *testing.T) {
	hub := NewHub(8, zaptest.NewLogger(t))
	defer hub.Close()

	gm, ada, bo := &inbox{}, &inbox{}, &inbox{}
	require.NoError(t, hub.Subscribe("gm", gm))
	require.NoError(t, hub.Subscribe("ada", ada))
	require.NoError(t, hub.Subscribe("bo", bo))
	assert.Equal(t, 3, hub.Len())

	delivered := hub.Publish(context.Background(), NewValueSync("s1", "gm", "allies", 4))
	assert.Equal(t, 2, delivered)

	require.Eventually(t, func() bool {
		return ada.len() == 1 && bo.len() == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, gm.len())
	assert.Equal(t, 4, ada.all()[0].Value)
}

func TestHubPreservesOrderPerSubscriber(t *testing.T) {
	hub := NewHub(32, zaptest.NewLogger(t))
	defer hub.Close()

	rx := &inbox{}
	require.NoError(t, hub.Subscribe("ada", rx))

	for v := 0; v < 10; v++ {
		hub.Publish(context.Background(), NewValueSync("s1", "gm", "adversaries", v))
	}
	require.Eventually(t, func() bool { return rx.len() == 10 }, time.Second, 5*time.Millisecond)
	for i, msg := range rx.all() {
		assert.Equal(t, i, msg.Value)
	}
}

func TestHubDropsWhenInboxFull(t *testing.T) {
	hub := NewHub(1, zaptest.NewLogger(t))
	defer hub.Close()

	release := make(chan struct{})
	var received int
	var mu sync.Mutex
	require.NoError(t, hub.Subscribe("slow", ReceiverFunc(func(Message) {
		<-release
		mu.Lock()
		received++
		mu.Unlock()
	})))

	// The first message is picked up by the receiver goroutine and blocks;
	// the second fills the inbox; later ones are dropped.
	hub.Publish(context.Background(), NewValueSync("s1", "gm", "allies", 1))
	require.Eventually(t, func() bool {
		return hub.Publish(context.Background(), NewValueSync("s1", "gm", "allies", 2)) == 1
	}, time.Second, time.Millisecond)

	start := time.Now()
	assert.Equal(t, 0, hub.Publish(context.Background(), NewValueSync("s1", "gm", "allies", 3)))
	assert.Less(t, time.Since(start), 100*time.Millisecond, "publish must not block")

	close(release)
	hub.Unsubscribe("slow")
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, received)
}

func TestHubSubscribeErrors(t *testing.T) {
	hub := NewHub(0, nil)

	require.NoError(t, hub.Subscribe("ada", &inbox{}))
	assert.ErrorIs(t, hub.Subscribe("ada", &inbox{}), ErrAlreadySubscribed)
	assert.Error(t, hub.Subscribe("bo", nil))

	hub.Close()
	assert.ErrorIs(t, hub.Subscribe("bo", &inbox{}), ErrHubClosed)
	assert.Equal(t, 0, hub.Len())
	assert.Equal(t, 0, hub.Publish(context.Background(), NewValueSync("s1", "gm", "allies", 1)))

	hub.Close()
}

func TestHubUnsubscribeDrainsQueue(t *testing.T) {
	hub := NewHub(8, zaptest.NewLogger(t))
	defer hub.Close()

	rx := &inbox{}
	require.NoError(t, hub.Subscribe("ada", rx))
	for v := 0; v < 5; v++ {
		hub.Publish(context.Background(), NewValueSync("s1", "gm", "allies", v))
	}
	hub.Unsubscribe("ada")
	assert.Equal(t, 5, rx.len())
	assert.Equal(t, 0, hub.Len())

	hub.Publish(context.Background(), NewValueSync("s1", "gm", "allies", 9))
	assert.Equal(t, 5, rx.len())

	hub.Unsubscribe("ada")
}

func TestSpendNotificationMessage(t *testing.T) {
	at := time.Now()
	msg := NewSpendNotification("s1", "gm", Notification{
		ID:         "n1",
		ActorLabel: "Adversary",
		Kind:       "adversaries",
		Cost:       2,
		ActionName: "Flee from harm",
		At:         at,
	})
	assert.Equal(t, MessageSpendNotification, msg.Type)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "adversaries", msg.Kind)
	require.NotNil(t, msg.Notification)
	assert.Equal(t, "Flee from harm", msg.Notification.ActionName)
}
