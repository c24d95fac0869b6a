package realtime

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func drain(c *Client) []PresenceEvent {
	var events []PresenceEvent
	for {
		select {
		case payload := <-c.send:
			var ev PresenceEvent
			if err := json.Unmarshal(payload, &ev); err == nil {
				events = append(events, ev)
			}
		default:
			return events
		}
	}
}

func TestRegisterUnregisterChurn(t *testing.T) {
	hub := NewHub(zap.NewNop())

	c1 := NewClient("u1", "student", nil)
	hub.Register(c1)
	require.True(t, hub.Online("u1"))
	require.Len(t, hub.ConnectionsFor("u1"), 1)

	hub.Unregister(c1)
	require.False(t, hub.Online("u1"), "entry is removed the instant the set empties")
	require.Empty(t, hub.ConnectionsFor("u1"))
}

func TestSecondConnectionKeepsUserOnline(t *testing.T) {
	hub := NewHub(zap.NewNop())

	c1 := NewClient("u1", "student", nil)
	c2 := NewClient("u1", "student", nil)
	hub.Register(c1)
	hub.Register(c2)
	require.Len(t, hub.ConnectionsFor("u1"), 2)

	hub.Unregister(c1)
	require.True(t, hub.Online("u1"))
	require.Len(t, hub.ConnectionsFor("u1"), 1)
}

func TestRegisterIsIdempotent(t *testing.T) {
	hub := NewHub(zap.NewNop())

	c1 := NewClient("u1", "student", nil)
	hub.Register(c1)
	hub.Register(c1)
	require.Len(t, hub.ConnectionsFor("u1"), 1)
}

func TestUnregisterUnknownClientIsNoOp(t *testing.T) {
	hub := NewHub(zap.NewNop())

	stray := NewClient("u1", "student", nil)
	hub.Unregister(stray) // connection dropped before any register was seen
	require.False(t, hub.Online("u1"))
}

func TestExactlyOneOfflineTransition(t *testing.T) {
	hub := NewHub(zap.NewNop())

	observer := NewClient("watcher", "lecturer", nil)
	hub.Register(observer)

	c1 := NewClient("u1", "student", nil)
	c2 := NewClient("u1", "student", nil)
	hub.Register(c1)
	hub.Register(c2)
	drain(observer)

	hub.Unregister(c1)
	hub.Unregister(c2)

	var offline int
	for _, ev := range drain(observer) {
		if ev.Status == PresenceOffline {
			offline++
			require.Equal(t, "u1", ev.UserID)
			require.Equal(t, EventUserOffline, ev.Event)
		}
	}
	require.Equal(t, 1, offline, "closing both connections emits exactly one offline")
}

func TestPresenceOnlineBroadcast(t *testing.T) {
	hub := NewHub(zap.NewNop())

	observer := NewClient("watcher", "lecturer", nil)
	hub.Register(observer)

	subject := NewClient("u1", "student", nil)
	hub.Register(subject)

	events := drain(observer)
	require.NotEmpty(t, events)
	require.Equal(t, EventUserOnline, events[0].Event)
	require.Equal(t, "u1", events[0].UserID)
	require.Equal(t, "student", events[0].Role)

	// The subject's own connection never sees its own presence event.
	require.Empty(t, drain(subject))
}

func TestConnectionsForRoleTracksLatestRole(t *testing.T) {
	hub := NewHub(zap.NewNop())

	c1 := NewClient("u1", "lecturer", nil)
	hub.Register(c1)
	require.Len(t, hub.ConnectionsForRole("lecturer"), 1)
	require.Empty(t, hub.ConnectionsForRole("hod"))

	// A later registration with a new role moves every connection of the
	// user; latest write wins.
	c2 := NewClient("u1", "hod", nil)
	hub.Register(c2)
	require.Len(t, hub.ConnectionsForRole("hod"), 2)
	require.Empty(t, hub.ConnectionsForRole("lecturer"))
}

func TestEnqueueOnStaleSnapshotAfterUnregister(t *testing.T) {
	hub := NewHub(zap.NewNop())

	c := NewClient("u1", "student", nil)
	hub.Register(c)

	// Fan-out takes a snapshot, the connection churns away underneath it.
	snapshot := hub.ConnectionsFor("u1")
	require.Len(t, snapshot, 1)
	hub.Unregister(c)

	require.False(t, snapshot[0].Enqueue([]byte(`{"event":"x"}`)),
		"a handle whose client closed refuses instead of panicking")
}

func TestEnqueueDuringConcurrentChurn(t *testing.T) {
	hub := NewHub(zap.NewNop())
	payload := []byte(`{"event":"x"}`)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		c := NewClient("u1", "student", nil)
		hub.Register(c)
		snapshot := hub.ConnectionsFor("u1")

		wg.Add(2)
		go func(c *Client) {
			defer wg.Done()
			hub.Unregister(c)
		}(c)
		go func(conns []*Client) {
			defer wg.Done()
			for _, conn := range conns {
				conn.Enqueue(payload)
			}
		}(snapshot)
	}
	wg.Wait()
}

func TestEnqueueFullBufferDropsPayload(t *testing.T) {
	c := NewClient("u1", "student", nil)
	payload := []byte(`{"event":"x"}`)
	for i := 0; i < cap(c.send); i++ {
		require.True(t, c.Enqueue(payload))
	}
	require.False(t, c.Enqueue(payload), "full send buffer refuses instead of blocking")
}
