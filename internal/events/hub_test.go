package events

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case data, ok := <-c.Send:
		require.True(t, ok, "client channel closed")
		var ev Event
		require.NoError(t, json.Unmarshal(data, &ev))
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}
	return Event{}
}

func TestParseFilter(t *testing.T) {
	require := require.New(t)
	f := ParseFilter(" home, ,foreign", "")
	require.Equal([]string{"home", "foreign"}, f.Chains)
	require.Nil(f.Names)

	require.True(f.Matches(Event{Chain: "HOME", Name: TransferExecuted}))
	require.False(f.Matches(Event{Chain: "other"}))

	byName := ParseFilter("", "CollectedSignatures")
	require.True(byName.Matches(Event{Chain: "home", Name: CollectedSignatures}))
	require.False(byName.Matches(Event{Chain: "home", Name: "collectedsignatures"}))
}

func TestHubDeliversMatchingEvents(t *testing.T) {
	require := require.New(t)
	var connected atomic.Int64
	hub := NewHub(func(n int) { connected.Store(int64(n)) })
	defer hub.Close()

	all := NewClient("all", Filter{})
	foreign := NewClient("foreign", Filter{Chains: []string{"foreign"}})
	require.NoError(hub.Register(all))
	require.NoError(hub.Register(foreign))
	require.Eventually(func() bool { return connected.Load() == 2 }, time.Second, 5*time.Millisecond)
	require.Equal(2, hub.Count())

	ctx := context.Background()
	require.NoError(hub.Publish(ctx, Event{ID: "1", Chain: "home", Name: TransferInitiated}))
	require.NoError(hub.Publish(ctx, Event{ID: "2", Chain: "foreign", Name: TransferExecuted}))

	require.Equal("1", receive(t, all).ID)
	require.Equal("2", receive(t, all).ID)
	require.Equal("2", receive(t, foreign).ID)

	hub.Unregister(foreign)
	require.Eventually(func() bool { return connected.Load() == 1 }, time.Second, 5*time.Millisecond)
	_, open := <-foreign.Send
	require.False(open)
}

func TestHubCloseReleasesClients(t *testing.T) {
	require := require.New(t)
	hub := NewHub(nil)

	c := NewClient("c", Filter{})
	require.NoError(hub.Register(c))
	hub.Close()
	hub.Close()

	select {
	case _, open := <-c.Send:
		require.False(open)
	case <-time.After(2 * time.Second):
		t.Fatal("client not released")
	}
	require.ErrorIs(hub.Register(NewClient("late", Filter{})), ErrHubClosed)
	require.ErrorIs(hub.Publish(context.Background(), Event{}), ErrHubClosed)
}
