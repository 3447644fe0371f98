package relay

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"emergency-response/internal/config"
	"emergency-response/internal/models"
)

func testConfig() config.RelayConfig {
	return config.RelayConfig{
		SendBufferSize:  4,
		ReadLimit:       512,
		WriteWait:       time.Second,
		PongWait:        time.Second,
		PingInterval:    time.Second,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
}

func newTestHub() *Hub {
	return NewHub(testConfig(), nil, nil, zap.NewNop())
}

func testClient(h *Hub, dashboard bool, userID string, buffer int) *Client {
	return &Client{
		ID:        uuid.NewString(),
		UserID:    userID,
		Dashboard: dashboard,
		hub:       h,
		send:      make(chan []byte, buffer),
	}
}

func testCall() *models.EmergencyCall {
	return &models.EmergencyCall{
		ID:                uuid.New(),
		Service:           models.ServiceFire,
		Latitude:          5.6037,
		Longitude:         -0.1870,
		StatusByUser:      models.StatusPending,
		StatusByPersonnel: models.StatusPending,
	}
}

func receiveEvent(t *testing.T, c *Client) *models.Event {
	t.Helper()
	select {
	case data := <-c.send:
		var event models.Event
		require.NoError(t, json.Unmarshal(data, &event))
		return &event
	default:
		t.Fatal("expected an event on the send queue")
		return nil
	}
}

func assertNoEvent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case <-c.send:
		t.Fatal("expected no event on the send queue")
	default:
	}
}

func TestBroadcastToDashboards(t *testing.T) {
	t.Run("Reaches Every Connected Dashboard", func(t *testing.T) {
		hub := newTestHub()
		a := testClient(hub, true, "", 4)
		b := testClient(hub, true, "", 4)
		hub.Register(a)
		hub.Register(b)

		require.NoError(t, hub.BroadcastToDashboards(&models.Event{Type: models.EventNewEmergencyCall, Call: testCall()}))

		for _, c := range []*Client{a, b} {
			event := receiveEvent(t, c)
			assert.Equal(t, models.EventNewEmergencyCall, event.Type)
			assert.False(t, event.Timestamp.IsZero())
		}
	})

	t.Run("Late Subscriber Misses The Event", func(t *testing.T) {
		hub := newTestHub()
		early := testClient(hub, true, "", 4)
		hub.Register(early)

		require.NoError(t, hub.BroadcastToDashboards(&models.Event{Type: models.EventNewEmergencyCall, Call: testCall()}))

		late := testClient(hub, true, "", 4)
		hub.Register(late)

		receiveEvent(t, early)
		assertNoEvent(t, late)
	})

	t.Run("User Sessions Do Not Receive Dashboard Broadcasts", func(t *testing.T) {
		hub := newTestHub()
		dashboard := testClient(hub, true, "", 4)
		user := testClient(hub, false, "user-1", 4)
		hub.Register(dashboard)
		hub.Register(user)

		require.NoError(t, hub.BroadcastToDashboards(&models.Event{Type: models.EventCallUpdated, Call: testCall()}))

		receiveEvent(t, dashboard)
		assertNoEvent(t, user)
	})

	t.Run("Slow Session Is Dropped Without Delaying Others", func(t *testing.T) {
		hub := newTestHub()
		slow := testClient(hub, true, "", 1)
		healthy := testClient(hub, true, "", 4)
		hub.Register(slow)
		hub.Register(healthy)

		require.NoError(t, hub.BroadcastToDashboards(&models.Event{Type: models.EventNewEmergencyCall, Call: testCall()}))
		// The slow session's queue is now full; the next broadcast drops it.
		require.NoError(t, hub.BroadcastToDashboards(&models.Event{Type: models.EventCallUpdated, Call: testCall()}))

		assert.Equal(t, 1, hub.DashboardSessions())
		receiveEvent(t, healthy)
		receiveEvent(t, healthy)
	})
}

func TestNotifyUser(t *testing.T) {
	t.Run("Delivered Only To Matching User Sessions", func(t *testing.T) {
		hub := newTestHub()
		owner := testClient(hub, false, "user-1", 4)
		other := testClient(hub, false, "user-2", 4)
		dashboard := testClient(hub, true, "", 4)
		hub.Register(owner)
		hub.Register(other)
		hub.Register(dashboard)

		require.NoError(t, hub.NotifyUser("user-1", &models.Event{Type: models.EventYourCallUpdated, Call: testCall()}))

		event := receiveEvent(t, owner)
		assert.Equal(t, models.EventYourCallUpdated, event.Type)
		assertNoEvent(t, other)
		assertNoEvent(t, dashboard)
	})

	t.Run("Silently Dropped When No Session Is Connected", func(t *testing.T) {
		hub := newTestHub()
		assert.NoError(t, hub.NotifyUser("nobody", &models.Event{Type: models.EventYourCallUpdated, Call: testCall()}))
	})
}

func TestPublisherEventNotMutated(t *testing.T) {
	hub := newTestHub()
	dashboard := testClient(hub, true, "", 4)
	owner := testClient(hub, false, "user-1", 4)
	hub.Register(dashboard)
	hub.Register(owner)

	broadcast := &models.Event{Type: models.EventNewEmergencyCall, Call: testCall()}
	require.NoError(t, hub.BroadcastToDashboards(broadcast))
	assert.True(t, broadcast.Timestamp.IsZero(), "the publisher's event must not be stamped in place")

	notify := &models.Event{Type: models.EventYourCallUpdated, Call: testCall()}
	require.NoError(t, hub.NotifyUser("user-1", notify))
	assert.True(t, notify.Timestamp.IsZero(), "the publisher's event must not be stamped in place")

	// The delivered copies still carry the stamp.
	assert.False(t, receiveEvent(t, dashboard).Timestamp.IsZero())
	assert.False(t, receiveEvent(t, owner).Timestamp.IsZero())
}

// Exercises the subscriber set under simultaneous registration churn, local
// broadcasts, and cross-instance deliveries. Run with -race; the assertions
// only pin that churned sessions are fully gone afterwards, the interesting
// failures are data races and sends on closed channels.
func TestConcurrentSessionChurn(t *testing.T) {
	hub := newTestHub()

	data, err := json.Marshal(&models.Event{Type: models.EventCallUpdated, Call: testCall(), Timestamp: time.Now()})
	require.NoError(t, err)
	relayed, err := json.Marshal(envelope{Origin: "another-instance", Data: data})
	require.NoError(t, err)

	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				hub.BroadcastToDashboards(&models.Event{Type: models.EventNewEmergencyCall, Call: testCall()})
				hub.NotifyUser("user-1", &models.Event{Type: models.EventYourCallUpdated, Call: testCall()})
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 100; j++ {
			hub.handleRelayed(dashboardChannel, relayed)
			hub.handleRelayed(userChannelPrefix+"user-1", relayed)
		}
	}()

	// Churning sessions with a queue of one, so broadcasts also hit the
	// stale collect-then-unregister path while other goroutines deliver.
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(dashboard bool) {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				c := testClient(hub, dashboard, "user-1", 1)
				hub.Register(c)
				hub.Unregister(c)
			}
		}(i%2 == 0)
	}

	wg.Wait()

	assert.Equal(t, 0, hub.DashboardSessions())
	assert.Equal(t, 0, hub.UserSessions("user-1"))
}

func TestRegisterUnregister(t *testing.T) {
	t.Run("Session Counts", func(t *testing.T) {
		hub := newTestHub()
		dashboard := testClient(hub, true, "", 4)
		user := testClient(hub, false, "user-1", 4)
		hub.Register(dashboard)
		hub.Register(user)

		assert.Equal(t, 1, hub.DashboardSessions())
		assert.Equal(t, 1, hub.UserSessions("user-1"))
		assert.Equal(t, 0, hub.UserSessions("user-2"))

		hub.Unregister(user)
		assert.Equal(t, 0, hub.UserSessions("user-1"))
	})

	t.Run("Unregister Twice Is Safe", func(t *testing.T) {
		hub := newTestHub()
		c := testClient(hub, true, "", 4)
		hub.Register(c)
		hub.Unregister(c)
		hub.Unregister(c)
		assert.Equal(t, 0, hub.DashboardSessions())
	})
}

func TestRelayedEvents(t *testing.T) {
	t.Run("Foreign Origin Is Delivered Locally", func(t *testing.T) {
		hub := newTestHub()
		dashboard := testClient(hub, true, "", 4)
		hub.Register(dashboard)

		data, err := json.Marshal(&models.Event{Type: models.EventCallUpdated, Call: testCall(), Timestamp: time.Now()})
		require.NoError(t, err)
		payload, err := json.Marshal(envelope{Origin: "another-instance", Data: data})
		require.NoError(t, err)

		hub.handleRelayed(dashboardChannel, payload)

		event := receiveEvent(t, dashboard)
		assert.Equal(t, models.EventCallUpdated, event.Type)
	})

	t.Run("Own Origin Is Skipped", func(t *testing.T) {
		hub := newTestHub()
		dashboard := testClient(hub, true, "", 4)
		hub.Register(dashboard)

		data, err := json.Marshal(&models.Event{Type: models.EventCallUpdated, Call: testCall(), Timestamp: time.Now()})
		require.NoError(t, err)
		payload, err := json.Marshal(envelope{Origin: hub.instanceID, Data: data})
		require.NoError(t, err)

		hub.handleRelayed(dashboardChannel, payload)
		assertNoEvent(t, dashboard)
	})

	t.Run("User Channel Is Routed To The User", func(t *testing.T) {
		hub := newTestHub()
		owner := testClient(hub, false, "user-1", 4)
		other := testClient(hub, false, "user-2", 4)
		hub.Register(owner)
		hub.Register(other)

		data, err := json.Marshal(&models.Event{Type: models.EventYourCallUpdated, Call: testCall(), Timestamp: time.Now()})
		require.NoError(t, err)
		payload, err := json.Marshal(envelope{Origin: "another-instance", Data: data})
		require.NoError(t, err)

		hub.handleRelayed(userChannelPrefix+"user-1", payload)

		receiveEvent(t, owner)
		assertNoEvent(t, other)
	})

	t.Run("Malformed Payload Is Discarded", func(t *testing.T) {
		hub := newTestHub()
		dashboard := testClient(hub, true, "", 4)
		hub.Register(dashboard)

		hub.handleRelayed(dashboardChannel, []byte("not json"))
		assertNoEvent(t, dashboard)
	})
}
