package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"gebeta-delivery/pkg/logger"
)

func newTestClient(h *Hub, buffer int) *client {
	return &client{
		hub:   h,
		send:  make(chan []byte, buffer),
		rooms: make(map[string]struct{}),
	}
}

func startHub(t *testing.T, countFn CountFunc) *Hub {
	t.Helper()
	h := NewHub(countFn, logger.Noop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h
}

func recv(t *testing.T, c *client) outFrame {
	t.Helper()
	select {
	case raw := <-c.send:
		var f outFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			t.Fatalf("unmarshal frame: %v", err)
		}
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return outFrame{}
	}
}

func expectSilence(t *testing.T, c *client) {
	t.Helper()
	select {
	case raw := <-c.send:
		t.Fatalf("unexpected frame: %s", raw)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishReachesOnlyRoomMembers(t *testing.T) {
	h := startHub(t, nil)

	courier := newTestClient(h, sendBuffer)
	admin := newTestClient(h, sendBuffer)
	h.register <- courier
	h.register <- admin
	h.join <- joinRequest{c: courier, room: RoomDeliveries}
	h.join <- joinRequest{c: admin, room: RoomAdmin}

	h.Publish(RoomDeliveries, EventOrderCooked, map[string]string{"order_id": "o1"})

	f := recv(t, courier)
	if f.Event != EventOrderCooked {
		t.Errorf("event = %s; want %s", f.Event, EventOrderCooked)
	}
	expectSilence(t, admin)
}

func TestVehicleSubRoom(t *testing.T) {
	h := startHub(t, nil)

	motor := newTestClient(h, sendBuffer)
	car := newTestClient(h, sendBuffer)
	h.register <- motor
	h.register <- car
	h.join <- joinRequest{c: motor, room: VehicleRoom("Motor")}
	h.join <- joinRequest{c: car, room: VehicleRoom("Car")}

	h.Publish(VehicleRoom("Motor"), EventOrderCooked, map[string]string{"order_id": "o1"})

	if f := recv(t, motor); f.Event != EventOrderCooked {
		t.Errorf("event = %s; want %s", f.Event, EventOrderCooked)
	}
	expectSilence(t, car)
}

func TestSlowClientIsDropped(t *testing.T) {
	h := startHub(t, nil)

	slow := newTestClient(h, 0) // no reader, no buffer
	healthy := newTestClient(h, sendBuffer)
	h.register <- slow
	h.register <- healthy
	h.join <- joinRequest{c: slow, room: RoomDeliveries}
	h.join <- joinRequest{c: healthy, room: RoomDeliveries}

	h.Publish(RoomDeliveries, EventOrderCooked, map[string]string{"order_id": "o1"})
	// The healthy client still receives broadcasts afterwards.
	h.Publish(RoomDeliveries, EventOrderCooked, map[string]string{"order_id": "o2"})

	if f := recv(t, healthy); f.Event != EventOrderCooked {
		t.Errorf("event = %s; want %s", f.Event, EventOrderCooked)
	}
	recv(t, healthy)

	// The slow client's send channel was closed on drop.
	select {
	case _, ok := <-slow.send:
		if ok {
			t.Error("slow client received a frame; want closed channel")
		}
	case <-time.After(2 * time.Second):
		t.Error("slow client channel not closed")
	}
}

func TestBroadcastCount(t *testing.T) {
	h := startHub(t, func(ctx context.Context) (int, error) { return 3, nil })

	courier := newTestClient(h, sendBuffer)
	h.register <- courier
	h.join <- joinRequest{c: courier, room: RoomDeliveries}

	h.BroadcastCount(context.Background())

	f := recv(t, courier)
	if f.Event != EventAvailableCount {
		t.Fatalf("event = %s; want %s", f.Event, EventAvailableCount)
	}
	data, _ := json.Marshal(f.Data)
	var payload struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.Count != 3 {
		t.Errorf("count payload = %v; want 3", f.Data)
	}
}

func TestUnregisterClosesSend(t *testing.T) {
	h := startHub(t, nil)

	c := newTestClient(h, sendBuffer)
	h.register <- c
	h.unregister <- c

	select {
	case _, ok := <-c.send:
		if ok {
			t.Error("expected closed send channel")
		}
	case <-time.After(2 * time.Second):
		t.Error("send channel not closed after unregister")
	}
}

func TestShutdownReleasesPumps(t *testing.T) {
	h := NewHub(nil, logger.Noop())
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	c := newTestClient(h, sendBuffer)
	h.register <- c
	cancel()

	// Shutdown closes every send channel.
	select {
	case _, ok := <-c.send:
		if ok {
			t.Fatal("expected closed send channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("send channel not closed after shutdown")
	}

	// Pump goroutines must not hang on a dead hub.
	released := make(chan struct{})
	go func() {
		h.drop(c)
		h.add(c)
		h.joinRoom(c, RoomDeliveries)
		close(released)
	}()
	select {
	case <-released:
	case <-time.After(2 * time.Second):
		t.Fatal("hub handoff blocked after shutdown")
	}
}
