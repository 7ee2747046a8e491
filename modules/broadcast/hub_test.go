package broadcast

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeTransport records writes and can be told to fail.
type fakeTransport struct {
	mu     sync.Mutex
	writes [][]byte
	fail   bool
	closed bool
}

func (f *fakeTransport) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("broken pipe")
	}
	f.writes = append(f.writes, data)
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func newTestClient(t *testing.T, hub *Hub, id string) (*Client, *fakeTransport) {
	t.Helper()
	tr := &fakeTransport{}
	c := NewClient(id, tr, 8)
	if err := hub.Register(c); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	return c, tr
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestHub_BroadcastReachesOnlyRoomMembers(t *testing.T) {
	hub := NewHub()
	a, _ := newTestClient(t, hub, "a")
	b, _ := newTestClient(t, hub, "b")
	c, _ := newTestClient(t, hub, "c")

	for _, j := range []struct{ client, room string }{{"a", "r1"}, {"b", "r1"}, {"c", "r2"}} {
		if _, err := hub.Join(j.client, j.room); err != nil {
			t.Fatalf("Join() error = %v", err)
		}
	}

	if got := hub.Broadcast("r1", []byte("hello"), ""); got != 2 {
		t.Errorf("Broadcast() = %d, want 2", got)
	}
	if len(a.send) != 1 || len(b.send) != 1 || len(c.send) != 0 {
		t.Errorf("queues = a:%d b:%d c:%d, want 1/1/0", len(a.send), len(b.send), len(c.send))
	}

	if got := hub.Broadcast("r1", []byte("typing"), "a"); got != 1 {
		t.Errorf("Broadcast(exclude a) = %d, want 1", got)
	}
	if len(a.send) != 1 {
		t.Error("excluded client received the broadcast")
	}
}

func TestHub_JoinIsIdempotent(t *testing.T) {
	hub := NewHub()
	newTestClient(t, hub, "a")

	var wg sync.WaitGroup
	added := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := hub.Join("a", "r1")
			if err != nil {
				t.Errorf("Join() error = %v", err)
			}
			added <- ok
		}()
	}
	wg.Wait()
	close(added)

	n := 0
	for ok := range added {
		if ok {
			n++
		}
	}
	if n != 1 {
		t.Errorf("Join() reported %d additions, want 1", n)
	}
	if got := hub.RoomClientCount("r1"); got != 1 {
		t.Errorf("RoomClientCount() = %d, want 1", got)
	}

	if _, err := hub.Join("ghost", "r1"); !errors.Is(err, ErrUnknownClient) {
		t.Errorf("Join(ghost) error = %v, want %v", err, ErrUnknownClient)
	}
}

func TestHub_UnregisterLeavesEveryRoom(t *testing.T) {
	hub := NewHub()
	a, _ := newTestClient(t, hub, "a")
	newTestClient(t, hub, "b")
	hub.Join("a", "r1")
	hub.Join("a", "r2")
	hub.Join("b", "r2")

	left := hub.Unregister("a")
	if len(left) != 2 {
		t.Errorf("Unregister() left %v, want 2 rooms", left)
	}
	if hub.IsJoined("a", "r1") || hub.IsJoined("a", "r2") {
		t.Error("client still joined after Unregister()")
	}
	if got := hub.RoomClientCount("r1"); got != 0 {
		t.Errorf("RoomClientCount(r1) = %d, want 0", got)
	}
	if got := hub.RoomCount(); got != 1 {
		t.Errorf("RoomCount() = %d, want 1 (empty rooms are dropped)", got)
	}
	if got := hub.Broadcast("r2", []byte("x"), ""); got != 1 {
		t.Errorf("Broadcast(r2) = %d, want 1", got)
	}
	if len(a.send) != 0 {
		t.Error("unregistered client received a broadcast")
	}
	if hub.ClientCount() != 1 {
		t.Errorf("ClientCount() = %d, want 1", hub.ClientCount())
	}
}

func TestHub_Leave(t *testing.T) {
	hub := NewHub()
	newTestClient(t, hub, "a")
	hub.Join("a", "r1")

	if !hub.Leave("a", "r1") {
		t.Error("Leave() = false, want true")
	}
	if hub.Leave("a", "r1") {
		t.Error("Leave() twice = true, want false")
	}
	if got := hub.Broadcast("r1", []byte("x"), ""); got != 0 {
		t.Errorf("Broadcast() = %d, want 0", got)
	}
}

func TestClient_WritePumpAndFailure(t *testing.T) {
	hub := NewHub()
	c, tr := newTestClient(t, hub, "a")
	hub.Join("a", "r1")
	go c.WritePump()

	hub.Broadcast("r1", []byte("one"), "")
	waitFor(t, func() bool { return tr.count() == 1 })

	tr.mu.Lock()
	tr.fail = true
	tr.mu.Unlock()

	hub.Broadcast("r1", []byte("two"), "")
	waitFor(t, c.Failed)

	if got := hub.Broadcast("r1", []byte("three"), ""); got != 0 {
		t.Errorf("Broadcast() to failed client = %d, want 0", got)
	}
	select {
	case <-c.Done():
	default:
		t.Error("failed client was not closed")
	}
	if tr.closed {
		t.Error("write failure must not close the transport")
	}
}

func TestClient_SendQueueFull(t *testing.T) {
	c := NewClient("a", &fakeTransport{}, 2)
	if !c.Send([]byte("1")) || !c.Send([]byte("2")) {
		t.Fatal("Send() = false before the queue is full")
	}
	if c.Send([]byte("3")) {
		t.Error("Send() = true on a full queue")
	}
	c.Close()
	c.Close()
	if c.Send([]byte("4")) {
		t.Error("Send() = true after Close()")
	}
}

func TestHub_CloseAll(t *testing.T) {
	hub := NewHub()
	_, tr := newTestClient(t, hub, "a")
	hub.Join("a", "r1")

	if n := hub.CloseAll(); n != 1 {
		t.Errorf("CloseAll() = %d, want 1", n)
	}
	if !tr.closed {
		t.Error("CloseAll() did not close the transport")
	}
	if hub.ClientCount() != 0 || hub.RoomCount() != 0 {
		t.Error("hub not empty after CloseAll()")
	}
	if err := hub.Register(NewClient("b", &fakeTransport{}, 1)); !errors.Is(err, ErrHubClosed) {
		t.Errorf("Register() after CloseAll() error = %v, want %v", err, ErrHubClosed)
	}
}
