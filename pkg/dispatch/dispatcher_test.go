package dispatch

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tuyable/tuyable/pkg/datapoint"
	"github.com/tuyable/tuyable/pkg/frame"
)

// mockWire records transmissions. Each encoded "fragment" is just the frame
// number, which is all correlation needs.
type mockWire struct {
	mu        sync.Mutex
	nextFrame uint16
	sent      []uint16
	sendErr   error
}

func (w *mockWire) encode(cmd Command) (uint16, [][]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextFrame++
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], w.nextFrame)
	return w.nextFrame, [][]byte{b[:]}, nil
}

func (w *mockWire) send(b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sendErr != nil {
		return w.sendErr
	}
	w.sent = append(w.sent, binary.BigEndian.Uint16(b))
	return nil
}

func (w *mockWire) transmissions() []uint16 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]uint16(nil), w.sent...)
}

func newTestDispatcher(t *testing.T, w *mockWire, timeout time.Duration, retries int) *Dispatcher {
	t.Helper()
	d, err := New(Config{
		Encode:     w.encode,
		Send:       w.send,
		Timeout:    timeout,
		MaxRetries: retries,
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return d
}

func TestSingleCommandInFlight(t *testing.T) {
	w := &mockWire{}
	d := newTestDispatcher(t, w, time.Minute, -1)
	defer d.Close()

	h1, err := d.Submit(Command{Code: frame.CmdControl, Expect: ExpectAck})
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	h2, err := d.Submit(Command{Code: frame.CmdDPQuery, Expect: ExpectReport})
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	// Only the first command has been transmitted.
	if got := w.transmissions(); len(got) != 1 || got[0] != 1 {
		t.Fatalf("transmissions = %v, want [1]", got)
	}
	if !d.InFlight() {
		t.Fatal("expected a command in flight")
	}

	// Resolving the first lets the second through.
	if !d.HandleResponse(1, nil) {
		t.Fatal("HandleResponse(1) did not match")
	}
	if _, err := h1.Result(); err != nil {
		t.Errorf("first command error: %v", err)
	}
	if got := w.transmissions(); len(got) != 2 || got[1] != 2 {
		t.Fatalf("transmissions = %v, want [1 2]", got)
	}

	report := []datapoint.Datapoint{datapoint.NewBool(2, true)}
	if !d.HandleResponse(2, report) {
		t.Fatal("HandleResponse(2) did not match")
	}
	dps, err := h2.Result()
	if err != nil {
		t.Fatalf("second command error: %v", err)
	}
	if len(dps) != 1 || !dps[0].Equal(report[0]) {
		t.Errorf("report = %+v, want %+v", dps, report)
	}
}

func TestExpectNoneResolvesOnSend(t *testing.T) {
	w := &mockWire{}
	d := newTestDispatcher(t, w, time.Minute, -1)
	defer d.Close()

	h, err := d.Submit(Command{Code: frame.CmdHeartbeat, Expect: ExpectNone})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := h.Wait(ctx); err != nil {
		t.Errorf("Wait() error: %v", err)
	}
	if d.InFlight() {
		t.Error("ExpectNone command left in flight")
	}
}

func TestTimeoutRetriesThenFails(t *testing.T) {
	w := &mockWire{}
	d := newTestDispatcher(t, w, 20*time.Millisecond, 2)
	defer d.Close()

	h1, err := d.Submit(Command{Code: frame.CmdControl, Expect: ExpectAck})
	if err != nil {
		t.Fatal(err)
	}
	h2, err := d.Submit(Command{Code: frame.CmdControl, Expect: ExpectAck})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := h1.Result(); !errors.Is(err, ErrTimeout) {
		t.Fatalf("first command error = %v, want ErrTimeout", err)
	}

	// Initial transmission plus two retransmissions, byte-identical.
	got := w.transmissions()
	if len(got) < 3 {
		t.Fatalf("saw %d transmissions of frame 1, want 3 before giving up", len(got))
	}
	for i := 0; i < 3; i++ {
		if got[i] != 1 {
			t.Fatalf("transmission %d = frame %d, want 1", i, got[i])
		}
	}

	// The queue advanced past the dead command.
	if got[len(got)-1] != 2 {
		t.Fatalf("queue did not advance, transmissions = %v", got)
	}
	if !d.HandleResponse(2, nil) {
		t.Fatal("HandleResponse(2) did not match")
	}
	if _, err := h2.Result(); err != nil {
		t.Errorf("second command error: %v", err)
	}
}

func TestLateResponseDiscarded(t *testing.T) {
	w := &mockWire{}
	d := newTestDispatcher(t, w, 10*time.Millisecond, -1)
	defer d.Close()

	h, err := d.Submit(Command{Code: frame.CmdControl, Expect: ExpectAck})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.Result(); !errors.Is(err, ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}

	// The response arrives after the command already timed out.
	if d.HandleResponse(1, nil) {
		t.Error("late response matched a resolved command")
	}
}

func TestFlushResolvesEverything(t *testing.T) {
	w := &mockWire{}
	d := newTestDispatcher(t, w, time.Minute, -1)

	var handles []*Handle
	for i := 0; i < 3; i++ {
		h, err := d.Submit(Command{Code: frame.CmdControl, Expect: ExpectAck})
		if err != nil {
			t.Fatal(err)
		}
		handles = append(handles, h)
	}

	d.Flush(nil)
	for i, h := range handles {
		if _, err := h.Result(); !errors.Is(err, ErrDisconnected) {
			t.Errorf("command %d error = %v, want ErrDisconnected", i, err)
		}
	}
	if d.Pending() != 0 {
		t.Errorf("Pending() = %d after flush, want 0", d.Pending())
	}

	// The dispatcher still accepts new commands after a flush.
	if _, err := d.Submit(Command{Code: frame.CmdHeartbeat, Expect: ExpectNone}); err != nil {
		t.Errorf("Submit() after flush error: %v", err)
	}

	d.Close()
	if _, err := d.Submit(Command{Code: frame.CmdControl}); !errors.Is(err, ErrClosed) {
		t.Errorf("Submit() after close error = %v, want ErrClosed", err)
	}
}

func TestSendFailureResolvesAndAdvances(t *testing.T) {
	w := &mockWire{sendErr: errors.New("radio gone")}
	d := newTestDispatcher(t, w, time.Minute, -1)
	defer d.Close()

	h, err := d.Submit(Command{Code: frame.CmdControl, Expect: ExpectAck})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.Result(); err == nil {
		t.Error("send failure did not resolve the handle")
	}
	if d.InFlight() {
		t.Error("failed command left in flight")
	}
}
