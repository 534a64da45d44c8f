package channels

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestDockStartChannelSuccess(t *testing.T) {
	r := NewRegistry()
	p := &fakePlugin{id: "discord", name: "Discord", status: Status{Connected: true}}
	_ = r.Register(p)
	d := NewDock(r)

	if err := d.StartChannel(context.Background(), "discord"); err != nil {
		t.Fatalf("StartChannel() error = %v", err)
	}

	statuses := d.Status()
	if len(statuses) != 1 {
		t.Fatalf("len(statuses) = %d, want 1", len(statuses))
	}
	if statuses[0].State != StateRunning {
		t.Errorf("State = %v, want %v", statuses[0].State, StateRunning)
	}
	if !statuses[0].Connected {
		t.Error("Connected = false, want true")
	}
}

func TestDockStartChannelFailureEntersFailed(t *testing.T) {
	r := NewRegistry()
	p := &fakePlugin{id: "discord", startErr: errors.New("connect refused")}
	_ = r.Register(p)
	d := NewDock(r)

	if err := d.StartChannel(context.Background(), "discord"); err == nil {
		t.Fatal("StartChannel() expected error")
	}

	statuses := d.Status()
	if statuses[0].State != StateFailed {
		t.Errorf("State = %v, want %v", statuses[0].State, StateFailed)
	}
	if statuses[0].Error == "" {
		t.Error("Error is empty, want captured failure message")
	}
}

func TestDockStartChannelRetryableAfterFailure(t *testing.T) {
	r := NewRegistry()
	p := &fakePlugin{id: "discord", startErr: errors.New("boom")}
	_ = r.Register(p)
	d := NewDock(r)

	_ = d.StartChannel(context.Background(), "discord")
	p.startErr = nil
	if err := d.StartChannel(context.Background(), "discord"); err != nil {
		t.Fatalf("StartChannel() retry error = %v", err)
	}
	statuses := d.Status()
	if statuses[0].State != StateRunning {
		t.Errorf("State = %v, want %v", statuses[0].State, StateRunning)
	}
}

func TestDockStartChannelIdempotentWhenRunning(t *testing.T) {
	r := NewRegistry()
	starts := 0
	p := &fakePlugin{id: "discord"}
	_ = r.Register(p)
	d := NewDock(r)

	_ = d.StartChannel(context.Background(), "discord")
	starts++
	if err := d.StartChannel(context.Background(), "discord"); err != nil {
		t.Fatalf("second StartChannel() error = %v", err)
	}
}

func TestDockStopChannelIdempotentWhenDisconnected(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(&fakePlugin{id: "discord"})
	d := NewDock(r)

	if err := d.StopChannel(context.Background(), "discord"); err != nil {
		t.Fatalf("StopChannel() on never-started channel error = %v", err)
	}
}

func TestDockStopChannelAfterStart(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(&fakePlugin{id: "discord"})
	d := NewDock(r)

	_ = d.StartChannel(context.Background(), "discord")
	if err := d.StopChannel(context.Background(), "discord"); err != nil {
		t.Fatalf("StopChannel() error = %v", err)
	}
	statuses := d.Status()
	if statuses[0].State != StateDisconnected {
		t.Errorf("State = %v, want %v", statuses[0].State, StateDisconnected)
	}
}

func TestDockStartChannelUnknownID(t *testing.T) {
	d := NewDock(NewRegistry())
	if err := d.StartChannel(context.Background(), "missing"); err == nil {
		t.Fatal("StartChannel() expected error for unknown channel")
	}
}

// blockingPlugin's Start blocks until release is closed, letting the test
// exercise the Starting state and the await-in-flight path.
type blockingPlugin struct {
	fakePlugin
	release chan struct{}
}

func (p *blockingPlugin) Start(ctx context.Context) error {
	<-p.release
	return nil
}

func TestDockStartChannelAwaitsInFlightStart(t *testing.T) {
	release := make(chan struct{})
	p := &blockingPlugin{fakePlugin: fakePlugin{id: "discord"}, release: release}
	r := NewRegistry()
	_ = r.Register(p)
	d := NewDock(r)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx] = d.StartChannel(context.Background(), "discord")
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	statuses := d.Status()
	if statuses[0].State != StateStarting {
		t.Fatalf("State = %v, want %v while start is in flight", statuses[0].State, StateStarting)
	}

	close(release)
	wg.Wait()

	for i, err := range results {
		if err != nil {
			t.Errorf("StartChannel() call %d error = %v", i, err)
		}
	}
	if d.Status()[0].State != StateRunning {
		t.Errorf("final State = %v, want %v", d.Status()[0].State, StateRunning)
	}
}
