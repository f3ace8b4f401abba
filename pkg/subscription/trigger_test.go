package subscription

import (
	"os"
	"testing"
	"time"

	"github.com/ngas-archive/ngas/pkg/log"
)

func TestMain(m *testing.M) {
	log.Init(log.Config{Level: log.ErrorLevel})
	os.Exit(m.Run())
}

func TestEnqueueWakes(t *testing.T) {
	trigger := NewTrigger()

	trigger.Enqueue(Entry{FileID: "obs1.fits", FileVersion: 1})

	select {
	case <-trigger.Wake():
	case <-time.After(time.Second):
		t.Fatal("Enqueue() did not wake the worker")
	}

	entries := trigger.Drain()
	if len(entries) != 1 {
		t.Fatalf("len(Drain()) = %d, want 1", len(entries))
	}
	if entries[0].FileID != "obs1.fits" || entries[0].FileVersion != 1 {
		t.Errorf("Drain() = %+v, want obs1.fits version 1", entries[0])
	}
}

func TestEnqueueCollapsesWakes(t *testing.T) {
	trigger := NewTrigger()

	for i := 0; i < 10; i++ {
		trigger.Enqueue(Entry{FileID: "f", FileVersion: i})
	}
	if trigger.Pending() != 10 {
		t.Errorf("Pending() = %d, want 10", trigger.Pending())
	}

	// One wake signal regardless of enqueue count.
	<-trigger.Wake()
	select {
	case <-trigger.Wake():
		t.Error("wake channel held more than one pending signal")
	default:
	}

	if got := len(trigger.Drain()); got != 10 {
		t.Errorf("len(Drain()) = %d, want 10", got)
	}
	if trigger.Pending() != 0 {
		t.Errorf("Pending() = %d after drain, want 0", trigger.Pending())
	}
}

func TestEnqueueNothing(t *testing.T) {
	trigger := NewTrigger()
	trigger.Enqueue()

	select {
	case <-trigger.Wake():
		t.Error("empty Enqueue() woke the worker")
	default:
	}
}
