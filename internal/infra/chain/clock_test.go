package chain

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/ric-network/catalogdao/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestClock_Advance(t *testing.T) {
	c := NewClock(10)
	if got := c.Advance(100); got != 110 {
		t.Errorf("Advance = %d, want 110", got)
	}
	if c.Height() != 110 {
		t.Errorf("Height = %d, want 110", c.Height())
	}
}

func TestClock_Set(t *testing.T) {
	c := NewClock(5)
	if err := c.Set(5); err != nil {
		t.Fatalf("Set(same) error: %v", err)
	}
	if err := c.Set(9); err != nil {
		t.Fatalf("Set(9) error: %v", err)
	}
	if err := c.Set(3); !errors.Is(err, domain.ErrHeightRegression) {
		t.Errorf("Set(3) = %v, want ErrHeightRegression", err)
	}
	if c.Height() != 9 {
		t.Errorf("Height = %d, want 9", c.Height())
	}
}

func TestClock_Automine(t *testing.T) {
	c := NewClock(0)
	var mined atomic.Int64
	c.OnBlock(func(uint64) { mined.Add(1) })

	c.Start(time.Millisecond)
	if !c.Running() {
		t.Fatal("clock should be running after Start")
	}
	deadline := time.Now().Add(2 * time.Second)
	for c.Height() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	c.Stop()

	if c.Height() < 3 {
		t.Errorf("Height = %d, want >= 3", c.Height())
	}
	if mined.Load() != int64(c.Height()) {
		t.Errorf("callbacks = %d, want %d", mined.Load(), c.Height())
	}
	if c.Running() {
		t.Error("clock should not be running after Stop")
	}
}

func TestClock_StopIdempotent(t *testing.T) {
	c := NewClock(0)
	c.Stop()
	c.Start(time.Hour)
	c.Start(time.Hour) // no second goroutine
	c.Stop()
	c.Stop()
}
