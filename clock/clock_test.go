package clock

import (
	"testing"
	"time"
)

func TestManual(t *testing.T) {
	c := NewManual(100)
	if c.Millis() != 100 {
		t.Fatalf("Expected 100, got %d", c.Millis())
	}

	c.Advance(50)
	if c.Millis() != 150 {
		t.Fatalf("Expected 150, got %d", c.Millis())
	}

	c.Set(120)
	if c.Millis() != 150 {
		t.Fatalf("Manual clock moved backwards: %d", c.Millis())
	}

	c.Set(1000)
	if c.Millis() != 1000 {
		t.Fatalf("Expected 1000, got %d", c.Millis())
	}
}

func TestMonotonic(t *testing.T) {
	c := NewMonotonic()
	a := c.Millis()
	time.Sleep(5 * time.Millisecond)
	b := c.Millis()
	if b < a {
		t.Fatalf("Monotonic clock went backwards: %d -> %d", a, b)
	}
	if b == 0 {
		t.Fatal("Monotonic clock did not advance")
	}
}
