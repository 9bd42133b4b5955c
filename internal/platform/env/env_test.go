package env

import (
	"testing"
	"time"
)

func TestString(t *testing.T) {
	t.Setenv("TODOSYNC_TEST_STRING", "  value ")
	if got := String("TODOSYNC_TEST_STRING", "fallback"); got != "value" {
		t.Fatalf("unexpected value %q", got)
	}
	t.Setenv("TODOSYNC_TEST_STRING", "")
	if got := String("TODOSYNC_TEST_STRING", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
}

func TestInt(t *testing.T) {
	t.Setenv("TODOSYNC_TEST_INT", "12")
	if got := Int("TODOSYNC_TEST_INT", 3); got != 12 {
		t.Fatalf("unexpected value %d", got)
	}
	t.Setenv("TODOSYNC_TEST_INT", "twelve")
	if got := Int("TODOSYNC_TEST_INT", 3); got != 3 {
		t.Fatalf("expected fallback, got %d", got)
	}
}

func TestDuration(t *testing.T) {
	t.Setenv("TODOSYNC_TEST_DURATION", "1500ms")
	if got := Duration("TODOSYNC_TEST_DURATION", time.Second); got != 1500*time.Millisecond {
		t.Fatalf("unexpected value %v", got)
	}
	t.Setenv("TODOSYNC_TEST_DURATION", "-1s")
	if got := Duration("TODOSYNC_TEST_DURATION", time.Second); got != time.Second {
		t.Fatalf("expected fallback, got %v", got)
	}
}

func TestFloat(t *testing.T) {
	t.Setenv("TODOSYNC_TEST_FLOAT", "0.25")
	if got := Float("TODOSYNC_TEST_FLOAT", 1); got != 0.25 {
		t.Fatalf("unexpected value %v", got)
	}
	t.Setenv("TODOSYNC_TEST_FLOAT", "fast")
	if got := Float("TODOSYNC_TEST_FLOAT", 1); got != 1 {
		t.Fatalf("expected fallback, got %v", got)
	}
}
