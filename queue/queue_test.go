package queue

import (
	"testing"
	"time"
)

func TestUnboundedPushPop(t *testing.T) {
	q := NewUnbounded()
	q.Push([]byte("a"))
	q.Push([]byte("b"))

	msg, ok := q.PopNowait()
	if !ok || string(msg) != "a" {
		t.Fatalf("got %q,%v want a,true", msg, ok)
	}
	msg, ok = q.PopNowait()
	if !ok || string(msg) != "b" {
		t.Fatalf("got %q,%v want b,true", msg, ok)
	}
	if _, ok := q.PopNowait(); ok {
		t.Fatal("expected empty queue")
	}
}

func TestUnboundedPopTimeoutExpires(t *testing.T) {
	q := NewUnbounded()
	start := time.Now()
	_, ok := q.PopTimeout(20 * time.Millisecond)
	if ok {
		t.Fatal("expected timeout, got a message")
	}
	if time.Since(start) < 15*time.Millisecond {
		t.Fatal("returned too early")
	}
}

func TestUnboundedPopTimeoutWakesOnPush(t *testing.T) {
	q := NewUnbounded()
	go func() {
		time.Sleep(5 * time.Millisecond)
		q.Push([]byte("hi"))
	}()
	msg, ok := q.PopTimeout(500 * time.Millisecond)
	if !ok || string(msg) != "hi" {
		t.Fatalf("got %q,%v", msg, ok)
	}
}
