package inmemory

import (
	"context"
	"testing"
	"time"
)

func TestSetGet(t *testing.T) {
	s := NewInMemoryStore(time.Minute)
	ctx := context.Background()
	if _, ok, _ := s.Get(ctx, "missing"); ok {
		t.Fatalf("unexpected hit")
	}
	if err := s.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, ok, err := s.Get(ctx, "k")
	if err != nil || !ok || string(v) != "v" {
		t.Fatalf("get: %q %v %v", v, ok, err)
	}
}

func TestExpiry(t *testing.T) {
	s := NewInMemoryStore(time.Minute)
	ctx := context.Background()
	_ = s.Set(ctx, "k", []byte("v"), 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Fatalf("entry should have expired")
	}
}
