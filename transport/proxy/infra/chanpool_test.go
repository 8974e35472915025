package infra

import (
	"context"
	"testing"
	"time"
)

func TestChanPool_TryAcquireNeverBlocks(t *testing.T) {
	p := NewChanPool(2)

	r1, ok := p.TryAcquire()
	if !ok {
		t.Fatalf("expected first acquire to succeed")
	}
	r2, ok := p.TryAcquire()
	if !ok {
		t.Fatalf("expected second acquire to succeed")
	}
	if _, ok := p.TryAcquire(); ok {
		t.Fatalf("expected third acquire to fail at capacity")
	}
	if got := p.InFlight(); got != 2 {
		t.Fatalf("expected 2 in flight, got %d", got)
	}

	r1()
	r1() // segunda chamada não pode liberar outra vaga
	if got := p.InFlight(); got != 1 {
		t.Fatalf("expected 1 in flight after double release, got %d", got)
	}
	r2()
	if got := p.InFlight(); got != 0 {
		t.Fatalf("expected 0 in flight, got %d", got)
	}
}

func TestChanPool_AcquireWaitsForContext(t *testing.T) {
	p := NewChanPool(1)
	release, _ := p.TryAcquire()
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, ok := p.Acquire(ctx); ok {
		t.Fatalf("expected acquire to give up when ctx ends")
	}
}

func TestChanPool_Capacity(t *testing.T) {
	if got := NewChanPool(30).Capacity(); got != 30 {
		t.Fatalf("expected capacity 30, got %d", got)
	}
	if got := NewChanPool(-1).Capacity(); got != 0 {
		t.Fatalf("expected negative capacity to clamp to 0, got %d", got)
	}
}
