package application

import (
	"testing"
	"time"

	"proxy-transport/transport/proxy/domain"
)

// fixedBudget responde sempre a mesma decisão e guarda o último host.
type fixedBudget struct {
	dec  domain.Decision
	last domain.Key
}

func (b *fixedBudget) Take(host domain.Key) domain.Decision {
	b.last = host
	return b.dec
}

func TestThrottleService_Decide_AllowsWhenNoBudget(t *testing.T) {
	svc := ThrottleService{}
	dec := svc.Decide("k")
	if !dec.Allowed {
		t.Fatalf("expected allowed")
	}
	if dec.RetryAfter != 0 {
		t.Fatalf("expected RetryAfter=0 when allowed, got %s", dec.RetryAfter)
	}
}

func TestThrottleService_Decide_PassesHostThrough(t *testing.T) {
	budget := &fixedBudget{dec: domain.Decision{Allowed: true}}
	svc := ThrottleService{Budget: budget, RetryAfter: 5 * time.Second}
	if dec := svc.Decide("ingest.example:443"); !dec.Allowed {
		t.Fatalf("expected allowed")
	}
	if budget.last != "ingest.example:443" {
		t.Fatalf("expected budget keyed by host, got %q", budget.last)
	}
}

func TestThrottleService_Decide_UsesComputedWait(t *testing.T) {
	svc := ThrottleService{Budget: &fixedBudget{dec: domain.Decision{RetryAfter: 4 * time.Second}}, RetryAfter: time.Second}
	dec := svc.Decide("k")
	if dec.Allowed {
		t.Fatalf("expected blocked")
	}
	if dec.RetryAfter != 4*time.Second {
		t.Fatalf("expected computed RetryAfter=4s, got %s", dec.RetryAfter)
	}
}

func TestThrottleService_Decide_ConfiguredFloor(t *testing.T) {
	svc := ThrottleService{Budget: &fixedBudget{dec: domain.Decision{RetryAfter: 200 * time.Millisecond}}, RetryAfter: 2500 * time.Millisecond}
	dec := svc.Decide("k")
	if dec.RetryAfter != 2500*time.Millisecond {
		t.Fatalf("expected floor RetryAfter=2.5s, got %s", dec.RetryAfter)
	}
}

func TestThrottleService_Decide_DefaultFloorWhenWaitUnknown(t *testing.T) {
	svc := ThrottleService{Budget: &fixedBudget{}}
	dec := svc.Decide("k")
	if dec.Allowed {
		t.Fatalf("expected blocked")
	}
	if dec.RetryAfter != DefaultThrottleRetryAfter {
		t.Fatalf("expected default RetryAfter=%s, got %s", DefaultThrottleRetryAfter, dec.RetryAfter)
	}
}
