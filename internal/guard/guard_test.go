package guard

import (
	"context"
	"testing"

	"github.com/faustbrian/sequencer/internal/domain"
)

func TestChain_AllowsWhenAllGuardsAllow(t *testing.T) {
	c := NewChain(HostnameGuard{Allowed: []string{"*"}})
	res := c.Evaluate(context.Background(), &domain.Descriptor{Name: "deploy-web"})
	if res.Verdict != Allow {
		t.Fatalf("expected Allow, got %v (%s)", res.Verdict, res.Reason)
	}
}

func TestChain_ShortCircuitsOnFirstDeny(t *testing.T) {
	c := NewChain(
		HostnameGuard{Allowed: []string{"*.internal.example.com"}},
		HostnameGuard{Allowed: []string{"*"}},
	)
	res := c.Evaluate(context.Background(), &domain.Descriptor{Name: "deploy-web"})
	if res.Verdict != Deny {
		t.Fatalf("expected Deny, got %v", res.Verdict)
	}
	if res.Guard != "hostname" {
		t.Fatalf("expected denying guard to be reported, got %q", res.Guard)
	}
}

func TestHostnameGuard_WildcardSubdomain(t *testing.T) {
	g := HostnameGuard{Allowed: []string{"*.example.com"}}
	res := g.Evaluate(context.Background(), &domain.Descriptor{Name: "api.example.com"})
	if res.Verdict != Allow {
		t.Fatalf("expected Allow for wildcard match, got %v", res.Verdict)
	}
	res = g.Evaluate(context.Background(), &domain.Descriptor{Name: "api.other.com"})
	if res.Verdict != Deny {
		t.Fatalf("expected Deny for non-matching host, got %v", res.Verdict)
	}
}

func TestIPAddressGuard_IgnoresNonIPActors(t *testing.T) {
	g := IPAddressGuard{Allowed: []string{"10.0.0.0/8"}}
	res := g.Evaluate(context.Background(), &domain.Descriptor{ActorType: "user", ActorID: "alice"})
	if res.Verdict != Allow {
		t.Fatalf("expected Allow for non-ip actor type, got %v", res.Verdict)
	}
}

func TestIPAddressGuard_CIDRMatch(t *testing.T) {
	g := IPAddressGuard{Allowed: []string{"10.0.0.0/8"}}
	res := g.Evaluate(context.Background(), &domain.Descriptor{ActorType: "ip", ActorID: "10.1.2.3"})
	if res.Verdict != Allow {
		t.Fatalf("expected Allow within CIDR, got %v: %s", res.Verdict, res.Reason)
	}
	res = g.Evaluate(context.Background(), &domain.Descriptor{ActorType: "ip", ActorID: "8.8.8.8"})
	if res.Verdict != Deny {
		t.Fatalf("expected Deny outside CIDR, got %v", res.Verdict)
	}
}

func TestPrivateNetworkGuard_AllowsRFC1918(t *testing.T) {
	g := PrivateNetworkGuard{}
	res := g.Evaluate(context.Background(), &domain.Descriptor{ActorType: "ip", ActorID: "192.168.1.5"})
	if res.Verdict != Allow {
		t.Fatalf("expected Allow for private IP, got %v", res.Verdict)
	}
	res = g.Evaluate(context.Background(), &domain.Descriptor{ActorType: "ip", ActorID: "1.1.1.1"})
	if res.Verdict != Deny {
		t.Fatalf("expected Deny for public IP, got %v", res.Verdict)
	}
}

func TestAny_AllowsIfOneGuardAllows(t *testing.T) {
	a := NewAny(
		HostnameGuard{Allowed: []string{"*.internal.example.com"}},
		HostnameGuard{Allowed: []string{"*"}},
	)
	res := a.Evaluate(context.Background(), &domain.Descriptor{Name: "deploy-web"})
	if res.Verdict != Allow {
		t.Fatalf("expected Allow, got %v", res.Verdict)
	}
}

func TestConditionGuard_SkipsWhenConditionFalse(t *testing.T) {
	g := ConditionGuard{Results: map[string]any{"migrate": "ok"}}
	op := &domain.Descriptor{
		Name:         "seed-data",
		Capabilities: map[domain.Capability]bool{domain.CapConditionalExecution: true},
		Condition: func(_ context.Context, deps map[string]any) (bool, error) {
			_, ok := deps["migrate"]
			return !ok, nil
		},
	}
	res := g.Evaluate(context.Background(), op)
	if res.Verdict != Skip {
		t.Fatalf("expected Skip, got %v", res.Verdict)
	}
}
