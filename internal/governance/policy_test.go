package governance

import (
	"context"
	"strings"
	"testing"
)

func TestDefaultPolicyEngine_Evaluate(t *testing.T) {
	engine := NewDefaultPolicyEngine()
	ctx := context.Background()

	// Test Allow (Default)
	res1, err := engine.Evaluate(ctx, Request{Capability: "crm", Action: "list_contacts"})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if res1.Effect != EffectAllow {
		t.Errorf("Expected EffectAllow, got %s", res1.Effect)
	}

	// Test Deny
	engine.DenyCapability("commerce")
	res2, err := engine.Evaluate(ctx, Request{Capability: "commerce", Action: "refund"})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if res2.Effect != EffectDeny {
		t.Errorf("Expected EffectDeny, got %s", res2.Effect)
	}
}

func TestDefaultPolicyEngine_DenyAction(t *testing.T) {
	engine := NewDefaultPolicyEngine()
	engine.DenyCapability("crm.delete_contact")
	ctx := context.Background()

	res, _ := engine.Evaluate(ctx, Request{Capability: "crm", Action: "delete_contact"})
	if res.Effect != EffectDeny {
		t.Errorf("Expected EffectDeny for denied action, got %s", res.Effect)
	}

	res, _ = engine.Evaluate(ctx, Request{Capability: "crm", Action: "list_contacts"})
	if res.Effect != EffectAllow {
		t.Errorf("Expected EffectAllow for other actions, got %s", res.Effect)
	}
}

func TestDefaultPolicyEngine_DenyArgumentValues(t *testing.T) {
	engine := NewDefaultPolicyEngine()
	if err := engine.DenyArguments(`@competitor\.com$`); err != nil {
		t.Fatal(err)
	}
	if err := engine.DenyArguments(`(`); err == nil {
		t.Error("Expected invalid pattern to be rejected")
	}
	ctx := context.Background()

	res, _ := engine.Evaluate(ctx, Request{
		Capability: "email",
		Action:     "send",
		Arguments: map[string]any{
			"subject": "Q3",
			"cc":      []any{"me@example.com", "ceo@competitor.com"},
		},
	})
	if res.Effect != EffectDeny {
		t.Fatalf("Expected EffectDeny, got %s", res.Effect)
	}
	if !strings.Contains(res.Reason, "cc[1]") {
		t.Errorf("Expected reason to name the argument, got %q", res.Reason)
	}

	// Keys and JSON syntax are not matched, only values.
	res, _ = engine.Evaluate(ctx, Request{
		Capability: "email",
		Arguments:  map[string]any{"ceo@competitor.com": "hello", "count": 3.0},
	})
	if res.Effect != EffectAllow {
		t.Errorf("Expected EffectAllow when only a key matches, got %s", res.Effect)
	}
}

func TestDefaultPolicyEngine_DenyArgumentsForCapability(t *testing.T) {
	engine := NewDefaultPolicyEngine()
	if err := engine.DenyArgumentsFor("messaging", `^#exec`); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	res, _ := engine.Evaluate(ctx, Request{
		Capability: "messaging",
		Arguments:  map[string]any{"target": map[string]any{"channel": "#exec-team"}},
	})
	if res.Effect != EffectDeny {
		t.Errorf("Expected EffectDeny, got %s", res.Effect)
	}
	if !strings.Contains(res.Reason, "target.channel") {
		t.Errorf("Expected nested path in reason, got %q", res.Reason)
	}

	res, _ = engine.Evaluate(ctx, Request{
		Capability: "crm",
		Arguments:  map[string]any{"note": "#exec review"},
	})
	if res.Effect != EffectAllow {
		t.Errorf("Expected rule to be scoped to messaging, got %s", res.Effect)
	}
}
