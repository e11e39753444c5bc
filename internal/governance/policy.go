package governance

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
)

// Effect defines the result of a policy evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Request describes a capability invocation about to be made, with its
// arguments already resolved.
type Request struct {
	Capability string
	Action     string
	Arguments  map[string]any
	Identity   string
}

// Result contains the outcome of a policy evaluation.
type Result struct {
	Effect Effect
	Reason string
}

// PolicyEngine evaluates capability invocations against a set of rules.
type PolicyEngine interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

// argumentRule denies invocations where any string argument value matches
// re. An empty capability applies the rule to every capability.
type argumentRule struct {
	capability string
	re         *regexp.Regexp
}

// DefaultPolicyEngine denies whole capabilities, single capability actions
// ("crm.delete_contact") and argument values matching a pattern.
type DefaultPolicyEngine struct {
	DeniedCapabilities map[string]bool
	argumentRules      []argumentRule
}

func NewDefaultPolicyEngine() *DefaultPolicyEngine {
	return &DefaultPolicyEngine{
		DeniedCapabilities: make(map[string]bool),
	}
}

func (e *DefaultPolicyEngine) DenyCapability(name string) {
	e.DeniedCapabilities[name] = true
}

// DenyArguments denies any invocation with a string argument value matching
// pattern. Values are matched one at a time, not the encoded payload.
func (e *DefaultPolicyEngine) DenyArguments(pattern string) error {
	return e.DenyArgumentsFor("", pattern)
}

// DenyArgumentsFor is DenyArguments limited to one capability.
func (e *DefaultPolicyEngine) DenyArgumentsFor(capability, pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	e.argumentRules = append(e.argumentRules, argumentRule{capability: capability, re: re})
	return nil
}

func (e *DefaultPolicyEngine) Evaluate(ctx context.Context, req Request) (Result, error) {
	if e.DeniedCapabilities[req.Capability] {
		return Result{
			Effect: EffectDeny,
			Reason: fmt.Sprintf("Capability '%s' is restricted by system policy", req.Capability),
		}, nil
	}
	if req.Action != "" && e.DeniedCapabilities[req.Capability+"."+req.Action] {
		return Result{
			Effect: EffectDeny,
			Reason: fmt.Sprintf("Action '%s' of '%s' is restricted by system policy", req.Action, req.Capability),
		}, nil
	}

	var rules []argumentRule
	for _, r := range e.argumentRules {
		if r.capability == "" || r.capability == req.Capability {
			rules = append(rules, r)
		}
	}
	if len(rules) > 0 {
		var denied *Result
		walkStrings("", req.Arguments, func(path, value string) bool {
			for _, r := range rules {
				if r.re.MatchString(value) {
					denied = &Result{
						Effect: EffectDeny,
						Reason: fmt.Sprintf("Argument '%s' matches restricted pattern: %s", path, r.re.String()),
					}
					return false
				}
			}
			return true
		})
		if denied != nil {
			return *denied, nil
		}
	}

	return Result{
		Effect: EffectAllow,
		Reason: "Approved by default policy",
	}, nil
}

// walkStrings visits every string leaf of v with its path ("to",
// "recipients[1]", "filter.owner"), in sorted key order, until fn returns
// false.
func walkStrings(path string, v any, fn func(path, value string) bool) bool {
	switch t := v.(type) {
	case string:
		return fn(path, t)
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			child := k
			if path != "" {
				child = path + "." + k
			}
			if !walkStrings(child, t[k], fn) {
				return false
			}
		}
	case []any:
		for i, item := range t {
			if !walkStrings(path+"["+strconv.Itoa(i)+"]", item, fn) {
				return false
			}
		}
	}
	return true
}
