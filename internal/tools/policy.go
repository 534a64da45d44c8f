package tools

import "strings"

// PolicyDecision is the result of a policy check.
type PolicyDecision struct {
	Allowed bool
	Reason  string
}

// PolicyEngine is a pluggable capability consulted before a tool runs. It
// is authoritative: neither the Registry nor Resolver reads a tool's
// DefaultPolicy, so the engine's decision is the only one applied.
type PolicyEngine interface {
	CheckPolicy(name string, args map[string]any) (PolicyDecision, error)
}

// Profile is a pre-configured tool access level.
type Profile string

const (
	ProfileMinimal   Profile = "minimal"
	ProfileMessaging Profile = "messaging"
	ProfileFull      Profile = "full"
)

// Policy combines a profile with explicit allow/deny lists. Deny always
// takes precedence over allow.
type Policy struct {
	Profile Profile
	Allow   []string
	Deny    []string
}

// DefaultGroups are built-in tool groups expandable in an Allow/Deny list
// via the "group:<name>" syntax.
var DefaultGroups = map[string][]string{
	"group:memory":    {"save_memory", "memory_search"},
	"group:messaging": {"send_message"},
}

// profileDefaults seeds the allow list for each named profile.
var profileDefaults = map[Profile][]string{
	ProfileMinimal:   {"status"},
	ProfileMessaging: {"group:messaging", "status"},
	ProfileFull:      nil, // allow-all, subject to Deny
}

// NormalizeTool lowercases and trims a tool name for comparison.
func NormalizeTool(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Resolver implements PolicyEngine by resolving a Policy's profile, group,
// and explicit allow/deny entries against a requested tool name.
type Resolver struct {
	policy Policy
}

// NewResolver builds a Resolver for the given policy.
func NewResolver(policy Policy) *Resolver {
	return &Resolver{policy: policy}
}

// CheckPolicy implements PolicyEngine.
func (r *Resolver) CheckPolicy(name string, _ map[string]any) (PolicyDecision, error) {
	if r.IsAllowed(name) {
		return PolicyDecision{Allowed: true}, nil
	}
	return PolicyDecision{Allowed: false, Reason: "not permitted by policy"}, nil
}

// IsAllowed resolves whether name is permitted under the resolver's
// policy: deny entries win over allow entries; an empty allow list under
// ProfileFull allows everything not denied.
func (r *Resolver) IsAllowed(name string) bool {
	name = NormalizeTool(name)

	if matchesAny(r.policy.Deny, name) {
		return false
	}

	allow := append([]string{}, r.policy.Allow...)
	allow = append(allow, profileDefaults[r.policy.Profile]...)

	if r.policy.Profile == ProfileFull && len(r.policy.Allow) == 0 {
		return true
	}

	return matchesAny(allow, name)
}

func matchesAny(patterns []string, name string) bool {
	for _, p := range patterns {
		p = NormalizeTool(p)
		if strings.HasPrefix(p, "group:") {
			for _, member := range DefaultGroups[p] {
				if NormalizeTool(member) == name {
					return true
				}
			}
			continue
		}
		if p == name {
			return true
		}
	}
	return false
}
