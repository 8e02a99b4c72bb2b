// Package policy governs the server's API key policy: it decides
// whether a caller without their own OpenAI-compatible API key may
// fall back to the server's key, either for everyone or for a
// configured allow-list of caller identifiers.
package policy

import (
	"strings"
	"sync"
)

const (
	PolicyAllUsers        = "all"
	PolicyDesignatedUsers = "designated"
)

// APIKeyPolicy governs whether a caller may use the server's OpenAI
// API key in place of their own.
type APIKeyPolicy struct {
	mu         sync.RWMutex
	policy     string
	designated map[string]bool
}

// New builds a policy from the SERVER_OPENAI_API_KEY_POLICY value and
// a comma-separated DESIGNATED_CALLERS list, mirroring config.Load.
func New(policyName string, designatedCallers []string) *APIKeyPolicy {
	p := &APIKeyPolicy{
		policy:     PolicyAllUsers,
		designated: make(map[string]bool),
	}
	if policyName == PolicyDesignatedUsers {
		p.policy = PolicyDesignatedUsers
	}
	for _, id := range designatedCallers {
		if id = strings.TrimSpace(id); id != "" {
			p.designated[id] = true
		}
	}
	return p
}

// CanUseServerKey reports whether callerID may fall back to the
// server's API key.
func (p *APIKeyPolicy) CanUseServerKey(callerID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.policy == PolicyAllUsers {
		return true
	}
	return p.designated[callerID]
}

// ResolveKey returns the API key to use: callerKey if non-empty,
// otherwise the server key if policy permits it for callerID. ok is
// false when no usable key is available.
func (p *APIKeyPolicy) ResolveKey(callerKey, serverKey, callerID string) (key string, ok bool) {
	if callerKey != "" {
		return callerKey, true
	}
	if p.CanUseServerKey(callerID) && serverKey != "" {
		return serverKey, true
	}
	return "", false
}
