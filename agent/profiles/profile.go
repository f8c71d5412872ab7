package profiles

import (
	"slices"
	"strings"
)

// AgentProfile describes a named role that tasks are dispatched to.
// Profiles are copied on registration and on resolution, so a registered
// profile cannot be changed by the caller afterwards.
type AgentProfile struct {
	ID           string   `json:"id"`
	Role         string   `json:"role"`
	Objective    string   `json:"objective"`
	Persona      string   `json:"persona,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// HasCapability reports whether the profile may invoke the named capability.
func (p AgentProfile) HasCapability(name string) bool {
	return slices.Contains(p.Capabilities, name)
}

// MissingCapabilities returns the required capabilities the profile lacks,
// in the order they were requested.
func (p AgentProfile) MissingCapabilities(required []string) []string {
	var missing []string
	for _, name := range required {
		if !p.HasCapability(name) && !slices.Contains(missing, name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// String returns "id (role)".
func (p AgentProfile) String() string {
	if p.Role == "" {
		return p.ID
	}
	return p.ID + " (" + p.Role + ")"
}

func (p AgentProfile) clone() AgentProfile {
	p.ID = strings.TrimSpace(p.ID)
	p.Capabilities = slices.Clone(p.Capabilities)
	return p
}
