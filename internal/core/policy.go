package core

import (
	"fmt"
	"strings"
)

// Policy restricts which registered tools a deployment exposes. An empty
// allowlist means "allow nothing".
type Policy struct {
	allowedTools map[string]bool
}

// NewPolicy creates a Policy from an allowlist of tool names.
func NewPolicy(tools []string) *Policy {
	m := make(map[string]bool, len(tools))
	for _, t := range tools {
		t = strings.TrimSpace(t)
		if t != "" {
			m[t] = true
		}
	}
	return &Policy{allowedTools: m}
}

// CheckTool returns an error if toolName is not in the allowlist.
func (p *Policy) CheckTool(toolName string) error {
	if len(p.allowedTools) == 0 {
		return fmt.Errorf("no tools allowed (allowlist is empty)")
	}
	if !p.allowedTools[toolName] {
		return fmt.Errorf("tool %q not in allowlist", toolName)
	}
	return nil
}
