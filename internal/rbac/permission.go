package rbac

import "strings"

// Permission is the parsed form of a grant string. Grants use a closed
// two-segment grammar "action:resource" where either segment may be the
// wildcard "*". A bare "*" grants everything. Single-segment grants carry
// no resource and only ever match verbatim.
type Permission struct {
	Action      string
	Resource    string
	AnyAction   bool
	AnyResource bool
}

// ParsePermission normalizes and parses a grant string. The boolean result
// is false for malformed grants (empty, too many segments, empty segment),
// which callers must treat as granting nothing.
func ParsePermission(s string) (Permission, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Permission{}, false
	}
	if s == "*" {
		return Permission{Action: "*", Resource: "*", AnyAction: true, AnyResource: true}, true
	}
	parts := strings.Split(s, ":")
	switch len(parts) {
	case 1:
		return Permission{Action: parts[0]}, true
	case 2:
		action, resource := parts[0], parts[1]
		if action == "" || resource == "" {
			return Permission{}, false
		}
		return Permission{
			Action:      action,
			Resource:    resource,
			AnyAction:   action == "*",
			AnyResource: resource == "*",
		}, true
	default:
		return Permission{}, false
	}
}

// Matches reports whether the grant allows the requested action on the
// requested resource. Wildcards match any value in their segment; a grant
// without a resource segment matches only a request without one.
func (p Permission) Matches(action, resource string) bool {
	if !p.AnyAction && p.Action != action {
		return false
	}
	if !p.AnyResource && p.Resource != resource {
		return false
	}
	return true
}

// String reassembles the canonical grant form.
func (p Permission) String() string {
	if p.Resource == "" {
		return p.Action
	}
	return p.Action + ":" + p.Resource
}

// splitQuery breaks a queried permission string into its action and resource
// segments. Queries follow the same grammar as grants minus wildcards.
func splitQuery(s string) (action, resource string) {
	s = strings.ToLower(strings.TrimSpace(s))
	if idx := strings.IndexByte(s, ':'); idx >= 0 {
		return s[:idx], s[idx+1:]
	}
	return s, ""
}
