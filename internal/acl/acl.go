// Package acl decides which pipeline groups a user may call.
//
// Rules live in a JSON file mapping group names to the user ids and roles
// admitted to the group:
//
//	{"kb_admin": {"user_ids": ["1"], "roles": ["admin"]}}
//
// Membership is additive: a user belongs to every group whose rule lists
// either their id or their role. There are no deny rules.
package acl

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/Dmi3yy/webui-pipes/internal/domain"
	"github.com/Dmi3yy/webui-pipes/internal/filecache"
	"github.com/Dmi3yy/webui-pipes/internal/manifest"
	"github.com/Dmi3yy/webui-pipes/internal/metrics"
)

// Rule lists the members of one group.
type Rule struct {
	UserIDs []string `json:"user_ids"`
	Roles   []string `json:"roles"`
}

// Matches reports whether the user id or role appears in the rule.
func (r Rule) Matches(userID, role string) bool {
	for _, id := range r.UserIDs {
		if id == userID {
			return true
		}
	}
	for _, rr := range r.Roles {
		if rr == role {
			return true
		}
	}
	return false
}

// Rules maps group names to their rule.
type Rules map[string]Rule

// Decode parses an ACL document. A document that is not a JSON object yields
// no rules; group values that are not objects are skipped, and ids or roles
// that are not strings are stringified.
func Decode(data []byte) Rules {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Rules{}
	}
	rules := make(Rules, len(raw))
	for group, v := range raw {
		obj, ok := v.(map[string]any)
		if !ok {
			continue
		}
		rules[group] = Rule{
			UserIDs: stringList(obj["user_ids"]),
			Roles:   stringList(obj["roles"]),
		}
	}
	return rules
}

func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		switch t := item.(type) {
		case string:
			out = append(out, t)
		case nil:
			out = append(out, "None")
		default:
			out = append(out, fmt.Sprint(t))
		}
	}
	return out
}

// Loader reads the ACL file through a 60 second cache.
type Loader struct {
	cache *filecache.Cache[Rules]
}

// NewLoader creates a loader for path.
func NewLoader(path string, logger *slog.Logger, opts ...filecache.Option) *Loader {
	if logger != nil {
		opts = append([]filecache.Option{filecache.WithLogger(logger)}, opts...)
	}
	return &Loader{
		cache: filecache.New(path, Decode, func(r Rules) bool { return len(r) == 0 }, opts...),
	}
}

// Load returns the current rules.
func (l *Loader) Load() Rules {
	return l.cache.Load()
}

// Path returns the ACL file path.
func (l *Loader) Path() string {
	return l.cache.Path()
}

// SetPath switches to another ACL file.
func (l *Loader) SetPath(path string) {
	l.cache.SetPath(path)
}

// AllowedGroups returns the groups the user belongs to, sorted by name.
// A nil user belongs to no group.
func (l *Loader) AllowedGroups(user *domain.User) []string {
	if user == nil {
		return nil
	}
	return GroupsFor(l.Load(), user)
}

// IsPipeAllowed reports whether the manifest declares pipeID in a group the
// user belongs to. An empty pipeID is never allowed.
func (l *Loader) IsPipeAllowed(pipeID string, user *domain.User, entries []manifest.Entry) bool {
	if pipeID == "" {
		metrics.ACLDecisionsTotal.WithLabelValues("deny").Inc()
		return false
	}
	allowed := toSet(l.AllowedGroups(user))
	for _, e := range entries {
		if e.ID == pipeID {
			if _, ok := allowed[e.Group]; ok {
				metrics.ACLDecisionsTotal.WithLabelValues("allow").Inc()
				return true
			}
		}
	}
	metrics.ACLDecisionsTotal.WithLabelValues("deny").Inc()
	return false
}

// FilterManifest returns the manifest entries whose group the user belongs to.
func (l *Loader) FilterManifest(user *domain.User, entries []manifest.Entry) []manifest.Entry {
	allowed := toSet(l.AllowedGroups(user))
	out := make([]manifest.Entry, 0, len(entries))
	for _, e := range entries {
		if _, ok := allowed[e.Group]; ok {
			out = append(out, e)
		}
	}
	return out
}

// GroupsFor evaluates rules for a user.
func GroupsFor(rules Rules, user *domain.User) []string {
	if user == nil {
		return nil
	}
	var groups []string
	for group, rule := range rules {
		if rule.Matches(user.ID, user.Role) {
			groups = append(groups, group)
		}
	}
	sort.Strings(groups)
	return groups
}

func toSet(groups []string) map[string]struct{} {
	set := make(map[string]struct{}, len(groups))
	for _, g := range groups {
		set[g] = struct{}{}
	}
	return set
}
