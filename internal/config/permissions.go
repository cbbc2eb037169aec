package config

import "strings"

const (
	EntityPayout   = "payout"
	EntityWallet   = "wallet"
	EntityRecovery = "recovery"

	ActionRead  = "read"
	ActionWrite = "write"
)

// Op is a permission, granted to API tokens as "<entity>:<action>" scopes.
type Op struct {
	Entity string
	Action string
}

func (o Op) String() string {
	return o.Entity + ":" + o.Action
}

// ParseScopes parses the space separated scope claim of a token. Unknown
// scopes are ignored.
func ParseScopes(scope string) []Op {
	ops := make([]Op, 0)
	for _, s := range strings.Fields(scope) {
		entity, action, ok := strings.Cut(s, ":")
		if !ok || !isKnown(entity, action) {
			continue
		}
		ops = append(ops, Op{entity, action})
	}
	return ops
}

// AdminPermissions grants access to all protected routes
func AdminPermissions() []Op {
	return []Op{
		{Entity: EntityPayout, Action: ActionRead},
		{Entity: EntityPayout, Action: ActionWrite},
		{Entity: EntityWallet, Action: ActionRead},
		{Entity: EntityRecovery, Action: ActionWrite},
	}
}

// WhitelistedByRoute routes accessible without a token
func WhitelistedByRoute() map[string][]Op {
	return map[string][]Op{
		"GET /healthz": {},
	}
}

// ProtectedByRoute routes requiring a token, keyed by "<method> <path>"
func ProtectedByRoute() map[string][]Op {
	return map[string][]Op{
		"POST /v1/payouts":            {{Entity: EntityPayout, Action: ActionWrite}},
		"GET /v1/payouts":             {{Entity: EntityPayout, Action: ActionRead}},
		"GET /v1/payouts/:id":         {{Entity: EntityPayout, Action: ActionRead}},
		"POST /v1/payouts/:id/cancel": {{Entity: EntityPayout, Action: ActionWrite}},
		"POST /v1/recover":            {{Entity: EntityRecovery, Action: ActionWrite}},
		"GET /v1/wallet":              {{Entity: EntityWallet, Action: ActionRead}},
	}
}

// AllPermissionsByRoute combines whitelisted and protected routes
func AllPermissionsByRoute() map[string][]Op {
	all := make(map[string][]Op)
	for k, v := range WhitelistedByRoute() {
		all[k] = v
	}
	for k, v := range ProtectedByRoute() {
		all[k] = v
	}
	return all
}

func isKnown(entity, action string) bool {
	for _, op := range AdminPermissions() {
		if op.Entity == entity && op.Action == action {
			return true
		}
	}
	return false
}
