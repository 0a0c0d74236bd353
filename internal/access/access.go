// Package access defines access levels, caller roles and the single admission
// predicate shared by every vector store backend.
//
// Levels tag chunks at segmentation time. Roles are asserted by the caller at
// query time. There is no authentication: the role is trusted as given, and any
// value that is not recognized degrades to the least privileged role.
package access

import "strings"

// Level is the access tag attached to a chunk.
type Level string

const (
	// LevelUser is readable by every role.
	LevelUser Level = "user"
	// LevelAdmin is readable by the admin role only.
	LevelAdmin Level = "admin"
)

// Levels lists every valid level in privilege order.
var Levels = []Level{LevelUser, LevelAdmin}

// ParseLevel returns the level named by s. Level tokens are exact and lower-case.
func ParseLevel(s string) (Level, bool) {
	switch Level(s) {
	case LevelUser:
		return LevelUser, true
	case LevelAdmin:
		return LevelAdmin, true
	default:
		return "", false
	}
}

// Valid reports whether l is one of the known levels.
func (l Level) Valid() bool {
	_, ok := ParseLevel(string(l))
	return ok
}

func (l Level) String() string { return string(l) }

// Role is the caller-asserted privilege used to filter search results.
type Role string

const (
	// RoleUser sees user-level chunks only.
	RoleUser Role = "user"
	// RoleAdmin sees every chunk.
	RoleAdmin Role = "admin"
)

// ParseRole maps a caller-provided string to a Role. Matching is
// case-insensitive and ignores surrounding whitespace. Empty or unrecognized
// values fall back to RoleUser.
func ParseRole(s string) Role {
	r, _ := LookupRole(s)
	return r
}

// LookupRole is ParseRole that also reports whether s named a known role.
// The returned role is RoleUser when ok is false.
func LookupRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(RoleAdmin):
		return RoleAdmin, true
	case string(RoleUser):
		return RoleUser, true
	default:
		return RoleUser, false
	}
}

func (r Role) String() string { return string(r) }

// Toggle returns the other role. Used by the interactive shell's "switch".
func (r Role) Toggle() Role {
	if r == RoleAdmin {
		return RoleUser
	}
	return RoleAdmin
}

// Decision is the outcome of an admission check.
type Decision bool

const (
	Reject Decision = false
	Admit  Decision = true
)

func (d Decision) String() string {
	if d {
		return "admit"
	}
	return "reject"
}

// Decide is the authorization predicate. A chunk is admitted iff the role is
// admin or the chunk is user-level. Roles outside the closed set are treated as
// RoleUser, and chunks carrying an unknown level are only visible to admin.
func Decide(level Level, role Role) Decision {
	if normalize(role) == RoleAdmin {
		return Admit
	}
	return Decision(level == LevelUser)
}

// Admits is Decide as a bool.
func Admits(level Level, role Role) bool {
	return bool(Decide(level, role))
}

// AdmissibleLevels expresses Decide as the set of levels a role may read, for
// backends that evaluate the predicate inside the index.
func AdmissibleLevels(role Role) []Level {
	out := make([]Level, 0, len(Levels))
	for _, l := range Levels {
		if Admits(l, role) {
			out = append(out, l)
		}
	}
	return out
}

func normalize(r Role) Role {
	if r == RoleAdmin {
		return RoleAdmin
	}
	return RoleUser
}
