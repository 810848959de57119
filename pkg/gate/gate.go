// Package gate defines the contract the auth gateway offers to content
// visibility filters: a read-only view of the current session sufficient to
// decide whether a piece of content may be shown.
package gate

import "context"

// Level is the audience level of the current visitor. Levels are ordered:
// content gated at a level is visible to that level and above.
type Level int

const (
	// LevelAnonymous is the well-defined "no valid session" value.
	LevelAnonymous Level = iota
	// LevelSubscriber is an authenticated visitor without membership.
	LevelSubscriber
	// LevelMember is an authenticated visitor with an active membership.
	LevelMember
)

func (l Level) String() string {
	switch l {
	case LevelSubscriber:
		return "subscriber"
	case LevelMember:
		return "member"
	default:
		return "anonymous"
	}
}

// ParseLevel is the inverse of Level.String. Unknown input parses as
// anonymous, so a consumer misreading the wire value fails closed.
func ParseLevel(s string) Level {
	switch s {
	case "subscriber":
		return LevelSubscriber
	case "member":
		return LevelMember
	default:
		return LevelAnonymous
	}
}

// Gate is implemented by the authenticator. The tokenID is the opaque value
// carried by the browser cookie; callers pass it through verbatim and must
// not interpret it. All methods are safe to call with an empty or stale
// tokenID and then report the anonymous case, never an error.
type Gate interface {
	// SessionValid reports whether the session behind tokenID is still
	// established server-side. A fresh-looking cookie whose server state was
	// removed (logout, expiry, backchannel logout) reports false.
	SessionValid(ctx context.Context, tokenID string) bool

	// CurrentLevel returns the visitor's level, LevelAnonymous when no valid
	// session exists.
	CurrentLevel(ctx context.Context, tokenID string) Level

	// CurrentPersonUID returns the stable person identifier from the session
	// claims. ok is false for anonymous sessions or when the provider did not
	// assert one.
	CurrentPersonUID(ctx context.Context, tokenID string) (uid string, ok bool)
}
