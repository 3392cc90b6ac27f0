// Package privilege implements the role hierarchy used for member
// administration. Levels form a strict total order; all decisions are pure
// functions over that order.
package privilege

// Level is a member's position in the role hierarchy.
type Level int

// The fixed role hierarchy, lowest to highest.
const (
	None Level = iota
	Member
	Voluntary
	GroupLeader
	Stortinget
	IT
)

var names = map[Level]string{
	None:        "none",
	Member:      "member",
	Voluntary:   "voluntary",
	GroupLeader: "group_leader",
	Stortinget:  "stortinget",
	IT:          "it",
}

func (l Level) String() string {
	if name, ok := names[l]; ok {
		return name
	}
	return "none"
}

// Valid reports whether l is one of the defined levels.
func (l Level) Valid() bool {
	return l >= None && l <= IT
}

// Normalize coerces an arbitrary stored value to a valid level. Anything
// outside the defined range maps to None; this function never fails.
func Normalize(raw int) Level {
	level := Level(raw)
	if !level.Valid() {
		return None
	}
	return level
}

// NormalizePtr is Normalize for nullable storage columns.
func NormalizePtr(raw *int) Level {
	if raw == nil {
		return None
	}
	return Normalize(*raw)
}

// CanAssign reports whether an actor may set a target member to the requested
// level. The actor must outrank both the requested level and the target's
// current level; nobody can grant a level at or above their own.
func CanAssign(actor, requested Level, current ...Level) bool {
	if !CanEditMembers(actor) {
		return false
	}
	if requested >= actor {
		return false
	}
	for _, c := range current {
		if c >= actor {
			return false
		}
	}
	return true
}

// CanSetOwn reports whether an actor may change their own level to next.
// Lowering or keeping the current level is allowed; raising it is not.
func CanSetOwn(actor, next Level) bool {
	return next <= actor
}

// CanEditMembers reports whether the actor may use member management at all.
func CanEditMembers(actor Level) bool {
	return actor >= Voluntary
}

// MaxAssignable returns the highest level the actor may assign to someone
// else, one below their own. Actors without member management access get None.
func MaxAssignable(actor Level) Level {
	if !CanEditMembers(actor) {
		return None
	}
	return actor - 1
}
