package behavior

import "strings"

// LocationRole is what a camera's location label means for entry/exit tracking.
// A label may be both an entry and an exit point.
type LocationRole uint8

const (
	RoleNone  LocationRole = 0
	RoleEntry LocationRole = 1
	RoleExit  LocationRole = 2
)

func (r LocationRole) IsEntry() bool { return r&RoleEntry != 0 }
func (r LocationRole) IsExit() bool  { return r&RoleExit != 0 }

func (r LocationRole) String() string {
	switch r {
	case RoleEntry:
		return "entry"
	case RoleExit:
		return "exit"
	case RoleEntry | RoleExit:
		return "entry|exit"
	default:
		return "none"
	}
}

// LocationClassifier maps a location label to its entry/exit role.
type LocationClassifier interface {
	Classify(location string) LocationRole
}

// SubstringClassifier matches label text case-insensitively: "entry" or "entrance"
// marks an entry point and "exit" marks an exit point. The two are independent.
type SubstringClassifier struct{}

func (SubstringClassifier) Classify(location string) LocationRole {
	loc := strings.ToLower(location)
	role := RoleNone
	if strings.Contains(loc, "entry") || strings.Contains(loc, "entrance") {
		role |= RoleEntry
	}
	if strings.Contains(loc, "exit") {
		role |= RoleExit
	}
	return role
}

// RoleMap classifies by exact label with a fallback for unlisted labels.
type RoleMap struct {
	Roles    map[string]LocationRole
	Fallback LocationClassifier
}

func (m RoleMap) Classify(location string) LocationRole {
	if r, ok := m.Roles[location]; ok {
		return r
	}
	if m.Fallback != nil {
		return m.Fallback.Classify(location)
	}
	return RoleNone
}
