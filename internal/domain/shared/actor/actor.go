package actor

import (
	"errors"
	"strings"
)

var ErrUnknownRole = errors.New("actor: unknown role")

// Role is the party on whose behalf a transition is requested.
type Role string

const (
	Renter Role = "renter"
	Owner  Role = "owner"
	System Role = "system"
)

// ParseRole accepts the wire spelling, including the legacy "student" alias for renters.
func ParseRole(raw string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "renter", "student", "tenant":
		return Renter, nil
	case "owner", "host":
		return Owner, nil
	case "system":
		return System, nil
	}
	return "", ErrUnknownRole
}

// Actor identifies who asked for a transition. System actors carry no id.
type Actor struct {
	Role Role   `json:"role"`
	ID   string `json:"id,omitempty"`
}

func NewRenter(id string) Actor { return Actor{Role: Renter, ID: id} }

func NewOwner(id string) Actor { return Actor{Role: Owner, ID: id} }

func NewSystem() Actor { return Actor{Role: System} }
