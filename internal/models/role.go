package models

import (
	"fmt"
)

// Role is the closed set of hierarchy roles. The ordinal doubles as the
// hierarchy level: Top is 0, Agent is the bottom of the chain.
type Role int

const (
	RoleTop Role = iota
	RoleRegionalHead
	RoleMasterDistributor
	RoleDistributor
	RoleAgent
)

var roleNames = map[Role]string{
	RoleTop:               "TOP",
	RoleRegionalHead:      "REGIONAL_HEAD",
	RoleMasterDistributor: "MASTER_DISTRIBUTOR",
	RoleDistributor:       "DISTRIBUTOR",
	RoleAgent:             "AGENT",
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("ROLE(%d)", int(r))
}

// Level is the hierarchy depth of the role, 0 being the top.
func (r Role) Level() int {
	return int(r)
}

func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// ParseRole validates an external role name at the ingestion boundary.
func ParseRole(name string) (Role, error) {
	for r, n := range roleNames {
		if n == name {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown role name %q", name)
}
