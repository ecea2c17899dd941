// Package models holds the server-side domain types.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/staffkeeper/internal/cryptox"
)

// Role is the authority tier of a principal: User < Admin < SuperAdmin.
type Role string

const (
	RoleUser       Role = "User"
	RoleAdmin      Role = "Admin"
	RoleSuperAdmin Role = "SuperAdmin"
)

// Rank orders roles by authority. Unknown roles rank below User.
func (r Role) Rank() int {
	switch r {
	case RoleUser:
		return 1
	case RoleAdmin:
		return 2
	case RoleSuperAdmin:
		return 3
	default:
		return 0
	}
}

// Privileged reports whether the role occupies a territory's governance seat.
func (r Role) Privileged() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

func (r Role) Valid() bool { return r.Rank() > 0 }

// ParseRole accepts the canonical names case-insensitively, plus the
// "Super Admin" spelling used by older data.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", "")) {
	case "user":
		return RoleUser, nil
	case "admin":
		return RoleAdmin, nil
	case "superadmin":
		return RoleSuperAdmin, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Territory is one of the organization's sites.
type Territory string

const (
	Paris     Territory = "Paris"
	Marseille Territory = "Marseille"
	Rennes    Territory = "Rennes"
	Grenoble  Territory = "Grenoble"
)

// Territories lists every known site.
var Territories = []Territory{Paris, Marseille, Rennes, Grenoble}

func (t Territory) Valid() bool {
	for _, known := range Territories {
		if t == known {
			return true
		}
	}
	return false
}

func ParseTerritory(s string) (Territory, error) {
	for _, known := range Territories {
		if strings.EqualFold(strings.TrimSpace(s), string(known)) {
			return known, nil
		}
	}
	return "", fmt.Errorf("unknown territory %q", s)
}

// Principal is a staff account.
type Principal struct {
	ID             string
	Login          string
	GivenName      string
	FamilyName     string
	Territory      Territory
	Role           Role
	Credential     cryptox.Credential
	PasswordExpiry time.Time
	LockedUntil    *time.Time
	CreatedAt      time.Time
}

func (p *Principal) FullName() string {
	return p.GivenName + " " + p.FamilyName
}

// PasswordExpired reports whether the password is past its expiry at now.
func (p *Principal) PasswordExpired(now time.Time) bool {
	return !p.PasswordExpiry.IsZero() && !p.PasswordExpiry.After(now)
}

// PrincipalPatch lists the fields to change. Nil fields are left as they are.
type PrincipalPatch struct {
	GivenName      *string
	FamilyName     *string
	Territory      *Territory
	Role           *Role
	Credential     *cryptox.Credential
	PasswordExpiry *time.Time
}

func (p PrincipalPatch) Empty() bool {
	return p.GivenName == nil && p.FamilyName == nil && p.Territory == nil &&
		p.Role == nil && p.Credential == nil && p.PasswordExpiry == nil
}

// Apply copies the set fields onto dst.
func (p PrincipalPatch) Apply(dst *Principal) {
	if p.GivenName != nil {
		dst.GivenName = *p.GivenName
	}
	if p.FamilyName != nil {
		dst.FamilyName = *p.FamilyName
	}
	if p.Territory != nil {
		dst.Territory = *p.Territory
	}
	if p.Role != nil {
		dst.Role = *p.Role
	}
	if p.Credential != nil {
		dst.Credential = *p.Credential
	}
	if p.PasswordExpiry != nil {
		dst.PasswordExpiry = *p.PasswordExpiry
	}
}

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	Territory Territory
	Role      Role
}
