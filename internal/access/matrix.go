// Package access evaluates the role and territory rules that gate account
// management. Every check returns nil or a *common.AuthorizationError naming
// the rule that denied it.
package access

import (
	"slices"

	"github.com/dmitrijs2005/staffkeeper/internal/common"
	"github.com/dmitrijs2005/staffkeeper/internal/server/models"
)

type grant struct {
	// roles that may be given to a new account
	create []models.Role
	// roles a target may be moved to
	changeTo []models.Role
	// roles of targets the actor may reset, edit, move, re-role or delete
	manage []models.Role
	// false means own territory only
	anyTerritory bool
	rename       bool
	list         bool
}

var matrix = map[models.Role]grant{
	models.RoleSuperAdmin: {
		create:       []models.Role{models.RoleUser, models.RoleAdmin},
		changeTo:     []models.Role{models.RoleUser, models.RoleAdmin},
		manage:       []models.Role{models.RoleUser, models.RoleAdmin, models.RoleSuperAdmin},
		anyTerritory: true,
		rename:       true,
		list:         true,
	},
	models.RoleAdmin: {
		create:   []models.Role{models.RoleUser},
		changeTo: []models.Role{models.RoleUser},
		manage:   []models.Role{models.RoleUser},
		list:     true,
	},
	models.RoleUser: {},
}

func grantOf(actor *models.Principal) (grant, error) {
	if actor == nil {
		return grant{}, common.Denied("actor.missing")
	}
	g, ok := matrix[actor.Role]
	if !ok {
		return grant{}, common.Denied("actor.unknown_role")
	}
	return g, nil
}

func self(actor, target *models.Principal) bool {
	return actor.Login == target.Login
}

// manage checks that actor may act on target under the given operation name.
func manage(g grant, actor, target *models.Principal, op string) error {
	if target.Role.Rank() > actor.Role.Rank() || !slices.Contains(g.manage, target.Role) {
		return common.Denied(op + ".target_role_not_allowed")
	}
	if !g.anyTerritory && target.Territory != actor.Territory {
		return common.Denied(op + ".territory_outside_scope")
	}
	return nil
}

// CanCreate checks provisioning an account with role in territory.
func CanCreate(actor *models.Principal, role models.Role, territory models.Territory) error {
	g, err := grantOf(actor)
	if err != nil {
		return err
	}
	if !slices.Contains(g.create, role) {
		return common.Denied("create.role_not_allowed")
	}
	if !g.anyTerritory && territory != actor.Territory {
		return common.Denied("create.territory_outside_scope")
	}
	return nil
}

// CanChangeRole checks moving target to newRole. Nobody changes their own role.
func CanChangeRole(actor, target *models.Principal, newRole models.Role) error {
	g, err := grantOf(actor)
	if err != nil {
		return err
	}
	if self(actor, target) {
		return common.Denied("role.self")
	}
	if err := manage(g, actor, target, "role"); err != nil {
		return err
	}
	if !slices.Contains(g.changeTo, newRole) {
		return common.Denied("role.new_role_not_allowed")
	}
	return nil
}

// CanDelete checks deleting target. Nobody deletes themselves.
func CanDelete(actor, target *models.Principal) error {
	g, err := grantOf(actor)
	if err != nil {
		return err
	}
	if self(actor, target) {
		return common.Denied("delete.self")
	}
	return manage(g, actor, target, "delete")
}

// CanResetPassword checks an administrative reset. Own passwords are changed,
// not reset.
func CanResetPassword(actor, target *models.Principal) error {
	g, err := grantOf(actor)
	if err != nil {
		return err
	}
	if self(actor, target) {
		return common.Denied("reset.self")
	}
	return manage(g, actor, target, "reset")
}

// CanEdit checks changing target's given and family names. Privileged actors
// may edit their own names.
func CanEdit(actor, target *models.Principal) error {
	g, err := grantOf(actor)
	if err != nil {
		return err
	}
	if self(actor, target) {
		if actor.Role.Privileged() {
			return nil
		}
		return common.Denied("edit.self")
	}
	return manage(g, actor, target, "edit")
}

// CanAssignTerritory checks moving target to territory.
func CanAssignTerritory(actor, target *models.Principal, territory models.Territory) error {
	g, err := grantOf(actor)
	if err != nil {
		return err
	}
	if self(actor, target) {
		return common.Denied("territory.self")
	}
	if err := manage(g, actor, target, "territory"); err != nil {
		return err
	}
	if !g.anyTerritory && territory != actor.Territory {
		return common.Denied("territory.outside_scope")
	}
	return nil
}

// CanRename checks an administrative login rename. Nobody renames
// themselves.
func CanRename(actor, target *models.Principal) error {
	g, err := grantOf(actor)
	if err != nil {
		return err
	}
	if !g.rename {
		return common.Denied("rename.not_allowed")
	}
	if self(actor, target) {
		return common.Denied("rename.self")
	}
	return manage(g, actor, target, "rename")
}

// CanList checks listing all accounts.
func CanList(actor *models.Principal) error {
	g, err := grantOf(actor)
	if err != nil {
		return err
	}
	if !g.list {
		return common.Denied("list.not_allowed")
	}
	return nil
}

// CanView checks reading target's profile. Everyone may read their own;
// otherwise the listing scope applies.
func CanView(actor, target *models.Principal) error {
	if actor != nil && target != nil && self(actor, target) {
		return nil
	}
	if err := CanList(actor); err != nil {
		return err
	}
	if !matrix[actor.Role].anyTerritory && target.Territory != actor.Territory {
		return common.Denied("view.territory_outside_scope")
	}
	return nil
}

// ListScope resolves the territory a listing may cover. SuperAdmin lists any
// territory (empty means all); Admin is pinned to its own.
func ListScope(actor *models.Principal, territory models.Territory) (models.Territory, error) {
	if err := CanList(actor); err != nil {
		return "", err
	}
	g := matrix[actor.Role]
	if g.anyTerritory {
		return territory, nil
	}
	if territory != "" && territory != actor.Territory {
		return "", common.Denied("list.territory_outside_scope")
	}
	return actor.Territory, nil
}
