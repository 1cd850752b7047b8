package state

import (
	"encoding/json"
	"strconv"

	"github.com/bwmarrin/discordgo"
)

// Permissions is a permission bitfield.
type Permissions int64

const (
	PermissionViewChannel    Permissions = discordgo.PermissionViewChannel
	PermissionSendMessages   Permissions = discordgo.PermissionSendMessages
	PermissionManageMessages Permissions = discordgo.PermissionManageMessages
	PermissionAdministrator  Permissions = discordgo.PermissionAdministrator
	PermissionAll            Permissions = discordgo.PermissionAll
)

// Has reports whether every bit in want is set.
func (p Permissions) Has(want Permissions) bool { return p&want == want }

// apply clears denied bits, then sets allowed bits.
func (p Permissions) apply(deny, allow Permissions) Permissions {
	return (p &^ deny) | allow
}

// UnmarshalJSON accepts both the string and the numeric encoding.
func (p *Permissions) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if s == "" {
			*p = 0
			return nil
		}
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return err
		}
		*p = Permissions(v)
		return nil
	}
	var v int64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*p = Permissions(v)
	return nil
}

func (p Permissions) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatInt(int64(p), 10))
}

// OverwriteType says whether a permission overwrite targets a role or a member.
type OverwriteType int

const (
	OverwriteRole   OverwriteType = 0
	OverwriteMember OverwriteType = 1
)

// UnmarshalJSON also accepts the legacy "role" / "member" strings.
func (t *OverwriteType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if s == "member" {
			*t = OverwriteMember
		} else {
			*t = OverwriteRole
		}
		return nil
	}
	var v int
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*t = OverwriteType(v)
	return nil
}

// PermissionOverwrite adjusts permissions for a role or member in one channel.
type PermissionOverwrite struct {
	ID    string
	Type  OverwriteType
	Allow Permissions
	Deny  Permissions
}

func (o *PermissionOverwrite) Key() string { return o.ID }

// PermissionsFor resolves the effective permissions of member in channel.
//
// Base permissions are the union of the @everyone role and the member's
// roles. The guild owner and administrators get everything. Channel
// overwrites are then applied in order: @everyone, the member's roles
// (accumulated), the member itself.
func (g *Guild) PermissionsFor(member *Member, channel Channel) Permissions {
	base := g.BasePermissions(member)
	if base.Has(PermissionAdministrator) {
		return PermissionAll
	}
	gc, ok := channel.(GuildScoped)
	if !ok {
		return base
	}
	overwrites := gc.PermissionOverwrites()
	if overwrites == nil {
		return base
	}

	perms := base
	if ow, ok := overwrites.Get(g.ID); ok {
		perms = perms.apply(ow.Deny, ow.Allow)
	}

	var deny, allow Permissions
	for _, roleID := range member.Roles {
		if ow, ok := overwrites.Get(roleID); ok && ow.Type == OverwriteRole {
			deny |= ow.Deny
			allow |= ow.Allow
		}
	}
	perms = perms.apply(deny, allow)

	if ow, ok := overwrites.Get(member.ID); ok && ow.Type == OverwriteMember {
		perms = perms.apply(ow.Deny, ow.Allow)
	}
	return perms
}

// BasePermissions returns the guild-level permissions of member.
func (g *Guild) BasePermissions(member *Member) Permissions {
	if member.ID == g.OwnerID && g.OwnerID != "" {
		return PermissionAll
	}
	var perms Permissions
	if everyone, ok := g.Roles.Get(g.ID); ok {
		perms = everyone.Permissions
	}
	for _, roleID := range member.Roles {
		if role, ok := g.Roles.Get(roleID); ok {
			perms |= role.Permissions
		}
	}
	if perms.Has(PermissionAdministrator) {
		return PermissionAll
	}
	return perms
}
