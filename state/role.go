package state

// Role is a guild role.
type Role struct {
	ID          string
	GuildID     string
	Name        string
	Color       int
	Hoist       bool
	Managed     bool
	Mentionable bool
	Position    int
	Permissions Permissions
}

type RoleSnapshot struct {
	Name        string
	Color       int
	Hoist       bool
	Managed     bool
	Mentionable bool
	Position    int
	Permissions Permissions
}

func newRole(guildID string, p *RolePayload) *Role {
	r := &Role{ID: p.ID, GuildID: guildID}
	r.update(p)
	return r
}

func (r *Role) Key() string { return r.ID }

func (r *Role) update(p *RolePayload) {
	assign(&r.Name, p.Name)
	assign(&r.Color, p.Color)
	assign(&r.Hoist, p.Hoist)
	assign(&r.Managed, p.Managed)
	assign(&r.Mentionable, p.Mentionable)
	assign(&r.Position, p.Position)
	assign(&r.Permissions, p.Permissions)
}

func (r *Role) Snapshot() RoleSnapshot {
	return RoleSnapshot{
		Name:        r.Name,
		Color:       r.Color,
		Hoist:       r.Hoist,
		Managed:     r.Managed,
		Mentionable: r.Mentionable,
		Position:    r.Position,
		Permissions: r.Permissions,
	}
}

// Mention returns the mention markup for the role.
func (r *Role) Mention() string { return "<@&" + r.ID + ">" }

// IsEveryone reports whether r is the guild's implicit @everyone role.
func (r *Role) IsEveryone() bool { return r.ID == r.GuildID }
