package state

import (
	"time"

	"github.com/bwmarrin/discordgo"
)

// User is a gateway user. Users are shared: every member, message author
// and recipient referring to the same id points at one instance.
type User struct {
	ID            string
	Username      string
	Discriminator string
	GlobalName    string
	Avatar        string
	Bot           bool
	System        bool
}

// UserSnapshot holds the mutable fields of a User before an update.
type UserSnapshot struct {
	Username      string
	Discriminator string
	GlobalName    string
	Avatar        string
}

func newUser(p *UserPayload) *User {
	u := &User{ID: p.ID}
	u.update(p)
	return u
}

func (u *User) Key() string { return u.ID }

// update applies the fields present in p and reports whether any
// user-visible field changed.
func (u *User) update(p *UserPayload) bool {
	before := u.Snapshot()
	assign(&u.Username, p.Username)
	assign(&u.Discriminator, p.Discriminator)
	assign(&u.GlobalName, p.GlobalName)
	assign(&u.Avatar, p.Avatar)
	assign(&u.Bot, p.Bot)
	assign(&u.System, p.System)
	return before != u.Snapshot()
}

func (u *User) Snapshot() UserSnapshot {
	return UserSnapshot{
		Username:      u.Username,
		Discriminator: u.Discriminator,
		GlobalName:    u.GlobalName,
		Avatar:        u.Avatar,
	}
}

// Mention returns the mention markup for the user.
func (u *User) Mention() string { return "<@" + u.ID + ">" }

// Tag returns username#discriminator, or just the username for accounts
// migrated to unique usernames.
func (u *User) Tag() string {
	if u.Discriminator == "" || u.Discriminator == "0" {
		return u.Username
	}
	return u.Username + "#" + u.Discriminator
}

// DisplayName prefers the global display name over the username.
func (u *User) DisplayName() string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

// CreatedAt decodes the creation time from the snowflake.
func (u *User) CreatedAt() time.Time {
	t, _ := discordgo.SnowflakeTimestamp(u.ID)
	return t
}
