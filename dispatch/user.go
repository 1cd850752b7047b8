package dispatch

import (
	"encoding/json"
	"time"

	"github.com/EasterCompany/dex-discord-gateway/events"
	"github.com/EasterCompany/dex-discord-gateway/state"
)

// presenceUpdate targets a guild member when the payload names a guild and
// a relationship otherwise. Presences for users that are no longer
// relationships are dropped silently.
func (d *Dispatcher) presenceUpdate(m events.Meta, raw json.RawMessage) error {
	p, err := decode[state.PresencePayload](raw)
	if err != nil {
		return err
	}
	if p.User.Username.Present() {
		if u, old, changed := d.state.UpdateUser(&p.User); changed {
			d.emit(events.UserUpdate{Meta: m, User: u, Old: old})
		}
	}
	if p.GuildID == "" {
		r, old, ok := d.state.ApplyRelationshipPresence(p)
		if !ok {
			return nil
		}
		d.emit(events.PresenceUpdate{Meta: m, Relationship: r, Old: &old})
		return nil
	}
	g, err := d.guild(p.GuildID)
	if err != nil {
		return err
	}
	member, old, err := d.state.ApplyPresence(g, p)
	if err != nil {
		return err
	}
	d.emit(events.PresenceUpdate{Meta: m, Guild: g, Member: member, Old: old})
	return nil
}

// presencesReplace refreshes cached members only; absent members are skipped.
func (d *Dispatcher) presencesReplace(m events.Meta, raw json.RawMessage) error {
	p, err := decode[[]state.PresencePayload](raw)
	if err != nil {
		return err
	}
	applied := d.state.ReplacePresences(*p)
	d.log.Debug("presences replaced", "shard", m.Shard, "applied", applied, "received", len(*p))
	return nil
}

func (d *Dispatcher) userUpdate(m events.Meta, raw json.RawMessage) error {
	p, err := decode[state.UserPayload](raw)
	if err != nil {
		return err
	}
	u, old, _ := d.state.UpdateUser(p)
	d.emit(events.UserUpdate{Meta: m, User: u, Old: old})
	return nil
}

func (d *Dispatcher) relationshipAdd(m events.Meta, raw json.RawMessage) error {
	p, err := decode[state.RelationshipPayload](raw)
	if err != nil {
		return err
	}
	r, existed, oldType := d.state.UpsertRelationship(p)
	if existed {
		d.emit(events.RelationshipUpdate{Meta: m, Relationship: r, OldType: oldType})
		return nil
	}
	d.emit(events.RelationshipAdd{Meta: m, Relationship: r})
	return nil
}

func (d *Dispatcher) relationshipRemove(m events.Meta, raw json.RawMessage) error {
	p, err := decode[relationshipRemovePayload](raw)
	if err != nil {
		return err
	}
	r, ok := d.state.RemoveRelationship(p.ID)
	if !ok {
		return missing("relationship", p.ID)
	}
	d.emit(events.RelationshipRemove{Meta: m, Relationship: r})
	return nil
}

func (d *Dispatcher) typingStart(m events.Meta, raw json.RawMessage) error {
	p, err := decode[typingPayload](raw)
	if err != nil {
		return err
	}
	ev := events.TypingStart{Meta: m, ChannelID: p.ChannelID, Timestamp: time.Unix(p.Timestamp, 0)}
	ev.Channel, _ = d.state.Channel(p.ChannelID)
	if p.Member != nil && p.GuildID != "" {
		if g, ok := d.state.Guilds.Get(p.GuildID); ok {
			ev.Member = d.state.UpsertMember(g, p.Member)
		}
	}
	switch {
	case ev.Member != nil:
		ev.User = ev.Member.User
	default:
		u, ok := d.state.Users.Get(p.UserID)
		if !ok {
			u = &state.User{ID: p.UserID}
		}
		ev.User = u
	}
	d.emit(ev)
	return nil
}

func (d *Dispatcher) webhooksUpdate(m events.Meta, raw json.RawMessage) error {
	p, err := decode[webhooksPayload](raw)
	if err != nil {
		return err
	}
	d.emit(events.WebhooksUpdate{Meta: m, GuildID: p.GuildID, ChannelID: p.ChannelID})
	return nil
}

func (d *Dispatcher) interactionCreate(m events.Meta, raw json.RawMessage) error {
	p, err := decode[state.InteractionPayload](raw)
	if err != nil {
		return err
	}
	in, known, err := d.state.BuildInteraction(p)
	if err != nil {
		return err
	}
	if !known {
		d.warn(m, "unknown interaction type %d", p.Type)
	}
	d.emit(events.InteractionCreate{Meta: m, Interaction: in})
	return nil
}
