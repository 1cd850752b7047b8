package dispatch

import (
	"encoding/json"

	"emperror.dev/errors"

	"github.com/EasterCompany/dex-discord-gateway/events"
	"github.com/EasterCompany/dex-discord-gateway/state"
)

const errMemberWithoutUser = errors.Sentinel("member payload without user")

func (d *Dispatcher) ready(m events.Meta, raw json.RawMessage) error {
	p, err := decode[state.ReadyPayload](raw)
	if err != nil {
		return err
	}
	d.state.SetSelf(&p.User)
	d.syncing[m.Shard] = true
	for i := range p.Guilds {
		gp := &p.Guilds[i]
		if !gp.Unavailable {
			d.state.CreateGuild(gp, m.Shard)
			continue
		}
		if _, cached := d.state.Guilds.Get(gp.ID); !cached {
			d.state.AddUnavailableGuild(gp.ID, m.Shard)
		}
	}
	for i := range p.PrivateChannels {
		if ch, _, known := d.state.AddPrivateChannel(&p.PrivateChannels[i]); !known {
			d.warn(m, "unknown private channel type %d for %s", ch.Kind(), ch.Key())
		}
	}
	for i := range p.Relationships {
		d.state.UpsertRelationship(&p.Relationships[i])
	}
	for i := range p.Presences {
		d.state.ApplyRelationshipPresence(&p.Presences[i])
	}
	d.log.Info("session ready", "shard", m.Shard, "user", p.User.ID, "guilds", len(p.Guilds))
	return nil
}

// RESUMED carries no entity data; the session handles the state change.
func (d *Dispatcher) resumed(events.Meta, json.RawMessage) error { return nil }

func (d *Dispatcher) guildCreate(m events.Meta, raw json.RawMessage) error {
	p, err := decode[state.GuildPayload](raw)
	if err != nil {
		return err
	}
	if p.Unavailable {
		ug := d.state.AddUnavailableGuild(p.ID, m.Shard)
		d.emit(events.UnavailableGuildCreate{Meta: m, Guild: ug})
		return nil
	}
	g, wasUnavailable := d.state.CreateGuild(p, m.Shard)
	if d.syncing[m.Shard] {
		d.log.Debug("guild synced during startup", "guild", g.ID, "shard", m.Shard)
		return nil
	}
	if wasUnavailable {
		d.emit(events.GuildAvailable{Meta: m, Guild: g})
		return nil
	}
	d.emit(events.GuildCreate{Meta: m, Guild: g})
	return nil
}

func (d *Dispatcher) guildUpdate(m events.Meta, raw json.RawMessage) error {
	p, err := decode[state.GuildPayload](raw)
	if err != nil {
		return err
	}
	g, old, err := d.state.UpdateGuild(p)
	if err != nil {
		return err
	}
	d.emit(events.GuildUpdate{Meta: m, Guild: g, Old: old})
	return nil
}

func (d *Dispatcher) guildDelete(m events.Meta, raw json.RawMessage) error {
	p, err := decode[guildDeletePayload](raw)
	if err != nil {
		return err
	}
	if p.Unavailable {
		ug, _ := d.state.MarkGuildUnavailable(p.ID, m.Shard)
		d.emit(events.GuildUnavailable{Meta: m, Guild: ug})
		return nil
	}
	g, ok := d.state.RemoveGuild(p.ID)
	if !ok {
		g = &state.Guild{ID: p.ID}
	}
	d.emit(events.GuildDelete{Meta: m, Guild: g})
	return nil
}

// guildSync inserts the member batch of a large guild, then replays the
// voice states that were waiting for those members.
func (d *Dispatcher) guildSync(m events.Meta, raw json.RawMessage) error {
	p, err := decode[guildSyncPayload](raw)
	if err != nil {
		return err
	}
	g, err := d.guild(p.ID)
	if err != nil {
		return err
	}
	g.Large = p.Large
	d.state.SyncMembers(g, p.Members, p.Presences)
	d.replayVoiceStates(m, g, d.state.DrainPendingVoiceStates(g, true))
	d.emit(events.GuildSync{Meta: m, Guild: g})
	return nil
}

func (d *Dispatcher) memberAdd(m events.Meta, raw json.RawMessage) error {
	p, err := decode[state.MemberPayload](raw)
	if err != nil {
		return err
	}
	g, err := d.guild(p.GuildID)
	if err != nil {
		return err
	}
	member := d.state.UpsertMember(g, p)
	if member == nil {
		return errMemberWithoutUser
	}
	g.MemberCount++
	d.emit(events.GuildMemberAdd{Meta: m, Guild: g, Member: member})
	return nil
}

func (d *Dispatcher) memberUpdate(m events.Meta, raw json.RawMessage) error {
	p, err := decode[state.MemberPayload](raw)
	if err != nil {
		return err
	}
	g, err := d.guild(p.GuildID)
	if err != nil {
		return err
	}
	member, old := d.state.UpdateMember(g, p)
	if member == nil {
		return errMemberWithoutUser
	}
	d.emit(events.GuildMemberUpdate{Meta: m, Guild: g, Member: member, Old: old})
	return nil
}

func (d *Dispatcher) memberRemove(m events.Meta, raw json.RawMessage) error {
	p, err := decode[memberRemovePayload](raw)
	if err != nil {
		return err
	}
	g, err := d.guild(p.GuildID)
	if err != nil {
		return err
	}
	member, ok := d.state.RemoveMember(g, p.User.ID)
	if !ok {
		member = &state.Member{ID: p.User.ID, GuildID: g.ID, User: d.state.UpsertUser(&p.User)}
	}
	if g.MemberCount > 0 {
		g.MemberCount--
	}
	d.emit(events.GuildMemberRemove{Meta: m, Guild: g, Member: member})
	return nil
}

func (d *Dispatcher) membersChunk(m events.Meta, raw json.RawMessage) error {
	p, err := decode[membersChunkPayload](raw)
	if err != nil {
		return err
	}
	g, err := d.guild(p.GuildID)
	if err != nil {
		return err
	}
	members := d.state.SyncMembers(g, p.Members, p.Presences)
	last := p.ChunkIndex+1 >= p.ChunkCount
	d.replayVoiceStates(m, g, d.state.DrainPendingVoiceStates(g, last))
	if len(p.NotFound) > 0 {
		d.log.Debug("members not found", "guild", g.ID, "ids", p.NotFound)
	}
	d.emit(events.GuildMemberChunk{
		Meta:       m,
		Guild:      g,
		Members:    members,
		ChunkIndex: p.ChunkIndex,
		ChunkCount: p.ChunkCount,
		Nonce:      p.Nonce,
	})
	return nil
}

func (d *Dispatcher) roleCreate(m events.Meta, raw json.RawMessage) error {
	p, err := decode[rolePayload](raw)
	if err != nil {
		return err
	}
	g, err := d.guild(p.GuildID)
	if err != nil {
		return err
	}
	r, _ := d.state.UpsertRole(g, &p.Role)
	d.emit(events.GuildRoleCreate{Meta: m, Guild: g, Role: r})
	return nil
}

func (d *Dispatcher) roleUpdate(m events.Meta, raw json.RawMessage) error {
	p, err := decode[rolePayload](raw)
	if err != nil {
		return err
	}
	g, err := d.guild(p.GuildID)
	if err != nil {
		return err
	}
	r, old := d.state.UpsertRole(g, &p.Role)
	d.emit(events.GuildRoleUpdate{Meta: m, Guild: g, Role: r, Old: old})
	return nil
}

func (d *Dispatcher) roleDelete(m events.Meta, raw json.RawMessage) error {
	p, err := decode[roleDeletePayload](raw)
	if err != nil {
		return err
	}
	g, err := d.guild(p.GuildID)
	if err != nil {
		return err
	}
	r, ok := d.state.RemoveRole(g, p.RoleID)
	if !ok {
		r = &state.Role{ID: p.RoleID, GuildID: g.ID}
	}
	d.emit(events.GuildRoleDelete{Meta: m, Guild: g, Role: r})
	return nil
}

func (d *Dispatcher) banAdd(m events.Meta, raw json.RawMessage) error {
	p, err := decode[banPayload](raw)
	if err != nil {
		return err
	}
	g, err := d.guild(p.GuildID)
	if err != nil {
		return err
	}
	d.emit(events.GuildBanAdd{Meta: m, Guild: g, User: d.state.UpsertUser(&p.User)})
	return nil
}

func (d *Dispatcher) banRemove(m events.Meta, raw json.RawMessage) error {
	p, err := decode[banPayload](raw)
	if err != nil {
		return err
	}
	g, err := d.guild(p.GuildID)
	if err != nil {
		return err
	}
	d.emit(events.GuildBanRemove{Meta: m, Guild: g, User: d.state.UpsertUser(&p.User)})
	return nil
}

func (d *Dispatcher) emojisUpdate(m events.Meta, raw json.RawMessage) error {
	p, err := decode[emojisPayload](raw)
	if err != nil {
		return err
	}
	g, old, err := d.state.UpdateGuild(&state.GuildPayload{ID: p.GuildID, Emojis: state.Some(p.Emojis)})
	if err != nil {
		return err
	}
	d.emit(events.GuildEmojisUpdate{Meta: m, Guild: g, Emojis: g.Emojis, Old: old.Emojis})
	return nil
}
