package dispatch

import (
	"encoding/json"

	"github.com/EasterCompany/dex-discord-gateway/events"
	"github.com/EasterCompany/dex-discord-gateway/state"
)

func (d *Dispatcher) channelCreate(m events.Meta, raw json.RawMessage) error {
	p, err := decode[state.ChannelPayload](raw)
	if err != nil {
		return err
	}
	if p.GuildID != "" {
		g, err := d.guild(p.GuildID)
		if err != nil {
			return err
		}
		ch, known := d.state.UpsertGuildChannel(g, p)
		if !known {
			d.warn(m, "unknown channel type %d for %s", p.Type, p.ID)
		}
		d.emit(events.ChannelCreate{Meta: m, Channel: ch})
		return nil
	}
	ch, created, known := d.state.AddPrivateChannel(p)
	if !known {
		d.warn(m, "unknown channel type %d for %s", p.Type, p.ID)
	}
	if created {
		d.emit(events.ChannelCreate{Meta: m, Channel: ch})
	}
	return nil
}

// channelUpdate emits the channel as it is after the update. A type change
// rebuilds the channel, so Channel is then a new value and Old.Type differs
// from Channel.Kind().
func (d *Dispatcher) channelUpdate(m events.Meta, raw json.RawMessage) error {
	p, err := decode[state.ChannelPayload](raw)
	if err != nil {
		return err
	}
	ch, old, err := d.state.UpdateChannel(p)
	if err != nil {
		return err
	}
	if old.Type != ch.Kind() {
		if _, unknown := ch.(*state.UnknownChannel); unknown {
			d.warn(m, "channel %s changed to unknown type %d", p.ID, p.Type)
		} else {
			d.log.Debug("channel type changed", "channel", p.ID, "from", old.Type, "to", ch.Kind())
		}
	}
	d.emit(events.ChannelUpdate{Meta: m, Channel: ch, Old: old})
	return nil
}

func (d *Dispatcher) channelDelete(m events.Meta, raw json.RawMessage) error {
	p, err := decode[state.ChannelPayload](raw)
	if err != nil {
		return err
	}
	ch, err := d.state.RemoveChannel(p)
	if err != nil {
		return err
	}
	d.emit(events.ChannelDelete{Meta: m, Channel: ch})
	return nil
}

func (d *Dispatcher) pinsUpdate(m events.Meta, raw json.RawMessage) error {
	p, err := decode[pinsPayload](raw)
	if err != nil {
		return err
	}
	ch, old, err := d.state.SetLastPin(p.ChannelID, p.LastPinTimestamp)
	if err != nil {
		return err
	}
	d.emit(events.ChannelPinsUpdate{Meta: m, Channel: ch, Timestamp: p.LastPinTimestamp, OldTimestamp: old})
	return nil
}

func (d *Dispatcher) recipientAdd(m events.Meta, raw json.RawMessage) error {
	p, err := decode[recipientPayload](raw)
	if err != nil {
		return err
	}
	group, u, err := d.state.AddRecipient(p.ChannelID, &p.User)
	if err != nil {
		return err
	}
	d.emit(events.ChannelRecipientAdd{Meta: m, Channel: group, User: u})
	return nil
}

func (d *Dispatcher) recipientRemove(m events.Meta, raw json.RawMessage) error {
	p, err := decode[recipientPayload](raw)
	if err != nil {
		return err
	}
	group, u, err := d.state.RemoveRecipient(p.ChannelID, &p.User)
	if err != nil {
		return err
	}
	d.emit(events.ChannelRecipientRemove{Meta: m, Channel: group, User: u})
	return nil
}

// Threads

// threadCreate also fires when the current user is added to an existing
// thread; only threads new to the cache produce a ThreadCreate.
func (d *Dispatcher) threadCreate(m events.Meta, raw json.RawMessage) error {
	p, err := decode[state.ChannelPayload](raw)
	if err != nil {
		return err
	}
	g, err := d.guild(p.GuildID)
	if err != nil {
		return err
	}
	existed := g.Threads.Has(p.ID)
	ch, _ := d.state.UpsertGuildChannel(g, p)
	th, ok := ch.(*state.ThreadChannel)
	if !ok {
		d.warn(m, "thread %s has non-thread type %d", p.ID, p.Type)
		d.emit(events.ChannelCreate{Meta: m, Channel: ch})
		return nil
	}
	if !existed {
		d.emit(events.ThreadCreate{Meta: m, Thread: th})
	}
	return nil
}

func (d *Dispatcher) threadUpdate(m events.Meta, raw json.RawMessage) error {
	p, err := decode[state.ChannelPayload](raw)
	if err != nil {
		return err
	}
	// Gaining access to an existing thread arrives as an update for a
	// thread the cache has never seen.
	if g, ok := d.state.Guilds.Get(p.GuildID); ok && !g.Threads.Has(p.ID) && !g.Channels.Has(p.ID) {
		ch, _ := d.state.UpsertGuildChannel(g, p)
		if th, ok := ch.(*state.ThreadChannel); ok {
			d.emit(events.ThreadUpdate{Meta: m, Thread: th})
			return nil
		}
		d.warn(m, "thread %s has non-thread type %d", p.ID, p.Type)
		d.emit(events.ChannelUpdate{Meta: m, Channel: ch})
		return nil
	}
	ch, old, err := d.state.UpdateChannel(p)
	if err != nil {
		return err
	}
	if th, ok := ch.(*state.ThreadChannel); ok {
		d.emit(events.ThreadUpdate{Meta: m, Thread: th, Old: old})
		return nil
	}
	d.emit(events.ChannelUpdate{Meta: m, Channel: ch, Old: old})
	return nil
}

func (d *Dispatcher) threadDelete(m events.Meta, raw json.RawMessage) error {
	p, err := decode[state.ChannelPayload](raw)
	if err != nil {
		return err
	}
	ch, err := d.state.RemoveChannel(p)
	if err != nil {
		return err
	}
	d.emit(events.ThreadDelete{Meta: m, Thread: ch})
	return nil
}

func (d *Dispatcher) threadListSync(m events.Meta, raw json.RawMessage) error {
	p, err := decode[threadListSyncPayload](raw)
	if err != nil {
		return err
	}
	g, err := d.guild(p.GuildID)
	if err != nil {
		return err
	}
	threads := d.state.SyncThreads(g, p.ChannelIDs, p.Threads, p.Members)
	d.emit(events.ThreadListSync{Meta: m, Guild: g, Threads: threads})
	return nil
}

// threadMemberUpdate reports the current user's own thread membership.
func (d *Dispatcher) threadMemberUpdate(m events.Meta, raw json.RawMessage) error {
	p, err := decode[threadMemberPayload](raw)
	if err != nil {
		return err
	}
	g, err := d.guild(p.GuildID)
	if err != nil {
		return err
	}
	if p.UserID == "" {
		p.UserID = d.state.SelfID()
	}
	th, added, err := d.state.UpdateThreadMembers(g, p.ID, []state.ThreadMemberPayload{p.ThreadMemberPayload}, nil, -1)
	if err != nil {
		return err
	}
	d.emit(events.ThreadMembersUpdate{Meta: m, Thread: th, AddedMembers: added, MemberCount: th.MemberCount})
	return nil
}

func (d *Dispatcher) threadMembersUpdate(m events.Meta, raw json.RawMessage) error {
	p, err := decode[threadMembersPayload](raw)
	if err != nil {
		return err
	}
	g, err := d.guild(p.GuildID)
	if err != nil {
		return err
	}
	th, added, err := d.state.UpdateThreadMembers(g, p.ID, p.AddedMembers, p.RemovedMemberIDs, p.MemberCount)
	if err != nil {
		return err
	}
	d.emit(events.ThreadMembersUpdate{
		Meta:           m,
		Thread:         th,
		AddedMembers:   added,
		RemovedMembers: p.RemovedMemberIDs,
		MemberCount:    th.MemberCount,
	})
	return nil
}
