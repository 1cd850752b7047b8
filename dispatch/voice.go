package dispatch

import (
	"encoding/json"
	"slices"

	"github.com/EasterCompany/dex-discord-gateway/events"
	"github.com/EasterCompany/dex-discord-gateway/state"
)

// voiceStateUpdate applies guild voice states to members and call voice
// states to the owning DM call. A user leaving a call no cached channel
// tracks surfaces as an Error event.
func (d *Dispatcher) voiceStateUpdate(m events.Meta, raw json.RawMessage) error {
	p, err := decode[state.VoiceStatePayload](raw)
	if err != nil {
		return err
	}
	if p.GuildID == "" {
		call, old, err := d.state.ApplyCallVoiceState(p)
		if err != nil {
			return err
		}
		d.emit(events.VoiceStateUpdate{
			Meta:      m,
			Old:       old,
			UserID:    p.UserID,
			ChannelID: p.ChannelID,
			SessionID: p.SessionID,
			Call:      call,
		})
		return nil
	}
	g, err := d.guild(p.GuildID)
	if err != nil {
		return err
	}
	member, old, err := d.state.ApplyVoiceState(g, p)
	if err != nil {
		return err
	}
	d.emit(events.VoiceStateUpdate{
		Meta:      m,
		Guild:     g,
		Member:    member,
		Old:       old,
		UserID:    p.UserID,
		ChannelID: p.ChannelID,
		SessionID: p.SessionID,
	})
	d.voiceTransition(m, g, member, old, p.ChannelID)
	return nil
}

// voiceTransition emits join, leave or switch when the member's channel
// changed. Mute and deafen changes keep the channel and emit nothing.
func (d *Dispatcher) voiceTransition(m events.Meta, g *state.Guild, member *state.Member, old *state.VoiceState, channelID string) {
	var from string
	if old != nil {
		from = old.ChannelID
	}
	if from == channelID {
		return
	}
	lookup := func(id string) state.Channel {
		ch, _ := g.Channels.Get(id)
		return ch
	}
	switch {
	case from == "":
		d.emit(events.VoiceChannelJoin{Meta: m, Member: member, Channel: lookup(channelID)})
	case channelID == "":
		d.emit(events.VoiceChannelLeave{Meta: m, Member: member, Channel: lookup(from)})
	default:
		d.emit(events.VoiceChannelSwitch{Meta: m, Member: member, New: lookup(channelID), Old: lookup(from)})
	}
}

// replayVoiceStates announces buffered voice states applied after a member
// sync.
func (d *Dispatcher) replayVoiceStates(m events.Meta, g *state.Guild, members []*state.Member) {
	for _, member := range members {
		ev := events.VoiceStateUpdate{Meta: m, Guild: g, Member: member, UserID: member.ID}
		if vs := member.VoiceState; vs != nil {
			ev.ChannelID, ev.SessionID = vs.ChannelID, vs.SessionID
		}
		d.emit(ev)
		if member.VoiceState != nil {
			d.voiceTransition(m, g, member, nil, member.VoiceState.ChannelID)
		}
	}
}

func (d *Dispatcher) voiceServerUpdate(m events.Meta, raw json.RawMessage) error {
	p, err := decode[voiceServerPayload](raw)
	if err != nil {
		return err
	}
	d.emit(events.VoiceServerUpdate{
		Meta:      m,
		GuildID:   p.GuildID,
		ChannelID: p.ChannelID,
		Token:     p.Token,
		Endpoint:  p.Endpoint,
	})
	return nil
}

func (d *Dispatcher) callCreate(m events.Meta, raw json.RawMessage) error {
	p, err := decode[state.CallPayload](raw)
	if err != nil {
		return err
	}
	call, old, err := d.state.StartCall(p)
	if err != nil {
		return err
	}
	if old != nil {
		d.emit(events.CallUpdate{Meta: m, Call: call, Old: *old})
	} else {
		d.emit(events.CallCreate{Meta: m, Call: call})
	}
	if d.ringsSelf(call, nil) {
		d.emit(events.CallRing{Meta: m, Call: call})
	}
	return nil
}

func (d *Dispatcher) callUpdate(m events.Meta, raw json.RawMessage) error {
	p, err := decode[state.CallPayload](raw)
	if err != nil {
		return err
	}
	call, old, err := d.state.UpdateCall(p)
	if err != nil {
		return err
	}
	d.emit(events.CallUpdate{Meta: m, Call: call, Old: old})
	if d.ringsSelf(call, old.Ringing) {
		d.emit(events.CallRing{Meta: m, Call: call})
	}
	return nil
}

// callDelete ends the call, unless the payload only reports that the call
// became unavailable, which is an update.
func (d *Dispatcher) callDelete(m events.Meta, raw json.RawMessage) error {
	p, err := decode[callDeletePayload](raw)
	if err != nil {
		return err
	}
	if p.Unavailable {
		call, old, err := d.state.UpdateCall(&state.CallPayload{ChannelID: p.ChannelID, Unavailable: state.Some(true)})
		if err != nil {
			return err
		}
		d.emit(events.CallUpdate{Meta: m, Call: call, Old: old})
		return nil
	}
	call, err := d.state.EndCall(p.ChannelID, d.clock.Now())
	if err != nil {
		return err
	}
	d.emit(events.CallDelete{Meta: m, Call: call})
	return nil
}

// ringsSelf reports whether the current user started ringing.
func (d *Dispatcher) ringsSelf(call *state.Call, before []string) bool {
	self := d.state.SelfID()
	return self != "" && slices.Contains(call.Ringing, self) && !slices.Contains(before, self)
}
