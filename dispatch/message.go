package dispatch

import (
	"encoding/json"

	"github.com/EasterCompany/dex-discord-gateway/events"
	"github.com/EasterCompany/dex-discord-gateway/state"
)

// stubMessage stands in for a message the cache never saw.
func stubMessage(id, channelID, guildID string) *state.Message {
	return &state.Message{ID: id, ChannelID: channelID, GuildID: guildID}
}

func (d *Dispatcher) messageCreate(m events.Meta, raw json.RawMessage) error {
	p, err := decode[state.MessagePayload](raw)
	if err != nil {
		return err
	}
	msg, err := d.state.AddMessage(p)
	if err != nil {
		return err
	}
	d.emit(events.MessageCreate{Meta: m, Message: msg})
	return nil
}

func (d *Dispatcher) messageUpdate(m events.Meta, raw json.RawMessage) error {
	p, err := decode[state.MessagePayload](raw)
	if err != nil {
		return err
	}
	msg, old, err := d.state.UpdateMessage(p)
	if err != nil {
		return err
	}
	if msg == nil {
		msg = d.state.BuildMessage(p)
	}
	d.emit(events.MessageUpdate{Meta: m, Message: msg, Old: old})
	return nil
}

func (d *Dispatcher) messageDelete(m events.Meta, raw json.RawMessage) error {
	p, err := decode[messageDeletePayload](raw)
	if err != nil {
		return err
	}
	msg, ok := d.state.RemoveMessage(p.ChannelID, p.ID)
	if !ok {
		msg = stubMessage(p.ID, p.ChannelID, p.GuildID)
	}
	d.emit(events.MessageDelete{Meta: m, Message: msg})
	return nil
}

func (d *Dispatcher) messageDeleteBulk(m events.Meta, raw json.RawMessage) error {
	p, err := decode[messageDeleteBulkPayload](raw)
	if err != nil {
		return err
	}
	msgs := make([]*state.Message, 0, len(p.IDs))
	for _, id := range p.IDs {
		msg, ok := d.state.RemoveMessage(p.ChannelID, id)
		if !ok {
			msg = stubMessage(id, p.ChannelID, p.GuildID)
		}
		msgs = append(msgs, msg)
	}
	d.emit(events.MessageDeleteBulk{Meta: m, Messages: msgs})
	return nil
}

func (d *Dispatcher) reactionAdd(m events.Meta, raw json.RawMessage) error {
	p, err := decode[reactionPayload](raw)
	if err != nil {
		return err
	}
	var member *state.Member
	if p.Member != nil && p.GuildID != "" {
		if g, ok := d.state.Guilds.Get(p.GuildID); ok {
			member = d.state.UpsertMember(g, p.Member)
		}
	}
	msg := d.state.AddReaction(p.ChannelID, p.MessageID, p.Emoji, p.UserID)
	if msg == nil {
		msg = stubMessage(p.MessageID, p.ChannelID, p.GuildID)
	}
	d.emit(events.MessageReactionAdd{Meta: m, Message: msg, Emoji: p.Emoji, UserID: p.UserID, Member: member})
	return nil
}

func (d *Dispatcher) reactionRemove(m events.Meta, raw json.RawMessage) error {
	p, err := decode[reactionPayload](raw)
	if err != nil {
		return err
	}
	msg := d.state.RemoveReaction(p.ChannelID, p.MessageID, p.Emoji, p.UserID)
	if msg == nil {
		msg = stubMessage(p.MessageID, p.ChannelID, p.GuildID)
	}
	d.emit(events.MessageReactionRemove{Meta: m, Message: msg, Emoji: p.Emoji, UserID: p.UserID})
	return nil
}

func (d *Dispatcher) reactionRemoveAll(m events.Meta, raw json.RawMessage) error {
	p, err := decode[reactionPayload](raw)
	if err != nil {
		return err
	}
	msg := d.state.ClearReactions(p.ChannelID, p.MessageID, nil)
	if msg == nil {
		msg = stubMessage(p.MessageID, p.ChannelID, p.GuildID)
	}
	d.emit(events.MessageReactionRemoveAll{Meta: m, Message: msg})
	return nil
}

func (d *Dispatcher) reactionRemoveEmoji(m events.Meta, raw json.RawMessage) error {
	p, err := decode[reactionPayload](raw)
	if err != nil {
		return err
	}
	msg := d.state.ClearReactions(p.ChannelID, p.MessageID, &p.Emoji)
	if msg == nil {
		msg = stubMessage(p.MessageID, p.ChannelID, p.GuildID)
	}
	d.emit(events.MessageReactionRemoveEmoji{Meta: m, Message: msg, Emoji: p.Emoji})
	return nil
}
