package state

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/EasterCompany/dex-discord-gateway/collection"
)

// MessageType distinguishes user messages from system notices.
type MessageType int

const (
	MessageTypeDefault              MessageType = 0
	MessageTypeRecipientAdd         MessageType = 1
	MessageTypeRecipientRemove      MessageType = 2
	MessageTypeCall                 MessageType = 3
	MessageTypeChannelNameChange    MessageType = 4
	MessageTypeChannelIconChange    MessageType = 5
	MessageTypeChannelPinnedMessage MessageType = 6
	MessageTypeGuildMemberJoin      MessageType = 7
	MessageTypeReply                MessageType = 19
)

var channelMentionRE = regexp.MustCompile(`<#(\d+)>`)

// Reaction aggregates one emoji's reactions on a message.
type Reaction struct {
	Emoji Emoji
	Count int
	Me    bool
}

func (r *Reaction) Key() string { return r.Emoji.Key() }

// MessageCall is the call summary attached to legacy call messages.
type MessageCall struct {
	Participants   []string
	EndedTimestamp *time.Time
}

// Message is a cached chat message. Member is the author's guild
// membership when the message was sent in a guild and the member is cached.
type Message struct {
	ID              string
	ChannelID       string
	GuildID         string
	Type            MessageType
	Author          *User
	Member          *Member
	Content         string
	Timestamp       time.Time
	EditedTimestamp *time.Time
	TTS             bool
	MentionEveryone bool
	Pinned          bool
	Mentions        []*User
	RoleMentions    []string
	ChannelMentions []string
	Attachments     []Attachment
	Embeds          []json.RawMessage
	Reactions       *collection.Collection[*Reaction]
	WebhookID       string
	Call            *MessageCall

	cleanContent *string
}

type MessageSnapshot struct {
	Content         string
	EditedTimestamp *time.Time
	TTS             bool
	MentionEveryone bool
	Pinned          bool
	Mentions        []string
	RoleMentions    []string
	ChannelMentions []string
	Attachments     []Attachment
	Embeds          []json.RawMessage
}

func (m *Message) Key() string { return m.ID }

func (m *Message) Snapshot() MessageSnapshot {
	mentions := make([]string, 0, len(m.Mentions))
	for _, u := range m.Mentions {
		mentions = append(mentions, u.ID)
	}
	return MessageSnapshot{
		Content:         m.Content,
		EditedTimestamp: m.EditedTimestamp,
		TTS:             m.TTS,
		MentionEveryone: m.MentionEveryone,
		Pinned:          m.Pinned,
		Mentions:        mentions,
		RoleMentions:    slices.Clone(m.RoleMentions),
		ChannelMentions: slices.Clone(m.ChannelMentions),
		Attachments:     slices.Clone(m.Attachments),
		Embeds:          slices.Clone(m.Embeds),
	}
}

// newMessage builds a message for channel ch (which may be nil for
// uncached channels). The author and mentioned users are deduplicated
// through the state's user cache.
func (s *State) newMessage(p *MessagePayload, ch Channel) *Message {
	m := &Message{
		ID:        p.ID,
		ChannelID: p.ChannelID,
		GuildID:   p.GuildID,
		Type:      p.Type.Or(MessageTypeDefault),
		WebhookID: p.WebhookID,
		Reactions: collection.New[*Reaction](),
	}
	if p.Author != nil {
		m.Author = s.UpsertUser(p.Author)
	}
	if m.GuildID == "" {
		m.GuildID = s.GuildIDOf(p.ChannelID)
	}
	if guild, ok := s.Guilds.Get(m.GuildID); ok && m.Author != nil && p.WebhookID == "" {
		if p.Member != nil {
			mp := *p.Member
			mp.User = p.Author
			m.Member = s.UpsertMember(guild, &mp)
		} else if member, ok := guild.Members.Get(m.Author.ID); ok {
			m.Member = member
		}
	}
	if reactions, ok := p.Reactions.Get(); ok {
		for _, r := range reactions {
			m.Reactions.Replace(&Reaction{Emoji: r.Emoji, Count: r.Count, Me: r.Me})
		}
	}
	if p.Call != nil {
		m.Call = &MessageCall{Participants: slices.Clone(p.Call.Participants), EndedTimestamp: p.Call.EndedTimestamp}
	}
	s.updateMessage(m, p)
	s.synthesizeSystemContent(m, ch)
	return m
}

// updateMessage applies the fields present in p.
func (s *State) updateMessage(m *Message, p *MessagePayload) {
	assign(&m.Content, p.Content)
	assign(&m.Timestamp, p.Timestamp)
	assignTime(&m.EditedTimestamp, p.EditedTimestamp)
	assign(&m.TTS, p.TTS)
	assign(&m.MentionEveryone, p.MentionEveryone)
	assign(&m.Pinned, p.Pinned)
	if mentions, ok := p.Mentions.Get(); ok {
		m.Mentions = m.Mentions[:0]
		for i := range mentions {
			m.Mentions = append(m.Mentions, s.UpsertUser(&mentions[i]))
		}
	}
	if roles, ok := p.MentionRoles.Get(); ok {
		m.RoleMentions = slices.Clone(roles)
	}
	assign(&m.Attachments, p.Attachments)
	assign(&m.Embeds, p.Embeds)
	if p.Content.Present() {
		m.ChannelMentions = m.ChannelMentions[:0]
		for _, match := range channelMentionRE.FindAllStringSubmatch(m.Content, -1) {
			m.ChannelMentions = append(m.ChannelMentions, match[1])
		}
	}
	if p.Content.Present() || p.Mentions.Present() || p.MentionRoles.Present() {
		m.cleanContent = nil
	}
}

// synthesizeSystemContent fills the content of legacy system messages,
// which arrive without text.
func (s *State) synthesizeSystemContent(m *Message, ch Channel) {
	if m.Author == nil {
		return
	}
	author := m.Author.Mention()
	switch m.Type {
	case MessageTypeRecipientAdd:
		if len(m.Mentions) > 0 {
			m.Content = fmt.Sprintf("%s added %s.", author, m.Mentions[0].Mention())
		}
	case MessageTypeRecipientRemove:
		if len(m.Mentions) == 0 {
			return
		}
		if m.Mentions[0].ID == m.Author.ID {
			m.Content = fmt.Sprintf("@%s left the group.", m.Author.Username)
		} else {
			m.Content = fmt.Sprintf("%s removed @%s.", author, m.Mentions[0].Username)
		}
	case MessageTypeCall:
		m.Content = s.callContent(m, ch)
	case MessageTypeChannelNameChange:
		m.Content = fmt.Sprintf("%s changed the channel name: %s", author, m.Content)
	case MessageTypeChannelIconChange:
		m.Content = author + " changed the channel icon."
	case MessageTypeChannelPinnedMessage:
		m.Content = author + " pinned a message to this channel."
	case MessageTypeGuildMemberJoin:
		m.Content = author + " joined the server."
	default:
		return
	}
	m.cleanContent = nil
}

func (s *State) callContent(m *Message, ch Channel) string {
	author := m.Author.Mention()
	if m.Call == nil || m.Call.EndedTimestamp == nil {
		return author + " started a call."
	}
	ended := *m.Call.EndedTimestamp
	if carrier, ok := ch.(CallCarrier); ok {
		last := carrier.PreviousCall()
		if last == nil || last.EndedTimestamp == nil || last.EndedTimestamp.Before(ended) {
			carrier.setLastCall(&Call{
				ID:             m.ID,
				ChannelID:      m.ChannelID,
				EndedTimestamp: &ended,
				VoiceStates:    collection.New[*VoiceState](),
			})
		}
	}
	if s.Self != nil && slices.Contains(m.Call.Participants, s.Self.ID) {
		minutes := int(math.Ceil(ended.Sub(m.Timestamp).Minutes()))
		if minutes < 1 {
			minutes = 1
		}
		unit := "minutes"
		if minutes == 1 {
			unit = "minute"
		}
		return fmt.Sprintf("%s started a call that lasted %d %s.", author, minutes, unit)
	}
	return "You missed a call from " + author + "."
}

// CleanContent renders the message with mentions replaced by readable
// names. The result is memoized until the content or mentions change.
func (m *Message) CleanContent(s *State) string {
	if m.cleanContent != nil {
		return *m.cleanContent
	}
	guild, _ := s.Guilds.Get(m.GuildID)

	var pairs []string
	for _, u := range m.Mentions {
		name := u.Username
		if guild != nil {
			if member, ok := guild.Members.Get(u.ID); ok && member.Nick != "" {
				name = member.Nick
			}
		}
		pairs = append(pairs, "<@"+u.ID+">", "@"+name, "<@!"+u.ID+">", "@"+name)
	}
	for _, id := range m.RoleMentions {
		name := "deleted-role"
		if guild != nil {
			if role, ok := guild.Roles.Get(id); ok {
				name = role.Name
			}
		}
		pairs = append(pairs, "<@&"+id+">", "@"+name)
	}
	for _, id := range m.ChannelMentions {
		if ch, ok := s.Channel(id); ok {
			if name := channelName(ch); name != "" {
				pairs = append(pairs, "<#"+id+">", "#"+name)
			}
		}
	}
	pairs = append(pairs, "@everyone", "@\u200beveryone", "@here", "@\u200bhere")

	clean := strings.NewReplacer(pairs...).Replace(m.Content)
	m.cleanContent = &clean
	return clean
}

func channelName(ch Channel) string {
	switch ch.(type) {
	case *PrivateChannel, *UnknownChannel:
		return ""
	}
	return ch.Snapshot().Name
}
