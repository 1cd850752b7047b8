package state

import (
	"encoding/json"
	"slices"
)

// InteractionType is the wire discriminator of an interaction.
type InteractionType int

const (
	InteractionPing               InteractionType = 1
	InteractionApplicationCommand InteractionType = 2
	InteractionMessageComponent   InteractionType = 3
	InteractionAutocomplete       InteractionType = 4
	InteractionModalSubmit        InteractionType = 5
)

type InteractionPayload struct {
	ID            string          `json:"id"`
	ApplicationID string          `json:"application_id"`
	Type          InteractionType `json:"type"`
	Token         string          `json:"token"`
	GuildID       string          `json:"guild_id"`
	ChannelID     string          `json:"channel_id"`
	Member        *MemberPayload  `json:"member"`
	User          *UserPayload    `json:"user"`
	Version       int             `json:"version"`
	Data          json.RawMessage `json:"data"`
	Message       *MessagePayload `json:"message"`

	Raw json.RawMessage `json:"-"`
}

func (p *InteractionPayload) UnmarshalJSON(b []byte) error {
	type plain InteractionPayload
	var v plain
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*p = InteractionPayload(v)
	p.Raw = slices.Clone(b)
	return nil
}

// Interaction is the closed set of interaction variants:
// *PingInteraction, *CommandInteraction, *ComponentInteraction,
// *AutocompleteInteraction, *ModalSubmitInteraction and *UnknownInteraction.
type Interaction interface {
	Key() string
	Kind() InteractionType
	Common() *InteractionBase
	sealed()
}

// InteractionBase holds the fields every interaction carries.
type InteractionBase struct {
	ID            string
	ApplicationID string
	Type          InteractionType
	Token         string
	GuildID       string
	ChannelID     string
	// Member is set for guild interactions, User for DM interactions.
	Member  *Member
	User    *User
	Version int
}

func (i *InteractionBase) Key() string              { return i.ID }
func (i *InteractionBase) Kind() InteractionType    { return i.Type }
func (i *InteractionBase) Common() *InteractionBase { return i }
func (i *InteractionBase) sealed()                  {}

type CommandData struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Type    int             `json:"type"`
	Options json.RawMessage `json:"options,omitempty"`
}

type ComponentData struct {
	CustomID      string   `json:"custom_id"`
	ComponentType int      `json:"component_type"`
	Values        []string `json:"values,omitempty"`
}

type ModalSubmitData struct {
	CustomID   string          `json:"custom_id"`
	Components json.RawMessage `json:"components"`
}

type PingInteraction struct {
	InteractionBase
}

type CommandInteraction struct {
	InteractionBase
	Data CommandData
}

type AutocompleteInteraction struct {
	InteractionBase
	Data CommandData
}

type ComponentInteraction struct {
	InteractionBase
	Data    ComponentData
	Message *Message
}

type ModalSubmitInteraction struct {
	InteractionBase
	Data ModalSubmitData
}

// UnknownInteraction stands in for interaction types this package does
// not model.
type UnknownInteraction struct {
	InteractionBase
	Raw json.RawMessage
}

// BuildInteraction constructs the variant matching p.Type. Members and
// users are deduplicated through the cache. Unmodelled types yield an
// *UnknownInteraction and ok == false.
func (s *State) BuildInteraction(p *InteractionPayload) (Interaction, bool, error) {
	base := InteractionBase{
		ID:            p.ID,
		ApplicationID: p.ApplicationID,
		Type:          p.Type,
		Token:         p.Token,
		GuildID:       p.GuildID,
		ChannelID:     p.ChannelID,
		Version:       p.Version,
	}
	if p.Member != nil && p.Member.User != nil {
		if guild, ok := s.Guilds.Get(p.GuildID); ok {
			base.Member = s.UpsertMember(guild, p.Member)
			base.User = base.Member.User
		} else {
			base.User = s.UpsertUser(p.Member.User)
		}
	} else if p.User != nil {
		base.User = s.UpsertUser(p.User)
	}

	decode := func(dst any) error {
		if len(p.Data) == 0 {
			return nil
		}
		return json.Unmarshal(p.Data, dst)
	}

	switch p.Type {
	case InteractionPing:
		return &PingInteraction{InteractionBase: base}, true, nil
	case InteractionApplicationCommand:
		in := &CommandInteraction{InteractionBase: base}
		return in, true, decode(&in.Data)
	case InteractionAutocomplete:
		in := &AutocompleteInteraction{InteractionBase: base}
		return in, true, decode(&in.Data)
	case InteractionMessageComponent:
		in := &ComponentInteraction{InteractionBase: base}
		if p.Message != nil {
			ch, _ := s.Channel(p.Message.ChannelID)
			in.Message = s.newMessage(p.Message, ch)
		}
		return in, true, decode(&in.Data)
	case InteractionModalSubmit:
		in := &ModalSubmitInteraction{InteractionBase: base}
		return in, true, decode(&in.Data)
	}
	return &UnknownInteraction{InteractionBase: base, Raw: slices.Clone(p.Raw)}, false, nil
}
