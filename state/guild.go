package state

import (
	"slices"
	"time"

	"github.com/EasterCompany/dex-discord-gateway/collection"
)

// Guild is an available guild with its owned collections.
type Guild struct {
	ID                string
	Name              string
	Icon              string
	OwnerID           string
	Region            string
	AFKChannelID      string
	AFKTimeout        int
	VerificationLevel int
	MemberCount       int
	Large             bool
	Features          []string
	JoinedAt          time.Time
	Emojis            []Emoji
	ShardID           int

	Channels    *collection.Collection[Channel]
	Threads     *collection.Collection[*ThreadChannel]
	Members     *collection.Collection[*Member]
	Roles       *collection.Collection[*Role]
	VoiceStates *collection.Collection[*VoiceState]

	pendingVoiceStates []VoiceStatePayload
}

type GuildSnapshot struct {
	Name              string
	Icon              string
	OwnerID           string
	Region            string
	AFKChannelID      string
	AFKTimeout        int
	VerificationLevel int
	Large             bool
	Features          []string
	Emojis            []Emoji
}

// UnavailableGuild is a guild known only by id, during an outage or
// before its data has arrived.
type UnavailableGuild struct {
	ID      string
	ShardID int
}

func (g *UnavailableGuild) Key() string { return g.ID }

func newGuild(id string, shardID int) *Guild {
	return &Guild{
		ID:          id,
		ShardID:     shardID,
		Channels:    collection.New[Channel](),
		Threads:     collection.New[*ThreadChannel](),
		Members:     collection.New[*Member](),
		Roles:       collection.New[*Role](),
		VoiceStates: collection.New[*VoiceState](),
	}
}

func (g *Guild) Key() string { return g.ID }

func (g *Guild) update(p *GuildPayload) {
	assign(&g.Name, p.Name)
	assign(&g.Icon, p.Icon)
	assign(&g.OwnerID, p.OwnerID)
	assign(&g.Region, p.Region)
	assign(&g.AFKChannelID, p.AFKChannelID)
	assign(&g.AFKTimeout, p.AFKTimeout)
	assign(&g.VerificationLevel, p.VerificationLevel)
	assign(&g.MemberCount, p.MemberCount)
	assign(&g.Large, p.Large)
	if features, ok := p.Features.Get(); ok {
		g.Features = slices.Clone(features)
	}
	assign(&g.JoinedAt, p.JoinedAt)
	if emojis, ok := p.Emojis.Get(); ok {
		g.Emojis = slices.Clone(emojis)
	}
}

func (g *Guild) Snapshot() GuildSnapshot {
	return GuildSnapshot{
		Name:              g.Name,
		Icon:              g.Icon,
		OwnerID:           g.OwnerID,
		Region:            g.Region,
		AFKChannelID:      g.AFKChannelID,
		AFKTimeout:        g.AFKTimeout,
		VerificationLevel: g.VerificationLevel,
		Large:             g.Large,
		Features:          slices.Clone(g.Features),
		Emojis:            slices.Clone(g.Emojis),
	}
}

// VoiceMembers returns the members connected to a voice channel.
func (g *Guild) VoiceMembers(channelID string) []*Member {
	var out []*Member
	g.VoiceStates.Each(func(vs *VoiceState) bool {
		if vs.ChannelID == channelID {
			if m, ok := g.Members.Get(vs.UserID); ok {
				out = append(out, m)
			}
		}
		return true
	})
	return out
}

// Children returns the channels nested under a category.
func (g *Guild) Children(categoryID string) []Channel {
	return g.Channels.Filter(func(ch Channel) bool {
		gc, ok := ch.(interface{ parent() string })
		return ok && gc.parent() == categoryID
	})
}

func (c *GuildChannel) parent() string { return c.ParentID }

// PendingVoiceStates returns the number of buffered voice states waiting
// for their members.
func (g *Guild) PendingVoiceStates() int { return len(g.pendingVoiceStates) }
