package state

// RelationshipType classifies an entry of the user's relationship list.
type RelationshipType int

const (
	RelationshipFriend   RelationshipType = 1
	RelationshipBlocked  RelationshipType = 2
	RelationshipIncoming RelationshipType = 3
	RelationshipOutgoing RelationshipType = 4
)

// Relationship is a friend, block or pending request. Presence updates
// without a guild apply here.
type Relationship struct {
	ID       string
	Type     RelationshipType
	User     *User
	Presence Presence
}

func (r *Relationship) Key() string { return r.ID }

// PresenceSnapshot copies the current presence.
func (r *Relationship) PresenceSnapshot() Presence { return r.Presence.clone() }
