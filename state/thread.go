package state

// SyncThreads reconciles the active threads of a guild. Cached threads
// under the given parent channels (every channel when none are given) that
// are missing from threads are dropped; the rest are upserted in place.
func (s *State) SyncThreads(g *Guild, channelIDs []string, threads []ChannelPayload, members []ThreadMemberPayload) []*ThreadChannel {
	scope := make(map[string]bool, len(channelIDs))
	for _, id := range channelIDs {
		scope[id] = true
	}
	active := make(map[string]bool, len(threads))
	for i := range threads {
		active[threads[i].ID] = true
	}
	for _, th := range g.Threads.Values() {
		if active[th.ID] || (len(scope) > 0 && !scope[th.ParentID]) {
			continue
		}
		g.Threads.Remove(th.ID)
		delete(s.channelGuild, th.ID)
	}

	synced := make([]*ThreadChannel, 0, len(threads))
	for i := range threads {
		ch, _ := s.UpsertGuildChannel(g, &threads[i])
		if th, ok := ch.(*ThreadChannel); ok {
			synced = append(synced, th)
		}
	}
	for _, m := range members {
		if th, ok := g.Threads.Get(m.ID); ok {
			th.Members.Replace(&ThreadMember{ThreadID: th.ID, UserID: m.UserID, JoinedAt: m.JoinTimestamp, Flags: m.Flags})
		}
	}
	return synced
}

// UpdateThreadMembers adds and removes thread members. A negative count
// leaves the thread's member count untouched.
func (s *State) UpdateThreadMembers(g *Guild, threadID string, added []ThreadMemberPayload, removed []string, count int) (*ThreadChannel, []*ThreadMember, error) {
	th, ok := g.Threads.Get(threadID)
	if !ok {
		return nil, nil, notCached("thread", threadID)
	}
	out := make([]*ThreadMember, 0, len(added))
	for _, m := range added {
		tm, _ := th.Members.Replace(&ThreadMember{ThreadID: th.ID, UserID: m.UserID, JoinedAt: m.JoinTimestamp, Flags: m.Flags})
		out = append(out, tm)
	}
	for _, id := range removed {
		th.Members.Remove(id)
	}
	if count >= 0 {
		th.MemberCount = count
	}
	return th, out, nil
}
