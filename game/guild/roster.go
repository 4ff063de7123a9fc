package guild

import (
	"github.com/kasuganosora/guildbank/model"
	"go.uber.org/zap"
)

// AddMember puts charID into the guild at the lowest rank. actor needs the
// Invite right.
func (g *Guild) AddMember(actor *Actor, charID int64, name string) error {
	return g.execMember(actor, func(o *op) error {
		if !g.memberHasRight(o.member, RankRightInvite) {
			return ErrNoRights
		}
		if _, ok := g.members[charID]; ok {
			return ErrAlreadyInGuild
		}
		if g.reg != nil && !g.reg.claimMember(charID, g) {
			return ErrAlreadyInGuild
		}
		m := newMember(g.id, charID, name, g.lowestRank().id)
		g.members[charID] = m
		o.batch.Save(m.record())
		o.batch.Save(m.withdrawRecord())

		g.logEvent(o, EventInviteMember, actor.CharID, charID, 0)
		g.logEvent(o, EventJoinGuild, charID, 0, 0)
		g.logNews(o, NewsMemberJoined, charID, 0)
		g.logger.Info("guild member added", zap.Int64("char_id", charID), zap.Int64("by", actor.CharID))
		g.broadcast(o, EventRoster, RosterEvent{GuildID: g.id, Type: EventJoinGuild, CharID: charID, RankID: m.rankID})
		return nil
	})
}

// RemoveMember takes charID out of the guild. A member removing itself
// leaves; removing someone else needs the Remove right and a higher rank
// than the target.
func (g *Guild) RemoveMember(actor *Actor, charID int64) error {
	return g.execMember(actor, func(o *op) error {
		target := g.members[charID]
		if target == nil {
			return ErrNotMember
		}
		typ := EventLeaveGuild
		if charID == actor.CharID {
			if g.isLeader(target) {
				return ErrLeaderCannotLeave
			}
		} else {
			typ = EventUninvitePlayer
			if !g.memberHasRight(o.member, RankRightRemove) || !g.outranks(o.member, target) {
				return ErrNoRights
			}
		}
		// notify before deletion so the removed member sees it too
		g.broadcast(o, EventRoster, RosterEvent{GuildID: g.id, Type: typ, CharID: charID, RankID: target.rankID})
		g.deleteMember(o, target)
		if typ == EventLeaveGuild {
			g.logEvent(o, typ, charID, 0, 0)
		} else {
			g.logEvent(o, typ, actor.CharID, charID, 0)
		}
		g.logger.Info("guild member removed", zap.Int64("char_id", charID), zap.Int64("by", actor.CharID))
		return nil
	})
}

func (g *Guild) deleteMember(o *op, m *Member) {
	delete(g.members, m.charID)
	o.batch.Delete(&model.GuildMember{}, "char_id = ?", m.charID)
	o.batch.Delete(&model.GuildMemberWithdraw{}, "char_id = ?", m.charID)
	if g.reg != nil {
		g.reg.releaseMember(m.charID, g)
	}
}

// outranks reports whether a holds a strictly higher rank than b.
func (g *Guild) outranks(a, b *Member) bool {
	ra, rb := g.memberRank(a), g.memberRank(b)
	return ra != nil && rb != nil && ra.order < rb.order
}

// SetMemberRank moves charID to rankID. Promotion needs the Promote right
// and demotion the Demote right; either way the actor must outrank both the
// target and the new rank. Nobody can be promoted to guild master.
func (g *Guild) SetMemberRank(actor *Actor, charID int64, rankID uint8) error {
	return g.execMember(actor, func(o *op) error {
		target := g.members[charID]
		if target == nil {
			return ErrNotMember
		}
		newRank := g.rank(rankID)
		if newRank == nil || newRank.IsGuildMaster() {
			return ErrInvalidRank
		}
		cur := g.memberRank(target)
		if cur.id == newRank.id {
			return nil
		}
		typ, right := EventDemotePlayer, RankRightDemote
		if newRank.order < cur.order {
			typ, right = EventPromotePlayer, RankRightPromote
		}
		actorRank := g.memberRank(o.member)
		if charID == actor.CharID || !actorRank.HasRight(right) ||
			!g.outranks(o.member, target) || newRank.order <= actorRank.order {
			return ErrNoRights
		}
		target.rankID = newRank.id
		o.batch.Save(target.record())
		g.logEvent(o, typ, actor.CharID, charID, newRank.id)
		g.broadcast(o, EventRoster, RosterEvent{GuildID: g.id, Type: typ, CharID: charID, RankID: newRank.id})
		return nil
	})
}

// Member returns a copy of charID's membership.
func (g *Guild) Member(charID int64) (MemberView, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	m := g.members[charID]
	if m == nil {
		return MemberView{}, false
	}
	return m.view(), true
}

// Members returns every member, highest rank first.
func (g *Guild) Members() []MemberView {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]MemberView, 0, len(g.members))
	for _, r := range g.ranks {
		for _, m := range g.members {
			if m.rankID == r.id {
				out = append(out, m.view())
			}
		}
	}
	return out
}

// Ranks returns the rank table in order.
func (g *Guild) Ranks() []RankView {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]RankView, len(g.ranks))
	for i, r := range g.ranks {
		out[i] = r.view()
	}
	return out
}

// RankSettings are the editable fields of a rank. Tabs holds the rights of
// each purchased tab; extra entries are ignored.
type RankSettings struct {
	Name        string          `json:"name"`
	Rights      RankRights      `json:"rights"`
	MoneyPerDay uint32          `json:"money_per_day"`
	Tabs        []BankTabRights `json:"tabs"`
}

// SetRankInfo rewrites a rank. Only the guild master may do this, and the
// guild master's own rank keeps full rights whatever is passed.
func (g *Guild) SetRankInfo(actor *Actor, rankID uint8, s RankSettings) error {
	return g.execMember(actor, func(o *op) error {
		if !g.isLeader(o.member) {
			return ErrNoRights
		}
		r := g.rank(rankID)
		if r == nil {
			return ErrInvalidRank
		}
		if name := cleanText(s.Name, MaxGuildNameLen); name != "" {
			r.name = name
		}
		r.setRights(s.Rights)
		r.setMoneyPerDay(s.MoneyPerDay)
		o.batch.Save(r.record())
		for i, tr := range s.Tabs {
			if i >= len(g.tabs) {
				break
			}
			r.setTabRights(uint8(i), tr)
			o.batch.Save(r.rightRecord(uint8(i)))
		}
		g.logger.Info("guild rank updated", zap.Uint8("rank", rankID), zap.Int64("char_id", actor.CharID))
		return nil
	})
}

// AddRank appends a rank below the current lowest.
func (g *Guild) AddRank(actor *Actor, name string) (uint8, error) {
	var id uint8
	err := g.execMember(actor, func(o *op) error {
		if !g.isLeader(o.member) {
			return ErrNoRights
		}
		if len(g.ranks) >= MaxRanks {
			return ErrInvalidRank
		}
		name = cleanText(name, MaxGuildNameLen)
		if name == "" {
			return ErrInvalidName
		}
		id = g.freeRankID()
		r := newRankInfo(g.id, id, uint8(len(g.ranks)), name, rankRightsMember, 0)
		g.ranks = append(g.ranks, r)
		o.batch.Save(r.record())
		for t := range g.tabs {
			o.batch.Save(r.rightRecord(uint8(t)))
		}
		return nil
	})
	return id, err
}

// DeleteLastRank removes the lowest rank. It must be empty and at least
// MinRanks must remain.
func (g *Guild) DeleteLastRank(actor *Actor) error {
	return g.execMember(actor, func(o *op) error {
		if !g.isLeader(o.member) {
			return ErrNoRights
		}
		if len(g.ranks) <= MinRanks {
			return ErrInvalidRank
		}
		r := g.lowestRank()
		for _, m := range g.members {
			if m.rankID == r.id {
				return ErrInvalidRank
			}
		}
		g.ranks = g.ranks[:len(g.ranks)-1]
		o.batch.Delete(&model.GuildRank{}, "guild_id = ? AND rank_id = ?", g.id, r.id)
		o.batch.Delete(&model.GuildBankRight{}, "guild_id = ? AND rank_id = ?", g.id, r.id)
		return nil
	})
}

func (g *Guild) freeRankID() uint8 {
	for id := uint8(0); ; id++ {
		if g.rank(id) == nil {
			return id
		}
	}
}

// EventLog returns the roster log oldest first.
func (g *Guild) EventLog(charID int64) ([]EventLogEntry, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.members[charID] == nil {
		return nil, ErrNotMember
	}
	return g.eventLog.Entries(), nil
}

// News returns the news log oldest first.
func (g *Guild) News() []NewsLogEntry {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.newsLog.Entries()
}

// SetNewsSticky pins or unpins a news entry. Any member may do this.
func (g *Guild) SetNewsSticky(actor *Actor, guid uint32, sticky bool) error {
	return g.execMember(actor, func(o *op) error {
		e := g.newsLog.Find(func(e *NewsLogEntry) bool { return e.GUID == guid })
		if e == nil {
			return ErrNewsNotFound
		}
		e.setSticky(sticky)
		o.batch.Save(e.record(g.id))
		return nil
	})
}

// resetDailyValues zeros every member's withdrawal counters.
func (g *Guild) resetDailyValues() {
	_ = g.exec(nil, func(o *op) error {
		for _, m := range g.members {
			m.resetValues()
			o.batch.Save(m.withdrawRecord())
		}
		return nil
	})
}
