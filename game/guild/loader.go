package guild

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/kasuganosora/guildbank/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// guildRows holds every stored row of one guild.
type guildRows struct {
	guild     model.Guild
	ranks     []model.GuildRank
	rights    []model.GuildBankRight
	members   []model.GuildMember
	tabs      []model.GuildBankTab
	items     []model.GuildBankItem
	events    []model.GuildEventLog
	bankLogs  []model.GuildBankEventLog
	news      []model.GuildNewsLog
	withdraws map[int64]model.GuildMemberWithdraw
}

// Load reads every guild from db into the registry. A guild that fails
// validation is skipped and its error is included in the returned join;
// the others stay usable.
func (r *Registry) Load(ctx context.Context, db *gorm.DB) error {
	db = db.WithContext(ctx)
	var guilds []model.Guild
	if err := db.Order("id").Find(&guilds).Error; err != nil {
		return fmt.Errorf("load guilds: %w", err)
	}
	rows := make(map[int64]*guildRows, len(guilds))
	for _, g := range guilds {
		rows[g.ID] = &guildRows{guild: g, withdraws: make(map[int64]model.GuildMemberWithdraw)}
	}

	var (
		ranks     []model.GuildRank
		rights    []model.GuildBankRight
		members   []model.GuildMember
		withdraws []model.GuildMemberWithdraw
		tabs      []model.GuildBankTab
		items     []model.GuildBankItem
		events    []model.GuildEventLog
		bankLogs  []model.GuildBankEventLog
		news      []model.GuildNewsLog
	)
	for _, q := range []struct {
		name string
		dst  interface{}
	}{
		{"ranks", &ranks}, {"bank rights", &rights}, {"members", &members},
		{"member withdrawals", &withdraws}, {"bank tabs", &tabs}, {"bank items", &items},
		{"event logs", &events}, {"bank event logs", &bankLogs}, {"news", &news},
	} {
		if err := db.Find(q.dst).Error; err != nil {
			return fmt.Errorf("load guild %s: %w", q.name, err)
		}
	}

	for _, x := range ranks {
		if gr := rows[x.GuildID]; gr != nil {
			gr.ranks = append(gr.ranks, x)
		}
	}
	for _, x := range rights {
		if gr := rows[x.GuildID]; gr != nil {
			gr.rights = append(gr.rights, x)
		}
	}
	memberGuild := make(map[int64]int64, len(members))
	for _, x := range members {
		if gr := rows[x.GuildID]; gr != nil {
			gr.members = append(gr.members, x)
			memberGuild[x.CharID] = x.GuildID
		}
	}
	for _, x := range withdraws {
		if gr := rows[memberGuild[x.CharID]]; gr != nil {
			gr.withdraws[x.CharID] = x
		}
	}
	for _, x := range tabs {
		if gr := rows[x.GuildID]; gr != nil {
			gr.tabs = append(gr.tabs, x)
		}
	}
	for _, x := range items {
		if gr := rows[x.GuildID]; gr != nil {
			gr.items = append(gr.items, x)
		}
	}
	for _, x := range events {
		if gr := rows[x.GuildID]; gr != nil {
			gr.events = append(gr.events, x)
		}
	}
	for _, x := range bankLogs {
		if gr := rows[x.GuildID]; gr != nil {
			gr.bankLogs = append(gr.bankLogs, x)
		}
	}
	for _, x := range news {
		if gr := rows[x.GuildID]; gr != nil {
			gr.news = append(gr.news, x)
		}
	}

	var errs []error
	for _, g := range guilds {
		built, err := r.build(rows[g.ID])
		if err != nil {
			r.deps.Logger.Error("guild rejected at load", zap.Int64("guild_id", g.ID), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		r.add(built)
	}
	// rejected guilds keep their rows, so new ids must not collide with them
	r.mu.Lock()
	for _, g := range guilds {
		if g.ID >= r.nextID {
			r.nextID = g.ID + 1
		}
	}
	r.mu.Unlock()
	r.deps.Logger.Info("guilds loaded", zap.Int("loaded", r.Len()), zap.Int("rejected", len(errs)))
	return errors.Join(errs...)
}

func (r *Registry) build(rows *guildRows) (*Guild, error) {
	rec := rows.guild
	corrupt := func(format string, args ...interface{}) error {
		return fmt.Errorf("guild %d: %w: %s", rec.ID, ErrCorruptGuild, fmt.Sprintf(format, args...))
	}

	g := newGuild(rec.ID, rec.Name, r.deps)
	g.leaderID = rec.LeaderID
	g.bankMoney = rec.BankMoney
	g.info = rec.Info
	g.createdAt = rec.CreatedAt
	if g.bankMoney > MoneyLimit {
		return nil, corrupt("bank money %d above limit", g.bankMoney)
	}

	// ranks: dense orders within MinRanks..MaxRanks
	if n := len(rows.ranks); n < MinRanks || n > MaxRanks {
		return nil, corrupt("%d ranks", n)
	}
	seenID := make(map[uint8]bool, len(rows.ranks))
	for _, x := range rows.ranks {
		if seenID[x.RankID] {
			return nil, corrupt("duplicate rank id %d", x.RankID)
		}
		seenID[x.RankID] = true
		g.ranks = append(g.ranks, newRankInfo(g.id, x.RankID, x.Order, x.Name, RankRights(x.Rights), x.BankMoneyPerDay))
	}
	g.sortRanks()
	for i, rk := range g.ranks {
		if int(rk.order) != i {
			return nil, corrupt("rank orders not dense at %d", i)
		}
	}

	// tabs: dense ids below MaxBankTabs
	sort.Slice(rows.tabs, func(i, j int) bool { return rows.tabs[i].TabID < rows.tabs[j].TabID })
	for i, x := range rows.tabs {
		if int(x.TabID) >= MaxBankTabs {
			return nil, corrupt("tab id %d", x.TabID)
		}
		if int(x.TabID) != i {
			return nil, corrupt("tab ids not dense at %d", i)
		}
		t := newBankTab(g.id, x.TabID)
		t.name, t.icon, t.text = x.Name, x.Icon, x.Text
		g.tabs = append(g.tabs, t)
	}
	for _, x := range rows.rights {
		if rk := g.rank(x.RankID); rk != nil && int(x.TabID) < len(g.tabs) {
			rk.setTabRights(x.TabID, BankTabRights{Rights: BankRights(x.Rights), SlotsPerDay: x.SlotsPerDay})
		}
	}
	for i := range rows.items {
		x := &rows.items[i]
		t := g.bankTab(x.TabID)
		if t == nil || !t.loadItem(x) {
			g.logger.Warn("dropping bank item in invalid slot",
				zap.Uint8("tab", x.TabID), zap.Uint8("slot", x.Slot), zap.String("item_guid", x.ItemGUID))
		}
	}

	for _, x := range rows.members {
		rankID := x.RankID
		if g.rank(rankID) == nil {
			g.logger.Warn("member has unknown rank, moving to lowest", zap.Int64("char_id", x.CharID), zap.Uint8("rank", rankID))
			rankID = g.lowestRank().id
		}
		m := newMember(g.id, x.CharID, x.Name, rankID)
		m.joinedAt = x.JoinedAt
		if w, ok := rows.withdraws[x.CharID]; ok {
			m.bankWithdraw = w.Tabs()
			m.bankWithdrawMoney = w.Money
		}
		g.members[m.charID] = m
	}
	leader := g.members[g.leaderID]
	if leader == nil {
		return nil, corrupt("leader %d is not a member", g.leaderID)
	}
	if !g.isLeader(leader) {
		g.logger.Warn("leader not at guild master rank, fixing", zap.Int64("char_id", g.leaderID))
		leader.rankID = g.ranks[0].id
	}
	r.mu.RLock()
	for id := range g.members {
		if other := r.byMember[id]; other != nil {
			r.mu.RUnlock()
			return nil, corrupt("member %d already in guild %d", id, other.id)
		}
	}
	r.mu.RUnlock()

	loadLogs(rows, g)
	return g, nil
}

func loadLogs(rows *guildRows, g *Guild) {
	sort.Slice(rows.events, func(i, j int) bool {
		a, b := rows.events[i], rows.events[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.LogGUID < b.LogGUID
	})
	for _, x := range rows.events {
		g.eventLog.Add(EventLogEntry{
			GUID: x.LogGUID, Type: EventLogType(x.EventType), PlayerGUID1: x.PlayerGUID1,
			PlayerGUID2: x.PlayerGUID2, NewRank: x.NewRank, Timestamp: x.Timestamp,
		})
	}
	if n := len(rows.events); n > 0 {
		g.eventLog.resumeAfter(rows.events[n-1].LogGUID)
	}

	sort.Slice(rows.bankLogs, func(i, j int) bool {
		a, b := rows.bankLogs[i], rows.bankLogs[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.LogGUID < b.LogGUID
	})
	for _, x := range rows.bankLogs {
		if int(x.TabID) > MaxBankTabs {
			continue
		}
		h := g.bankEventLog[x.TabID]
		h.Add(BankEventLogEntry{
			GUID: x.LogGUID, Tab: x.TabID, Type: BankEventLogType(x.EventType), PlayerGUID: x.PlayerGUID,
			ItemOrMoney: x.ItemOrMoney, ItemStackCount: x.ItemStackCount, DestTab: x.DestTabID, Timestamp: x.Timestamp,
		})
		h.resumeAfter(x.LogGUID)
	}

	sort.Slice(rows.news, func(i, j int) bool {
		a, b := rows.news[i], rows.news[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.LogGUID < b.LogGUID
	})
	for _, x := range rows.news {
		g.newsLog.Add(NewsLogEntry{
			GUID: x.LogGUID, Type: NewsType(x.EventType), PlayerGUID: x.PlayerGUID,
			Flags: x.Flags, Value: x.Value, Timestamp: x.Timestamp,
		})
	}
	if n := len(rows.news); n > 0 {
		g.newsLog.resumeAfter(rows.news[n-1].LogGUID)
	}
}
