package guild

import (
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/kasuganosora/guildbank/model"
	"github.com/kasuganosora/guildbank/persist"
	"go.uber.org/zap"
)

// Registry owns every loaded guild and indexes them by id, name and member.
// Lock order is guild before registry: guild operations may call into the
// registry, never the reverse.
type Registry struct {
	mu       sync.RWMutex
	deps     Deps
	guilds   map[int64]*Guild
	byName   map[string]*Guild
	byMember map[int64]*Guild
	nextID   int64
}

func NewRegistry(deps Deps) *Registry {
	return &Registry{
		deps:     deps.withDefaults(),
		guilds:   make(map[int64]*Guild),
		byName:   make(map[string]*Guild),
		byMember: make(map[int64]*Guild),
		nextID:   1,
	}
}

func nameKey(name string) string { return strings.ToLower(name) }

func validGuildName(name string) bool {
	n := utf8.RuneCountInString(name)
	return n > 0 && n <= MaxGuildNameLen && strings.TrimSpace(name) == name &&
		textPolicy.Sanitize(name) == name
}

// Create founds a guild with leader as guild master and the default rank
// table. The guild starts without bank tabs.
func (r *Registry) Create(leader *Actor, name string) (*Guild, error) {
	if leader == nil {
		return nil, ErrNotMember
	}
	if !validGuildName(name) {
		return nil, ErrInvalidName
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[nameKey(name)]; ok {
		return nil, ErrNameTaken
	}
	if _, ok := r.byMember[leader.CharID]; ok {
		return nil, ErrAlreadyInGuild
	}

	g := newGuild(r.nextID, name, r.deps)
	r.nextID++
	g.reg = r
	g.leaderID = leader.CharID

	o := &op{actor: leader, batch: persist.NewBatch()}
	o.batch.Save(g.record())
	for i, d := range defaultRanks {
		rk := newRankInfo(g.id, uint8(i), uint8(i), d.name, d.rights, 0)
		g.ranks = append(g.ranks, rk)
		o.batch.Save(rk.record())
	}
	m := newMember(g.id, leader.CharID, leader.Name, g.ranks[0].id)
	g.members[m.charID] = m
	o.batch.Save(m.record())
	o.batch.Save(m.withdrawRecord())
	g.logNews(o, NewsGuildCreated, leader.CharID, 0)
	if g.store != nil {
		g.store.Commit(o.batch)
	}

	r.guilds[g.id] = g
	r.byName[nameKey(name)] = g
	r.byMember[leader.CharID] = g
	g.logger.Info("guild created", zap.String("name", name), zap.Int64("leader", leader.CharID))
	return g, nil
}

func (g *Guild) record() *model.Guild {
	return &model.Guild{
		ID:        g.id,
		Name:      g.name,
		LeaderID:  g.leaderID,
		BankMoney: g.bankMoney,
		Info:      g.info,
		CreatedAt: g.createdAt,
	}
}

func (r *Registry) Get(id int64) *Guild {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.guilds[id]
}

// GetByMember returns the guild charID belongs to, or nil.
func (r *Registry) GetByMember(charID int64) *Guild {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byMember[charID]
}

// GetByName looks a guild up by name, ignoring case.
func (r *Registry) GetByName(name string) *Guild {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byName[nameKey(name)]
}

// All returns every guild ordered by id.
func (r *Registry) All() []*Guild {
	r.mu.RLock()
	out := make([]*Guild, 0, len(r.guilds))
	for _, g := range r.guilds {
		out = append(out, g)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Len returns the number of guilds.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.guilds)
}

// Disband dissolves the actor's guild. Only the guild master may do this;
// every tab, item, rank, member and log row is deleted.
func (r *Registry) Disband(actor *Actor) error {
	g := r.GetByMember(actor.CharID)
	if g == nil {
		return ErrNotMember
	}
	return g.execMember(actor, func(o *op) error {
		if !g.isLeader(o.member) {
			return ErrNoRights
		}
		g.broadcast(o, EventDisbanded, RosterEvent{GuildID: g.id, Type: EventLeaveGuild, CharID: actor.CharID})
		for _, t := range g.tabs {
			t.delete(o.batch, true)
		}
		g.tabs = nil
		for _, m := range g.members {
			g.deleteMember(o, m)
		}
		for _, rec := range []interface{}{
			&model.GuildRank{}, &model.GuildBankRight{}, &model.GuildEventLog{},
			&model.GuildBankEventLog{}, &model.GuildNewsLog{},
		} {
			o.batch.Delete(rec, "guild_id = ?", g.id)
		}
		o.batch.Delete(&model.Guild{}, "id = ?", g.id)
		r.remove(g)
		g.logger.Info("guild disbanded", zap.Int64("char_id", actor.CharID))
		return nil
	})
}

// ResetDailyValues zeros every member's daily withdrawal counters in every
// guild.
func (r *Registry) ResetDailyValues() {
	start := time.Now()
	guilds := r.All()
	for _, g := range guilds {
		g.resetDailyValues()
	}
	r.deps.Logger.Info("guild daily values reset",
		zap.Int("guilds", len(guilds)), zap.Duration("took", time.Since(start)))
}

func (r *Registry) add(g *Guild) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g.reg = r
	r.guilds[g.id] = g
	r.byName[nameKey(g.name)] = g
	for id := range g.members {
		r.byMember[id] = g
	}
	if g.id >= r.nextID {
		r.nextID = g.id + 1
	}
}

func (r *Registry) remove(g *Guild) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.guilds, g.id)
	if r.byName[nameKey(g.name)] == g {
		delete(r.byName, nameKey(g.name))
	}
	for id, mg := range r.byMember {
		if mg == g {
			delete(r.byMember, id)
		}
	}
}

// claimMember records charID as a member of g unless it already belongs to
// another guild.
func (r *Registry) claimMember(charID int64, g *Guild) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.byMember[charID]; ok && cur != g {
		return false
	}
	r.byMember[charID] = g
	return true
}

func (r *Registry) releaseMember(charID int64, g *Guild) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byMember[charID] == g {
		delete(r.byMember, charID)
	}
}
