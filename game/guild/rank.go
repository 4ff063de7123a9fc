package guild

import (
	"math"

	"github.com/kasuganosora/guildbank/model"
)

const (
	// Stored encodings of the guild master's unlimited allowances.
	storedUnlimitedSlots int32  = -1
	storedUnlimitedMoney uint32 = math.MaxUint32
)

// BankTabRights is one rank's access to one bank tab.
type BankTabRights struct {
	Rights      BankRights `json:"rights"`
	SlotsPerDay int32      `json:"slots_per_day"`
}

// RankInfo is one entry of the guild's rank table. The rank with order 0 is
// the guild master and always reads back full rights and unlimited
// allowances whatever was stored.
type RankInfo struct {
	guildID     int64
	id          uint8
	order       uint8
	name        string
	rights      RankRights
	moneyPerDay uint32
	tabs        [MaxBankTabs]BankTabRights
}

func newRankInfo(guildID int64, id, order uint8, name string, rights RankRights, moneyPerDay uint32) *RankInfo {
	r := &RankInfo{guildID: guildID, id: id, order: order, name: name}
	r.setRights(rights)
	r.setMoneyPerDay(moneyPerDay)
	for t := range r.tabs {
		r.setTabRights(uint8(t), BankTabRights{})
	}
	return r
}

func (r *RankInfo) ID() uint8           { return r.id }
func (r *RankInfo) Order() uint8        { return r.order }
func (r *RankInfo) Name() string        { return r.name }
func (r *RankInfo) IsGuildMaster() bool { return r.order == 0 }

// Rights returns the guild-wide rights of the rank.
func (r *RankInfo) Rights() RankRights {
	if r.IsGuildMaster() {
		return RankRightAll
	}
	return r.rights
}

// HasRight reports whether the rank holds every bit of want.
func (r *RankInfo) HasRight(want RankRights) bool { return r.Rights().Has(want) }

// MoneyPerDay returns the stored daily gold allowance.
func (r *RankInfo) MoneyPerDay() uint32 {
	if r.IsGuildMaster() {
		return storedUnlimitedMoney
	}
	return r.moneyPerDay
}

// TabRights returns the effective rights on tab.
func (r *RankInfo) TabRights(tab uint8) BankRights {
	if r.IsGuildMaster() {
		return BankRightFull
	}
	if int(tab) >= MaxBankTabs {
		return 0
	}
	return r.tabs[tab].Rights
}

// TabSlotsPerDay returns the stored daily withdrawal count on tab.
func (r *RankInfo) TabSlotsPerDay(tab uint8) int32 {
	if r.IsGuildMaster() {
		return storedUnlimitedSlots
	}
	if int(tab) >= MaxBankTabs {
		return 0
	}
	return r.tabs[tab].SlotsPerDay
}

// SlotQuota returns the number of item withdrawals per day allowed on tab.
// Without both View and Withdraw the quota is zero.
func (r *RankInfo) SlotQuota(tab uint8) Quota {
	if r.IsGuildMaster() {
		return Unlimited()
	}
	if !r.TabRights(tab).Has(BankRightView | BankRightWithdraw) {
		return Limited(0)
	}
	n := r.TabSlotsPerDay(tab)
	if n < 0 {
		n = 0
	}
	return Limited(uint64(n))
}

// MoneyQuota returns the copper the rank may withdraw per day. Ranks with
// neither gold nor repair withdrawal rights get zero.
func (r *RankInfo) MoneyQuota() Quota {
	if r.IsGuildMaster() {
		return Unlimited()
	}
	if r.rights&(RankRightWithdrawGold|RankRightWithdrawRepair) == 0 {
		return Limited(0)
	}
	return Limited(uint64(r.moneyPerDay) * Gold)
}

func (r *RankInfo) setRights(rights RankRights) {
	if r.IsGuildMaster() {
		rights = RankRightAll
	}
	r.rights = rights
}

func (r *RankInfo) setMoneyPerDay(money uint32) {
	if r.IsGuildMaster() {
		money = storedUnlimitedMoney
	}
	r.moneyPerDay = money
}

func (r *RankInfo) setTabRights(tab uint8, tr BankTabRights) {
	if int(tab) >= MaxBankTabs {
		return
	}
	if r.IsGuildMaster() {
		tr = BankTabRights{Rights: BankRightFull, SlotsPerDay: storedUnlimitedSlots}
	}
	r.tabs[tab] = tr
}

func (r *RankInfo) record() *model.GuildRank {
	return &model.GuildRank{
		GuildID:         r.guildID,
		RankID:          r.id,
		Order:           r.order,
		Name:            r.name,
		Rights:          uint32(r.rights),
		BankMoneyPerDay: r.moneyPerDay,
	}
}

func (r *RankInfo) rightRecord(tab uint8) *model.GuildBankRight {
	return &model.GuildBankRight{
		GuildID:     r.guildID,
		TabID:       tab,
		RankID:      r.id,
		Rights:      uint8(r.tabs[tab].Rights),
		SlotsPerDay: r.tabs[tab].SlotsPerDay,
	}
}

// RankView is a read-only copy of a rank.
type RankView struct {
	ID          uint8                      `json:"id"`
	Order       uint8                      `json:"order"`
	Name        string                     `json:"name"`
	Rights      RankRights                 `json:"rights"`
	MoneyPerDay uint32                     `json:"money_per_day"`
	Tabs        [MaxBankTabs]BankTabRights `json:"tabs"`
}

func (r *RankInfo) view() RankView {
	v := RankView{ID: r.id, Order: r.order, Name: r.name, Rights: r.Rights(), MoneyPerDay: r.MoneyPerDay()}
	for t := range v.Tabs {
		v.Tabs[t] = BankTabRights{Rights: r.TabRights(uint8(t)), SlotsPerDay: r.TabSlotsPerDay(uint8(t))}
	}
	return v
}

// defaultRanks is the rank table of a freshly created guild.
var defaultRanks = []struct {
	name   string
	rights RankRights
}{
	{"Guild Master", RankRightAll},
	{"Officer", rankRightsMember},
	{"Veteran", rankRightsMember},
	{"Member", rankRightsMember},
	{"Initiate", rankRightsMember},
}
