package guild

import (
	"strings"
	"unicode/utf8"

	"github.com/kasuganosora/guildbank/model"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
)

var textPolicy = bluemonday.StrictPolicy()

// cleanText strips markup and trims text to max runes.
func cleanText(s string, max int) string {
	s = strings.TrimSpace(textPolicy.Sanitize(s))
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max])
}

// SwapItems moves items between two bank slots. split is the number of
// items to split off, or zero to move the whole stack.
func (g *Guild) SwapItems(actor *Actor, tab, slot, destTab, destSlot uint8, split uint32) error {
	return g.execMember(actor, func(o *op) error {
		if int(tab) >= len(g.tabs) || int(destTab) >= len(g.tabs) {
			return ErrInvalidTab
		}
		if int(slot) >= MaxBankSlots || int(destSlot) >= MaxBankSlots {
			return ErrInvalidSlot
		}
		if tab == destTab && slot == destSlot {
			return ErrInvalidSlot
		}
		from := newBankMoveData(g, o, tab, slot)
		to := newBankMoveData(g, o, destTab, destSlot)
		return g.moveItems(o, from, to, split)
	})
}

// SwapItemsWithInventory moves items between a bank slot and the actor's
// bags. With toChar set the bank slot is the source. slot may be NullSlot
// for deposits, and bag/bagSlot may be NullBag/NullSlot to let the
// inventory pick a place.
func (g *Guild) SwapItemsWithInventory(actor *Actor, toChar bool, tab, slot, bag, bagSlot uint8, split uint32) error {
	return g.execMember(actor, func(o *op) error {
		if actor.Inv == nil {
			return ErrItemNotFound
		}
		if int(tab) >= len(g.tabs) {
			return ErrInvalidTab
		}
		if int(slot) >= MaxBankSlots && slot != NullSlot {
			return ErrInvalidSlot
		}
		bankData := newBankMoveData(g, o, tab, slot)
		charData := newPlayerMoveData(g, o, bag, bagSlot)
		if toChar {
			return g.moveItems(o, bankData, charData, split)
		}
		return g.moveItems(o, charData, bankData, split)
	})
}

// SetBankTabInfo renames a tab. Only the guild master may do this.
func (g *Guild) SetBankTabInfo(actor *Actor, tabID uint8, name, icon string) error {
	return g.execMember(actor, func(o *op) error {
		tab := g.bankTab(tabID)
		if tab == nil {
			return ErrInvalidTab
		}
		if !g.isLeader(o.member) {
			return ErrNoRights
		}
		tab.setInfo(o.batch, cleanText(name, MaxBankTabNameLen), cleanText(icon, 128))
		g.broadcastTab(o, tabID, EventBankTab, BankTabEvent{GuildID: g.id, Tab: tab.view()})
		return nil
	})
}

// SetBankTabText replaces a tab's free text. Requires UpdateText on the tab.
func (g *Guild) SetBankTabText(actor *Actor, tabID uint8, text string) error {
	return g.execMember(actor, func(o *op) error {
		tab := g.bankTab(tabID)
		if tab == nil {
			return ErrInvalidTab
		}
		if !g.memberHasTabRights(o.member, tabID, BankRightUpdateText) {
			return ErrNoRights
		}
		tab.setText(o.batch, cleanText(text, MaxBankTabTextLen))
		g.broadcastTab(o, tabID, EventBankTab, BankTabEvent{GuildID: g.id, Tab: tab.view()})
		return nil
	})
}

// BuyBankTab buys the next tab for the guild master, charging the price to
// the master's wallet. tabID must be the number of tabs already owned.
func (g *Guild) BuyBankTab(actor *Actor, tabID uint8) error {
	return g.execMember(actor, func(o *op) error {
		if !g.isLeader(o.member) {
			return ErrNoRights
		}
		if int(tabID) != len(g.tabs) || int(tabID) >= MaxBankTabs {
			return ErrInvalidTab
		}
		cost := BankTabPrice(tabID)
		if actor.Inv == nil || actor.Inv.Money() < cost || !actor.Inv.ModifyMoney(-int64(cost)) {
			return ErrNotEnoughMoney
		}
		o.invDirty = true
		g.createBankTab(o)
		g.logBankEvent(o, BankEventBuySlot, 0, cost, 0, 0)
		g.logNews(o, NewsBankTabPurchased, actor.CharID, uint32(tabID))
		g.logger.Info("guild bank tab purchased", zap.Int64("char_id", actor.CharID), zap.Uint8("tab", tabID))
		g.broadcast(o, EventBankTab, BankTabEvent{GuildID: g.id, Tab: g.tabs[tabID].view()})
		return nil
	})
}

func (g *Guild) createBankTab(o *op) *BankTab {
	id := uint8(len(g.tabs))
	tab := newBankTab(g.id, id)
	g.tabs = append(g.tabs, tab)
	o.batch.Delete(&model.GuildBankTab{}, "guild_id = ? AND tab_id = ?", g.id, id)
	o.batch.Delete(&model.GuildBankRight{}, "guild_id = ? AND tab_id = ?", g.id, id)
	o.batch.Save(tab.record())
	for _, r := range g.ranks {
		r.setTabRights(id, BankTabRights{})
		o.batch.Save(r.rightRecord(id))
	}
	return tab
}

// BankTabContents returns the occupied slots of a tab. Requires View.
func (g *Guild) BankTabContents(charID int64, tabID uint8) ([]SlotView, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	m := g.members[charID]
	if m == nil {
		return nil, ErrNotMember
	}
	tab := g.bankTab(tabID)
	if tab == nil {
		return nil, ErrInvalidTab
	}
	if !g.memberHasTabRights(m, tabID, BankRightView) {
		return nil, ErrNoRights
	}
	return tab.slotViews(nil), nil
}

// BankTabs returns the metadata of every tab charID can view. Tab text is
// included.
func (g *Guild) BankTabs(charID int64) ([]TabView, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	m := g.members[charID]
	if m == nil {
		return nil, ErrNotMember
	}
	out := make([]TabView, 0, len(g.tabs))
	for _, t := range g.tabs {
		if g.memberHasTabRights(m, t.id, BankRightView) {
			out = append(out, t.view())
		}
	}
	return out, nil
}

// BankLog returns a tab's log oldest first. MoneyLogTab addresses the money
// log, which any member may read; item tabs require View.
func (g *Guild) BankLog(charID int64, tabID uint8) ([]BankEventLogEntry, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	m := g.members[charID]
	if m == nil {
		return nil, ErrNotMember
	}
	if tabID != MoneyLogTab {
		if g.bankTab(tabID) == nil {
			return nil, ErrInvalidTab
		}
		if !g.memberHasTabRights(m, tabID, BankRightView) {
			return nil, ErrNoRights
		}
	}
	return g.bankEventLog[tabID].Entries(), nil
}

// AllBankLogs returns every bank log keyed by tab, money log included.
func (g *Guild) AllBankLogs() map[uint8][]BankEventLogEntry {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[uint8][]BankEventLogEntry, len(g.tabs)+1)
	for _, t := range g.tabs {
		out[t.id] = g.bankEventLog[t.id].Entries()
	}
	out[MoneyLogTab] = g.bankEventLog[MoneyLogTab].Entries()
	return out
}

// RemainingWithdrawSlots returns how many more withdrawals charID may make
// from tab today.
func (g *Guild) RemainingWithdrawSlots(charID int64, tabID uint8) (Quota, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	m := g.members[charID]
	if m == nil {
		return Limited(0), ErrNotMember
	}
	if g.bankTab(tabID) == nil {
		return Limited(0), ErrInvalidTab
	}
	return g.remainingSlots(m, tabID), nil
}
