package guild

import (
	"github.com/kasuganosora/guildbank/game/item"
	"github.com/kasuganosora/guildbank/model"
	"github.com/kasuganosora/guildbank/persist"
	"gorm.io/datatypes"
)

// BankTab is one purchased tab of the guild bank.
type BankTab struct {
	guildID int64
	id      uint8
	name    string
	icon    string
	text    string
	items   [MaxBankSlots]*item.Stack
}

func newBankTab(guildID int64, id uint8) *BankTab {
	return &BankTab{guildID: guildID, id: id}
}

func (t *BankTab) ID() uint8    { return t.id }
func (t *BankTab) Name() string { return t.name }
func (t *BankTab) Icon() string { return t.icon }
func (t *BankTab) Text() string { return t.text }

// GetItem returns the stack in slot, or nil for empty or out of range slots.
func (t *BankTab) GetItem(slot uint8) *item.Stack {
	if int(slot) >= MaxBankSlots {
		return nil
	}
	return t.items[slot]
}

// SetItem puts st (or nothing) into slot. The stored slot row is always
// deleted first; a present stack becomes bank-owned and is saved anew.
func (t *BankTab) SetItem(b *persist.Batch, slot uint8, st *item.Stack) bool {
	if int(slot) >= MaxBankSlots {
		return false
	}
	t.items[slot] = st
	b.Delete(&model.GuildBankItem{}, "guild_id = ? AND tab_id = ? AND slot = ?", t.guildID, t.id, slot)
	if st != nil {
		st.OwnerID = 0
		st.ContainedIn = ""
		b.Save(bankItemRecord(t.guildID, t.id, slot, st))
	}
	return true
}

// saveItem re-persists the stack in slot after its count changed.
func (t *BankTab) saveItem(b *persist.Batch, slot uint8) {
	if st := t.GetItem(slot); st != nil {
		b.Save(bankItemRecord(t.guildID, t.id, slot, st))
	}
}

func (t *BankTab) setInfo(b *persist.Batch, name, icon string) {
	if t.name == name && t.icon == icon {
		return
	}
	t.name, t.icon = name, icon
	b.Save(t.record())
}

func (t *BankTab) setText(b *persist.Batch, text string) {
	if t.text == text {
		return
	}
	t.text = text
	b.Save(t.record())
}

// loadItem places a stored stack; it fails for slots outside the tab or
// already taken.
func (t *BankTab) loadItem(rec *model.GuildBankItem) bool {
	if int(rec.Slot) >= MaxBankSlots || t.items[rec.Slot] != nil {
		return false
	}
	t.items[rec.Slot] = stackFromBankItem(rec)
	return true
}

// delete drops every stack; with removeFromDB the tab and its rows go too.
func (t *BankTab) delete(b *persist.Batch, removeFromDB bool) {
	for i := range t.items {
		t.items[i] = nil
	}
	if removeFromDB {
		b.Delete(&model.GuildBankItem{}, "guild_id = ? AND tab_id = ?", t.guildID, t.id)
		b.Delete(&model.GuildBankTab{}, "guild_id = ? AND tab_id = ?", t.guildID, t.id)
	}
}

func (t *BankTab) record() *model.GuildBankTab {
	return &model.GuildBankTab{GuildID: t.guildID, TabID: t.id, Name: t.name, Icon: t.icon, Text: t.text}
}

func bankItemRecord(guildID int64, tab, slot uint8, st *item.Stack) *model.GuildBankItem {
	return &model.GuildBankItem{
		GuildID:   guildID,
		TabID:     tab,
		Slot:      slot,
		ItemGUID:  st.GUID,
		Entry:     st.Entry,
		Count:     st.Count,
		MaxStack:  st.MaxStack,
		Soulbound: st.Soulbound,
		Tradeable: st.Tradeable,
		BagSize:   st.BagSize,
		Attrs:     datatypes.JSON(st.Attrs),
	}
}

func stackFromBankItem(rec *model.GuildBankItem) *item.Stack {
	st := &item.Stack{
		GUID:      rec.ItemGUID,
		Entry:     rec.Entry,
		Count:     rec.Count,
		MaxStack:  rec.MaxStack,
		Soulbound: rec.Soulbound,
		Tradeable: rec.Tradeable,
		BagSize:   rec.BagSize,
	}
	if st.MaxStack == 0 {
		st.MaxStack = 1
	}
	if st.BagSize > 0 {
		st.Contents = make([]*item.Stack, st.BagSize)
	}
	if len(rec.Attrs) > 0 {
		st.Attrs = append([]byte(nil), rec.Attrs...)
	}
	return st
}

// ItemView is the client-facing description of a stack.
type ItemView struct {
	GUID      string `json:"guid"`
	Entry     uint32 `json:"entry"`
	Count     uint32 `json:"count"`
	MaxStack  uint32 `json:"max_stack"`
	Soulbound bool   `json:"soulbound,omitempty"`
}

// SlotView is the content of one bank slot; Item is nil when empty.
type SlotView struct {
	Slot uint8     `json:"slot"`
	Item *ItemView `json:"item"`
}

func viewStack(st *item.Stack) *ItemView {
	if st == nil {
		return nil
	}
	return &ItemView{GUID: st.GUID, Entry: st.Entry, Count: st.Count, MaxStack: st.MaxStack, Soulbound: st.Soulbound}
}

// slotViews describes the given slots, or every occupied slot when slots is
// nil.
func (t *BankTab) slotViews(slots []uint8) []SlotView {
	if slots == nil {
		var out []SlotView
		for i, st := range t.items {
			if st != nil {
				out = append(out, SlotView{Slot: uint8(i), Item: viewStack(st)})
			}
		}
		return out
	}
	out := make([]SlotView, 0, len(slots))
	for _, s := range slots {
		out = append(out, SlotView{Slot: s, Item: viewStack(t.GetItem(s))})
	}
	return out
}

// TabView describes a tab's metadata.
type TabView struct {
	ID   uint8  `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon"`
	Text string `json:"text,omitempty"`
}

func (t *BankTab) view() TabView {
	return TabView{ID: t.id, Name: t.name, Icon: t.icon, Text: t.text}
}
