package guild

import (
	"github.com/kasuganosora/guildbank/game/item"
)

// moveItemData is one end of an item move: a bank slot or a player's bag
// slot. The transfer engine drives both kinds through this interface.
type moveItemData interface {
	isBank() bool
	container() uint8
	slot() uint8
	// initItem locates the stack at this location.
	initItem() bool
	// checkItem validates *split against the stack; a split of the whole
	// stack becomes a plain move.
	checkItem(split *uint32) bool
	hasStoreRights(other moveItemData) bool
	hasWithdrawRights(other moveItemData) bool
	// canStore computes reservations for st without changing anything.
	canStore(st *item.Stack, swap bool) item.Result
	removeItem(other moveItemData, split uint32)
	storeItem(st *item.Stack) *item.Stack
	logBankEvent(from moveItemData, count uint32)
	item(splitted bool) *item.Stack
	cloneItem(count uint32) bool
	reserved() []item.Pos
	sendEquipError(res item.Result, st *item.Stack)
}

// moveBase holds the state shared by both endpoint kinds.
type moveBase struct {
	g     *Guild
	o     *op
	cont  uint8
	pos   uint8
	it    *item.Stack
	clone *item.Stack
	vec   []item.Pos
}

func (d *moveBase) container() uint8     { return d.cont }
func (d *moveBase) slot() uint8          { return d.pos }
func (d *moveBase) reserved() []item.Pos { return d.vec }

func (d *moveBase) item(splitted bool) *item.Stack {
	if splitted {
		return d.clone
	}
	return d.it
}

func (d *moveBase) checkItem(split *uint32) bool {
	if d.it == nil {
		return false
	}
	if *split > d.it.Count {
		return false
	}
	if *split == d.it.Count {
		*split = 0
	}
	return true
}

func (d *moveBase) cloneItem(count uint32) bool {
	d.clone = d.it.Clone(count)
	if d.clone == nil {
		d.sendEquipError(item.ResultItemNotFound, d.it)
		return false
	}
	return true
}

func (d *moveBase) sendEquipError(res item.Result, st *item.Stack) {
	d.o.sendEquipError(res, st)
}

// tryStore runs d.canStore and reports a failure to the player when
// sendError is set.
func tryStore(d moveItemData, st *item.Stack, swap, sendError bool) item.Result {
	res := d.canStore(st, swap)
	if sendError && res != item.ResultOK {
		d.sendEquipError(res, st)
	}
	return res
}

// bankMoveData addresses a slot of a bank tab.
type bankMoveData struct {
	moveBase
}

func newBankMoveData(g *Guild, o *op, tab, slot uint8) *bankMoveData {
	return &bankMoveData{moveBase{g: g, o: o, cont: tab, pos: slot}}
}

func (d *bankMoveData) isBank() bool { return true }

func (d *bankMoveData) initItem() bool {
	tab := d.g.bankTab(d.cont)
	if tab == nil {
		return false
	}
	d.it = tab.GetItem(d.pos)
	return d.it != nil
}

func sameTab(d *bankMoveData, other moveItemData) bool {
	return other.isBank() && other.container() == d.cont
}

func (d *bankMoveData) hasStoreRights(other moveItemData) bool {
	if sameTab(d, other) {
		return true
	}
	return d.g.memberHasTabRights(d.o.member, d.cont, BankRightDepositItem)
}

func (d *bankMoveData) hasWithdrawRights(other moveItemData) bool {
	if sameTab(d, other) {
		return true
	}
	return !d.g.remainingSlots(d.o.member, d.cont).IsZero()
}

func (d *bankMoveData) removeItem(other moveItemData, split uint32) {
	tab := d.g.bankTab(d.cont)
	if split > 0 {
		d.it.Count -= split
		tab.saveItem(d.o.batch, d.pos)
	} else {
		tab.SetItem(d.o.batch, d.pos, nil)
		d.it = nil
	}
	if !sameTab(d, other) {
		d.g.updateMemberWithdrawSlots(d.o, d.o.member, d.cont)
	}
}

func (d *bankMoveData) storeItem(st *item.Stack) *item.Stack {
	if st == nil {
		return nil
	}
	tab := d.g.bankTab(d.cont)
	var last *item.Stack
	for i, p := range d.vec {
		last = d.store(tab, st, p, i != len(d.vec)-1)
	}
	return last
}

// store puts p.Count of st into p.Slot, merging with whatever is there.
// With clone set a copy is placed so st stays available for later
// reservations.
func (d *bankMoveData) store(tab *BankTab, st *item.Stack, p item.Pos, clone bool) *item.Stack {
	if dest := tab.GetItem(p.Slot); dest != nil && dest != st {
		dest.Count += p.Count
		tab.saveItem(d.o.batch, p.Slot)
		return dest
	}
	placed := st
	if clone {
		placed = st.Clone(p.Count)
	} else {
		st.Count = p.Count
	}
	if placed != nil && tab.SetItem(d.o.batch, p.Slot, placed) {
		return placed
	}
	return nil
}

func (d *bankMoveData) logBankEvent(from moveItemData, count uint32) {
	entry := from.item(false).Entry
	if from.isBank() {
		d.g.logBankEvent(d.o, BankEventMoveItem, from.container(), uint64(entry), count, d.cont)
		return
	}
	d.g.logBankEvent(d.o, BankEventDepositItem, d.cont, uint64(entry), count, 0)
}

// canStore is the slot search: an explicit slot first, then existing
// stacks of the same entry, then empty slots, always in ascending order.
func (d *bankMoveData) canStore(st *item.Stack, swap bool) item.Result {
	d.vec = d.vec[:0]
	count := st.Count

	if st.Soulbound {
		return item.ResultDropBoundItem
	}
	tab := d.g.bankTab(d.cont)
	if tab == nil {
		return item.ResultWrongBagType
	}

	if d.pos != NullSlot {
		dest := tab.GetItem(d.pos)
		if dest == st || swap {
			dest = nil
		}
		if !d.reserveSpace(d.pos, st, dest, &count) {
			return item.ResultCantStack
		}
		if count == 0 {
			return item.ResultOK
		}
	}

	if st.IsStackable() {
		d.canStoreInTab(tab, st, true, &count)
		if count == 0 {
			return item.ResultOK
		}
	}

	d.canStoreInTab(tab, st, false, &count)
	if count == 0 {
		return item.ResultOK
	}
	return item.ResultBankFull
}

func (d *bankMoveData) canStoreInTab(tab *BankTab, st *item.Stack, merge bool, count *uint32) {
	for s := 0; s < MaxBankSlots && *count > 0; s++ {
		slot := uint8(s)
		if slot == d.pos {
			continue
		}
		dest := tab.GetItem(slot)
		if dest == st {
			dest = nil
		}
		if (dest != nil) != merge {
			continue
		}
		d.reserveSpace(slot, st, dest, count)
	}
}

// reserveSpace reserves as much of *count as slot can take. It fails when
// the occupant is a different entry or already full.
func (d *bankMoveData) reserveSpace(slot uint8, st, dest *item.Stack, count *uint32) bool {
	space := st.MaxStack
	if dest != nil {
		if dest.Entry != st.Entry || dest.Count >= st.MaxStack {
			return false
		}
		space -= dest.Count
	}
	space = min(space, *count)
	p := item.Pos{Bag: d.cont, Slot: slot, Count: space}
	if !item.ContainsSlot(d.vec, p) {
		d.vec = append(d.vec, p)
		*count -= space
	}
	return true
}

// Inventory is the player-side capability set the bank moves items
// through. *item.Inventory implements it.
type Inventory interface {
	CharID() int64
	GetItemAt(bag, slot uint8) *item.Stack
	CanStoreItem(bag, slot uint8, st *item.Stack, swap bool) ([]item.Pos, item.Result)
	StoreItem(dest []item.Pos, st *item.Stack) *item.Stack
	RemoveItem(bag, slot uint8) *item.Stack
	SplitItem(bag, slot uint8, count uint32) bool
	Money() uint64
	ModifyMoney(delta int64) bool
}

// playerMoveData addresses a slot in the acting player's bags.
type playerMoveData struct {
	moveBase
}

func newPlayerMoveData(g *Guild, o *op, bag, slot uint8) *playerMoveData {
	return &playerMoveData{moveBase{g: g, o: o, cont: bag, pos: slot}}
}

func (d *playerMoveData) isBank() bool { return false }

func (d *playerMoveData) inv() Inventory { return d.o.actor.Inv }

func (d *playerMoveData) initItem() bool {
	d.it = d.inv().GetItemAt(d.cont, d.pos)
	if d.it == nil {
		return false
	}
	// Non-empty bags and untradeable goods never enter the bank.
	if d.it.IsNotEmptyBag() {
		d.sendEquipError(item.ResultDestroyNonemptyBag, d.it)
		d.it = nil
	} else if !d.it.CanBeTraded() {
		d.sendEquipError(item.ResultCantSwap, d.it)
		d.it = nil
	}
	return d.it != nil
}

func (d *playerMoveData) hasStoreRights(moveItemData) bool    { return true }
func (d *playerMoveData) hasWithdrawRights(moveItemData) bool { return true }

func (d *playerMoveData) canStore(st *item.Stack, swap bool) item.Result {
	vec, res := d.inv().CanStoreItem(d.cont, d.pos, st, swap)
	d.vec = vec
	return res
}

func (d *playerMoveData) removeItem(_ moveItemData, split uint32) {
	if split > 0 {
		d.inv().SplitItem(d.cont, d.pos, split)
	} else {
		d.inv().RemoveItem(d.cont, d.pos)
		d.it = nil
	}
	d.o.invDirty = true
}

func (d *playerMoveData) storeItem(st *item.Stack) *item.Stack {
	if st == nil {
		return nil
	}
	d.o.invDirty = true
	return d.inv().StoreItem(d.vec, st)
}

func (d *playerMoveData) logBankEvent(from moveItemData, count uint32) {
	d.g.logBankEvent(d.o, BankEventWithdrawItem, from.container(), uint64(from.item(false).Entry), count, 0)
}
