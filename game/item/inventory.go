package item

import (
	"sync"
)

const (
	// BackpackBag is the bag every character carries.
	BackpackBag   uint8 = 0
	BackpackSlots       = 16
	// MaxBags counts the backpack plus equipped containers.
	MaxBags = 5

	NullBag  uint8 = 0xFF
	NullSlot uint8 = 0xFF

	// MaxMoneyAmount is the most copper a character may carry.
	MaxMoneyAmount uint64 = 99_999_999_999
)

// Inventory is a character's bags and wallet. All methods are safe for
// concurrent use; each call is atomic with respect to the inventory.
type Inventory struct {
	mu     sync.Mutex
	charID int64
	money  uint64
	bags   [][]*Stack
}

// NewInventory creates an inventory with a backpack plus one bag per entry
// of extraBags (each value is the bag's slot count).
func NewInventory(charID int64, money uint64, extraBags ...uint8) *Inventory {
	inv := &Inventory{
		charID: charID,
		money:  money,
		bags:   [][]*Stack{make([]*Stack, BackpackSlots)},
	}
	for _, size := range extraBags {
		if len(inv.bags) >= MaxBags {
			break
		}
		inv.bags = append(inv.bags, make([]*Stack, size))
	}
	return inv
}

// CharID returns the owning character.
func (inv *Inventory) CharID() int64 { return inv.charID }

// BagCount returns the number of usable bags.
func (inv *Inventory) BagCount() int {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return len(inv.bags)
}

// Money returns the wallet balance in copper.
func (inv *Inventory) Money() uint64 {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.money
}

// ModifyMoney adds delta to the wallet. It fails without change when the
// result would be negative or exceed MaxMoneyAmount.
func (inv *Inventory) ModifyMoney(delta int64) bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if delta < 0 {
		d := uint64(-delta)
		if d > inv.money {
			return false
		}
		inv.money -= d
		return true
	}
	d := uint64(delta)
	if d > MaxMoneyAmount || inv.money > MaxMoneyAmount-d {
		return false
	}
	inv.money += d
	return true
}

// GetItemAt returns the stack at (bag, slot), or nil.
func (inv *Inventory) GetItemAt(bag, slot uint8) *Stack {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if !inv.validSlot(bag, slot) {
		return nil
	}
	return inv.bags[bag][slot]
}

func (inv *Inventory) validSlot(bag, slot uint8) bool {
	return int(bag) < len(inv.bags) && int(slot) < len(inv.bags[bag])
}

// CanStoreItem computes, without changing anything, where st would go.
// With an explicit bag and slot the whole stack must fit there (merging
// into a matching stack counts). With NullSlot the bag is searched, and
// with NullBag every bag is searched; existing stacks are filled before
// empty slots. When swap is set the occupant of an explicit slot is
// ignored since it is about to leave.
func (inv *Inventory) CanStoreItem(bag, slot uint8, st *Stack, swap bool) ([]Pos, Result) {
	if st == nil {
		return nil, ResultItemNotFound
	}
	inv.mu.Lock()
	defer inv.mu.Unlock()

	count := st.Count
	var dest []Pos

	if bag != NullBag && slot != NullSlot {
		if !inv.validSlot(bag, slot) {
			return nil, ResultWrongSlot
		}
		cur := inv.bags[bag][slot]
		if cur == st || swap {
			cur = nil
		}
		space := st.MaxStack
		if cur != nil {
			if cur.Entry != st.Entry || cur.Count >= st.MaxStack {
				return nil, ResultCantStack
			}
			space -= cur.Count
		}
		if space < count {
			return nil, ResultCantStack
		}
		return []Pos{{Bag: bag, Slot: slot, Count: count}}, ResultOK
	}

	bags := make([]uint8, 0, len(inv.bags))
	if bag != NullBag {
		if int(bag) >= len(inv.bags) {
			return nil, ResultWrongSlot
		}
		bags = append(bags, bag)
	} else {
		for b := range inv.bags {
			bags = append(bags, uint8(b))
		}
	}

	if st.IsStackable() {
		for _, b := range bags {
			for s, cur := range inv.bags[b] {
				if count == 0 {
					break
				}
				if cur == nil || cur == st || cur.Entry != st.Entry || cur.Count >= st.MaxStack {
					continue
				}
				n := min(st.MaxStack-cur.Count, count)
				dest = append(dest, Pos{Bag: b, Slot: uint8(s), Count: n})
				count -= n
			}
		}
	}
	for _, b := range bags {
		for s, cur := range inv.bags[b] {
			if count == 0 {
				break
			}
			if cur != nil && cur != st {
				continue
			}
			n := min(st.MaxStack, count)
			dest = append(dest, Pos{Bag: b, Slot: uint8(s), Count: n})
			count -= n
		}
	}
	if count > 0 {
		return nil, ResultInventoryFull
	}
	return dest, ResultOK
}

// StoreItem commits reservations previously computed by CanStoreItem.
// Existing stacks absorb their share; empty slots receive copies of st
// except the last one, which receives st itself. The stack finally holding
// the last share is returned.
func (inv *Inventory) StoreItem(dest []Pos, st *Stack) *Stack {
	if st == nil {
		return nil
	}
	inv.mu.Lock()
	defer inv.mu.Unlock()

	last := st
	for i, p := range dest {
		if !inv.validSlot(p.Bag, p.Slot) {
			continue
		}
		if cur := inv.bags[p.Bag][p.Slot]; cur != nil && cur != st {
			cur.Count += p.Count
			last = cur
			continue
		}
		placed := st
		if i < len(dest)-1 {
			placed = st.Clone(p.Count)
			if placed == nil {
				continue
			}
		} else {
			st.Count = p.Count
		}
		placed.OwnerID = inv.charID
		placed.ContainedIn = ""
		inv.bags[p.Bag][p.Slot] = placed
		last = placed
	}
	return last
}

// AddItem places st wherever it fits.
func (inv *Inventory) AddItem(st *Stack) Result {
	dest, res := inv.CanStoreItem(NullBag, NullSlot, st, false)
	if res != ResultOK {
		return res
	}
	inv.StoreItem(dest, st)
	return ResultOK
}

// PutItem places st directly into an empty slot. Used when rebuilding an
// inventory from storage.
func (inv *Inventory) PutItem(bag, slot uint8, st *Stack) bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if !inv.validSlot(bag, slot) || inv.bags[bag][slot] != nil {
		return false
	}
	st.OwnerID = inv.charID
	inv.bags[bag][slot] = st
	return true
}

// RemoveItem takes the whole stack out of (bag, slot).
func (inv *Inventory) RemoveItem(bag, slot uint8) *Stack {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if !inv.validSlot(bag, slot) {
		return nil
	}
	st := inv.bags[bag][slot]
	inv.bags[bag][slot] = nil
	return st
}

// SplitItem removes count items from the stack at (bag, slot), leaving
// the rest in place. It refuses to empty the slot.
func (inv *Inventory) SplitItem(bag, slot uint8, count uint32) bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if !inv.validSlot(bag, slot) {
		return false
	}
	st := inv.bags[bag][slot]
	if st == nil || count == 0 || count >= st.Count {
		return false
	}
	st.Count -= count
	return true
}

// SlotItem is a stack together with its location.
type SlotItem struct {
	Bag   uint8
	Slot  uint8
	Stack *Stack
}

// Items returns every occupied slot in bag/slot order.
func (inv *Inventory) Items() []SlotItem {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	var out []SlotItem
	for b, bag := range inv.bags {
		for s, st := range bag {
			if st != nil {
				out = append(out, SlotItem{Bag: uint8(b), Slot: uint8(s), Stack: st})
			}
		}
	}
	return out
}

// CountEntry sums the items of entry across all bags.
func (inv *Inventory) CountEntry(entry uint32) uint32 {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	var n uint32
	for _, bag := range inv.bags {
		for _, st := range bag {
			if st != nil && st.Entry == entry {
				n += st.Count
			}
		}
	}
	return n
}
