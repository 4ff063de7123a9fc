package guild

import (
	"github.com/kasuganosora/guildbank/game/item"
	"go.uber.org/zap"
)

// moveItems moves split items (or the whole stack when split is zero) from
// src to dst. A whole stack is first merged into dst; only if that fails
// are the two stacks swapped. Nothing is mutated unless every check passes.
func (g *Guild) moveItems(o *op, src, dst moveItemData, split uint32) error {
	if !src.initItem() {
		return o.failure(ErrItemNotFound)
	}
	if !src.checkItem(&split) {
		return ErrInvalidSplit
	}
	if !dst.hasStoreRights(src) {
		g.logger.Debug("guild bank move denied: no store rights",
			zap.Int64("guild_id", g.id), zap.Int64("char_id", o.actor.CharID), zap.Uint8("tab", dst.container()))
		return ErrNoRights
	}
	if !src.hasWithdrawRights(dst) {
		g.logger.Debug("guild bank move denied: no withdraw rights",
			zap.Int64("guild_id", g.id), zap.Int64("char_id", o.actor.CharID), zap.Uint8("tab", src.container()))
		return ErrNoRights
	}

	if split != 0 {
		if !src.cloneItem(split) {
			return &EquipError{Result: item.ResultItemNotFound}
		}
		if err := g.doItemsMove(o, src, dst, true, split); err != nil {
			return err
		}
	} else {
		merge := tryStore(dst, src.item(false), false, false)
		if merge != item.ResultOK {
			if !dst.initItem() {
				src.sendEquipError(merge, src.item(false))
				return &EquipError{Result: merge}
			}
			if !src.hasStoreRights(dst) || !dst.hasWithdrawRights(src) {
				return ErrNoRights
			}
		}
		if err := g.doItemsMove(o, src, dst, true, 0); err != nil {
			return err
		}
	}

	g.sendBankContentUpdate(o, src, dst)
	return nil
}

// doItemsMove commits a move, or a swap when dst holds an initialised
// stack. Both placements are validated before either side is touched.
func (g *Guild) doItemsMove(o *op, src, dst moveItemData, sendError bool, split uint32) error {
	destItem := dst.item(false)
	swap := destItem != nil
	srcItem := src.item(split != 0)

	if res := tryStore(dst, srcItem, swap, sendError); res != item.ResultOK {
		return &EquipError{Result: res}
	}
	if swap {
		if res := tryStore(src, destItem, true, true); res != item.ResultOK {
			return &EquipError{Result: res}
		}
	}

	dst.logBankEvent(src, srcItem.Count)
	if swap {
		src.logBankEvent(dst, destItem.Count)
	}

	src.removeItem(dst, split)
	if swap {
		dst.removeItem(src, 0)
	}

	dst.storeItem(srcItem)
	if swap {
		src.storeItem(destItem)
	}
	return nil
}

// sendBankContentUpdate pushes the slots touched by a move to everyone who
// can see the affected tabs.
func (g *Guild) sendBankContentUpdate(o *op, src, dst moveItemData) {
	var tab uint8
	var slots []uint8
	switch {
	case src.isBank():
		tab = src.container()
		slots = append(slots, src.slot())
		if dst.isBank() {
			if dst.container() == src.container() {
				slots = appendReservedSlots(slots, dst.reserved())
			} else {
				g.sendTabUpdate(o, dst.container(), appendReservedSlots(nil, dst.reserved()))
			}
		}
	case dst.isBank():
		tab = dst.container()
		slots = appendReservedSlots(nil, dst.reserved())
	default:
		return
	}
	g.sendTabUpdate(o, tab, slots)
}

func appendReservedSlots(slots []uint8, vec []item.Pos) []uint8 {
	for _, p := range vec {
		dup := false
		for _, s := range slots {
			if s == p.Slot {
				dup = true
				break
			}
		}
		if !dup {
			slots = append(slots, p.Slot)
		}
	}
	return slots
}

func (g *Guild) sendTabUpdate(o *op, tabID uint8, slots []uint8) {
	tab := g.bankTab(tabID)
	if tab == nil {
		return
	}
	views := tab.slotViews(slots)
	for _, m := range g.members {
		if !g.memberHasTabRights(m, tabID, BankRightView) {
			continue
		}
		o.notify(m.charID, EventBankContent, BankContentEvent{
			GuildID:   g.id,
			Tab:       tabID,
			Slots:     views,
			Remaining: g.remainingSlots(m, tabID),
		})
	}
}
