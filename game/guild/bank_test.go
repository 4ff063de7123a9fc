package guild

import (
	"sync"
	"testing"

	"github.com/kasuganosora/guildbank/game/item"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeposit_LandsInFirstSlot(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.inv(f.member).PutItem(0, 3, item.NewStack(linen, 20, 200)))

	err := f.g.SwapItemsWithInventory(f.member, false, 0, NullSlot, 0, 3, 0)
	require.NoError(t, err)

	st := f.slot(0, 0)
	require.NotNil(t, st)
	assert.Equal(t, uint32(20), st.Count)
	assert.Equal(t, int64(0), st.OwnerID, "bank stacks have no character owner")
	assert.Nil(t, f.inv(f.member).GetItemAt(0, 3))
	assert.Equal(t, uint32(0), f.withdrawn(f.member.CharID, 0), "deposits do not consume withdrawals")
}

func TestDeposit_MergesIntoExistingStack(t *testing.T) {
	f := newFixture(t)
	f.put(0, 0, item.NewStack(linen, 20, 200))
	require.True(t, f.inv(f.member).PutItem(0, 0, item.NewStack(linen, 20, 200)))

	require.NoError(t, f.g.SwapItemsWithInventory(f.member, false, 0, NullSlot, 0, 0, 0))

	assert.Equal(t, uint32(40), f.slot(0, 0).Count)
	assert.Nil(t, f.slot(0, 1), "no new slot consumed")
}

func TestDeposit_OverflowSpillsIntoNextEmptySlot(t *testing.T) {
	f := newFixture(t)
	f.put(0, 0, item.NewStack(linen, 40, 200))
	require.True(t, f.inv(f.member).PutItem(0, 0, item.NewStack(linen, 300, 200)))

	require.NoError(t, f.g.SwapItemsWithInventory(f.member, false, 0, NullSlot, 0, 0, 0))

	assert.Equal(t, uint32(200), f.slot(0, 0).Count)
	require.NotNil(t, f.slot(0, 1))
	assert.Equal(t, uint32(140), f.slot(0, 1).Count)
	assert.Nil(t, f.slot(0, 2))
	assert.Equal(t, uint32(340), f.bankCount(linen))
}

func TestWithdraw_SplitCountsOneWithdrawal(t *testing.T) {
	f := newFixture(t)
	f.put(0, 0, item.NewStack(linen, 40, 200))

	require.NoError(t, f.g.SwapItemsWithInventory(f.member, true, 0, 0, 0, 5, 10))

	assert.Equal(t, uint32(30), f.slot(0, 0).Count)
	got := f.inv(f.member).GetItemAt(0, 5)
	require.NotNil(t, got)
	assert.Equal(t, uint32(10), got.Count)
	assert.Equal(t, f.member.CharID, got.OwnerID)
	assert.NotEqual(t, f.slot(0, 0).GUID, got.GUID, "split creates a new stack")
	assert.Equal(t, uint32(1), f.withdrawn(f.member.CharID, 0))

	log, err := f.g.BankLog(f.member.CharID, 0)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, BankEventWithdrawItem, log[0].Type)
	assert.Equal(t, uint32(10), log[0].ItemStackCount)
}

func TestWithdraw_DailySlotQuota(t *testing.T) {
	f := newFixture(t)
	f.put(0, 0, item.NewStack(linen, 200, 200))

	require.NoError(t, f.g.SwapItemsWithInventory(f.member, true, 0, 0, NullBag, NullSlot, 1))
	require.NoError(t, f.g.SwapItemsWithInventory(f.member, true, 0, 0, NullBag, NullSlot, 1))
	require.Equal(t, uint32(2), f.withdrawn(f.member.CharID, 0))

	before := *f.slot(0, 0)
	err := f.g.SwapItemsWithInventory(f.member, true, 0, 0, NullBag, NullSlot, 1)
	assert.ErrorIs(t, err, ErrNoRights)
	assert.Equal(t, before, *f.slot(0, 0))
	assert.Equal(t, uint32(2), f.inv(f.member).CountEntry(linen))
	assert.Equal(t, uint32(2), f.withdrawn(f.member.CharID, 0))
	assert.Zero(t, f.notes.count(EventEquipError), "quota failures are silent")

	q, err := f.g.RemainingWithdrawSlots(f.member.CharID, 0)
	require.NoError(t, err)
	assert.True(t, q.IsZero())
}

func TestDeposit_SoulboundRejected(t *testing.T) {
	f := newFixture(t)
	st := item.NewStack(hearthstone, 1, 1)
	st.Soulbound = true
	require.True(t, f.inv(f.member).PutItem(0, 0, st))

	err := f.g.SwapItemsWithInventory(f.member, false, 0, NullSlot, 0, 0, 0)
	assert.Equal(t, item.ResultDropBoundItem, ResultOf(err))
	assert.Same(t, st, f.inv(f.member).GetItemAt(0, 0))
	assert.Equal(t, uint32(1), st.Count)
	assert.Nil(t, f.slot(0, 0))

	errs := f.notes.to(f.member.CharID, EventEquipError)
	require.Len(t, errs, 1)
	assert.Equal(t, item.ResultDropBoundItem, errs[0].(EquipErrorEvent).Result)
}

func TestDeposit_RejectsUntradeableAndFullBags(t *testing.T) {
	f := newFixture(t)
	quest := item.NewStack(hearthstone, 1, 1)
	quest.Tradeable = false
	bag := item.NewStack(4500, 1, 1)
	bag.BagSize = 4
	bag.Contents = []*item.Stack{item.NewStack(linen, 1, 200), nil, nil, nil}
	require.True(t, f.inv(f.member).PutItem(0, 0, quest))
	require.True(t, f.inv(f.member).PutItem(0, 1, bag))

	err := f.g.SwapItemsWithInventory(f.member, false, 0, NullSlot, 0, 0, 0)
	assert.Equal(t, item.ResultCantSwap, ResultOf(err))
	err = f.g.SwapItemsWithInventory(f.member, false, 0, NullSlot, 0, 1, 0)
	assert.Equal(t, item.ResultDestroyNonemptyBag, ResultOf(err))
	assert.Nil(t, f.slot(0, 0))
}

func TestDeposit_BankFullLeavesEverythingInPlace(t *testing.T) {
	f := newFixture(t)
	for s := 0; s < MaxBankSlots; s++ {
		f.put(0, uint8(s), item.NewStack(uint32(10_000+s), 1, 1))
	}
	st := item.NewStack(linen, 5, 200)
	require.True(t, f.inv(f.member).PutItem(0, 0, st))

	err := f.g.SwapItemsWithInventory(f.member, false, 0, NullSlot, 0, 0, 0)
	assert.Equal(t, item.ResultBankFull, ResultOf(err))
	assert.Same(t, st, f.inv(f.member).GetItemAt(0, 0))
	assert.Equal(t, uint32(5), st.Count)
	assert.Equal(t, uint32(0), f.bankCount(linen))
}

func TestDeposit_ExplicitSlotFillsThenSpills(t *testing.T) {
	f := newFixture(t)
	f.put(0, 7, item.NewStack(linen, 190, 200))
	require.True(t, f.inv(f.member).PutItem(0, 0, item.NewStack(linen, 20, 200)))

	require.NoError(t, f.g.SwapItemsWithInventory(f.member, false, 0, 7, 0, 0, 0))
	assert.Equal(t, uint32(200), f.slot(0, 7).Count)
	require.NotNil(t, f.slot(0, 0))
	assert.Equal(t, uint32(10), f.slot(0, 0).Count)
	assert.Nil(t, f.inv(f.member).GetItemAt(0, 0))
}

func TestDeposit_ExplicitSlotSwapsWithOccupant(t *testing.T) {
	f := newFixture(t)
	cloth := item.NewStack(runecloth, 5, 20)
	f.put(0, 7, cloth)
	linenStack := item.NewStack(linen, 20, 200)
	require.True(t, f.inv(f.member).PutItem(0, 0, linenStack))

	require.NoError(t, f.g.SwapItemsWithInventory(f.member, false, 0, 7, 0, 0, 0))
	assert.Same(t, linenStack, f.slot(0, 7))
	assert.Same(t, cloth, f.inv(f.member).GetItemAt(0, 0))
	assert.Equal(t, uint32(1), f.withdrawn(f.member.CharID, 0), "taking the occupant is a withdrawal")

	log, err := f.g.BankLog(f.member.CharID, 0)
	require.NoError(t, err)
	require.Len(t, log, 2)
	assert.Equal(t, BankEventDepositItem, log[0].Type)
	assert.Equal(t, BankEventWithdrawItem, log[1].Type)
}

func TestSwapItems_SplitOntoOtherEntry(t *testing.T) {
	f := newFixture(t)
	f.put(0, 0, item.NewStack(linen, 40, 200))
	f.put(0, 1, item.NewStack(runecloth, 5, 20))

	err := f.g.SwapItems(f.member, 0, 0, 0, 1, 10)
	assert.Equal(t, item.ResultCantStack, ResultOf(err))
	assert.Equal(t, uint32(40), f.slot(0, 0).Count)
	assert.Equal(t, uint32(5), f.slot(0, 1).Count)
	assert.Len(t, f.notes.to(f.member.CharID, EventEquipError), 1)
}

func TestDeposit_NoDepositRight(t *testing.T) {
	f := newFixture(t)
	f.setTabRights(t, initiateRank, 0, BankTabRights{Rights: BankRightView | BankRightWithdraw, SlotsPerDay: 5})
	st := item.NewStack(linen, 20, 200)
	require.True(t, f.inv(f.member).PutItem(0, 0, st))

	err := f.g.SwapItemsWithInventory(f.member, false, 0, NullSlot, 0, 0, 0)
	assert.ErrorIs(t, err, ErrNoRights)
	assert.Same(t, st, f.inv(f.member).GetItemAt(0, 0))
	assert.Zero(t, f.notes.count(EventEquipError))
}

func TestDeposit_NeedsViewAlongsideDeposit(t *testing.T) {
	f := newFixture(t)
	f.setTabRights(t, initiateRank, 0, BankTabRights{Rights: BankRightDeposit})
	st := item.NewStack(linen, 20, 200)
	require.True(t, f.inv(f.member).PutItem(0, 0, st))

	err := f.g.SwapItemsWithInventory(f.member, false, 0, NullSlot, 0, 0, 0)
	assert.ErrorIs(t, err, ErrNoRights)
	assert.Same(t, st, f.inv(f.member).GetItemAt(0, 0))
	assert.Zero(t, f.bankCount(linen))
	assert.Zero(t, f.notes.count(EventEquipError))
	assert.Zero(t, f.notes.count(EventBankContent))
}

func TestWithdraw_NeedsViewAndWithdraw(t *testing.T) {
	f := newFixture(t)
	f.put(0, 0, item.NewStack(linen, 20, 200))
	f.setTabRights(t, initiateRank, 0, BankTabRights{Rights: BankRightWithdraw, SlotsPerDay: 10})

	err := f.g.SwapItemsWithInventory(f.member, true, 0, 0, NullBag, NullSlot, 0)
	assert.ErrorIs(t, err, ErrNoRights)
	assert.Equal(t, uint32(20), f.slot(0, 0).Count)
}

func TestWithdraw_WholeStackToBags(t *testing.T) {
	f := newFixture(t)
	st := item.NewStack(runecloth, 15, 20)
	f.put(0, 4, st)

	require.NoError(t, f.g.SwapItemsWithInventory(f.member, true, 0, 4, NullBag, NullSlot, 0))
	assert.Nil(t, f.slot(0, 4))
	assert.Equal(t, uint32(15), f.inv(f.member).CountEntry(runecloth))
}

func TestSwapItems_SameTabSwapNeedsNoRights(t *testing.T) {
	f := newFixture(t)
	f.setTabRights(t, initiateRank, 0, BankTabRights{Rights: BankRightView})
	a := item.NewStack(linen, 20, 200)
	b := item.NewStack(runecloth, 5, 20)
	f.put(0, 0, a)
	f.put(0, 1, b)

	require.NoError(t, f.g.SwapItems(f.member, 0, 0, 0, 1, 0))
	assert.Same(t, b, f.slot(0, 0))
	assert.Same(t, a, f.slot(0, 1))
	assert.Equal(t, uint32(0), f.withdrawn(f.member.CharID, 0))

	log, err := f.g.BankLog(f.member.CharID, 0)
	require.NoError(t, err)
	assert.Empty(t, log, "moves inside a tab are not logged")
}

func TestSwapItems_SplitWithinTab(t *testing.T) {
	f := newFixture(t)
	f.put(0, 0, item.NewStack(linen, 50, 200))

	require.NoError(t, f.g.SwapItems(f.member, 0, 0, 0, 9, 15))
	assert.Equal(t, uint32(35), f.slot(0, 0).Count)
	assert.Equal(t, uint32(15), f.slot(0, 9).Count)
	assert.Equal(t, uint32(50), f.bankCount(linen))
}

func TestSwapItems_SplitTooLarge(t *testing.T) {
	f := newFixture(t)
	f.put(0, 0, item.NewStack(linen, 5, 200))

	err := f.g.SwapItems(f.member, 0, 0, 0, 1, 6)
	assert.ErrorIs(t, err, ErrInvalidSplit)
	assert.Equal(t, uint32(5), f.slot(0, 0).Count)
}

func TestSwapItems_SplitOfWholeStackIsMove(t *testing.T) {
	f := newFixture(t)
	st := item.NewStack(linen, 5, 200)
	f.put(0, 0, st)

	require.NoError(t, f.g.SwapItems(f.member, 0, 0, 0, 1, 5))
	assert.Nil(t, f.slot(0, 0))
	assert.Same(t, st, f.slot(0, 1))
}

func TestSwapItems_Validation(t *testing.T) {
	f := newFixture(t)
	f.put(0, 0, item.NewStack(linen, 5, 200))

	assert.ErrorIs(t, f.g.SwapItems(f.member, 0, 0, 0, 0, 0), ErrInvalidSlot)
	assert.ErrorIs(t, f.g.SwapItems(f.member, 0, 0, 1, 0, 0), ErrInvalidTab)
	assert.ErrorIs(t, f.g.SwapItems(f.member, 0, 0, 0, MaxBankSlots, 0), ErrInvalidSlot)
	assert.ErrorIs(t, f.g.SwapItems(f.member, 0, 3, 0, 4, 0), ErrItemNotFound)

	stranger := newActor(99, "Stranger", 0)
	assert.ErrorIs(t, f.g.SwapItems(stranger, 0, 0, 0, 1, 0), ErrNotMember)
}

func TestSwapItems_AcrossTabs(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.g.BuyBankTab(f.leader, 1))
	f.setTabRights(t, initiateRank, 1, BankTabRights{Rights: BankRightView | BankRightDeposit, SlotsPerDay: 0})
	f.put(0, 0, item.NewStack(linen, 20, 200))

	require.NoError(t, f.g.SwapItems(f.member, 0, 0, 1, 3, 0))
	assert.Nil(t, f.slot(0, 0))
	assert.Equal(t, uint32(20), f.slot(1, 3).Count)
	assert.Equal(t, uint32(1), f.withdrawn(f.member.CharID, 0))
	assert.Equal(t, uint32(0), f.withdrawn(f.member.CharID, 1))

	log, err := f.g.BankLog(f.member.CharID, 0)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, BankEventMoveItem, log[0].Type)
	assert.Equal(t, uint8(1), log[0].DestTab)

	// Tab 1 grants no withdrawals, so nothing can come back.
	err = f.g.SwapItems(f.member, 1, 3, 0, 0, 0)
	assert.ErrorIs(t, err, ErrNoRights)
}

func TestSwapItems_ConservesCounts(t *testing.T) {
	f := newFixture(t)
	f.put(0, 0, item.NewStack(linen, 150, 200))
	f.put(0, 1, item.NewStack(linen, 120, 200))
	f.put(0, 2, item.NewStack(runecloth, 7, 20))

	require.NoError(t, f.g.SwapItems(f.leader, 0, 1, 0, 0, 0))
	assert.Equal(t, uint32(200), f.slot(0, 0).Count)
	assert.Equal(t, uint32(70), f.slot(0, 1).Count)
	require.NoError(t, f.g.SwapItems(f.leader, 0, 2, 0, 1, 0))
	assert.Equal(t, uint32(270), f.bankCount(linen))
	assert.Equal(t, uint32(7), f.bankCount(runecloth))
}

func TestGuildMaster_Unlimited(t *testing.T) {
	f := newFixture(t)
	f.put(0, 0, item.NewStack(linen, 200, 200))
	for i := 0; i < 20; i++ {
		require.NoError(t, f.g.SwapItemsWithInventory(f.leader, true, 0, 0, NullBag, NullSlot, 1))
	}
	q, err := f.g.RemainingWithdrawSlots(f.leader.CharID, 0)
	require.NoError(t, err)
	assert.True(t, q.IsUnlimited())
	assert.Equal(t, uint32(180), f.slot(0, 0).Count)
}

func TestBankContentUpdate_OnlyViewersNotified(t *testing.T) {
	f := newFixture(t)
	outsider := newActor(3, "Garrosh", 0)
	require.NoError(t, f.g.AddMember(f.leader, outsider.CharID, outsider.Name))
	require.NoError(t, f.g.SetMemberRank(f.leader, outsider.CharID, 3))
	f.notes.reset()

	require.True(t, f.inv(f.member).PutItem(0, 0, item.NewStack(linen, 20, 200)))
	require.NoError(t, f.g.SwapItemsWithInventory(f.member, false, 0, NullSlot, 0, 0, 0))

	leaderUpdates := f.notes.to(f.leader.CharID, EventBankContent)
	require.Len(t, leaderUpdates, 1)
	ev := leaderUpdates[0].(BankContentEvent)
	assert.Equal(t, uint8(0), ev.Tab)
	require.Len(t, ev.Slots, 1)
	assert.Equal(t, uint8(0), ev.Slots[0].Slot)
	assert.Equal(t, uint32(20), ev.Slots[0].Item.Count)
	assert.True(t, ev.Remaining.IsUnlimited())

	memberUpdates := f.notes.to(f.member.CharID, EventBankContent)
	require.Len(t, memberUpdates, 1)
	assert.Equal(t, Limited(2), memberUpdates[0].(BankContentEvent).Remaining)

	assert.Empty(t, f.notes.to(outsider.CharID, EventBankContent))
}

func TestBankContentUpdate_NotSentOnFailure(t *testing.T) {
	f := newFixture(t)
	err := f.g.SwapItemsWithInventory(f.member, false, 0, NullSlot, 0, 0, 0)
	assert.ErrorIs(t, err, ErrItemNotFound)
	assert.Zero(t, f.notes.count(EventBankContent))
}

func TestSetBankTabInfo(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.g.SetBankTabInfo(f.member, 0, "Mats", "inv_fabric"), ErrNoRights)
	require.NoError(t, f.g.SetBankTabInfo(f.leader, 0, "<b>Mats</b> and more things", "inv_fabric"))

	tabs, err := f.g.BankTabs(f.leader.CharID)
	require.NoError(t, err)
	require.Len(t, tabs, 1)
	assert.Equal(t, "Mats and more th", tabs[0].Name)
	assert.Equal(t, "inv_fabric", tabs[0].Icon)
	assert.ErrorIs(t, f.g.SetBankTabInfo(f.leader, 3, "x", "y"), ErrInvalidTab)
}

func TestSetBankTabText(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.g.SetBankTabText(f.member, 0, "hi"), ErrNoRights)
	f.setTabRights(t, initiateRank, 0, BankTabRights{Rights: BankRightView | BankRightUpdateText})
	require.NoError(t, f.g.SetBankTabText(f.member, 0, `take only <script>alert(1)</script>what you need`))

	tabs, err := f.g.BankTabs(f.member.CharID)
	require.NoError(t, err)
	assert.Equal(t, "take only what you need", tabs[0].Text)
}

func TestBuyBankTab(t *testing.T) {
	f := newFixture(t)
	before := f.leader.Inv.Money()

	assert.ErrorIs(t, f.g.BuyBankTab(f.member, 1), ErrNoRights)
	assert.ErrorIs(t, f.g.BuyBankTab(f.leader, 2), ErrInvalidTab)
	require.NoError(t, f.g.BuyBankTab(f.leader, 1))
	assert.Equal(t, 2, f.g.PurchasedTabs())
	assert.Equal(t, before-BankTabPrice(1), f.leader.Inv.Money())

	poor := newFixture(t)
	poor.leader.Inv = item.NewInventory(poor.leader.CharID, 10)
	assert.ErrorIs(t, poor.g.BuyBankTab(poor.leader, 1), ErrNotEnoughMoney)

	money, err := f.g.BankLog(f.member.CharID, MoneyLogTab)
	require.NoError(t, err)
	require.NotEmpty(t, money)
	last := money[len(money)-1]
	assert.Equal(t, BankEventBuySlot, last.Type)
	assert.Equal(t, BankTabPrice(1), last.ItemOrMoney)

	news := f.g.News()
	assert.Equal(t, NewsBankTabPurchased, news[len(news)-1].Type)
}

func TestBankTabContents_NeedsView(t *testing.T) {
	f := newFixture(t)
	f.put(0, 5, item.NewStack(linen, 3, 200))

	slots, err := f.g.BankTabContents(f.member.CharID, 0)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, uint8(5), slots[0].Slot)

	f.setTabRights(t, initiateRank, 0, BankTabRights{})
	_, err = f.g.BankTabContents(f.member.CharID, 0)
	assert.ErrorIs(t, err, ErrNoRights)
	_, err = f.g.BankLog(f.member.CharID, 0)
	assert.ErrorIs(t, err, ErrNoRights)
	_, err = f.g.BankLog(f.member.CharID, MoneyLogTab)
	assert.NoError(t, err, "any member may read the money log")
}

func TestResetDailyValues(t *testing.T) {
	f := newFixture(t)
	f.put(0, 0, item.NewStack(linen, 200, 200))
	for i := 0; i < 2; i++ {
		require.NoError(t, f.g.SwapItemsWithInventory(f.member, true, 0, 0, NullBag, NullSlot, 1))
	}
	require.ErrorIs(t, f.g.SwapItemsWithInventory(f.member, true, 0, 0, NullBag, NullSlot, 1), ErrNoRights)

	f.reg.ResetDailyValues()
	assert.Equal(t, uint32(0), f.withdrawn(f.member.CharID, 0))
	assert.NoError(t, f.g.SwapItemsWithInventory(f.member, true, 0, 0, NullBag, NullSlot, 1))
}

func TestConcurrentMovesAndMoney(t *testing.T) {
	f := newFixture(t)
	f.put(0, 0, item.NewStack(linen, 200, 200))
	wallet := f.inv(f.leader).Money()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				src := uint8((w + i) % 5)
				split := uint32(0)
				if i%3 == 0 {
					split = 3
				}
				_ = f.g.SwapItems(f.leader, 0, src, 0, (src+1)%5, split)
			}
		}(w)
	}
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				assert.NoError(t, f.g.DepositMoney(f.leader, Gold, false))
				assert.NoError(t, f.g.WithdrawMoney(f.leader, Gold, false))
			}
		}()
	}
	for w := 0; w < 2; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, err := f.g.BankTabContents(f.leader.CharID, 0)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint32(200), f.bankCount(linen))
	assert.Zero(t, f.g.BankMoney())
	assert.Equal(t, wallet, f.inv(f.leader).Money())
}
