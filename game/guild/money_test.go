package guild

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDepositMoney_RespectsLimit(t *testing.T) {
	f := newFixture(t)
	f.g.bankMoney = MoneyLimit - 5

	err := f.g.DepositMoney(f.leader, 10, false)
	assert.ErrorIs(t, err, ErrBankMoneyLimit)
	assert.Equal(t, MoneyLimit-5, f.g.BankMoney())

	wallet := f.leader.Inv.Money()
	require.NoError(t, f.g.DepositMoney(f.leader, 5, false))
	assert.Equal(t, MoneyLimit, f.g.BankMoney())
	assert.Equal(t, wallet-5, f.leader.Inv.Money())
}

func TestDepositMoney_NotifiesMembersInOneBatch(t *testing.T) {
	f := newFixture(t)
	notes := &batchRecorder{}
	f.g.notifier = notes

	require.NoError(t, f.g.DepositMoney(f.leader, 100, false))
	require.Len(t, notes.batches, 1)
	assert.Len(t, notes.batches[0], 2)
	assert.Len(t, notes.to(f.leader.CharID, EventBankMoney), 1)
	assert.Len(t, notes.to(f.member.CharID, EventBankMoney), 1)

	assert.ErrorIs(t, f.g.DepositMoney(f.leader, 0, false), ErrInvalidAmount)
	assert.Len(t, notes.batches, 1)
}

func TestDepositMoney_Validation(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.g.DepositMoney(f.leader, 0, false), ErrInvalidAmount)
	assert.ErrorIs(t, f.g.DepositMoney(f.member, 1, false), ErrNotEnoughMoney)
	assert.ErrorIs(t, f.g.DepositMoney(newActor(77, "Nobody", 100), 1, false), ErrNotMember)
	assert.Zero(t, f.g.BankMoney())
}

func TestDepositMoney_CashFlowLeavesWallet(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.g.DepositMoney(f.member, 250, true))
	assert.Equal(t, uint64(250), f.g.BankMoney())
	assert.Zero(t, f.member.Inv.Money())

	log, err := f.g.BankLog(f.member.CharID, MoneyLogTab)
	require.NoError(t, err)
	last := log[len(log)-1]
	assert.Equal(t, BankEventCashFlowDeposit, last.Type)
	assert.Equal(t, uint64(250), last.ItemOrMoney)
	assert.Equal(t, uint8(MoneyLogTab), last.Tab)
}

func TestDepositThenWithdraw_GuildMasterRoundTrip(t *testing.T) {
	f := newFixture(t)
	wallet := f.leader.Inv.Money()
	require.NoError(t, f.g.DepositMoney(f.leader, 500*Gold, false))
	require.NoError(t, f.g.WithdrawMoney(f.leader, 500*Gold, false))
	assert.Zero(t, f.g.BankMoney())
	assert.Equal(t, wallet, f.leader.Inv.Money())

	q, err := f.g.RemainingMoney(f.leader.CharID)
	require.NoError(t, err)
	assert.True(t, q.IsUnlimited())
}

func TestWithdrawMoney_RightsAndQuota(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.g.DepositMoney(f.leader, 100*Gold, false))

	assert.ErrorIs(t, f.g.WithdrawMoney(f.member, Gold, false), ErrNoRights)
	q, err := f.g.RemainingMoney(f.member.CharID)
	require.NoError(t, err)
	assert.True(t, q.IsZero())

	r := f.g.rank(initiateRank)
	require.NoError(t, f.g.SetRankInfo(f.leader, initiateRank, RankSettings{
		Name:        r.name,
		Rights:      r.rights | RankRightWithdrawGold,
		MoneyPerDay: 2,
	}))

	require.NoError(t, f.g.WithdrawMoney(f.member, Gold+Gold/2, false))
	assert.Equal(t, Gold+Gold/2, f.member.Inv.Money())
	assert.ErrorIs(t, f.g.WithdrawMoney(f.member, Gold, false), ErrQuotaExceeded)
	require.NoError(t, f.g.WithdrawMoney(f.member, Gold/2, false))
	assert.Equal(t, 98*Gold, f.g.BankMoney())

	assert.ErrorIs(t, f.g.WithdrawMoney(f.member, 1, true), ErrNoRights, "repair needs its own right")

	f.reg.ResetDailyValues()
	q, err = f.g.RemainingMoney(f.member.CharID)
	require.NoError(t, err)
	assert.Equal(t, Limited(2*Gold), q)
}

func TestWithdrawMoney_RejectsAmountAboveWalletCap(t *testing.T) {
	f := newFixture(t)
	f.g.bankMoney = MoneyLimit
	wallet := f.leader.Inv.Money()

	assert.ErrorIs(t, f.g.WithdrawMoney(f.leader, MaxMoneyAmount+1, false), ErrInvalidAmount)
	assert.ErrorIs(t, f.g.WithdrawMoney(f.leader, MoneyLimit, true), ErrInvalidAmount)
	assert.Equal(t, MoneyLimit, f.g.BankMoney())
	assert.Equal(t, wallet, f.leader.Inv.Money())
	assert.Zero(t, f.notes.count(EventBankMoney))
}

func TestWithdrawMoney_RepairSkipsWallet(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.g.DepositMoney(f.leader, 10*Gold, false))
	r := f.g.rank(initiateRank)
	require.NoError(t, f.g.SetRankInfo(f.leader, initiateRank, RankSettings{
		Name:        r.name,
		Rights:      r.rights | RankRightWithdrawRepair,
		MoneyPerDay: 5,
	}))

	require.NoError(t, f.g.WithdrawMoney(f.member, 3*Gold, true))
	assert.Zero(t, f.member.Inv.Money())
	assert.Equal(t, 7*Gold, f.g.BankMoney())
	m, _ := f.g.Member(f.member.CharID)
	assert.Equal(t, 3*Gold, m.MoneyWithdrawn)

	log, err := f.g.BankLog(f.member.CharID, MoneyLogTab)
	require.NoError(t, err)
	assert.Equal(t, BankEventRepairMoney, log[len(log)-1].Type)
}

func TestWithdrawMoney_BankShort(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.g.DepositMoney(f.leader, 10, false))
	assert.ErrorIs(t, f.g.WithdrawMoney(f.leader, 11, false), ErrBankNotEnoughMoney)
	assert.Equal(t, uint64(10), f.g.BankMoney())
}

func TestMoneyChange_BroadcastToMembers(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.g.DepositMoney(f.leader, 42, false))

	for _, id := range []int64{f.leader.CharID, f.member.CharID} {
		got := f.notes.to(id, EventBankMoney)
		require.Len(t, got, 1)
		assert.Equal(t, uint64(42), got[0].(BankMoneyEvent).Money)
	}
}
