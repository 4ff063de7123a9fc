package guild

import (
	"github.com/kasuganosora/guildbank/model"
	"go.uber.org/zap"
)

// modifyBankMoney changes the balance, refusing to exceed MoneyLimit or go
// below zero.
func (g *Guild) modifyBankMoney(o *op, amount uint64, add bool) error {
	if add {
		if amount > MoneyLimit || g.bankMoney > MoneyLimit-amount {
			return ErrBankMoneyLimit
		}
		g.bankMoney += amount
	} else {
		if g.bankMoney < amount {
			return ErrBankNotEnoughMoney
		}
		g.bankMoney -= amount
	}
	o.batch.Update(&model.Guild{}, "bank_money", g.bankMoney, "id = ?", g.id)
	return nil
}

// DepositMoney moves amount copper from the actor's wallet into the bank.
// Cash flow deposits (the guild's share of loot) do not touch the wallet.
func (g *Guild) DepositMoney(actor *Actor, amount uint64, cashFlow bool) error {
	return g.execMember(actor, func(o *op) error {
		if amount == 0 {
			return ErrInvalidAmount
		}
		if amount > MoneyLimit || g.bankMoney > MoneyLimit-amount {
			return ErrBankMoneyLimit
		}
		if !cashFlow {
			if actor.Inv == nil || actor.Inv.Money() < amount {
				return ErrNotEnoughMoney
			}
			if !actor.Inv.ModifyMoney(-int64(amount)) {
				return ErrNotEnoughMoney
			}
			o.invDirty = true
		}
		if err := g.modifyBankMoney(o, amount, true); err != nil {
			return err
		}
		typ := BankEventDepositMoney
		if cashFlow {
			typ = BankEventCashFlowDeposit
		}
		g.logBankEvent(o, typ, 0, amount, 0, 0)
		g.logger.Info("guild bank deposit",
			zap.Int64("char_id", actor.CharID), zap.Uint64("amount", amount), zap.Bool("cash_flow", cashFlow))
		g.broadcast(o, EventBankMoney, BankMoneyEvent{GuildID: g.id, Money: g.bankMoney})
		return nil
	})
}

// WithdrawMoney moves amount copper from the bank to the actor. Repair
// withdrawals pay for the actor's repairs and never reach the wallet.
func (g *Guild) WithdrawMoney(actor *Actor, amount uint64, repair bool) error {
	return g.execMember(actor, func(o *op) error {
		if amount == 0 || amount > MaxMoneyAmount {
			return ErrInvalidAmount
		}
		if g.bankMoney < amount {
			return ErrBankNotEnoughMoney
		}
		right := RankRightWithdrawGold
		if repair {
			right = RankRightWithdrawRepair
		}
		if !g.memberHasRight(o.member, right) {
			return ErrNoRights
		}
		if !g.remainingMoney(o.member).Covers(amount) {
			return ErrQuotaExceeded
		}
		if !repair {
			if actor.Inv == nil || !actor.Inv.ModifyMoney(int64(amount)) {
				return ErrMoneyOverflow
			}
			o.invDirty = true
		}
		o.member.bankWithdrawMoney += amount
		o.batch.Save(o.member.withdrawRecord())
		if err := g.modifyBankMoney(o, amount, false); err != nil {
			return err
		}
		typ := BankEventWithdrawMoney
		if repair {
			typ = BankEventRepairMoney
		}
		g.logBankEvent(o, typ, 0, amount, 0, 0)
		g.logger.Info("guild bank withdraw",
			zap.Int64("char_id", actor.CharID), zap.Uint64("amount", amount), zap.Bool("repair", repair))
		g.broadcast(o, EventBankMoney, BankMoneyEvent{GuildID: g.id, Money: g.bankMoney})
		return nil
	})
}

// RemainingMoney returns how much copper charID may still withdraw today.
func (g *Guild) RemainingMoney(charID int64) (Quota, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	m := g.members[charID]
	if m == nil {
		return Limited(0), ErrNotMember
	}
	return g.remainingMoney(m), nil
}
