package guild

import "github.com/kasuganosora/guildbank/game/item"

const (
	MaxBankTabs  = 8
	MaxBankSlots = 98
	// MoneyLogTab is the virtual tab index holding the money log.
	MoneyLogTab = MaxBankTabs

	MinRanks = 2
	MaxRanks = 10

	NullSlot = item.NullSlot
	NullBag  = item.NullBag

	// Gold is the number of copper in one gold piece.
	Gold uint64 = 10_000
	// MoneyLimit caps the guild bank balance, in copper.
	MoneyLimit uint64 = 100_000_000_000
	// MaxMoneyAmount is the largest single withdrawal, in copper.
	MaxMoneyAmount = item.MaxMoneyAmount

	MaxBankTabTextLen = 500
	MaxBankTabNameLen = 16
	MaxGuildNameLen   = 24

	DefaultEventLogCapacity     = 100
	DefaultBankEventLogCapacity = 25
	DefaultNewsLogCapacity      = 250
)

// bankTabPrices lists the gold cost of each tab, by index.
var bankTabPrices = [MaxBankTabs]uint64{100, 250, 500, 1000, 2500, 5000, 10000, 25000}

// BankTabPrice returns the copper cost of buying tab.
func BankTabPrice(tab uint8) uint64 {
	if int(tab) >= len(bankTabPrices) {
		return 0
	}
	return bankTabPrices[tab] * Gold
}
