package guild

import (
	"github.com/kasuganosora/guildbank/game/item"
)

// Event names pushed to clients.
const (
	EventBankContent = "guild_bank_update"
	EventBankMoney   = "guild_bank_money"
	EventBankTab     = "guild_bank_tab"
	EventEquipError  = "equip_error"
	EventRoster      = "guild_roster"
	EventDisbanded   = "guild_disbanded"
)

// Notifier delivers an event to one character, wherever it is connected.
// Characters with no live session anywhere are dropped on delivery.
type Notifier interface {
	Notify(charID int64, event string, payload interface{})
}

// BatchNotifier is a Notifier that can hand off every delivery of one
// guild operation at once.
type BatchNotifier interface {
	Notifier
	NotifyBatch(ds []Delivery)
}

type nopNotifier struct{}

func (nopNotifier) Notify(int64, string, interface{}) {}

// BankContentEvent lists changed slots of a tab. Remaining is the
// recipient's own withdrawal allowance on that tab.
type BankContentEvent struct {
	GuildID   int64      `json:"guild_id"`
	Tab       uint8      `json:"tab"`
	Slots     []SlotView `json:"slots"`
	Remaining Quota      `json:"remaining_withdrawals"`
}

// BankMoneyEvent carries the new bank balance.
type BankMoneyEvent struct {
	GuildID int64  `json:"guild_id"`
	Money   uint64 `json:"money"`
}

// BankTabEvent announces changed tab metadata.
type BankTabEvent struct {
	GuildID int64   `json:"guild_id"`
	Tab     TabView `json:"tab"`
}

// EquipErrorEvent tells a player why an item did not move.
type EquipErrorEvent struct {
	Result item.Result `json:"result"`
	Entry  uint32      `json:"entry,omitempty"`
	GUID   string      `json:"guid,omitempty"`
}

// RosterEvent announces a membership or rank change.
type RosterEvent struct {
	GuildID int64        `json:"guild_id"`
	Type    EventLogType `json:"type"`
	CharID  int64        `json:"char_id"`
	RankID  uint8        `json:"rank_id"`
}

// Delivery is one event addressed to one character.
type Delivery struct {
	CharID  int64
	Event   string
	Payload interface{}
}
