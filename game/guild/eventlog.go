package guild

import (
	"time"

	"github.com/kasuganosora/guildbank/model"
)

// LogHolder is a bounded log. When full, adding evicts the oldest entry.
// GUIDs are handed out cyclically in [0, capacity), so the oldest entry is
// the first inserted, not the one with the lowest GUID.
type LogHolder[T any] struct {
	buf      []T
	head     int
	size     int
	nextGUID uint32
}

func newLogHolder[T any](capacity int) *LogHolder[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &LogHolder[T]{buf: make([]T, capacity)}
}

// Capacity returns the maximum number of entries kept.
func (h *LogHolder[T]) Capacity() int { return len(h.buf) }

// Len returns the number of entries held.
func (h *LogHolder[T]) Len() int { return h.size }

// NextGUID returns the GUID for the next entry and advances the counter.
func (h *LogHolder[T]) NextGUID() uint32 {
	g := h.nextGUID
	h.nextGUID = (h.nextGUID + 1) % uint32(len(h.buf))
	return g
}

// Add appends e, evicting the oldest entry when full.
func (h *LogHolder[T]) Add(e T) {
	if h.size < len(h.buf) {
		h.buf[(h.head+h.size)%len(h.buf)] = e
		h.size++
		return
	}
	h.buf[h.head] = e
	h.head = (h.head + 1) % len(h.buf)
}

// Entries returns the entries oldest first.
func (h *LogHolder[T]) Entries() []T {
	out := make([]T, 0, h.size)
	for i := 0; i < h.size; i++ {
		out = append(out, h.buf[(h.head+i)%len(h.buf)])
	}
	return out
}

// Find returns a pointer to the first entry matching fn, or nil.
func (h *LogHolder[T]) Find(fn func(*T) bool) *T {
	for i := 0; i < h.size; i++ {
		e := &h.buf[(h.head+i)%len(h.buf)]
		if fn(e) {
			return e
		}
	}
	return nil
}

// resumeAfter sets the counter so the next GUID follows last.
func (h *LogHolder[T]) resumeAfter(last uint32) {
	h.nextGUID = (last + 1) % uint32(len(h.buf))
}

// EventLogType enumerates roster events.
type EventLogType uint8

const (
	EventInviteMember EventLogType = iota + 1
	EventJoinGuild
	EventPromotePlayer
	EventDemotePlayer
	EventUninvitePlayer
	EventLeaveGuild
)

// EventLogEntry records a roster change.
type EventLogEntry struct {
	GUID        uint32       `json:"guid"`
	Type        EventLogType `json:"type"`
	PlayerGUID1 int64        `json:"player_guid1"`
	PlayerGUID2 int64        `json:"player_guid2,omitempty"`
	NewRank     uint8        `json:"new_rank,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

func (e *EventLogEntry) record(guildID int64) *model.GuildEventLog {
	return &model.GuildEventLog{
		GuildID:     guildID,
		LogGUID:     e.GUID,
		EventType:   uint8(e.Type),
		PlayerGUID1: e.PlayerGUID1,
		PlayerGUID2: e.PlayerGUID2,
		NewRank:     e.NewRank,
		Timestamp:   e.Timestamp,
	}
}

// BankEventLogType enumerates bank events.
type BankEventLogType uint8

const (
	BankEventDepositItem BankEventLogType = iota + 1
	BankEventWithdrawItem
	BankEventMoveItem
	BankEventDepositMoney
	BankEventWithdrawMoney
	BankEventRepairMoney
	BankEventMoveItem2
	BankEventUnk1
	BankEventBuySlot
	BankEventCashFlowDeposit
)

var bankEventNames = map[BankEventLogType]string{
	BankEventDepositItem:     "deposit_item",
	BankEventWithdrawItem:    "withdraw_item",
	BankEventMoveItem:        "move_item",
	BankEventDepositMoney:    "deposit_money",
	BankEventWithdrawMoney:   "withdraw_money",
	BankEventRepairMoney:     "repair_money",
	BankEventMoveItem2:       "move_item_2",
	BankEventUnk1:            "unknown",
	BankEventBuySlot:         "buy_slot",
	BankEventCashFlowDeposit: "cash_flow_deposit",
}

func (t BankEventLogType) String() string {
	if name, ok := bankEventNames[t]; ok {
		return name
	}
	return "unknown"
}

// IsMoneyEvent reports whether the event belongs to the money log.
func (t BankEventLogType) IsMoneyEvent() bool {
	switch t {
	case BankEventDepositMoney, BankEventWithdrawMoney, BankEventRepairMoney,
		BankEventBuySlot, BankEventCashFlowDeposit:
		return true
	}
	return false
}

// BankEventLogEntry records item or money movement.
type BankEventLogEntry struct {
	GUID           uint32           `json:"guid"`
	Tab            uint8            `json:"tab"`
	Type           BankEventLogType `json:"type"`
	PlayerGUID     int64            `json:"player_guid"`
	ItemOrMoney    uint64           `json:"item_or_money"`
	ItemStackCount uint32           `json:"item_stack_count,omitempty"`
	DestTab        uint8            `json:"dest_tab,omitempty"`
	Timestamp      time.Time        `json:"timestamp"`
}

func (e *BankEventLogEntry) record(guildID int64) *model.GuildBankEventLog {
	return &model.GuildBankEventLog{
		GuildID:        guildID,
		TabID:          e.Tab,
		LogGUID:        e.GUID,
		EventType:      uint8(e.Type),
		PlayerGUID:     e.PlayerGUID,
		ItemOrMoney:    e.ItemOrMoney,
		ItemStackCount: e.ItemStackCount,
		DestTabID:      e.DestTab,
		Timestamp:      e.Timestamp,
	}
}

// NewsType enumerates guild news.
type NewsType uint8

const (
	NewsGuildCreated NewsType = iota + 1
	NewsBankTabPurchased
	NewsMemberJoined
)

const newsFlagSticky uint32 = 0x1

// NewsLogEntry is a guild news item. Only its sticky flag may change.
type NewsLogEntry struct {
	GUID       uint32    `json:"guid"`
	Type       NewsType  `json:"type"`
	PlayerGUID int64     `json:"player_guid"`
	Flags      uint32    `json:"flags"`
	Value      uint32    `json:"value"`
	Timestamp  time.Time `json:"timestamp"`
}

// Sticky reports whether the entry is pinned.
func (e *NewsLogEntry) Sticky() bool { return e.Flags&newsFlagSticky != 0 }

func (e *NewsLogEntry) setSticky(sticky bool) {
	if sticky {
		e.Flags |= newsFlagSticky
	} else {
		e.Flags &^= newsFlagSticky
	}
}

func (e *NewsLogEntry) record(guildID int64) *model.GuildNewsLog {
	return &model.GuildNewsLog{
		GuildID:    guildID,
		LogGUID:    e.GUID,
		EventType:  uint8(e.Type),
		PlayerGUID: e.PlayerGUID,
		Flags:      e.Flags,
		Value:      e.Value,
		Timestamp:  e.Timestamp,
	}
}
