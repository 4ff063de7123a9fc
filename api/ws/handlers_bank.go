package ws

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/kasuganosora/guildbank/game/guild"
	"github.com/kasuganosora/guildbank/game/item"
	"github.com/kasuganosora/guildbank/game/player"
	"go.uber.org/zap"
)

// Packet types sent in reply to bank requests.
const (
	PktTabContents = "guild_bank_tab_contents"
	PktMoneyInfo   = "guild_bank_money_info"
	PktMoneyResult = "guild_bank_money_result"
	PktError       = "error"
)

// Inventories hands out the live bags of a connected character.
type Inventories interface {
	Get(ctx context.Context, charID int64) (*item.Inventory, error)
}

// BankHandlers serves guild bank requests over WebSocket.
type BankHandlers struct {
	reg      *guild.Registry
	inv      Inventories
	cooldown time.Duration
	logger   *zap.Logger
}

// NewBankHandlers creates a new BankHandlers. cooldown throttles item moves
// per session; zero disables it.
func NewBankHandlers(reg *guild.Registry, inv Inventories, cooldown time.Duration, logger *zap.Logger) *BankHandlers {
	return &BankHandlers{reg: reg, inv: inv, cooldown: cooldown, logger: logger}
}

// RegisterHandlers binds every bank message type on r.
func (bh *BankHandlers) RegisterHandlers(r *Router) {
	r.On("ping", HandlePing)
	r.On("guild_bank_swap", bh.HandleSwap)
	r.On("guild_bank_swap_inventory", bh.HandleSwapInventory)
	r.On("guild_bank_deposit_money", bh.HandleDepositMoney)
	r.On("guild_bank_withdraw_money", bh.HandleWithdrawMoney)
	r.On("guild_bank_query_tab", bh.HandleQueryTab)
	r.On("guild_bank_query_money", bh.HandleQueryMoney)
}

type pingPayload struct {
	TS int64 `json:"ts"`
}

// HandlePing responds to client heartbeat pings.
func HandlePing(_ context.Context, s *player.PlayerSession, raw json.RawMessage) error {
	var p pingPayload
	_ = json.Unmarshal(raw, &p)
	s.SendHeartbeatPong(p.TS)
	return nil
}

// actor resolves the session's guild and bags. It answers the client and
// returns nil guild when the request cannot proceed.
func (bh *BankHandlers) actor(ctx context.Context, s *player.PlayerSession) (*guild.Guild, *guild.Actor, error) {
	g := bh.reg.GetByMember(s.CharID)
	if g == nil {
		sendError(s, guild.ErrNotMember.Error())
		return nil, nil, nil
	}
	inv, err := bh.inv.Get(ctx, s.CharID)
	if err != nil {
		return nil, nil, err
	}
	return g, &guild.Actor{CharID: s.CharID, Name: s.CharName, Inv: inv}, nil
}

// moveOutcome logs a rejected move. Placement failures have already been
// reported to the player as equip errors; permission failures stay silent.
func (bh *BankHandlers) moveOutcome(s *player.PlayerSession, op string, err error) error {
	if err == nil {
		return nil
	}
	var ee *guild.EquipError
	switch {
	case errors.As(err, &ee), errors.Is(err, guild.ErrNoRights):
	case errors.Is(err, guild.ErrInvalidTab), errors.Is(err, guild.ErrInvalidSlot),
		errors.Is(err, guild.ErrItemNotFound), errors.Is(err, guild.ErrInvalidSplit):
		sendError(s, err.Error())
	default:
		return err
	}
	bh.logger.Debug("bank move rejected",
		zap.String("op", op),
		zap.Int64("char_id", s.CharID),
		zap.Error(err))
	return nil
}

type swapReq struct {
	Tab      uint8  `json:"tab"`
	Slot     uint8  `json:"slot"`
	DestTab  uint8  `json:"dest_tab"`
	DestSlot uint8  `json:"dest_slot"`
	Split    uint32 `json:"split"`
}

// HandleSwap moves or splits a stack between two bank slots.
func (bh *BankHandlers) HandleSwap(ctx context.Context, s *player.PlayerSession, raw json.RawMessage) error {
	var req swapReq
	if err := json.Unmarshal(raw, &req); err != nil {
		sendError(s, "malformed request")
		return nil
	}
	if !s.AllowMove(bh.cooldown) {
		return nil
	}
	g, actor, err := bh.actor(ctx, s)
	if g == nil {
		return err
	}
	err = g.SwapItems(actor, req.Tab, req.Slot, req.DestTab, req.DestSlot, req.Split)
	return bh.moveOutcome(s, "swap", err)
}

type swapInventoryReq struct {
	ToChar  bool   `json:"to_char"`
	Tab     uint8  `json:"tab"`
	Slot    uint8  `json:"slot"`
	Bag     uint8  `json:"bag"`
	BagSlot uint8  `json:"bag_slot"`
	Split   uint32 `json:"split"`
}

// HandleSwapInventory moves a stack between the bank and the player's bags.
// 255 in slot or bag_slot lets the server pick the slot.
func (bh *BankHandlers) HandleSwapInventory(ctx context.Context, s *player.PlayerSession, raw json.RawMessage) error {
	var req swapInventoryReq
	if err := json.Unmarshal(raw, &req); err != nil {
		sendError(s, "malformed request")
		return nil
	}
	if !s.AllowMove(bh.cooldown) {
		return nil
	}
	g, actor, err := bh.actor(ctx, s)
	if g == nil {
		return err
	}
	err = g.SwapItemsWithInventory(actor, req.ToChar, req.Tab, req.Slot, req.Bag, req.BagSlot, req.Split)
	return bh.moveOutcome(s, "swap_inventory", err)
}

type moneyReq struct {
	Amount uint64 `json:"amount"`
}

type moneyResult struct {
	Op    string `json:"op"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Money uint64 `json:"money"`
}

func (bh *BankHandlers) money(ctx context.Context, s *player.PlayerSession, raw json.RawMessage, op string,
	do func(g *guild.Guild, actor *guild.Actor, amount uint64) error) error {
	var req moneyReq
	if err := json.Unmarshal(raw, &req); err != nil {
		sendError(s, "malformed request")
		return nil
	}
	g, actor, err := bh.actor(ctx, s)
	if g == nil {
		return err
	}
	res := moneyResult{Op: op, OK: true}
	if err := do(g, actor, req.Amount); err != nil {
		res.OK = false
		res.Error = err.Error()
		bh.logger.Debug("bank money rejected",
			zap.String("op", op),
			zap.Int64("char_id", s.CharID),
			zap.Uint64("amount", req.Amount),
			zap.Error(err))
	}
	res.Money = g.BankMoney()
	s.SendEvent(PktMoneyResult, res)
	return nil
}

// HandleDepositMoney moves gold from the player's wallet into the bank.
func (bh *BankHandlers) HandleDepositMoney(ctx context.Context, s *player.PlayerSession, raw json.RawMessage) error {
	return bh.money(ctx, s, raw, "deposit", func(g *guild.Guild, a *guild.Actor, amount uint64) error {
		return g.DepositMoney(a, amount, false)
	})
}

// HandleWithdrawMoney moves gold from the bank into the player's wallet.
func (bh *BankHandlers) HandleWithdrawMoney(ctx context.Context, s *player.PlayerSession, raw json.RawMessage) error {
	return bh.money(ctx, s, raw, "withdraw", func(g *guild.Guild, a *guild.Actor, amount uint64) error {
		return g.WithdrawMoney(a, amount, false)
	})
}

type queryTabReq struct {
	Tab uint8 `json:"tab"`
}

// TabContents is the reply to a tab query.
type TabContents struct {
	Tab       uint8            `json:"tab"`
	Slots     []guild.SlotView `json:"slots"`
	Remaining guild.Quota      `json:"remaining_withdrawals"`
}

// HandleQueryTab sends the occupied slots of a tab the player may view.
func (bh *BankHandlers) HandleQueryTab(_ context.Context, s *player.PlayerSession, raw json.RawMessage) error {
	var req queryTabReq
	if err := json.Unmarshal(raw, &req); err != nil {
		sendError(s, "malformed request")
		return nil
	}
	g := bh.reg.GetByMember(s.CharID)
	if g == nil {
		sendError(s, guild.ErrNotMember.Error())
		return nil
	}
	slots, err := g.BankTabContents(s.CharID, req.Tab)
	if err != nil {
		sendError(s, err.Error())
		return nil
	}
	remaining, err := g.RemainingWithdrawSlots(s.CharID, req.Tab)
	if err != nil {
		sendError(s, err.Error())
		return nil
	}
	s.SendEvent(PktTabContents, TabContents{Tab: req.Tab, Slots: slots, Remaining: remaining})
	return nil
}

// MoneyInfo is the reply to a money query.
type MoneyInfo struct {
	Money     uint64      `json:"money"`
	Remaining guild.Quota `json:"remaining_withdraw_money"`
}

// HandleQueryMoney sends the bank balance and the player's allowance.
func (bh *BankHandlers) HandleQueryMoney(_ context.Context, s *player.PlayerSession, _ json.RawMessage) error {
	g := bh.reg.GetByMember(s.CharID)
	if g == nil {
		sendError(s, guild.ErrNotMember.Error())
		return nil
	}
	remaining, err := g.RemainingMoney(s.CharID)
	if err != nil {
		sendError(s, err.Error())
		return nil
	}
	s.SendEvent(PktMoneyInfo, MoneyInfo{Money: g.BankMoney(), Remaining: remaining})
	return nil
}

func sendError(s *player.PlayerSession, msg string) {
	s.SendEvent(PktError, map[string]string{"message": msg})
}
