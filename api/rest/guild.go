package rest

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/guildbank/game/guild"
	"github.com/kasuganosora/guildbank/game/item"
	mw "github.com/kasuganosora/guildbank/middleware"
	"go.uber.org/zap"
)

// Inventories hands out the live bags of a character.
type Inventories interface {
	Get(ctx context.Context, charID int64) (*item.Inventory, error)
}

// Presence answers whether a character is connected anywhere.
type Presence interface {
	Online(ctx context.Context, charID int64) bool
}

// GuildHandler handles guild and guild bank REST endpoints.
type GuildHandler struct {
	reg      *guild.Registry
	inv      Inventories
	presence Presence
	logger   *zap.Logger
}

// NewGuildHandler creates a new GuildHandler.
func NewGuildHandler(reg *guild.Registry, inv Inventories, presence Presence, logger *zap.Logger) *GuildHandler {
	return &GuildHandler{reg: reg, inv: inv, presence: presence, logger: logger}
}

// Register mounts the guild routes on an authenticated group.
func (h *GuildHandler) Register(g *gin.RouterGroup) {
	g.POST("/guilds", h.Create)
	g.GET("/guilds/:id", h.Detail)
	g.DELETE("/guilds/:id", h.Disband)

	g.POST("/guilds/:id/members", h.AddMember)
	g.DELETE("/guilds/:id/members/:cid", h.RemoveMember)
	g.PUT("/guilds/:id/members/:cid/rank", h.SetMemberRank)

	g.POST("/guilds/:id/ranks", h.AddRank)
	g.PUT("/guilds/:id/ranks/:rid", h.SetRankInfo)
	g.DELETE("/guilds/:id/ranks/last", h.DeleteLastRank)

	g.GET("/guilds/:id/events", h.EventLog)
	g.GET("/guilds/:id/news", h.News)
	g.PUT("/guilds/:id/news/:guid/sticky", h.SetNewsSticky)

	g.GET("/guilds/:id/bank/tabs", h.BankTabs)
	g.POST("/guilds/:id/bank/tabs/:tab", h.BuyBankTab)
	g.GET("/guilds/:id/bank/tabs/:tab", h.BankTab)
	g.PUT("/guilds/:id/bank/tabs/:tab/info", h.SetBankTabInfo)
	g.PUT("/guilds/:id/bank/tabs/:tab/text", h.SetBankTabText)
	g.GET("/guilds/:id/bank/logs/:tab", h.BankLog)

	g.GET("/guilds/:id/bank/money", h.MoneyInfo)
	g.POST("/guilds/:id/bank/money/deposit", h.DepositMoney)
	g.POST("/guilds/:id/bank/money/withdraw", h.WithdrawMoney)
}

func (h *GuildHandler) fail(c *gin.Context, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("guild request failed",
			zap.String("path", c.FullPath()),
			zap.String("trace_id", mw.GetTraceID(c)),
			zap.Error(err))
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	body := gin.H{"error": err.Error()}
	var ee *guild.EquipError
	if errors.As(err, &ee) {
		body["result"] = ee.Result
	}
	c.JSON(status, body)
}

// actor builds the acting character with its live bags.
func (h *GuildHandler) actor(c *gin.Context) (*guild.Actor, error) {
	charID := mw.GetCharID(c)
	inv, err := h.inv.Get(c.Request.Context(), charID)
	if err != nil {
		return nil, err
	}
	return &guild.Actor{CharID: charID, Name: mw.GetCharName(c), Inv: inv}, nil
}

// guild resolves :id. Writes the error response and returns nil on failure.
func (h *GuildHandler) guild(c *gin.Context) *guild.Guild {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return nil
	}
	g := h.reg.Get(id)
	if g == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": guild.ErrGuildNotFound.Error()})
		return nil
	}
	return g
}

// member is guild plus a membership check for read endpoints.
func (h *GuildHandler) member(c *gin.Context) *guild.Guild {
	g := h.guild(c)
	if g == nil {
		return nil
	}
	if !g.IsMember(mw.GetCharID(c)) {
		h.fail(c, guild.ErrNotMember)
		return nil
	}
	return g
}

func uint8Param(c *gin.Context, name string) (uint8, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 8)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint8(v), true
}

// mutate runs fn as the authenticated character against the guild in :id.
func (h *GuildHandler) mutate(c *gin.Context, fn func(g *guild.Guild, a *guild.Actor) error) bool {
	g := h.guild(c)
	if g == nil {
		return false
	}
	a, err := h.actor(c)
	if err != nil {
		h.fail(c, err)
		return false
	}
	if err := fn(g, a); err != nil {
		h.fail(c, err)
		return false
	}
	return true
}

// ---- guild ----

type createGuildRequest struct {
	Name string `json:"name" binding:"required"`
}

// Create handles POST /api/guilds.
func (h *GuildHandler) Create(c *gin.Context) {
	var req createGuildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a, err := h.actor(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	g, err := h.reg.Create(a, req.Name)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": g.ID(), "name": g.Name()})
}

type memberInfo struct {
	guild.MemberView
	Online bool `json:"online"`
}

// Detail handles GET /api/guilds/:id.
func (h *GuildHandler) Detail(c *gin.Context) {
	g := h.member(c)
	if g == nil {
		return
	}
	views := g.Members()
	members := make([]memberInfo, 0, len(views))
	for _, m := range views {
		members = append(members, memberInfo{MemberView: m, Online: h.presence.Online(c.Request.Context(), m.CharID)})
	}
	c.JSON(http.StatusOK, gin.H{
		"id":             g.ID(),
		"name":           g.Name(),
		"leader_id":      g.LeaderID(),
		"bank_money":     g.BankMoney(),
		"purchased_tabs": g.PurchasedTabs(),
		"ranks":          g.Ranks(),
		"members":        members,
	})
}

// Disband handles DELETE /api/guilds/:id.
func (h *GuildHandler) Disband(c *gin.Context) {
	g := h.guild(c)
	if g == nil {
		return
	}
	a, err := h.actor(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !g.IsMember(a.CharID) {
		h.fail(c, guild.ErrNotMember)
		return
	}
	if err := h.reg.Disband(a); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ---- roster ----

type addMemberRequest struct {
	CharID int64  `json:"char_id" binding:"required,min=1"`
	Name   string `json:"name" binding:"required"`
}

// AddMember handles POST /api/guilds/:id/members.
func (h *GuildHandler) AddMember(c *gin.Context) {
	var req addMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if h.mutate(c, func(g *guild.Guild, a *guild.Actor) error {
		return g.AddMember(a, req.CharID, req.Name)
	}) {
		c.JSON(http.StatusCreated, gin.H{"ok": true})
	}
}

// RemoveMember handles DELETE /api/guilds/:id/members/:cid. Removing
// oneself leaves the guild.
func (h *GuildHandler) RemoveMember(c *gin.Context) {
	cid, err := strconv.ParseInt(c.Param("cid"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cid"})
		return
	}
	if h.mutate(c, func(g *guild.Guild, a *guild.Actor) error {
		return g.RemoveMember(a, cid)
	}) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

type setRankRequest struct {
	RankID *uint8 `json:"rank_id" binding:"required"`
}

// SetMemberRank handles PUT /api/guilds/:id/members/:cid/rank.
func (h *GuildHandler) SetMemberRank(c *gin.Context) {
	cid, err := strconv.ParseInt(c.Param("cid"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cid"})
		return
	}
	var req setRankRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if h.mutate(c, func(g *guild.Guild, a *guild.Actor) error {
		return g.SetMemberRank(a, cid, *req.RankID)
	}) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

type addRankRequest struct {
	Name string `json:"name" binding:"required"`
}

// AddRank handles POST /api/guilds/:id/ranks.
func (h *GuildHandler) AddRank(c *gin.Context) {
	var req addRankRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var id uint8
	if h.mutate(c, func(g *guild.Guild, a *guild.Actor) (err error) {
		id, err = g.AddRank(a, req.Name)
		return err
	}) {
		c.JSON(http.StatusCreated, gin.H{"rank_id": id})
	}
}

// SetRankInfo handles PUT /api/guilds/:id/ranks/:rid.
func (h *GuildHandler) SetRankInfo(c *gin.Context) {
	rid, ok := uint8Param(c, "rid")
	if !ok {
		return
	}
	var req guild.RankSettings
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if h.mutate(c, func(g *guild.Guild, a *guild.Actor) error {
		return g.SetRankInfo(a, rid, req)
	}) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

// DeleteLastRank handles DELETE /api/guilds/:id/ranks/last.
func (h *GuildHandler) DeleteLastRank(c *gin.Context) {
	if h.mutate(c, func(g *guild.Guild, a *guild.Actor) error {
		return g.DeleteLastRank(a)
	}) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

// EventLog handles GET /api/guilds/:id/events.
func (h *GuildHandler) EventLog(c *gin.Context) {
	g := h.guild(c)
	if g == nil {
		return
	}
	entries, err := g.EventLog(mw.GetCharID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": entries})
}

// News handles GET /api/guilds/:id/news.
func (h *GuildHandler) News(c *gin.Context) {
	g := h.member(c)
	if g == nil {
		return
	}
	c.JSON(http.StatusOK, gin.H{"news": g.News()})
}

type stickyRequest struct {
	Sticky bool `json:"sticky"`
}

// SetNewsSticky handles PUT /api/guilds/:id/news/:guid/sticky.
func (h *GuildHandler) SetNewsSticky(c *gin.Context) {
	guid, err := strconv.ParseUint(c.Param("guid"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid guid"})
		return
	}
	var req stickyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if h.mutate(c, func(g *guild.Guild, a *guild.Actor) error {
		return g.SetNewsSticky(a, uint32(guid), req.Sticky)
	}) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

// ---- bank ----

// BankTabs handles GET /api/guilds/:id/bank/tabs.
func (h *GuildHandler) BankTabs(c *gin.Context) {
	g := h.guild(c)
	if g == nil {
		return
	}
	tabs, err := g.BankTabs(mw.GetCharID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tabs": tabs, "purchased": g.PurchasedTabs()})
}

// BuyBankTab handles POST /api/guilds/:id/bank/tabs/:tab.
func (h *GuildHandler) BuyBankTab(c *gin.Context) {
	tab, ok := uint8Param(c, "tab")
	if !ok {
		return
	}
	if h.mutate(c, func(g *guild.Guild, a *guild.Actor) error {
		return g.BuyBankTab(a, tab)
	}) {
		c.JSON(http.StatusCreated, gin.H{"tab": tab, "price": guild.BankTabPrice(tab)})
	}
}

// BankTab handles GET /api/guilds/:id/bank/tabs/:tab.
func (h *GuildHandler) BankTab(c *gin.Context) {
	tab, ok := uint8Param(c, "tab")
	if !ok {
		return
	}
	g := h.guild(c)
	if g == nil {
		return
	}
	charID := mw.GetCharID(c)
	slots, err := g.BankTabContents(charID, tab)
	if err != nil {
		h.fail(c, err)
		return
	}
	remaining, err := g.RemainingWithdrawSlots(charID, tab)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tab": tab, "slots": slots, "remaining_withdrawals": remaining})
}

type tabInfoRequest struct {
	Name string `json:"name"`
	Icon string `json:"icon"`
}

// SetBankTabInfo handles PUT /api/guilds/:id/bank/tabs/:tab/info.
func (h *GuildHandler) SetBankTabInfo(c *gin.Context) {
	tab, ok := uint8Param(c, "tab")
	if !ok {
		return
	}
	var req tabInfoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if h.mutate(c, func(g *guild.Guild, a *guild.Actor) error {
		return g.SetBankTabInfo(a, tab, req.Name, req.Icon)
	}) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

type tabTextRequest struct {
	Text string `json:"text"`
}

// SetBankTabText handles PUT /api/guilds/:id/bank/tabs/:tab/text.
func (h *GuildHandler) SetBankTabText(c *gin.Context) {
	tab, ok := uint8Param(c, "tab")
	if !ok {
		return
	}
	var req tabTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if h.mutate(c, func(g *guild.Guild, a *guild.Actor) error {
		return g.SetBankTabText(a, tab, req.Text)
	}) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

// BankLog handles GET /api/guilds/:id/bank/logs/:tab. Tab 8 is the money log.
func (h *GuildHandler) BankLog(c *gin.Context) {
	tab, ok := uint8Param(c, "tab")
	if !ok {
		return
	}
	g := h.guild(c)
	if g == nil {
		return
	}
	entries, err := g.BankLog(mw.GetCharID(c), tab)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tab": tab, "entries": entries})
}

// MoneyInfo handles GET /api/guilds/:id/bank/money.
func (h *GuildHandler) MoneyInfo(c *gin.Context) {
	g := h.guild(c)
	if g == nil {
		return
	}
	remaining, err := g.RemainingMoney(mw.GetCharID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"money": g.BankMoney(), "remaining_withdraw_money": remaining})
}

type moneyRequest struct {
	Amount uint64 `json:"amount" binding:"required"`
}

func (h *GuildHandler) moveMoney(c *gin.Context, fn func(g *guild.Guild, a *guild.Actor, amount uint64) error) {
	var req moneyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var money, wallet uint64
	if h.mutate(c, func(g *guild.Guild, a *guild.Actor) error {
		if err := fn(g, a, req.Amount); err != nil {
			return err
		}
		money, wallet = g.BankMoney(), a.Inv.Money()
		return nil
	}) {
		c.JSON(http.StatusOK, gin.H{"money": money, "wallet": wallet})
	}
}

// DepositMoney handles POST /api/guilds/:id/bank/money/deposit.
func (h *GuildHandler) DepositMoney(c *gin.Context) {
	h.moveMoney(c, func(g *guild.Guild, a *guild.Actor, amount uint64) error {
		return g.DepositMoney(a, amount, false)
	})
}

// WithdrawMoney handles POST /api/guilds/:id/bank/money/withdraw.
func (h *GuildHandler) WithdrawMoney(c *gin.Context) {
	h.moveMoney(c, func(g *guild.Guild, a *guild.Actor, amount uint64) error {
		return g.WithdrawMoney(a, amount, false)
	})
}
