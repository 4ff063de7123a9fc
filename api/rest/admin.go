package rest

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/guildbank/game/guild"
	"github.com/kasuganosora/guildbank/game/item"
	"github.com/kasuganosora/guildbank/game/player"
	"github.com/kasuganosora/guildbank/model"
	"github.com/kasuganosora/guildbank/scheduler"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// QueueStats reports persistence queue counters.
type QueueStats interface {
	Stats() (applied, failed int64)
}

// Bags loads and saves character inventories.
type Bags interface {
	Get(ctx context.Context, charID int64) (*item.Inventory, error)
	Save(ctx context.Context, charID int64) error
}

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by AdminAuth middleware.
type AdminHandler struct {
	db      *gorm.DB
	sm      *player.SessionManager
	reg     *guild.Registry
	catalog *item.Catalog
	bags    Bags
	queue   QueueStats
	sched   *scheduler.Scheduler
	logger  *zap.Logger

	extra map[string]func() interface{}
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(
	db *gorm.DB,
	sm *player.SessionManager,
	reg *guild.Registry,
	catalog *item.Catalog,
	bags Bags,
	queue QueueStats,
	sched *scheduler.Scheduler,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{
		db: db, sm: sm, reg: reg, catalog: catalog, bags: bags,
		queue: queue, sched: sched, logger: logger,
	}
}

// AddMetric adds a named value to the metrics response. Call it before
// serving.
func (h *AdminHandler) AddMetric(name string, fn func() interface{}) {
	if h.extra == nil {
		h.extra = make(map[string]func() interface{})
	}
	h.extra[name] = fn
}

// Metrics returns server health metrics.
// GET /api/admin/metrics
func (h *AdminHandler) Metrics(c *gin.Context) {
	applied, failed := h.queue.Stats()
	out := gin.H{
		"online_players":  h.sm.Count(),
		"dropped_frames":  h.sm.DroppedFrames(),
		"guilds":          h.reg.Len(),
		"batches_applied": applied,
		"batches_failed":  failed,
		"scheduler_tasks": h.sched.Names(),
	}
	for name, fn := range h.extra {
		out[name] = fn()
	}
	c.JSON(http.StatusOK, out)
}

type createCharacterRequest struct {
	Name string `json:"name" binding:"required,min=2,max=32"`
	Gold uint64 `json:"gold"`
}

// CreateCharacter registers a character the bank can serve.
// POST /api/admin/characters
func (h *AdminHandler) CreateCharacter(c *gin.Context) {
	var req createCharacterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	char := model.Character{Name: req.Name, Gold: req.Gold}
	if err := h.db.Create(&char).Error; err != nil {
		if isUniqueViolation(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "name taken"})
			return
		}
		h.logger.Error("create character", zap.String("name", req.Name), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusCreated, char)
}

type grantItemRequest struct {
	Entry uint32 `json:"entry" binding:"required"`
	Count uint32 `json:"count" binding:"required"`
}

// GrantItem creates a catalog item in a character's bags.
// POST /api/admin/characters/:id/items
func (h *AdminHandler) GrantItem(c *gin.Context) {
	charID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req grantItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	st, err := h.catalog.NewStack(req.Entry, req.Count)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	inv, err := h.bags.Get(ctx, charID)
	if err != nil {
		if errors.Is(err, item.ErrCharacterNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("load inventory", zap.Int64("char_id", charID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	if res := inv.AddItem(st); res != item.ResultOK {
		c.JSON(http.StatusConflict, gin.H{"error": res.String(), "result": res})
		return
	}
	if err := h.bags.Save(ctx, charID); err != nil {
		h.logger.Error("save inventory", zap.Int64("char_id", charID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	h.logger.Info("admin granted item",
		zap.Int64("char_id", charID), zap.Uint32("entry", req.Entry), zap.Uint32("count", req.Count))
	c.JSON(http.StatusCreated, gin.H{"entry": req.Entry, "count": req.Count})
}

// KickPlayer forcibly disconnects a player by character ID.
// POST /api/admin/kick/:id
func (h *AdminHandler) KickPlayer(c *gin.Context) {
	charID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if !h.sm.Kick(charID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "player not online"})
		return
	}
	h.logger.Info("admin kicked player", zap.Int64("char_id", charID))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ResetDaily zeros every member's withdrawal counters now.
// POST /api/admin/reset-daily
func (h *AdminHandler) ResetDaily(c *gin.Context) {
	h.reg.ResetDailyValues()
	h.logger.Info("admin reset daily guild bank values")
	c.JSON(http.StatusOK, gin.H{"ok": true, "guilds": h.reg.Len()})
}

// ListSchedulerTasks reports every scheduled task with its next and last run.
// GET /api/admin/scheduler
func (h *AdminHandler) ListSchedulerTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": h.sched.Tasks()})
}

var bankLogHeader = []interface{}{"Tab", "GUID", "Time", "Event", "Player", "Item/Money", "Count", "Dest Tab"}

// ExportBankLogs writes one guild's bank logs as an xlsx workbook with one
// sheet per tab and a Money sheet.
// GET /api/admin/guilds/:id/bank-logs.xlsx
func (h *AdminHandler) ExportBankLogs(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	g := h.reg.Get(id)
	if g == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": guild.ErrGuildNotFound.Error()})
		return
	}

	f, err := bankLogWorkbook(g.AllBankLogs())
	if err != nil {
		h.logger.Error("build bank log workbook", zap.Int64("guild_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}
	defer f.Close()

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="guild-%d-bank-logs.xlsx"`, id))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Status(http.StatusOK)
	if err := f.Write(c.Writer); err != nil {
		h.logger.Warn("write bank log workbook", zap.Int64("guild_id", id), zap.Error(err))
	}
}

func bankLogSheet(tab uint8) string {
	if tab == guild.MoneyLogTab {
		return "Money"
	}
	return fmt.Sprintf("Tab %d", tab+1)
}

func bankLogWorkbook(logs map[uint8][]guild.BankEventLogEntry) (*excelize.File, error) {
	tabs := make([]int, 0, len(logs))
	for tab := range logs {
		tabs = append(tabs, int(tab))
	}
	sort.Ints(tabs)

	f := excelize.NewFile()
	if len(tabs) == 0 {
		return f, f.SetSheetRow("Sheet1", "A1", &bankLogHeader)
	}
	for i, t := range tabs {
		tab := uint8(t)
		sheet := bankLogSheet(tab)
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet); err != nil {
				return nil, err
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, "A1", &bankLogHeader); err != nil {
			return nil, err
		}
		for r, e := range logs[tab] {
			cell, err := excelize.CoordinatesToCellName(1, r+2)
			if err != nil {
				return nil, err
			}
			row := []interface{}{
				int(tab), e.GUID, e.Timestamp.UTC().Format("2006-01-02 15:04:05"), e.Type.String(),
				e.PlayerGUID, e.ItemOrMoney, e.ItemStackCount, int(e.DestTab),
			}
			if err := f.SetSheetRow(sheet, cell, &row); err != nil {
				return nil, err
			}
		}
	}
	return f, nil
}

// AdminAuth returns a middleware that checks the X-Admin-Key header.
// WARNING: if adminKey is empty all admin endpoints are disabled (503) so the
// server cannot be accidentally deployed without protection. Set a non-empty
// server.admin_key in config to enable admin routes.
func AdminAuth(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": "admin endpoints disabled: set server.admin_key in config"})
			return
		}
		key := c.GetHeader("X-Admin-Key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(adminKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
