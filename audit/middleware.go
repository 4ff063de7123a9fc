package audit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	mw "github.com/kasuganosora/guildbank/middleware"
)

// Middleware records every non-GET request that reached a route.
func Middleware(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		action := c.FullPath()
		if action == "" {
			return
		}
		e := Entry{
			TraceID:    mw.GetTraceID(c),
			CharID:     mw.GetCharID(c),
			CharName:   mw.GetCharName(c),
			Action:     c.Request.Method + " " + action,
			Status:     c.Writer.Status(),
			IP:         c.ClientIP(),
			DurationMs: int(time.Since(start).Milliseconds()),
		}
		if len(c.Errors) > 0 {
			e.Error = c.Errors.String()
		}
		svc.Log(e)
	}
}

// ListHandler serves GET /api/admin/audit. Query parameters: char_id,
// action (exact, such as "POST /api/guilds/:id/bank/money/withdraw"),
// since (RFC 3339) and limit.
func ListHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var f Filter
		var err error
		if v := c.Query("char_id"); v != "" {
			if f.CharID, err = strconv.ParseInt(v, 10, 64); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid char_id"})
				return
			}
		}
		if v := c.Query("since"); v != "" {
			if f.Since, err = time.Parse(time.RFC3339, v); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since"})
				return
			}
		}
		if v := c.Query("limit"); v != "" {
			if f.Limit, err = strconv.Atoi(v); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
				return
			}
		}
		f.Action = c.Query("action")

		entries, err := svc.Query(c.Request.Context(), f)
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "audit query failed"})
			return
		}
		written, dropped := svc.Stats()
		c.JSON(http.StatusOK, gin.H{"entries": entries, "written": written, "dropped": dropped})
	}
}
