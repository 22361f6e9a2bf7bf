// Package api exposes the screener and alert-subscription HTTP
// surface: health/ready probes, quotes, subscription management, and
// the /screen endpoint running the full translate -> validate ->
// compile -> execute pipeline.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dewei/screenradar/pkg/catalog"
	"github.com/dewei/screenradar/pkg/collector"
	"github.com/dewei/screenradar/pkg/compiler"
	"github.com/dewei/screenradar/pkg/database"
	"github.com/dewei/screenradar/pkg/dsl"
	"github.com/dewei/screenradar/pkg/model"
	"github.com/dewei/screenradar/pkg/translator"
	"github.com/dewei/screenradar/pkg/validator"
)

type Handlers struct {
	quoteFetcher collector.QuoteFetcher
	db           *database.DB
	qs           *database.QueryStore
	cat          *catalog.Catalog
	trans        *translator.Translator
	val          *validator.Validator
	comp         *compiler.Compiler
}

func NewHandlers(quoteFetcher collector.QuoteFetcher, db *database.DB, qs *database.QueryStore, trans *translator.Translator) *Handlers {
	cat := catalog.Get()
	return &Handlers{
		quoteFetcher: quoteFetcher,
		db:           db,
		qs:           qs,
		cat:          cat,
		trans:        trans,
		val:          validator.New(cat, validator.DefaultConfig()),
		comp:         compiler.New(cat, compiler.DefaultConfig()),
	}
}

func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handlers) ReadinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (h *Handlers) GetQuotes(c *gin.Context) {
	symbolsParam := c.Query("symbols")
	if symbolsParam == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbols parameter is required"})
		return
	}
	symbols := strings.Split(symbolsParam, ",")

	quotes, err := h.quoteFetcher.FetchRealtime(c.Request.Context(), symbols)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch quotes: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": quotes})
}

// ScreenRequest is either a natural-language query or a hand-built DSL
// query — exactly one must be set; both feed the same
// validate/compile/execute pipeline.
type ScreenRequest struct {
	Query string     `json:"query,omitempty"`
	DSL   *dsl.Query `json:"dsl,omitempty"`
}

// metadata builds the trace-correlation block every /screen response
// carries, echoing the request's trace headers.
func metadata(c *gin.Context) gin.H {
	m := gin.H{"request_id": c.GetString(ctxRequestID)}
	if sid := c.GetString(ctxSessionID); sid != "" {
		m["session_id"] = sid
	}
	return m
}

func errorResponse(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"success":  false,
		"error":    gin.H{"code": code, "message": message},
		"metadata": metadata(c),
	})
}

// Screen runs the translate -> validate -> compile -> execute
// pipeline and returns matching rows. Validator failures come back as
// the full issue array; execution failures return a generic message —
// compiled SQL is logged server-side and never reaches the client.
func (h *Handlers) Screen(c *gin.Context) {
	start := time.Now()

	var req ScreenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "UNPARSEABLE", "invalid request body: "+err.Error())
		return
	}

	query := req.DSL
	if query == nil {
		if req.Query == "" {
			errorResponse(c, http.StatusBadRequest, "UNPARSEABLE", "one of query or dsl is required")
			return
		}
		translated, err := h.trans.Translate(c.Request.Context(), req.Query)
		if err != nil {
			errorResponse(c, http.StatusBadRequest, "UNPARSEABLE", "could not translate query")
			return
		}
		query = translated
	}

	res := h.val.Validate(query)
	if !res.OK() {
		c.JSON(http.StatusBadRequest, gin.H{
			"success":  false,
			"error":    gin.H{"code": "VALIDATION", "message": "query failed validation"},
			"errors":   res.Errors(),
			"warnings": res.Warnings(),
			"metadata": metadata(c),
		})
		return
	}

	compiled, err := h.comp.Compile(query)
	if err != nil {
		dslJSON, _ := json.Marshal(query)
		log.Error().Err(err).RawJSON("dsl", dslJSON).Msg("compilation failed on a validated query")
		errorResponse(c, http.StatusInternalServerError, "EXECUTION", "internal error while preparing the query")
		return
	}

	rows, err := h.qs.Run(c.Request.Context(), compiled.SQL, compiled.Params)
	if err != nil {
		log.Error().Err(err).Str("sql", compiled.SQL).Msg("screener query failed")
		errorResponse(c, http.StatusInternalServerError, "EXECUTION", "query execution failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"results":   rows,
		"count":     len(rows),
		"warnings":  res.Warnings(),
		"execution": gin.H{"time_ms": time.Since(start).Milliseconds()},
		"query":     gin.H{"original": req.Query, "dsl": query},
		"metadata":  metadata(c),
	})
}

// SubscribeRequest creates one AlertSubscription.
type SubscribeRequest struct {
	UserID    string          `json:"user_id" binding:"required"`
	Name      string          `json:"name" binding:"required"`
	Ticker    string          `json:"ticker" binding:"required"`
	Kind      model.AlertKind `json:"kind" binding:"required"`
	Condition model.JSONMap   `json:"condition" binding:"required"`
}

func (h *Handlers) SubscribeAlerts(c *gin.Context) {
	var req SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	sub := &model.AlertSubscription{
		UserID:    req.UserID,
		Name:      req.Name,
		Ticker:    req.Ticker,
		Kind:      req.Kind,
		Condition: req.Condition,
		Status:    model.SubscriptionStatusActive,
	}
	if err := h.db.Subscription().Save(sub); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save subscription: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": sub})
}

func (h *Handlers) GetAlertHistory(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id parameter is required"})
		return
	}
	limit := 10
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	alerts, err := h.db.Alert().GetByUserID(userID, limit, 0, false)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch alert history: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": alerts})
}
