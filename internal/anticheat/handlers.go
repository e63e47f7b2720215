package anticheat

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/playguard/playguard/internal/logging"
	"github.com/playguard/playguard/internal/pagination"
	"github.com/playguard/playguard/internal/validation"
)

// Handler exposes the session-tracking API over HTTP.
type Handler struct {
	recorder *Recorder
	store    Store
}

// NewHandler creates the HTTP handler. store may be nil when report
// persistence is disabled; the report endpoints then answer 503.
func NewHandler(recorder *Recorder, store Store) *Handler {
	return &Handler{recorder: recorder, store: store}
}

// RegisterRoutes mounts the session and report endpoints on the group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/sessions", h.startSession)
	r.POST("/sessions/:id/actions", h.recordAction)
	r.POST("/sessions/:id/scores", h.recordScore)
	r.POST("/sessions/:id/end", h.endSession)
	r.GET("/sessions/:id/valid", h.sessionValid)
	r.GET("/sessions/:id/flags", h.sessionFlags)
	r.GET("/reports/:id", h.getReport)
	r.GET("/games/:gameId/reports", h.listReports)
}

type startSessionRequest struct {
	GameID string `json:"gameId" binding:"required"`
}

func (h *Handler) startSession(c *gin.Context) {
	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "gameId is required")
		return
	}
	if !validation.ValidGameID(req.GameID) {
		badRequest(c, "malformed game id")
		return
	}

	id, err := h.recorder.StartSession(req.GameID)
	if err != nil {
		if errors.Is(err, ErrUnknownGame) {
			// Caller bug, fail loud.
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "unknown_game",
				"message": "game id is not whitelisted",
			})
			return
		}
		logging.L(c.Request.Context()).Error("start session failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "could not start session",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"sessionId": id,
		"gameId":    req.GameID,
	})
}

type actionRequest struct {
	Type string            `json:"type" binding:"required"`
	Data map[string]string `json:"data"`
}

func (h *Handler) recordAction(c *gin.Context) {
	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "type is required")
		return
	}
	if !validation.ValidActionType(req.Type) {
		badRequest(c, "malformed action type")
		return
	}

	if !h.recorder.RecordAction(c.Param("id"), req.Type, req.Data) {
		sessionNotFound(c)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"recorded": true})
}

type scoreRequest struct {
	Score float64 `json:"score"`
	Delta float64 `json:"delta"`
}

func (h *Handler) recordScore(c *gin.Context) {
	var req scoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "malformed score body")
		return
	}

	if !h.recorder.RecordScore(c.Param("id"), req.Score, req.Delta) {
		sessionNotFound(c)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"recorded": true})
}

type endSessionRequest struct {
	FinalScore float64 `json:"finalScore"`
}

func (h *Handler) endSession(c *gin.Context) {
	// The body is optional: a crashing game tab may only manage the bare
	// POST, and a zero final score is better than a lost report.
	var req endSessionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "malformed end body")
			return
		}
	}

	report := h.recorder.EndSession(c.Param("id"), req.FinalScore)
	if report == nil {
		sessionNotFound(c)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) sessionValid(c *gin.Context) {
	valid, ok := h.recorder.IsSessionValid(c.Param("id"))
	if !ok {
		sessionNotFound(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": valid})
}

func (h *Handler) sessionFlags(c *gin.Context) {
	flags, ok := h.recorder.SessionFlags(c.Param("id"))
	if !ok {
		sessionNotFound(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"flags": flags, "count": len(flags)})
}

func (h *Handler) getReport(c *gin.Context) {
	if h.store == nil {
		storeUnavailable(c)
		return
	}
	report, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrReportNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "report_not_found",
				"message": "no report with that id",
			})
			return
		}
		logging.L(c.Request.Context()).Error("report lookup failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "could not load report",
		})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) listReports(c *gin.Context) {
	if h.store == nil {
		storeUnavailable(c)
		return
	}
	gameID := c.Param("gameId")
	if !validation.ValidGameID(gameID) {
		badRequest(c, "malformed game id")
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			badRequest(c, "limit must be between 1 and 500")
			return
		}
		limit = n
	}
	cursor, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		badRequest(c, "invalid cursor")
		return
	}

	// Fetch one extra row to learn whether another page exists.
	reports, err := h.store.ListByGame(c.Request.Context(), gameID, limit+1, cursor)
	if err != nil {
		logging.L(c.Request.Context()).Error("report list failed", "game", gameID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "could not list reports",
		})
		return
	}

	reports, next, hasMore := pagination.ComputePage(reports, limit, func(r *Report) (int64, string) {
		return r.EndTime, r.ID
	})
	if reports == nil {
		reports = []*Report{}
	}
	c.JSON(http.StatusOK, gin.H{
		"gameId":     gameID,
		"reports":    reports,
		"nextCursor": next,
		"hasMore":    hasMore,
	})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "bad_request",
		"message": msg,
	})
}

func sessionNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"error":   "session_not_found",
		"message": "session does not exist or already ended",
	})
}

func storeUnavailable(c *gin.Context) {
	c.JSON(http.StatusServiceUnavailable, gin.H{
		"error":   "store_unavailable",
		"message": "report persistence is not configured",
	})
}
