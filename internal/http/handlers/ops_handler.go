package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-token-alert-bot/internal/domain"
	"github.com/tbourn/go-token-alert-bot/internal/services"
	"github.com/tbourn/go-token-alert-bot/internal/utils"
)

// TokenService lists tracked tokens. *services.SubscriptionService
// satisfies it.
type TokenService interface {
	ListCoinsPage(ctx context.Context, page, pageSize int) ([]domain.Coin, int64, error)
	CoinsVersion(ctx context.Context) (int64, *time.Time, error)
}

// SubscriptionReader lists one user's alerts.
type SubscriptionReader interface {
	ListSubscriptions(ctx context.Context, tgID int64) ([]domain.Subscription, error)
}

// Refresher starts out-of-band refresh cycles. *scheduler.Scheduler
// satisfies it.
type Refresher interface {
	Trigger() bool
	Running() bool
}

// Handlers serves the ops API.
type Handlers struct {
	tokens  TokenService
	subs    SubscriptionReader
	refresh Refresher
}

// New binds the handlers to their services.
func New(tokens TokenService, subs SubscriptionReader, refresh Refresher) *Handlers {
	return &Handlers{tokens: tokens, subs: subs, refresh: refresh}
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Pagination describes the page returned by a list endpoint.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListTokensResponse is the body of GET /tokens.
type ListTokensResponse struct {
	Tokens     []domain.Coin `json:"tokens"`
	Pagination Pagination    `json:"pagination"`
}

// ListSubscriptionsResponse is the body of GET /users/:tg_id/subscriptions.
type ListSubscriptionsResponse struct {
	TgID          int64                 `json:"tg_id"`
	Subscriptions []domain.Subscription `json:"subscriptions"`
}

// RefreshResponse is the body of /refresh.
type RefreshResponse struct {
	Status string `json:"status"`
}

// ListTokens returns a page of tracked tokens with their last price.
// A weak ETag over (count, latest price write) lets pollers get 304s.
func (h *Handlers) ListTokens(c *gin.Context) {
	ctx := c.Request.Context()
	page, size := utils.Page(c.Query("page"), c.Query("page_size"), defaultPageSize, maxPageSize)

	if count, at, err := h.tokens.CoinsVersion(ctx); err == nil {
		var ts int64
		if at != nil {
			ts = at.UnixNano()
		}
		etag := fmt.Sprintf(`W/"tokens:%d:%d:%d:%d"`, count, ts, page, size)
		c.Header("ETag", etag)
		if c.GetHeader("If-None-Match") == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, total, err := h.tokens.ListCoinsPage(ctx, page, size)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	if items == nil {
		items = []domain.Coin{}
	}
	pages := utils.TotalPages(total, size)
	ok(c, http.StatusOK, ListTokensResponse{
		Tokens: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   size,
			Total:      total,
			TotalPages: pages,
			HasNext:    page < pages,
		},
	})
}

// ListSubscriptions returns the alerts of the Telegram user in the path.
func (h *Handlers) ListSubscriptions(c *gin.Context) {
	tgID, err := strconv.ParseInt(c.Param("tg_id"), 10, 64)
	if err != nil || tgID <= 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "tg_id must be a positive integer")
		return
	}

	subs, err := h.subs.ListSubscriptions(c.Request.Context(), tgID)
	switch {
	case errors.Is(err, services.ErrUserNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "user not found")
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	if subs == nil {
		subs = []domain.Subscription{}
	}
	ok(c, http.StatusOK, ListSubscriptionsResponse{TgID: tgID, Subscriptions: subs})
}

// TriggerRefresh starts a refresh cycle in the background. It answers 409
// when a cycle is in flight or the scheduler is shutting down.
func (h *Handlers) TriggerRefresh(c *gin.Context) {
	if !h.refresh.Trigger() {
		fail(c, http.StatusConflict, ErrCodeConflict, "a refresh cycle is already running or the scheduler is stopping")
		return
	}
	ok(c, http.StatusAccepted, RefreshResponse{Status: "started"})
}

// RefreshStatus reports whether a cycle is in flight.
func (h *Handlers) RefreshStatus(c *gin.Context) {
	status := "idle"
	if h.refresh.Running() {
		status = "running"
	}
	ok(c, http.StatusOK, RefreshResponse{Status: status})
}
