package match

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/ksred/fexp-api/internal/auth"
	"github.com/ksred/fexp-api/internal/types"
	"github.com/ksred/fexp-api/pkg/apperr"
	"github.com/ksred/fexp-api/pkg/response"
)

// GinHandlers contains HTTP handlers for match endpoints
type GinHandlers struct {
	coordinator *Coordinator
	query       *QueryService
}

// NewGinHandlers creates a new set of HTTP handlers for match endpoints
func NewGinHandlers(coordinator *Coordinator, query *QueryService) *GinHandlers {
	return &GinHandlers{
		coordinator: coordinator,
		query:       query,
	}
}

// ProposeMatchHandler handles POST requests to propose a match
// Request body: initiator_listing_uuid, matched_listing_uuid. Idempotency-Key header is optional.
func (h *GinHandlers) ProposeMatchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := auth.IdentityFrom(c)
		if !ok {
			response.Unauthorized(c, "Missing authentication claims")
			return
		}

		var in ProposeInput
		if err := c.ShouldBindJSON(&in); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}
		in.IdempotencyKey = c.GetHeader("Idempotency-Key")

		m, err := h.coordinator.Propose(c.Request.Context(), caller, in)
		response.Handle(c, m, err)
	}
}

type matchFunc func(ctx context.Context, caller types.Identity, matchUUID string) (*types.Match, error)

func (h *GinHandlers) matchHandler(apply matchFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := auth.IdentityFrom(c)
		if !ok {
			response.Unauthorized(c, "Missing authentication claims")
			return
		}

		m, err := apply(c.Request.Context(), caller, c.Param("uuid"))
		response.Handle(c, m, err)
	}
}

// AcceptMatchHandler handles PUT /matches/:uuid/accept
func (h *GinHandlers) AcceptMatchHandler() gin.HandlerFunc {
	return h.matchHandler(h.coordinator.Accept)
}

// RejectMatchHandler handles PUT /matches/:uuid/reject
func (h *GinHandlers) RejectMatchHandler() gin.HandlerFunc {
	return h.matchHandler(h.coordinator.Reject)
}

// CancelMatchHandler handles PUT /matches/:uuid/cancel
func (h *GinHandlers) CancelMatchHandler() gin.HandlerFunc {
	return h.matchHandler(h.coordinator.Cancel)
}

// ConfirmCompletionHandler handles PUT /matches/:uuid/confirm-completion
func (h *GinHandlers) ConfirmCompletionHandler() gin.HandlerFunc {
	return h.matchHandler(h.coordinator.ConfirmCompletion)
}

// ListMyMatchesHandler handles GET requests for the caller's matches
// Query parameters: page, limit, status
func (h *GinHandlers) ListMyMatchesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := auth.IdentityFrom(c)
		if !ok {
			response.Unauthorized(c, "Missing authentication claims")
			return
		}

		q, err := parseMatchQuery(c)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}

		page, err := h.query.ListMyMatches(c.Request.Context(), caller, q)
		response.Handle(c, page, err)
	}
}

// GetMatchHandler handles GET /matches/:uuid
func (h *GinHandlers) GetMatchHandler() gin.HandlerFunc {
	return h.matchHandler(h.query.GetMatch)
}

func parseMatchQuery(c *gin.Context) (MatchQuery, error) {
	q := MatchQuery{
		PageRequest: types.PageRequest{Page: 1, Limit: 10},
		Status:      c.Query("status"),
	}

	var issues []apperr.FieldIssue
	for _, p := range []struct {
		name string
		dst  *int
	}{{"page", &q.Page}, {"limit", &q.Limit}} {
		v := c.Query(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			issues = append(issues, apperr.FieldIssue{Field: p.name, Message: "must be an integer"})
			continue
		}
		*p.dst = n
	}
	if len(issues) > 0 {
		return q, apperr.Validation("Invalid pagination parameters", issues...)
	}
	return q, nil
}
