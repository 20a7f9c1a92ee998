package transport

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	gocmd "github.com/goliatone/go-command"
	creditscommand "github.com/goliatone/go-entry-credits/command"
	"github.com/goliatone/go-entry-credits/core"
	creditsquery "github.com/goliatone/go-entry-credits/query"
	goerrors "github.com/goliatone/go-errors"
)

type reviewRequest struct {
	Actor string `json:"actor"`
	Notes string `json:"notes"`
}

// statusFilter reads ?status=. Missing means NEEDS_REVIEW, "all" means no filter.
func statusFilter(raw string) core.PendingOrderStatus {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return core.PendingOrderStatusNeedsReview
	case strings.EqualFold(raw, "all"):
		return ""
	default:
		return core.PendingOrderStatus(strings.ToUpper(raw))
	}
}

func (s *Server) listPendingOrders(c *gin.Context) {
	msg := creditsquery.ListPendingOrdersMessage{Status: statusFilter(c.Query("status"))}
	if err := msg.Validate(); err != nil {
		writeError(c, err)
		return
	}
	orders, err := s.facade.Queries().ListPendingOrders.Query(c.Request.Context(), msg)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pendingOrders": newPendingOrderViews(orders)})
}

func (s *Server) getPendingOrder(c *gin.Context) {
	msg := creditsquery.GetPendingOrderMessage{PendingOrderID: c.Param("id")}
	if err := msg.Validate(); err != nil {
		writeError(c, err)
		return
	}
	order, err := s.facade.Queries().GetPendingOrder.Query(c.Request.Context(), msg)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newPendingOrderView(order))
}

func (s *Server) resolvePendingOrder(c *gin.Context) {
	review, ok := s.bindReview(c)
	if !ok {
		return
	}
	msg := creditscommand.ResolvePendingOrderMessage{ReviewMessage: review}
	if err := msg.Validate(); err != nil {
		writeError(c, err)
		return
	}
	collector := gocmd.NewResult[core.PendingOrder]()
	err := s.facade.Commands().ResolvePendingOrder.Execute(gocmd.ContextWithResult(c.Request.Context(), collector), msg)
	writeReviewResult(c, err, collector.Load)
}

func (s *Server) cancelPendingOrder(c *gin.Context) {
	review, ok := s.bindReview(c)
	if !ok {
		return
	}
	msg := creditscommand.CancelPendingOrderMessage{ReviewMessage: review}
	if err := msg.Validate(); err != nil {
		writeError(c, err)
		return
	}
	collector := gocmd.NewResult[core.PendingOrder]()
	err := s.facade.Commands().CancelPendingOrder.Execute(gocmd.ContextWithResult(c.Request.Context(), collector), msg)
	writeReviewResult(c, err, collector.Load)
}

func (s *Server) bindReview(c *gin.Context) (creditscommand.ReviewMessage, bool) {
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, badRequest("transport: review body must be JSON with an actor", err))
		return creditscommand.ReviewMessage{}, false
	}
	return creditscommand.ReviewMessage{
		PendingOrderID: c.Param("id"),
		Actor:          req.Actor,
		Notes:          req.Notes,
	}, true
}

func writeReviewResult(c *gin.Context, err error, load func() (core.PendingOrder, bool)) {
	if err != nil {
		writeError(c, err)
		return
	}
	order, ok := load()
	if !ok {
		writeError(c, transportError("transport: review produced no result", goerrors.CategoryInternal, http.StatusInternalServerError, nil))
		return
	}
	c.JSON(http.StatusOK, newPendingOrderView(order))
}

func (s *Server) entrantCredits(c *gin.Context) {
	msg := creditsquery.CreditsByEntrantMessage{EntrantID: c.Param("id")}
	if err := msg.Validate(); err != nil {
		writeError(c, err)
		return
	}
	credits, err := s.facade.Queries().CreditsByEntrant.Query(c.Request.Context(), msg)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newEntrantCreditsView(strings.TrimSpace(msg.EntrantID), credits))
}
