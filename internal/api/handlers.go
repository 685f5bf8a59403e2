package api

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"trading-sync/internal/logging"
	"trading-sync/internal/orders"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
)

// handleOrderAdd ingests one order or an array of orders. Items that fail
// validation are skipped individually so a bad record never blocks the rest
// of a batch.
func (s *Server) handleOrderAdd(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "failed to read request body")
		return
	}

	var batch []orders.WireOrder
	if err := json.Unmarshal(body, &batch); err != nil {
		var single orders.WireOrder
		if err := json.Unmarshal(body, &single); err != nil {
			errorResponse(c, http.StatusBadRequest, "invalid JSON payload")
			return
		}
		batch = []orders.WireOrder{single}
	}

	if len(batch) == 0 {
		errorResponse(c, http.StatusBadRequest, "no orders provided")
		return
	}

	ctx := c.Request.Context()
	accepted := make([]string, 0, len(batch))
	skipped := 0

	for _, w := range batch {
		order, err := s.buildOrder(w)
		if err != nil {
			logging.OrderContext(w.OrderID, w.Symbol, w.Direction, w.Status).
				Warn("Skipping invalid order", "error", err)
			skipped++
			continue
		}
		if err := s.repo.SaveOrder(ctx, order); err != nil {
			skipped++
			continue
		}
		if err := s.repo.SaveEvent(ctx, orders.NewOrderEvent(order)); err != nil {
			// The order itself is saved; a lost event row is only logged.
			log.Printf("Failed to record order event for %s: %v", order.OrderID, err)
		}
		s.eventBus.PublishOrderPlaced(order.OrderID, order.Symbol, string(order.Direction), string(order.Status), order.Price, order.Volume)
		accepted = append(accepted, order.OrderID)
	}

	logging.FromContext(ctx).Debug("Order intake processed", "accepted", len(accepted), "skipped", skipped)

	if len(accepted) == 0 {
		errorResponse(c, http.StatusBadRequest, "no valid orders in payload")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "success",
		"count":    len(accepted),
		"accepted": accepted,
		"skipped":  skipped,
	})
}

// buildOrder validates one inbound record and produces a ledger order.
// Placeholder IDs are replaced with a generated one. Records arriving
// without a create_time are stamped on arrival; the sync loops never see
// unstamped orders, so they stay strict.
func (s *Server) buildOrder(w orders.WireOrder) (*orders.Order, error) {
	if w.Symbol == "" {
		return nil, fmt.Errorf("order %s: missing symbol", w.OrderID)
	}
	if w.Price <= 0 {
		return nil, fmt.Errorf("order %s: invalid price %v", w.OrderID, w.Price)
	}
	if w.Volume <= 0 {
		return nil, fmt.Errorf("order %s: invalid volume %v", w.OrderID, w.Volume)
	}
	if w.CreateTime == "" {
		w.CreateTime = orders.FormatWireTime(time.Now())
	}

	order, err := orders.FromWire(w)
	if err != nil {
		return nil, err
	}
	if orders.IsPlaceholderID(order.OrderID) {
		fresh, err := orders.NewOrder(order.OrderID, order.Symbol, order.Direction, order.Price, order.Volume, order.Status)
		if err != nil {
			return nil, err
		}
		order.OrderID = fresh.OrderID
	}
	return order, nil
}

// handleGetOrders returns today's active orders in wire form.
func (s *Server) handleGetOrders(c *gin.Context) {
	active, err := s.repo.GetActiveOrders(c.Request.Context())
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to load orders")
		return
	}

	out := make([]orders.WireOrder, 0, len(active))
	for _, o := range active {
		out = append(out, orders.ToWire(o))
	}
	c.JSON(http.StatusOK, out)
}

// handleOrderHistory returns orders in a time range, defaulting to the last
// seven days when no bounds are given.
func (s *Server) handleOrderHistory(c *gin.Context) {
	start, ok := parseTimeParam(c, "start")
	if !ok {
		return
	}
	end, ok := parseTimeParam(c, "end")
	if !ok {
		return
	}

	history, err := s.repo.GetOrderHistory(c.Request.Context(), start, end)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to load order history")
		return
	}

	out := make([]orders.WireOrder, 0, len(history))
	for _, o := range history {
		out = append(out, orders.ToWire(o))
	}
	c.JSON(http.StatusOK, out)
}

// handleGetEvents returns the most recent order events.
func (s *Server) handleGetEvents(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			errorResponse(c, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	events, err := s.repo.GetEventHistory(c.Request.Context(), limit)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to load events")
		return
	}
	successResponse(c, events)
}

// parseTimeParam reads an optional timestamp query parameter. A zero time
// means the parameter was absent and the repository default applies.
func parseTimeParam(c *gin.Context, name string) (time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, true
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, true
	}
	t, err := orders.ParseWireTime(raw)
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid "+name+" timestamp")
		return time.Time{}, false
	}
	return t, true
}
