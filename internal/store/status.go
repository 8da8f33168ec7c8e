package store

import (
	"fmt"
	"net/http"
	"rallysphere/internal/models"
)

var transitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderPending:    {models.OrderProcessing, models.OrderCancelled, models.OrderRefunded},
	models.OrderProcessing: {models.OrderShipped, models.OrderCancelled, models.OrderRefunded},
	models.OrderShipped:    {models.OrderDelivered, models.OrderPickedUp, models.OrderCancelled, models.OrderRefunded},
}

// TransitionError rejects a status change the order lifecycle does not allow.
type TransitionError struct {
	From models.OrderStatus
	To   models.OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order cannot move from %s to %s", e.From, e.To)
}

func (e *TransitionError) HTTPStatus() int    { return http.StatusConflict }
func (e *TransitionError) MessageKey() string { return "alert.invalid_transition" }

// Known reports whether s is one of the order statuses.
func Known(s models.OrderStatus) bool {
	switch s {
	case models.OrderPending, models.OrderProcessing, models.OrderShipped, models.OrderDelivered,
		models.OrderPickedUp, models.OrderCancelled, models.OrderRefunded:
		return true
	}
	return false
}

// Terminal statuses have no way out.
func Terminal(s models.OrderStatus) bool {
	_, ok := transitions[s]
	return !ok
}

// CheckTransition returns nil when from → to is allowed.
func CheckTransition(from, to models.OrderStatus) error {
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	return &TransitionError{From: from, To: to}
}

// releasesStock reports whether entering s hands the ordered units back.
func releasesStock(s models.OrderStatus) bool {
	return s == models.OrderCancelled || s == models.OrderRefunded
}
