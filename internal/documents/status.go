package documents

import (
	"errors"
	"fmt"
)

// ErrIllegalTransition marks any status change the state machines reject.
var ErrIllegalTransition = errors.New("invalid status transition")

// TransitionCheck is the outcome of validating a single status change.
type TransitionCheck struct {
	Valid  bool
	Reason string
}

// quotationTransitions is the legal-transition table for quotations. A status
// missing from a set cannot be reached from that row; converted has no row
// entries and is terminal.
var quotationTransitions = map[QuotationStatus][]QuotationStatus{
	QuotationDraft:       {QuotationGenerated},
	QuotationGenerated:   {QuotationUnderReview, QuotationExpired},
	QuotationUnderReview: {QuotationApproved, QuotationRejected, QuotationExpired},
	QuotationApproved:    {QuotationConverted, QuotationExpired},
	QuotationRejected:    {QuotationGenerated},
	QuotationExpired:     {QuotationGenerated},
	QuotationConverted:   {},
}

// orderStages orders the forward progression of an order. Cancelled sits
// outside the progression and is reachable from any non-terminal state.
var orderStages = []OrderStatus{
	OrderPending, OrderConfirmed, OrderInProgress, OrderReady, OrderShipped, OrderDelivered,
}

// ValidQuotationStatus reports whether s is a known quotation status.
func ValidQuotationStatus(s QuotationStatus) bool {
	_, ok := quotationTransitions[s]
	return ok
}

// ValidOrderStatus reports whether s is a known order status.
func ValidOrderStatus(s OrderStatus) bool {
	if s == OrderCancelled {
		return true
	}
	return orderStageIndex(s) >= 0
}

// ValidateQuotationTransition checks a quotation status change against the
// transition table. The three failure modes carry distinct reasons so callers
// can surface precise feedback.
func ValidateQuotationTransition(from, to QuotationStatus) TransitionCheck {
	if !ValidQuotationStatus(from) {
		return TransitionCheck{Reason: fmt.Sprintf("unknown status %q", from)}
	}
	if !ValidQuotationStatus(to) {
		return TransitionCheck{Reason: fmt.Sprintf("unknown status %q", to)}
	}
	if from == to {
		return TransitionCheck{Reason: fmt.Sprintf("quotation is already %s", from)}
	}
	allowed := quotationTransitions[from]
	if len(allowed) == 0 {
		return TransitionCheck{Reason: fmt.Sprintf("cannot change status of %s quotations", from)}
	}
	for _, s := range allowed {
		if s == to {
			return TransitionCheck{Valid: true}
		}
	}
	return TransitionCheck{Reason: fmt.Sprintf("cannot transition quotation from %s to %s", from, to)}
}

// IsQuotationTerminal reports whether no transition leaves the given status.
func IsQuotationTerminal(s QuotationStatus) bool {
	return ValidQuotationStatus(s) && len(quotationTransitions[s]) == 0
}

// OrderTransitionCheck is the outcome of validating an order status change.
// Warnings are advisory and never block the transition.
type OrderTransitionCheck struct {
	Valid    bool
	Reason   string
	Warnings []string
}

// ValidateOrderTransition checks an order status change. Unlike the quotation
// table, orders permit any forward movement; skipping intermediate stages is
// reported as a warning. Delivered and cancelled are terminal.
func ValidateOrderTransition(from, to OrderStatus) OrderTransitionCheck {
	if !ValidOrderStatus(from) {
		return OrderTransitionCheck{Reason: fmt.Sprintf("unknown status %q", from)}
	}
	if !ValidOrderStatus(to) {
		return OrderTransitionCheck{Reason: fmt.Sprintf("unknown status %q", to)}
	}
	if from == OrderDelivered || from == OrderCancelled {
		return OrderTransitionCheck{Reason: fmt.Sprintf("cannot change status of %s orders", from)}
	}
	if from == to {
		return OrderTransitionCheck{Reason: fmt.Sprintf("order is already %s", from)}
	}
	if to == OrderCancelled {
		return OrderTransitionCheck{Valid: true}
	}
	fromIdx := orderStageIndex(from)
	toIdx := orderStageIndex(to)
	if toIdx < fromIdx {
		return OrderTransitionCheck{Reason: fmt.Sprintf("cannot move order backwards from %s to %s", from, to)}
	}
	check := OrderTransitionCheck{Valid: true}
	if toIdx > fromIdx+1 {
		for _, skipped := range orderStages[fromIdx+1 : toIdx] {
			check.Warnings = append(check.Warnings, fmt.Sprintf("skipping stage %s", skipped))
		}
	}
	return check
}

// IsOrderTerminal reports whether no transition leaves the given status.
func IsOrderTerminal(s OrderStatus) bool {
	return s == OrderDelivered || s == OrderCancelled
}

func orderStageIndex(s OrderStatus) int {
	for i, stage := range orderStages {
		if stage == s {
			return i
		}
	}
	return -1
}
