package lifecycle

import (
	"slices"
	"strings"

	"lifecycle-service/internal/apperr"
	"lifecycle-service/internal/entity"
)

type OrderAction string

const (
	OrderPrepare       OrderAction = "PREPARE"
	OrderShip          OrderAction = "SHIP"
	OrderComplete      OrderAction = "COMPLETE"
	OrderRequestCancel OrderAction = "REQUEST_CANCEL"
	OrderApproveCancel OrderAction = "APPROVE_CANCEL"
	OrderRejectCancel  OrderAction = "REJECT_CANCEL"
	OrderCancel        OrderAction = "CANCEL"
)

// OrderActions lists every action in table order.
var OrderActions = []OrderAction{
	OrderPrepare, OrderShip, OrderComplete,
	OrderRequestCancel, OrderApproveCancel, OrderRejectCancel, OrderCancel,
}

type OrderCommand struct {
	Action OrderAction
	// Reason is required for OrderRejectCancel and OrderCancel and optional
	// for OrderRequestCancel.
	Reason string
}

type orderRule struct {
	actor Actor
	from  []entity.OrderStatus
	// to is the resulting status; empty keeps the current one.
	to entity.OrderStatus
	// guard returns a non-empty message when the order's side state forbids
	// the action.
	guard        func(o entity.Order) string
	reasonNeeded bool
	apply        func(o *entity.Order, cmd OrderCommand)
}

var nonTerminalOrder = []entity.OrderStatus{entity.OrderPending, entity.OrderPreparing, entity.OrderShipping}

func noPendingRequest(o entity.Order) string {
	if o.CancellationRequested {
		return "a cancellation request is pending review"
	}
	return ""
}

func pendingRequest(o entity.Order) string {
	if !o.CancellationRequested {
		return "no cancellation request is pending"
	}
	return ""
}

var orderTable = map[OrderAction]orderRule{
	OrderPrepare: {
		actor: ActorAdmin,
		from:  []entity.OrderStatus{entity.OrderPending},
		to:    entity.OrderPreparing,
		guard: noPendingRequest,
	},
	OrderShip: {
		actor: ActorAdmin,
		from:  []entity.OrderStatus{entity.OrderPreparing},
		to:    entity.OrderShipping,
		guard: noPendingRequest,
	},
	OrderComplete: {
		actor: ActorAdmin,
		from:  []entity.OrderStatus{entity.OrderShipping},
		to:    entity.OrderCompleted,
		guard: noPendingRequest,
	},
	OrderRequestCancel: {
		actor: ActorCustomer,
		from:  nonTerminalOrder,
		guard: noPendingRequest,
		apply: func(o *entity.Order, cmd OrderCommand) {
			o.CancellationRequested = true
			o.CancellationReason = strings.TrimSpace(cmd.Reason)
		},
	},
	OrderApproveCancel: {
		actor: ActorAdmin,
		from:  nonTerminalOrder,
		to:    entity.OrderCancelled,
		guard: pendingRequest,
		apply: func(o *entity.Order, _ OrderCommand) {
			o.CancellationRequested = false
		},
	},
	OrderRejectCancel: {
		actor:        ActorAdmin,
		from:         nonTerminalOrder,
		guard:        pendingRequest,
		reasonNeeded: true,
		apply: func(o *entity.Order, cmd OrderCommand) {
			o.CancellationRequested = false
			o.CancellationReason = strings.TrimSpace(cmd.Reason)
		},
	},
	OrderCancel: {
		actor:        ActorAdmin,
		from:         nonTerminalOrder,
		to:           entity.OrderCancelled,
		reasonNeeded: true,
		apply: func(o *entity.Order, cmd OrderCommand) {
			o.CancellationRequested = false
			o.CancellationReason = strings.TrimSpace(cmd.Reason)
		},
	},
}

// ApplyOrder runs cmd against o and returns the resulting snapshot.
func ApplyOrder(o entity.Order, cmd OrderCommand) (entity.Order, error) {
	op := "order " + string(cmd.Action)
	rule, ok := orderTable[cmd.Action]
	if !ok {
		return o, invalid(op, "unknown action")
	}
	if !slices.Contains(rule.from, o.Status) {
		return o, invalid(op, "not allowed from %s", o.Status)
	}
	if rule.guard != nil {
		if msg := rule.guard(o); msg != "" {
			return o, invalid(op, "%s", msg)
		}
	}
	if rule.reasonNeeded {
		if err := requireReason(op, cmd.Reason); err != nil {
			return o, err
		}
	}

	next := o.Clone()
	if rule.to != "" {
		next.Status = rule.to
	}
	if rule.apply != nil {
		rule.apply(&next, cmd)
	}
	return next, nil
}

// OrderActor returns the role allowed to perform action.
func OrderActor(action OrderAction) Actor {
	return orderTable[action].actor
}

// AvailableOrderActions lists the actions actor may legally take on o.
func AvailableOrderActions(o entity.Order, actor Actor) []OrderAction {
	var out []OrderAction
	for _, action := range OrderActions {
		rule := orderTable[action]
		if rule.actor != actor || !slices.Contains(rule.from, o.Status) {
			continue
		}
		if rule.guard != nil && rule.guard(o) != "" {
			continue
		}
		out = append(out, action)
	}
	return out
}

// OrderActionForStatus maps a requested target status to the table action
// that reaches it.
func OrderActionForStatus(status entity.OrderStatus) (OrderAction, error) {
	switch status {
	case entity.OrderPreparing:
		return OrderPrepare, nil
	case entity.OrderShipping:
		return OrderShip, nil
	case entity.OrderCompleted:
		return OrderComplete, nil
	case entity.OrderCancelled:
		return OrderCancel, nil
	}
	if !status.Valid() {
		return "", apperr.New(apperr.KindValidationFailed, "order status", "unknown status "+string(status))
	}
	return "", invalid("order status", "%s cannot be set directly", status)
}
