package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"lifecycle-service/internal/apperr"
	"lifecycle-service/internal/discount"
	"lifecycle-service/internal/entity"
	"lifecycle-service/internal/lifecycle"
)

type CreateOrderRequest struct {
	PaymentMethod entity.PaymentMethod `json:"payment_method"`
	Items         []entity.OrderItem   `json:"order_items"`
	VoucherCode   string               `json:"voucher_code,omitempty"`
}

func (r CreateOrderRequest) validate(op string) error {
	if r.PaymentMethod != entity.PaymentCOD && r.PaymentMethod != entity.PaymentBanking {
		return apperr.New(apperr.KindValidationFailed, op, "payment method must be COD or BANKING")
	}
	if len(r.Items) == 0 {
		return apperr.New(apperr.KindValidationFailed, op, "an order needs at least one item")
	}
	for _, item := range r.Items {
		if strings.TrimSpace(item.ProductID) == "" || item.Quantity <= 0 || item.UnitPrice.IsNegative() {
			return apperr.New(apperr.KindValidationFailed, op, "invalid item "+item.ProductID)
		}
	}
	return nil
}

// CreateOrder creates a new order
func (s *LifecycleService) CreateOrder(ctx context.Context, p entity.Principal, req CreateOrderRequest) (entity.Order, error) {
	const op = "CreateOrder"
	if err := authenticated(op, p); err != nil {
		return entity.Order{}, err
	}
	if err := req.validate(op); err != nil {
		return entity.Order{}, err
	}

	now := s.clock()
	total := entity.ItemsTotal(req.Items)
	o := entity.Order{
		ID:             uuid.NewString(),
		UserID:         p.UserID,
		Status:         entity.OrderPending,
		PaymentMethod:  req.PaymentMethod,
		PaymentStatus:  entity.PaymentUnpaid,
		TotalAmount:    total,
		DiscountAmount: decimal.Zero,
		FinalAmount:    total,
		OrderItems:     req.Items,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	release, err := s.redeem(ctx, op, req.VoucherCode, total, func(code string, eval discount.Evaluation) {
		o.VoucherCode = code
		o.DiscountAmount = eval.DiscountAmount
		o.FinalAmount = eval.FinalAmount
	})
	if err != nil {
		return entity.Order{}, err
	}

	if err := s.orders.CreateOrder(ctx, o); err != nil {
		logger.Error().Err(err).Str("user_id", p.UserID).Msg("Error creating order")
		release()
		return entity.Order{}, err
	}
	logger.Info().Str("order_id", o.ID).Str("user_id", o.UserID).Str("final_amount", o.FinalAmount.String()).Msg("Order created")
	s.publishOrder(ctx, o)
	return o, nil
}

func (s *LifecycleService) GetOrder(ctx context.Context, p entity.Principal, id string) (entity.Order, error) {
	o, err := s.orders.GetOrder(ctx, id)
	if err != nil {
		return entity.Order{}, err
	}
	if err := visible("GetOrder", p, o.UserID); err != nil {
		return entity.Order{}, err
	}
	return o, nil
}

// ListOrders returns the caller's orders, or every order for an admin.
func (s *LifecycleService) ListOrders(ctx context.Context, p entity.Principal, page entity.PageRequest) (entity.Page[entity.Order], error) {
	if err := authenticated("ListOrders", p); err != nil {
		return entity.Page[entity.Order]{}, err
	}
	return s.orders.ListOrders(ctx, scope(p), page)
}

func (s *LifecycleService) RequestCancelOrder(ctx context.Context, p entity.Principal, id, reason string) (entity.Order, error) {
	return s.mutateOrder(ctx, p, "RequestCancelOrder", id, lifecycle.OrderCommand{Action: lifecycle.OrderRequestCancel, Reason: reason})
}

func (s *LifecycleService) ReviewCancelOrder(ctx context.Context, p entity.Principal, id string, approve bool, reason string) (entity.Order, error) {
	cmd := lifecycle.OrderCommand{Action: lifecycle.OrderRejectCancel, Reason: reason}
	if approve {
		cmd = lifecycle.OrderCommand{Action: lifecycle.OrderApproveCancel}
	}
	return s.mutateOrder(ctx, p, "ReviewCancelOrder", id, cmd)
}

func (s *LifecycleService) SetOrderStatus(ctx context.Context, p entity.Principal, id string, status entity.OrderStatus) (entity.Order, error) {
	action, err := lifecycle.OrderActionForStatus(status)
	if err != nil {
		return entity.Order{}, err
	}
	return s.mutateOrder(ctx, p, "SetOrderStatus", id, lifecycle.OrderCommand{Action: action})
}

func (s *LifecycleService) CancelOrder(ctx context.Context, p entity.Principal, id, reason string) (entity.Order, error) {
	return s.mutateOrder(ctx, p, "CancelOrder", id, lifecycle.OrderCommand{Action: lifecycle.OrderCancel, Reason: reason})
}

// mutateOrder loads the order, applies cmd through the transition table and
// writes the result if nobody else committed in between.
func (s *LifecycleService) mutateOrder(ctx context.Context, p entity.Principal, op, id string, cmd lifecycle.OrderCommand) (entity.Order, error) {
	o, err := s.orders.GetOrder(ctx, id)
	if err != nil {
		return entity.Order{}, err
	}
	if err := authorize(op, p, lifecycle.OrderActor(cmd.Action), o.UserID); err != nil {
		return entity.Order{}, err
	}
	next, err := lifecycle.ApplyOrder(o, cmd)
	if err != nil {
		return entity.Order{}, err
	}
	next.Version = o.Version + 1
	next.UpdatedAt = s.clock()

	if err := s.orders.UpdateOrder(ctx, next, o.Version); err != nil {
		logger.Error().Err(err).Str("order_id", id).Str("action", string(cmd.Action)).Msg("Error updating order")
		return entity.Order{}, err
	}
	logger.Info().Str("order_id", id).Str("action", string(cmd.Action)).Str("status", string(next.Status)).
		Int64("version", next.Version).Msg("Order updated")
	s.publishOrder(ctx, next)
	return next, nil
}
