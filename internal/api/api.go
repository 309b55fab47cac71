package api

import (
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"lifecycle-service/internal/apperr"
	"lifecycle-service/internal/auth"
	"lifecycle-service/internal/entity"
	"lifecycle-service/internal/service"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Str("component", "api").Logger()

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type ReasonRequest struct {
	Reason string `json:"reason"`
}

type ReviewRequest struct {
	Approve bool   `json:"approve"`
	Reason  string `json:"reason"`
}

type OrderStatusRequest struct {
	Status entity.OrderStatus `json:"status"`
}

type AppointmentStatusRequest struct {
	Status entity.AppointmentStatus `json:"status"`
}

type AssignRequest struct {
	EmployeeID string `json:"employee_id"`
}

type PreviewRequest struct {
	Code     string          `json:"code"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

type PageQuery struct {
	Page int `query:"page"`
	Size int `query:"size"`
}

func respondError(c echo.Context, err error) error {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Str("path", c.Path()).Msg("Request failed")
	}
	return c.JSON(status, ErrorResponse{Error: string(kind), Message: apperr.MessageOf(err)})
}

func badRequest(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   string(apperr.KindValidationFailed),
		Message: "Invalid request payload",
	})
}

type Handler struct {
	svc *service.LifecycleService
}

func NewHandler(svc *service.LifecycleService) *Handler {
	return &Handler{svc: svc}
}

// bound resolves the caller and binds the request into req when set. On
// failure it returns nil after writing the error response, along with the
// error the handler should return.
func (h *Handler) bound(c echo.Context, req any) (*service.Bound, error) {
	p, err := auth.PrincipalFrom(c)
	if err != nil {
		return nil, respondError(c, err)
	}
	if req != nil {
		if err := c.Bind(req); err != nil {
			return nil, badRequest(c)
		}
	}
	return h.svc.As(p), nil
}

// reply writes v, or the error response when err is set.
func reply[T any](c echo.Context, status int, v T, err error) error {
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(status, v)
}

func (h *Handler) CreateOrder(c echo.Context) error {
	var req service.CreateOrderRequest
	b, err := h.bound(c, &req)
	if b == nil {
		return err
	}
	o, err := b.CreateOrder(c.Request().Context(), req)
	return reply(c, http.StatusCreated, o, err)
}

func (h *Handler) ListOrders(c echo.Context) error {
	var q PageQuery
	b, err := h.bound(c, &q)
	if b == nil {
		return err
	}
	page, err := b.ListOrders(c.Request().Context(), entity.PageRequest{Number: q.Page, Size: q.Size})
	return reply(c, http.StatusOK, page, err)
}

func (h *Handler) GetOrder(c echo.Context) error {
	b, err := h.bound(c, nil)
	if b == nil {
		return err
	}
	o, err := b.GetOrder(c.Request().Context(), c.Param("id"))
	return reply(c, http.StatusOK, o, err)
}

func (h *Handler) RequestCancelOrder(c echo.Context) error {
	var req ReasonRequest
	b, err := h.bound(c, &req)
	if b == nil {
		return err
	}
	o, err := b.RequestCancelOrder(c.Request().Context(), c.Param("id"), req.Reason)
	return reply(c, http.StatusOK, o, err)
}

func (h *Handler) ReviewCancelOrder(c echo.Context) error {
	var req ReviewRequest
	b, err := h.bound(c, &req)
	if b == nil {
		return err
	}
	o, err := b.ReviewCancelOrder(c.Request().Context(), c.Param("id"), req.Approve, req.Reason)
	return reply(c, http.StatusOK, o, err)
}

func (h *Handler) SetOrderStatus(c echo.Context) error {
	var req OrderStatusRequest
	b, err := h.bound(c, &req)
	if b == nil {
		return err
	}
	o, err := b.SetOrderStatus(c.Request().Context(), c.Param("id"), req.Status)
	return reply(c, http.StatusOK, o, err)
}

func (h *Handler) CancelOrder(c echo.Context) error {
	var req ReasonRequest
	b, err := h.bound(c, &req)
	if b == nil {
		return err
	}
	o, err := b.CancelOrder(c.Request().Context(), c.Param("id"), req.Reason)
	return reply(c, http.StatusOK, o, err)
}

func (h *Handler) CreateAppointment(c echo.Context) error {
	var req service.CreateAppointmentRequest
	b, err := h.bound(c, &req)
	if b == nil {
		return err
	}
	a, err := b.CreateAppointment(c.Request().Context(), req)
	return reply(c, http.StatusCreated, a, err)
}

func (h *Handler) ListAppointments(c echo.Context) error {
	var q PageQuery
	b, err := h.bound(c, &q)
	if b == nil {
		return err
	}
	page, err := b.ListAppointments(c.Request().Context(), entity.PageRequest{Number: q.Page, Size: q.Size})
	return reply(c, http.StatusOK, page, err)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	b, err := h.bound(c, nil)
	if b == nil {
		return err
	}
	a, err := b.GetAppointment(c.Request().Context(), c.Param("id"))
	return reply(c, http.StatusOK, a, err)
}

func (h *Handler) AssignEmployee(c echo.Context) error {
	var req AssignRequest
	b, err := h.bound(c, &req)
	if b == nil {
		return err
	}
	a, err := b.AssignEmployee(c.Request().Context(), c.Param("id"), req.EmployeeID)
	return reply(c, http.StatusOK, a, err)
}

func (h *Handler) SetAppointmentStatus(c echo.Context) error {
	var req AppointmentStatusRequest
	b, err := h.bound(c, &req)
	if b == nil {
		return err
	}
	a, err := b.SetAppointmentStatus(c.Request().Context(), c.Param("id"), req.Status)
	return reply(c, http.StatusOK, a, err)
}

func (h *Handler) RequestCancelAppointment(c echo.Context) error {
	var req ReasonRequest
	b, err := h.bound(c, &req)
	if b == nil {
		return err
	}
	a, err := b.RequestCancelAppointment(c.Request().Context(), c.Param("id"), req.Reason)
	return reply(c, http.StatusOK, a, err)
}

func (h *Handler) ReviewCancelAppointment(c echo.Context) error {
	var req ReviewRequest
	b, err := h.bound(c, &req)
	if b == nil {
		return err
	}
	a, err := b.ReviewCancelAppointment(c.Request().Context(), c.Param("id"), req.Approve, req.Reason)
	return reply(c, http.StatusOK, a, err)
}

func (h *Handler) CancelAppointment(c echo.Context) error {
	var req ReasonRequest
	b, err := h.bound(c, &req)
	if b == nil {
		return err
	}
	a, err := b.CancelAppointment(c.Request().Context(), c.Param("id"), req.Reason)
	return reply(c, http.StatusOK, a, err)
}

func (h *Handler) PreviewVoucher(c echo.Context) error {
	var req PreviewRequest
	b, err := h.bound(c, &req)
	if b == nil {
		return err
	}
	eval, err := b.PreviewVoucher(c.Request().Context(), req.Code, req.Subtotal)
	return reply(c, http.StatusOK, eval, err)
}
