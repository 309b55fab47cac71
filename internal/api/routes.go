package api

import (
	"time"

	"github.com/labstack/echo/v4"

	"lifecycle-service/internal/auth"
)

// RegisterRoutes mounts the lifecycle surface on e. keys may be nil, in
// which case Idempotent-Key headers are ignored.
func RegisterRoutes(e *echo.Echo, h *Handler, secret []byte, keys KeyStore) {
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]interface{}{
			"status":  "ok",
			"service": "lifecycle-service",
			"time":    time.Now().Format(time.RFC3339),
		})
	})

	idem := func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	if keys != nil {
		idem = Idempotent(keys)
	}
	admin := auth.RequireAdmin

	g := e.Group("", auth.Middleware(secret))

	g.GET("/orders", h.ListOrders)
	g.POST("/orders", h.CreateOrder, idem)
	g.GET("/orders/:id", h.GetOrder)
	g.POST("/orders/:id/cancel-request", h.RequestCancelOrder, idem)
	g.POST("/orders/:id/cancel-review", h.ReviewCancelOrder, admin, idem)
	g.PUT("/orders/:id/status", h.SetOrderStatus, admin, idem)
	g.POST("/orders/:id/cancel", h.CancelOrder, admin, idem)

	g.GET("/appointments", h.ListAppointments)
	g.POST("/appointments", h.CreateAppointment, idem)
	g.GET("/appointments/:id", h.GetAppointment)
	g.PUT("/appointments/:id/employee", h.AssignEmployee, admin, idem)
	g.PUT("/appointments/:id/status", h.SetAppointmentStatus, admin, idem)
	g.POST("/appointments/:id/cancel-request", h.RequestCancelAppointment, idem)
	g.POST("/appointments/:id/cancel-review", h.ReviewCancelAppointment, admin, idem)
	g.POST("/appointments/:id/cancel", h.CancelAppointment, admin, idem)

	g.POST("/vouchers/preview", h.PreviewVoucher)
}
