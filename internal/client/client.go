// Package client calls the lifecycle service over HTTP. Client satisfies
// workflow.API and workflow.Queries.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"lifecycle-service/internal/apperr"
	"lifecycle-service/internal/discount"
	"lifecycle-service/internal/entity"
	"lifecycle-service/internal/service"
)

const idempotencyHeader = "Idempotent-Key"

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// do sends one request. Mutations carry a fresh Idempotent-Key so a request
// replayed by a proxy is not applied twice.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet {
		req.Header.Set(idempotencyHeader, uuid.NewString())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var e errorBody
		_ = json.NewDecoder(resp.Body).Decode(&e)
		kind := apperr.Kind(e.Error)
		if kind == "" {
			kind = apperr.KindFromStatus(resp.StatusCode)
		}
		if e.Message == "" {
			e.Message = resp.Status
		}
		return apperr.New(kind, method+" "+path, e.Message)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func pageQuery(page entity.PageRequest) string {
	q := url.Values{}
	if page.Number > 0 {
		q.Set("page", strconv.Itoa(page.Number))
	}
	if page.Size > 0 {
		q.Set("size", strconv.Itoa(page.Size))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

func entityPath(collection, id, suffix string) string {
	return "/" + collection + "/" + url.PathEscape(id) + suffix
}

func (c *Client) CreateOrder(ctx context.Context, req service.CreateOrderRequest) (entity.Order, error) {
	var o entity.Order
	err := c.do(ctx, http.MethodPost, "/orders", req, &o)
	return o, err
}

func (c *Client) ListOrders(ctx context.Context, page entity.PageRequest) (entity.Page[entity.Order], error) {
	var p entity.Page[entity.Order]
	err := c.do(ctx, http.MethodGet, "/orders"+pageQuery(page), nil, &p)
	return p, err
}

func (c *Client) GetOrder(ctx context.Context, id string) (entity.Order, error) {
	var o entity.Order
	err := c.do(ctx, http.MethodGet, entityPath("orders", id, ""), nil, &o)
	return o, err
}

func (c *Client) RequestCancelOrder(ctx context.Context, id, reason string) (entity.Order, error) {
	var o entity.Order
	err := c.do(ctx, http.MethodPost, entityPath("orders", id, "/cancel-request"), map[string]string{"reason": reason}, &o)
	return o, err
}

func (c *Client) ReviewCancelOrder(ctx context.Context, id string, approve bool, reason string) (entity.Order, error) {
	var o entity.Order
	in := map[string]any{"approve": approve, "reason": reason}
	err := c.do(ctx, http.MethodPost, entityPath("orders", id, "/cancel-review"), in, &o)
	return o, err
}

func (c *Client) SetOrderStatus(ctx context.Context, id string, status entity.OrderStatus) (entity.Order, error) {
	var o entity.Order
	err := c.do(ctx, http.MethodPut, entityPath("orders", id, "/status"), map[string]any{"status": status}, &o)
	return o, err
}

func (c *Client) CancelOrder(ctx context.Context, id, reason string) (entity.Order, error) {
	var o entity.Order
	err := c.do(ctx, http.MethodPost, entityPath("orders", id, "/cancel"), map[string]string{"reason": reason}, &o)
	return o, err
}

func (c *Client) CreateAppointment(ctx context.Context, req service.CreateAppointmentRequest) (entity.Appointment, error) {
	var a entity.Appointment
	err := c.do(ctx, http.MethodPost, "/appointments", req, &a)
	return a, err
}

func (c *Client) ListAppointments(ctx context.Context, page entity.PageRequest) (entity.Page[entity.Appointment], error) {
	var p entity.Page[entity.Appointment]
	err := c.do(ctx, http.MethodGet, "/appointments"+pageQuery(page), nil, &p)
	return p, err
}

func (c *Client) GetAppointment(ctx context.Context, id string) (entity.Appointment, error) {
	var a entity.Appointment
	err := c.do(ctx, http.MethodGet, entityPath("appointments", id, ""), nil, &a)
	return a, err
}

func (c *Client) AssignEmployee(ctx context.Context, id, employeeID string) (entity.Appointment, error) {
	var a entity.Appointment
	in := map[string]string{"employee_id": employeeID}
	err := c.do(ctx, http.MethodPut, entityPath("appointments", id, "/employee"), in, &a)
	return a, err
}

func (c *Client) SetAppointmentStatus(ctx context.Context, id string, status entity.AppointmentStatus) (entity.Appointment, error) {
	var a entity.Appointment
	err := c.do(ctx, http.MethodPut, entityPath("appointments", id, "/status"), map[string]any{"status": status}, &a)
	return a, err
}

func (c *Client) RequestCancelAppointment(ctx context.Context, id, reason string) (entity.Appointment, error) {
	var a entity.Appointment
	err := c.do(ctx, http.MethodPost, entityPath("appointments", id, "/cancel-request"), map[string]string{"reason": reason}, &a)
	return a, err
}

func (c *Client) ReviewCancelAppointment(ctx context.Context, id string, approve bool, reason string) (entity.Appointment, error) {
	var a entity.Appointment
	in := map[string]any{"approve": approve, "reason": reason}
	err := c.do(ctx, http.MethodPost, entityPath("appointments", id, "/cancel-review"), in, &a)
	return a, err
}

func (c *Client) CancelAppointment(ctx context.Context, id, reason string) (entity.Appointment, error) {
	var a entity.Appointment
	err := c.do(ctx, http.MethodPost, entityPath("appointments", id, "/cancel"), map[string]string{"reason": reason}, &a)
	return a, err
}

func (c *Client) PreviewVoucher(ctx context.Context, code string, subtotal decimal.Decimal) (discount.Evaluation, error) {
	var eval discount.Evaluation
	in := map[string]any{"code": code, "subtotal": subtotal}
	err := c.do(ctx, http.MethodPost, "/vouchers/preview", in, &eval)
	return eval, err
}
