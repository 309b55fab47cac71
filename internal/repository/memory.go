package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"lifecycle-service/internal/apperr"
	"lifecycle-service/internal/entity"
)

// MemoryStore keeps orders, appointments and vouchers in process. It has
// the same semantics as the MySQL repositories, including the version
// check on update.
type MemoryStore struct {
	mu           sync.RWMutex
	orders       map[string]entity.Order
	appointments map[string]entity.Appointment
	vouchers     map[string]entity.Voucher
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:       make(map[string]entity.Order),
		appointments: make(map[string]entity.Appointment),
		vouchers:     make(map[string]entity.Voucher),
	}
}

func (m *MemoryStore) GetOrder(_ context.Context, id string) (entity.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return entity.Order{}, apperr.New(apperr.KindNotFound, "GetOrder", "not found")
	}
	return o.Clone(), nil
}

func (m *MemoryStore) CreateOrder(_ context.Context, o entity.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.orders[o.ID]; exists {
		return apperr.New(apperr.KindConflict, "CreateOrder", "duplicate id")
	}
	m.orders[o.ID] = o.Clone()
	return nil
}

func (m *MemoryStore) UpdateOrder(_ context.Context, o entity.Order, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	held, ok := m.orders[o.ID]
	if !ok || held.Version != expectedVersion {
		return apperr.New(apperr.KindConflict, "UpdateOrder", "modified concurrently, reload and retry")
	}
	m.orders[o.ID] = o.Clone()
	return nil
}

func (m *MemoryStore) ListOrders(_ context.Context, userID string, page entity.PageRequest) (entity.Page[entity.Order], error) {
	page = page.Normalize()
	m.mu.RLock()
	var all []entity.Order
	for _, o := range m.orders {
		if userID == "" || o.UserID == userID {
			all = append(all, o.Clone())
		}
	}
	m.mu.RUnlock()
	sort.Slice(all, func(i, j int) bool { return newerOrder(all[i], all[j]) })
	return entity.Page[entity.Order]{
		Number: page.Number,
		Size:   page.Size,
		Total:  len(all),
		Items:  window(all, page),
	}, nil
}

func (m *MemoryStore) GetAppointment(_ context.Context, id string) (entity.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.appointments[id]
	if !ok {
		return entity.Appointment{}, apperr.New(apperr.KindNotFound, "GetAppointment", "not found")
	}
	return a, nil
}

func (m *MemoryStore) CreateAppointment(_ context.Context, a entity.Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.appointments[a.ID]; exists {
		return apperr.New(apperr.KindConflict, "CreateAppointment", "duplicate id")
	}
	m.appointments[a.ID] = a
	return nil
}

func (m *MemoryStore) UpdateAppointment(_ context.Context, a entity.Appointment, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	held, ok := m.appointments[a.ID]
	if !ok || held.Version != expectedVersion {
		return apperr.New(apperr.KindConflict, "UpdateAppointment", "modified concurrently, reload and retry")
	}
	m.appointments[a.ID] = a
	return nil
}

func (m *MemoryStore) ListAppointments(_ context.Context, userID string, page entity.PageRequest) (entity.Page[entity.Appointment], error) {
	page = page.Normalize()
	m.mu.RLock()
	var all []entity.Appointment
	for _, a := range m.appointments {
		if userID == "" || a.UserID == userID {
			all = append(all, a)
		}
	}
	m.mu.RUnlock()
	sort.Slice(all, func(i, j int) bool { return laterAppointment(all[i], all[j]) })
	return entity.Page[entity.Appointment]{
		Number: page.Number,
		Size:   page.Size,
		Total:  len(all),
		Items:  window(all, page),
	}, nil
}

func (m *MemoryStore) EmployeeBookings(_ context.Context, employeeID string, from, to time.Time) ([]entity.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	probe := entity.Appointment{AppointmentDate: from, ExpectedEndTime: to}
	var out []entity.Appointment
	for _, a := range m.appointments {
		if a.EmployeeID != employeeID {
			continue
		}
		switch a.Status {
		case entity.AppointmentConfirmed, entity.AppointmentInProcess, entity.AppointmentCancelRequested:
			if a.Overlaps(probe) {
				out = append(out, a)
			}
		}
	}
	return out, nil
}

func (m *MemoryStore) GetVoucherByCode(_ context.Context, code string) (entity.Voucher, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vouchers[entity.NormalizeCode(code)]
	if !ok {
		return entity.Voucher{}, apperr.New(apperr.KindNotFound, "GetVoucherByCode", "not found")
	}
	return v, nil
}

func (m *MemoryStore) CreateVoucher(_ context.Context, v entity.Voucher) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v.Code = entity.NormalizeCode(v.Code)
	m.vouchers[v.Code] = v
	return nil
}

func (m *MemoryStore) ConsumeVoucher(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	code = entity.NormalizeCode(code)
	v, ok := m.vouchers[code]
	if !ok || v.Quantity <= 0 {
		return apperr.New(apperr.KindValidationFailed, "ConsumeVoucher", "Exhausted")
	}
	v.Quantity--
	m.vouchers[code] = v
	return nil
}

func (m *MemoryStore) ReleaseVoucher(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	code = entity.NormalizeCode(code)
	if v, ok := m.vouchers[code]; ok {
		v.Quantity++
		m.vouchers[code] = v
	}
	return nil
}

func window[T any](all []T, page entity.PageRequest) []T {
	if page.Offset() >= len(all) {
		return []T{}
	}
	return all[page.Offset():min(page.Offset()+page.Size, len(all))]
}
