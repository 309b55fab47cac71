package lifecycle

import (
	"slices"
	"strings"

	"lifecycle-service/internal/apperr"
	"lifecycle-service/internal/entity"
)

type AppointmentAction string

const (
	AppointmentAssign        AppointmentAction = "ASSIGN_EMPLOYEE"
	AppointmentStart         AppointmentAction = "START"
	AppointmentComplete      AppointmentAction = "COMPLETE"
	AppointmentRequestCancel AppointmentAction = "REQUEST_CANCEL"
	AppointmentApproveCancel AppointmentAction = "APPROVE_CANCEL"
	AppointmentRejectCancel  AppointmentAction = "REJECT_CANCEL"
	AppointmentCancel        AppointmentAction = "CANCEL"
)

var AppointmentActions = []AppointmentAction{
	AppointmentAssign, AppointmentStart, AppointmentComplete,
	AppointmentRequestCancel, AppointmentApproveCancel, AppointmentRejectCancel, AppointmentCancel,
}

type AppointmentCommand struct {
	Action AppointmentAction
	// EmployeeID is required for AppointmentAssign.
	EmployeeID string
	// Reason is required for REQUEST_CANCEL, REJECT_CANCEL and CANCEL.
	Reason string
}

type appointmentRule struct {
	actor        Actor
	from         []entity.AppointmentStatus
	to           entity.AppointmentStatus
	reasonNeeded bool
	apply        func(a *entity.Appointment, cmd AppointmentCommand)
}

var appointmentTable = map[AppointmentAction]appointmentRule{
	AppointmentAssign: {
		actor: ActorAdmin,
		from:  []entity.AppointmentStatus{entity.AppointmentPending},
		to:    entity.AppointmentConfirmed,
		apply: func(a *entity.Appointment, cmd AppointmentCommand) {
			a.EmployeeID = strings.TrimSpace(cmd.EmployeeID)
		},
	},
	AppointmentStart: {
		actor: ActorAdmin,
		from:  []entity.AppointmentStatus{entity.AppointmentConfirmed},
		to:    entity.AppointmentInProcess,
	},
	AppointmentComplete: {
		actor: ActorAdmin,
		from:  []entity.AppointmentStatus{entity.AppointmentInProcess},
		to:    entity.AppointmentCompleted,
	},
	AppointmentRequestCancel: {
		actor:        ActorCustomer,
		from:         []entity.AppointmentStatus{entity.AppointmentPending, entity.AppointmentConfirmed},
		to:           entity.AppointmentCancelRequested,
		reasonNeeded: true,
		apply: func(a *entity.Appointment, cmd AppointmentCommand) {
			a.StatusBeforeCancel = a.Status
			a.CancellationReason = strings.TrimSpace(cmd.Reason)
		},
	},
	AppointmentApproveCancel: {
		actor: ActorAdmin,
		from:  []entity.AppointmentStatus{entity.AppointmentCancelRequested},
		to:    entity.AppointmentCancelled,
		apply: func(a *entity.Appointment, _ AppointmentCommand) {
			a.StatusBeforeCancel = ""
		},
	},
	AppointmentRejectCancel: {
		actor:        ActorAdmin,
		from:         []entity.AppointmentStatus{entity.AppointmentCancelRequested},
		reasonNeeded: true,
		apply: func(a *entity.Appointment, cmd AppointmentCommand) {
			a.Status = restoredStatus(*a)
			a.StatusBeforeCancel = ""
			a.CancellationReason = strings.TrimSpace(cmd.Reason)
		},
	},
	AppointmentCancel: {
		actor: ActorAdmin,
		from: []entity.AppointmentStatus{
			entity.AppointmentPending, entity.AppointmentConfirmed,
			entity.AppointmentInProcess, entity.AppointmentCancelRequested,
		},
		to:           entity.AppointmentCancelled,
		reasonNeeded: true,
		apply: func(a *entity.Appointment, cmd AppointmentCommand) {
			a.StatusBeforeCancel = ""
			a.CancellationReason = strings.TrimSpace(cmd.Reason)
		},
	},
}

// restoredStatus is the status a rejected cancellation request reverts to.
// Snapshots written before StatusBeforeCancel existed fall back on the
// employee assignment.
func restoredStatus(a entity.Appointment) entity.AppointmentStatus {
	switch a.StatusBeforeCancel {
	case entity.AppointmentPending, entity.AppointmentConfirmed:
		return a.StatusBeforeCancel
	}
	if a.EmployeeID != "" {
		return entity.AppointmentConfirmed
	}
	return entity.AppointmentPending
}

func ApplyAppointment(a entity.Appointment, cmd AppointmentCommand) (entity.Appointment, error) {
	op := "appointment " + string(cmd.Action)
	rule, ok := appointmentTable[cmd.Action]
	if !ok {
		return a, invalid(op, "unknown action")
	}
	if !slices.Contains(rule.from, a.Status) {
		return a, invalid(op, "not allowed from %s", a.Status)
	}
	if cmd.Action == AppointmentAssign && strings.TrimSpace(cmd.EmployeeID) == "" {
		return a, apperr.New(apperr.KindValidationFailed, op, "an employee is required")
	}
	if rule.reasonNeeded {
		if err := requireReason(op, cmd.Reason); err != nil {
			return a, err
		}
	}

	next := a
	if rule.apply != nil {
		rule.apply(&next, cmd)
	}
	if rule.to != "" {
		next.Status = rule.to
	}
	return next, nil
}

func AppointmentActor(action AppointmentAction) Actor {
	return appointmentTable[action].actor
}

// AvailableAppointmentActions lists the actions actor may legally take on a.
func AvailableAppointmentActions(a entity.Appointment, actor Actor) []AppointmentAction {
	var out []AppointmentAction
	for _, action := range AppointmentActions {
		rule := appointmentTable[action]
		if rule.actor == actor && slices.Contains(rule.from, a.Status) {
			out = append(out, action)
		}
	}
	return out
}

// AppointmentActionForStatus maps a requested target status to its action.
// CONFIRMED is only reachable through an employee assignment.
func AppointmentActionForStatus(status entity.AppointmentStatus) (AppointmentAction, error) {
	switch status {
	case entity.AppointmentConfirmed:
		return AppointmentAssign, nil
	case entity.AppointmentInProcess:
		return AppointmentStart, nil
	case entity.AppointmentCompleted:
		return AppointmentComplete, nil
	case entity.AppointmentCancelled:
		return AppointmentCancel, nil
	}
	if !status.Valid() {
		return "", apperr.New(apperr.KindValidationFailed, "appointment status", "unknown status "+string(status))
	}
	return "", invalid("appointment status", "%s cannot be set directly", status)
}
