// Package policy holds the ticket authorization rules. Every function is pure:
// it looks only at the actor, the ticket owner and the requested change.
package policy

import (
	"github.com/spec-kit/helpdesk/internal/domain"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// Reason explains a denied decision.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonNotOwner         Reason = "not_owner"
	ReasonAdminOnly        Reason = "admin_only"
	ReasonStatusRestricted Reason = "status_restricted"
	ReasonAlreadyClosed    Reason = "already_closed"
)

// Decision is the outcome of a policy check.
type Decision struct {
	Allowed bool
	Reason  Reason
}

var allow = Decision{Allowed: true}

func deny(reason Reason) Decision {
	return Decision{Reason: reason}
}

// Err converts a denial into the matching domain error. ticketID is only used
// for error details.
func (d Decision) Err(ticketID string) error {
	if d.Allowed {
		return nil
	}
	switch d.Reason {
	case ReasonAlreadyClosed:
		return apperrors.NewAlreadyClosed(ticketID)
	case ReasonAdminOnly:
		return apperrors.NewForbidden("admin role required")
	case ReasonStatusRestricted:
		return apperrors.NewForbidden("users can only close their own tickets")
	default:
		return apperrors.NewForbidden("not authorized to access this ticket")
	}
}

// CanView decides whether actor may read a ticket owned by ownerID.
func CanView(actor domain.Actor, ownerID string) Decision {
	if actor.IsAdmin() || actor.ID == ownerID {
		return allow
	}
	return deny(ReasonNotOwner)
}

// CanReply decides whether actor may append to the thread of a ticket owned by ownerID.
func CanReply(actor domain.Actor, ownerID string) Decision {
	return CanView(actor, ownerID)
}

// CanListAll decides whether actor may list every ticket in the system.
func CanListAll(actor domain.Actor) Decision {
	if actor.IsAdmin() {
		return allow
	}
	return deny(ReasonAdminOnly)
}

// CanChangeStatus decides whether actor may move a ticket owned by ownerID
// from current to requested. Admins may set any status. Owners may only
// close a ticket that is not closed yet.
func CanChangeStatus(actor domain.Actor, ownerID string, current, requested domain.TicketStatus) Decision {
	if actor.IsAdmin() {
		return allow
	}
	if actor.ID != ownerID {
		return deny(ReasonNotOwner)
	}
	if requested != domain.TicketStatusClosed {
		return deny(ReasonStatusRestricted)
	}
	if current == domain.TicketStatusClosed {
		return deny(ReasonAlreadyClosed)
	}
	return allow
}
