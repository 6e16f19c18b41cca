package domain

import (
	applicationdomain "github.com/smallbiznis/directory/internal/application/domain"
	listingdomain "github.com/smallbiznis/directory/internal/listing/domain"
)

// applicationTransitions maps (action, current status) to the next status.
var applicationTransitions = map[Action]map[applicationdomain.Status]applicationdomain.Status{
	ActionApprove: {
		applicationdomain.StatusPending:   applicationdomain.StatusApproved,
		applicationdomain.StatusSolicitud: applicationdomain.StatusApproved,
		applicationdomain.StatusNeedsInfo: applicationdomain.StatusApproved,
	},
	ActionReject: {
		applicationdomain.StatusPending:   applicationdomain.StatusRejected,
		applicationdomain.StatusSolicitud: applicationdomain.StatusRejected,
		applicationdomain.StatusNeedsInfo: applicationdomain.StatusRejected,
	},
	ActionRequestInfo: {
		applicationdomain.StatusPending:   applicationdomain.StatusNeedsInfo,
		applicationdomain.StatusSolicitud: applicationdomain.StatusNeedsInfo,
	},
}

// NextApplicationStatus returns the status an application moves to, or
// ErrInvalidTransition when the action is not allowed from its state.
func NextApplicationStatus(action Action, current applicationdomain.Status) (applicationdomain.Status, error) {
	table, ok := applicationTransitions[action]
	if !ok {
		return "", ErrInvalidAction
	}
	next, ok := table[current]
	if !ok {
		return "", ErrInvalidTransition
	}
	return next, nil
}

var listingStatusTransitions = map[Action]map[listingdomain.BusinessStatus]listingdomain.BusinessStatus{
	ActionPublish: {
		listingdomain.StatusDraft:     listingdomain.StatusPublished,
		listingdomain.StatusInReview:  listingdomain.StatusPublished,
		listingdomain.StatusSuspended: listingdomain.StatusPublished,
	},
	ActionReject: {
		listingdomain.StatusDraft:    listingdomain.StatusRejected,
		listingdomain.StatusInReview: listingdomain.StatusRejected,
	},
}

// NextListingStatus evaluates a listing command. Moderation actions move the
// business status; plan actions require a paid plan and keep the status
// unless extend revives a listing suspended for payment.
func NextListingStatus(action Action, l *listingdomain.Listing) (listingdomain.BusinessStatus, error) {
	switch action {
	case ActionPublish, ActionReject:
		next, ok := listingStatusTransitions[action][l.BusinessStatus]
		if !ok {
			return "", ErrInvalidTransition
		}
		return next, nil
	case ActionSuspend:
		if !l.Plan.IsPaid() || l.BusinessStatus == listingdomain.StatusRejected {
			return "", ErrInvalidTransition
		}
		return listingdomain.StatusSuspended, nil
	case ActionExtend:
		if !l.Plan.IsPaid() || l.BusinessStatus == listingdomain.StatusRejected {
			return "", ErrInvalidTransition
		}
		if l.BusinessStatus == listingdomain.StatusSuspended && l.DisabledReason == listingdomain.DisabledPaymentOverdue {
			return listingdomain.StatusPublished, nil
		}
		return l.BusinessStatus, nil
	case ActionRemind:
		if !l.Plan.IsPaid() {
			return "", ErrInvalidTransition
		}
		return l.BusinessStatus, nil
	default:
		return "", ErrInvalidAction
	}
}
