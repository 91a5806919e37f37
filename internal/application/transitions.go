package application

import "certification-workers/internal/models"

// transitions lists the statuses reachable from each status. Terminal
// statuses have no entry.
var transitions = map[models.ApplicationStatus][]models.ApplicationStatus{
	models.StatusPendingDeskReview: {
		models.StatusForwardedToRegistrar,
		models.StatusClarificationRequested,
		models.StatusSLABreach,
		models.StatusRejected,
	},
	models.StatusForwardedToRegistrar: {
		models.StatusClarificationRequested,
		models.StatusPendingPayment,
		models.StatusSLABreach,
		models.StatusApproved,
		models.StatusRejected,
	},
	models.StatusClarificationRequested: {
		models.StatusPendingDeskReview,
		models.StatusForwardedToRegistrar,
		models.StatusApproved,
		models.StatusRejected,
	},
	models.StatusPendingPayment: {
		models.StatusForwardedToRegistrar,
		models.StatusApproved,
		models.StatusRejected,
	},
	models.StatusSLABreach: {
		models.StatusForwardedToRegistrar,
		models.StatusClarificationRequested,
		models.StatusPendingPayment,
		models.StatusApproved,
		models.StatusRejected,
	},
}

// CanTransition reports whether an application may move from one status to
// another.
func CanTransition(from, to models.ApplicationStatus) bool {
	if from.IsTerminal() {
		return false
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
