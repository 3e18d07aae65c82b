package model

// ComputeStatus derives a checklist set's processing status from its documents.
// The predicates are evaluated in order and the first match wins.
func ComputeStatus(statuses []DocumentStatus) DocumentStatus {
	if len(statuses) == 0 {
		return DocumentStatusPending
	}
	if anyStatus(statuses, DocumentStatusProcessing) {
		return DocumentStatusProcessing
	}
	if anyStatus(statuses, DocumentStatusDetecting) {
		return DocumentStatusDetecting
	}
	if allStatus(statuses, DocumentStatusCompleted) {
		return DocumentStatusCompleted
	}
	if anyStatus(statuses, DocumentStatusFailed) {
		return DocumentStatusFailed
	}
	return DocumentStatusPending
}

func anyStatus(statuses []DocumentStatus, want DocumentStatus) bool {
	for _, s := range statuses {
		if s == want {
			return true
		}
	}
	return false
}

func allStatus(statuses []DocumentStatus, want DocumentStatus) bool {
	for _, s := range statuses {
		if s != want {
			return false
		}
	}
	return true
}
