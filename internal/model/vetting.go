package model

import "time"

// DecisionAction is the outcome recorded on a vetting decision.
type DecisionAction string

const (
	DecisionApprove     DecisionAction = "approve"
	DecisionDecline     DecisionAction = "decline"
	DecisionRequestInfo DecisionAction = "request_info"
)

// DecisionFor maps a vetting status to the decision it records.  Statuses
// that are not decisions (pending, in_progress) return false.
func DecisionFor(s VettingStatus) (DecisionAction, bool) {
	switch s {
	case VettingVerified, VettingVetted:
		return DecisionApprove, true
	case VettingRejected:
		return DecisionDecline, true
	case VettingNeedsInfo:
		return DecisionRequestInfo, true
	}
	return "", false
}

// VettingDecision is append-only; rows are never updated.
type VettingDecision struct {
	ID                uint64         `json:"id"`
	UserID            string         `json:"user_id"`
	StaffID           string         `json:"staff_id"`
	StaffName         string         `json:"staff_name"`
	Action            DecisionAction `json:"action"`
	Notes             *string        `json:"notes"`
	RequestedInfoText *string        `json:"requested_info_text"`
	CreatedAt         time.Time      `json:"created_at"`
}
