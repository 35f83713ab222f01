package enums

import "fmt"

// ChangeRequestKind enumerates the mutations a change request may propose.
type ChangeRequestKind string

const (
	ChangeRequestKindUpdateStatus ChangeRequestKind = "UPDATE_STATUS"
	ChangeRequestKindDelete       ChangeRequestKind = "DELETE"
)

var validChangeRequestKinds = []ChangeRequestKind{
	ChangeRequestKindUpdateStatus,
	ChangeRequestKindDelete,
}

func (k ChangeRequestKind) String() string {
	return string(k)
}

func (k ChangeRequestKind) IsValid() bool {
	for _, candidate := range validChangeRequestKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseChangeRequestKind converts raw input into a ChangeRequestKind.
func ParseChangeRequestKind(value string) (ChangeRequestKind, error) {
	for _, candidate := range validChangeRequestKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid change request kind %q", value)
}

// RequestStatus is the lifecycle state shared by change requests and payment confirmations.
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusApproved RequestStatus = "approved"
	RequestStatusRejected RequestStatus = "rejected"
)

var validRequestStatuses = []RequestStatus{
	RequestStatusPending,
	RequestStatusApproved,
	RequestStatusRejected,
}

func (s RequestStatus) String() string {
	return string(s)
}

func (s RequestStatus) IsValid() bool {
	for _, candidate := range validRequestStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the request has been resolved.
func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusApproved || s == RequestStatusRejected
}

func ParseRequestStatus(value string) (RequestStatus, error) {
	for _, candidate := range validRequestStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid request status %q", value)
}
