package payment

import (
	"fmt"
	"strings"
)

// AttemptStatus is the canonical lifecycle state of one payment attempt.
type AttemptStatus string

const (
	StatusStarted                 AttemptStatus = "started"
	StatusAuthenticationPending   AttemptStatus = "authentication_pending"
	StatusAuthenticationFailed    AttemptStatus = "authentication_failed"
	StatusAuthenticationSucceeded AttemptStatus = "authentication_successful"
	StatusAuthorizing             AttemptStatus = "authorizing"
	StatusAuthorized              AttemptStatus = "authorized"
	StatusAuthorizationFailed     AttemptStatus = "authorization_failed"
	StatusPending                 AttemptStatus = "pending"
	StatusCaptureInitiated        AttemptStatus = "capture_initiated"
	StatusCharged                 AttemptStatus = "charged"
	StatusPartialCharged          AttemptStatus = "partial_charged"
	StatusCaptureFailed           AttemptStatus = "capture_failed"
	StatusVoidInitiated           AttemptStatus = "void_initiated"
	StatusVoided                  AttemptStatus = "voided"
	StatusVoidFailed              AttemptStatus = "void_failed"
	StatusRouterDeclined          AttemptStatus = "router_declined"
	StatusUnresolved              AttemptStatus = "unresolved"
	StatusFailure                 AttemptStatus = "failure"
)

// statusRank orders statuses along the attempt lifecycle.
var statusRank = map[AttemptStatus]int{
	StatusStarted:                 0,
	StatusAuthenticationPending:   1,
	StatusAuthenticationSucceeded: 2,
	StatusAuthenticationFailed:    2,
	StatusAuthorizing:             3,
	StatusPending:                 3,
	StatusUnresolved:              3,
	StatusAuthorized:              4,
	StatusAuthorizationFailed:     4,
	StatusRouterDeclined:          4,
	StatusFailure:                 4,
	StatusCaptureInitiated:        5,
	StatusVoidInitiated:           5,
	StatusCharged:                 6,
	StatusPartialCharged:          6,
	StatusCaptureFailed:           6,
	StatusVoided:                  6,
	StatusVoidFailed:              6,
}

// Rank returns the lifecycle position of s; unknown statuses rank lowest.
func (s AttemptStatus) Rank() int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return -1
}

// IsTerminal reports whether no further transition happens within one
// dispatch cycle.
func (s AttemptStatus) IsTerminal() bool {
	switch s {
	case StatusCharged, StatusVoided, StatusFailure, StatusAuthorizationFailed,
		StatusAuthenticationFailed, StatusRouterDeclined, StatusCaptureFailed, StatusVoidFailed:
		return true
	}
	return false
}

// IsFailure reports whether s belongs to the failure class.
func (s AttemptStatus) IsFailure() bool {
	switch s {
	case StatusFailure, StatusAuthorizationFailed, StatusAuthenticationFailed,
		StatusRouterDeclined, StatusCaptureFailed, StatusVoidFailed:
		return true
	}
	return false
}

// CaptureMethod governs whether a follow-up capture settles the funds.
type CaptureMethod string

const (
	CaptureAutomatic           CaptureMethod = "automatic"
	CaptureManual              CaptureMethod = "manual"
	CaptureManualMultiple      CaptureMethod = "manual_multiple"
	CaptureSequentialAutomatic CaptureMethod = "sequential_automatic"
	CaptureScheduled           CaptureMethod = "scheduled"
)

// IsAutomatic reports whether funds settle without a merchant capture call.
func (c CaptureMethod) IsAutomatic() bool {
	return c == "" || c == CaptureAutomatic || c == CaptureSequentialAutomatic
}

// AuthenticationType selects between 3DS and frictionless authorization.
type AuthenticationType string

const (
	AuthThreeDS   AuthenticationType = "three_ds"
	AuthNoThreeDS AuthenticationType = "no_three_ds"
)

// GatewaySystem is the substrate used to reach a connector.
type GatewaySystem string

const (
	GatewayDirect  GatewaySystem = "direct"
	GatewayUnified GatewaySystem = "unified_connector_service"
)

func ParseGatewaySystem(s string) (GatewaySystem, error) {
	switch GatewaySystem(strings.TrimSpace(s)) {
	case GatewayDirect:
		return GatewayDirect, nil
	case GatewayUnified:
		return GatewayUnified, nil
	}
	return "", fmt.Errorf("unknown gateway system %q", s)
}

// FutureUsage signals whether the credential will be reused.
type FutureUsage string

const (
	FutureUsageOnSession  FutureUsage = "on_session"
	FutureUsageOffSession FutureUsage = "off_session"
)

// Currency is an ISO 4217 code.
type Currency string

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
	KES Currency = "KES"
	JPY Currency = "JPY"
)

// Exponent returns the number of minor-unit digits.
func (c Currency) Exponent() int32 {
	switch c {
	case JPY, "KRW", "VND", "CLP", "ISK", "UGX":
		return 0
	case "BHD", "KWD", "OMR", "JOD", "TND":
		return 3
	}
	return 2
}

func (c Currency) Valid() bool {
	if len(c) != 3 {
		return false
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
