package normalize

import (
	"strings"

	"payswitch/internal/domain/payment"
	"payswitch/internal/envelope"
)

var unifiedStatuses = map[string]payment.AttemptStatus{
	"STARTED":                   payment.StatusStarted,
	"AUTHENTICATION_PENDING":    payment.StatusAuthenticationPending,
	"AUTHENTICATION_FAILED":     payment.StatusAuthenticationFailed,
	"AUTHENTICATION_SUCCESSFUL": payment.StatusAuthenticationSucceeded,
	"AUTHORIZING":               payment.StatusAuthorizing,
	"AUTHORIZED":                payment.StatusAuthorized,
	"AUTHORIZATION_FAILED":      payment.StatusAuthorizationFailed,
	"CHARGED":                   payment.StatusCharged,
	"PARTIAL_CHARGED":           payment.StatusPartialCharged,
	"CAPTURE_INITIATED":         payment.StatusCaptureInitiated,
	"CAPTURE_FAILED":            payment.StatusCaptureFailed,
	"VOID_INITIATED":            payment.StatusVoidInitiated,
	"VOIDED":                    payment.StatusVoided,
	"VOID_FAILED":               payment.StatusVoidFailed,
	"PENDING":                   payment.StatusPending,
	"ROUTER_DECLINED":           payment.StatusRouterDeclined,
	"FAILURE":                   payment.StatusFailure,
}

// UnifiedStatus maps a unified-service payment status name. Unknown names
// are unresolved rather than guessed.
func UnifiedStatus(name string) payment.AttemptStatus {
	key := strings.ToUpper(strings.TrimSpace(name))
	key = strings.TrimPrefix(key, "ATTEMPT_STATUS_")
	if s, ok := unifiedStatuses[key]; ok {
		return s
	}
	return payment.StatusUnresolved
}

// UnifiedRefundStatus maps a unified-service refund status name.
func UnifiedRefundStatus(name string) envelope.RefundStatus {
	switch strings.TrimPrefix(strings.ToUpper(name), "REFUND_") {
	case "SUCCESS":
		return envelope.RefundSuccess
	case "FAILURE":
		return envelope.RefundFailure
	case "MANUAL_REVIEW":
		return envelope.RefundManualReview
	}
	return envelope.RefundPending
}
