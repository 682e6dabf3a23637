// Package normalize maps connector and unified-service outcomes onto the
// canonical attempt status and error shape.
package normalize

import (
	"net/http"

	"payswitch/internal/domain/payment"
	"payswitch/internal/envelope"
	"payswitch/internal/errs"
)

// Outcome is a connector's answer reduced to what the status rules need.
type Outcome int

const (
	OutcomeUnknown Outcome = iota
	// OutcomeSucceeded means the operation completed; for authorize this is
	// a settled charge when the connector captured in the same call.
	OutcomeSucceeded
	// OutcomeAuthorized means funds are held but not captured.
	OutcomeAuthorized
	OutcomeRequiresAction
	OutcomePending
	OutcomeDeclined
)

// AuthorizeStatus derives the attempt status of an authorize-like flow.
func AuthorizeStatus(cm payment.CaptureMethod, o Outcome, hasRedirect bool) payment.AttemptStatus {
	if hasRedirect || o == OutcomeRequiresAction {
		return payment.StatusAuthenticationPending
	}
	switch o {
	case OutcomeSucceeded:
		if cm.IsAutomatic() {
			return payment.StatusCharged
		}
		return payment.StatusAuthorized
	case OutcomeAuthorized:
		return payment.StatusAuthorized
	case OutcomePending:
		return payment.StatusPending
	case OutcomeDeclined:
		return payment.StatusFailure
	}
	return payment.StatusUnresolved
}

// CaptureStatus derives the attempt status after a capture.
func CaptureStatus(o Outcome, partial bool) payment.AttemptStatus {
	switch o {
	case OutcomeSucceeded:
		if partial {
			return payment.StatusPartialCharged
		}
		return payment.StatusCharged
	case OutcomePending, OutcomeAuthorized:
		return payment.StatusCaptureInitiated
	case OutcomeDeclined:
		return payment.StatusCaptureFailed
	}
	return payment.StatusUnresolved
}

// VoidStatus derives the attempt status after a void.
func VoidStatus(o Outcome) payment.AttemptStatus {
	switch o {
	case OutcomeSucceeded:
		return payment.StatusVoided
	case OutcomePending:
		return payment.StatusVoidInitiated
	case OutcomeDeclined:
		return payment.StatusVoidFailed
	}
	return payment.StatusUnresolved
}

// RefundStatus maps an outcome onto the refund state.
func RefundStatus(o Outcome) envelope.RefundStatus {
	switch o {
	case OutcomeSucceeded:
		return envelope.RefundSuccess
	case OutcomeDeclined:
		return envelope.RefundFailure
	case OutcomeUnknown:
		return envelope.RefundManualReview
	}
	return envelope.RefundPending
}

// FailureStatus is the status a flow takes when its outcome is an error and
// the connector did not pin one.
func FailureStatus(flow string, current payment.AttemptStatus) payment.AttemptStatus {
	switch flow {
	case envelope.NameOf[envelope.Capture]():
		return payment.StatusCaptureFailed
	case envelope.NameOf[envelope.Void]():
		return payment.StatusVoidFailed
	case envelope.NameOf[envelope.PSync](), envelope.NameOf[envelope.RSync](), envelope.NameOf[envelope.Execute]():
		return current
	case envelope.NameOf[envelope.CompleteAuthorize]():
		return payment.StatusAuthorizationFailed
	}
	return payment.StatusFailure
}

// ErrorStatus resolves the status for a connector error response.
func ErrorStatus(flow string, current payment.AttemptStatus, e envelope.ErrorResponse) payment.AttemptStatus {
	if e.AttemptStatus != nil {
		return *e.AttemptStatus
	}
	return FailureStatus(flow, current)
}

var classHTTPStatus = map[errs.Class]int{
	errs.ClassConfiguration:       http.StatusBadRequest,
	errs.ClassRequestConstruction: http.StatusBadRequest,
	errs.ClassCapabilityGap:       http.StatusNotImplemented,
	errs.ClassTransport:           http.StatusGatewayTimeout,
	errs.ClassResponseDecode:      http.StatusBadGateway,
	errs.ClassBusinessDecline:     http.StatusPaymentRequired,
	errs.ClassInternal:            http.StatusInternalServerError,
}

// FromError converts any error into a complete ErrorResponse.
func FromError(err error) envelope.ErrorResponse {
	if err == nil {
		return envelope.ErrorResponse{}.Complete()
	}
	if er, ok := err.(envelope.ErrorResponse); ok {
		return er.Complete()
	}
	e := errs.As(err)
	out := envelope.ErrorResponse{
		Code:       string(e.Kind),
		Message:    e.Error(),
		Reason:     e.Field,
		StatusCode: classHTTPStatus[e.Class()],
		Class:      e.Class(),
		Retryable:  e.Retryable(),
	}
	return out.Complete()
}

// ApplyError writes err onto rd as a complete failure with the flow's
// failure status.
func ApplyError[F envelope.Flow, Req, Resp any](rd *envelope.RouterData[F, Req, Resp], err error) {
	e := FromError(err)
	rd.SetError(e, ErrorStatus(rd.FlowName(), rd.Status, e))
}

// ApplyErrorResponse writes a decoded connector error onto rd.
func ApplyErrorResponse[F envelope.Flow, Req, Resp any](rd *envelope.RouterData[F, Req, Resp], e envelope.ErrorResponse) {
	if e.Class == "" {
		e.Class = errs.ClassBusinessDecline
	}
	rd.SetError(e, ErrorStatus(rd.FlowName(), rd.Status, e))
}

// IntegrityCheck compares the requested amount and currency with what the
// connector echoed. A nil result means the values agree or were not echoed.
func IntegrityCheck(amount payment.MinorUnit, currency payment.Currency, got *envelope.ResponseIntegrity, txnID string) *envelope.IntegrityError {
	if got == nil {
		return nil
	}
	var fields string
	if got.Amount != amount {
		fields = "amount"
	}
	if got.Currency != "" && got.Currency != currency {
		if fields != "" {
			fields += ", "
		}
		fields += "currency"
	}
	if fields == "" {
		return nil
	}
	return &envelope.IntegrityError{FieldNames: fields, ConnectorTransactionID: txnID}
}
