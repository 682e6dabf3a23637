package envelope

import "payswitch/internal/domain/payment"

// DecideAuthenticationType applies the pre-dispatch 3DS rules. A wallet that
// reports the holder as unauthenticated or the account as unverified is
// stepped up to 3DS; a 3DS request on a card that is not enrolled is
// downgraded. No I/O.
func DecideAuthenticationType(req *AuthorizeData, current payment.AuthenticationType) payment.AuthenticationType {
	decided := current
	if w, ok := req.PaymentMethodData.(*payment.Wallet); ok && w.Kind == payment.WalletGooglePay && w.Assurance != nil {
		if !w.Assurance.CardHolderAuthenticated || !w.Assurance.AccountVerified {
			decided = payment.AuthThreeDS
		}
	}
	if decided == payment.AuthThreeDS && !req.EnrolledFor3DS {
		decided = payment.AuthNoThreeDS
	}
	if decided == "" {
		decided = payment.AuthNoThreeDS
	}
	return decided
}

// ShouldProceedWithAuthorize is false when an earlier step of this attempt
// already produced redirection data. Dispatching again would double-submit
// a payment the customer is still completing.
func ShouldProceedWithAuthorize(rd *RouterData[Authorize, AuthorizeData, PaymentsResponseData]) bool {
	resp, errResp := rd.Response()
	if errResp != nil {
		return true
	}
	return resp.RedirectionData == nil
}
