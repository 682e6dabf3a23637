// Package envelope defines RouterData, the per-attempt container that carries
// a flow's request, its outcome and the attempt status through dispatch.
package envelope

// Flow is implemented by the zero-size marker types below. The marker is a
// type parameter of RouterData so that an envelope built for one flow cannot
// be handed to another flow's integration.
type Flow interface {
	FlowName() string
}

type (
	Authorize               struct{}
	Capture                 struct{}
	Void                    struct{}
	PSync                   struct{}
	RSync                   struct{}
	Execute                 struct{}
	SetupMandate            struct{}
	PreProcessing           struct{}
	PostProcessing          struct{}
	CompleteAuthorize       struct{}
	AccessTokenAuth         struct{}
	CreateOrder             struct{}
	CreateConnectorCustomer struct{}
	PaymentMethodToken      struct{}
	RepeatPayment           struct{}
)

func (Authorize) FlowName() string               { return "authorize" }
func (Capture) FlowName() string                 { return "capture" }
func (Void) FlowName() string                    { return "void" }
func (PSync) FlowName() string                   { return "psync" }
func (RSync) FlowName() string                   { return "rsync" }
func (Execute) FlowName() string                 { return "refund" }
func (SetupMandate) FlowName() string            { return "setup_mandate" }
func (PreProcessing) FlowName() string           { return "pre_processing" }
func (PostProcessing) FlowName() string          { return "post_processing" }
func (CompleteAuthorize) FlowName() string       { return "complete_authorize" }
func (AccessTokenAuth) FlowName() string         { return "access_token_auth" }
func (CreateOrder) FlowName() string             { return "create_order" }
func (CreateConnectorCustomer) FlowName() string { return "create_connector_customer" }
func (PaymentMethodToken) FlowName() string      { return "payment_method_token" }
func (RepeatPayment) FlowName() string           { return "repeat_payment" }

// NameOf returns the flow name of marker F.
func NameOf[F Flow]() string {
	var f F
	return f.FlowName()
}
