package policy

// Protocol names a smart policy mode.
type Protocol string

// Supported protocols.
const (
	NoPolicy        Protocol = "no_policy"
	LockToUser      Protocol = "lock_to_user"
	DoNotOpenBefore Protocol = "do_not_open_before"
	DoNotOpenAfter  Protocol = "do_not_open_after"
	OpenWithKeyword Protocol = "open_with_keyword"
	OpenWithPIN     Protocol = "open_with_pin"
	LockToDevice    Protocol = "lock_to_device"
)

// Comparison semantics of a policy condition.
const (
	ActionGreater = "Greater"
	ActionLess    = "Less"
	ActionEqual   = "Equal"
)

// FormMethodPIN is the only form method with a non-zero length.
const FormMethodPIN = "PIN"

// PINLength is the fixed PIN length of open_with_pin.
const PINLength = 6

// Form describes an interactive input expected when opening.
type Form struct {
	Method *string `json:"method"`
	Length int     `json:"length"`
}

// Item is one policy rule.
type Item struct {
	Protocol  Protocol `json:"protocol"`
	Resource  *string  `json:"resource"`
	Target    []string `json:"target"`
	Auto      bool     `json:"auto"`
	Form      Form     `json:"form"`
	Action    *string  `json:"action"`
	Condition *string  `json:"condition"`
}

// ReceiptTiming selects when a receipt is sent.
type ReceiptTiming struct {
	OnRequest  bool `json:"on_request"`
	OnDelivery bool `json:"on_delivery"`
}

// Enabled reports whether any timing flag is set.
func (t ReceiptTiming) Enabled() bool {
	return t.OnRequest || t.OnDelivery
}

// Receipt describes how the owner is notified about access.
type Receipt struct {
	Timing   ReceiptTiming `json:"receipt_timing"`
	Resource *string       `json:"resource"`
	Service  *string       `json:"service"`
	Target   []string      `json:"target"`
}

// Component identifies one policy service component.
type Component struct {
	Type    string `json:"type"`
	Version string `json:"version"`
}

// ServiceForm names the policy engine and comms manager versions that
// enforce the block.
type ServiceForm struct {
	PolicyEngine Component `json:"policy_engine"`
	CommsManager Component `json:"comms_manager"`
}

// DefaultServiceForm is the service stamp written into new blocks.
var DefaultServiceForm = ServiceForm{
	PolicyEngine: Component{Type: "pe", Version: "2.1.0"},
	CommsManager: Component{Type: "cm", Version: "2.1.0"},
}

func ptr(s string) *string { return &s }
