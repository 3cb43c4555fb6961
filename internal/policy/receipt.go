package policy

// ResourceKind is the channel a receipt is delivered through.
type ResourceKind string

// Receipt resources.
const (
	ResourceNone    ResourceKind = ""
	ResourceMessage ResourceKind = "Message"
	ResourceEmail   ResourceKind = "Email"
	ResourceSMS     ResourceKind = "SMS"
	ResourceDevice  ResourceKind = "Device"
)

// receiptServices maps each resource to the service that delivers it.
var receiptServices = map[ResourceKind]string{
	ResourceMessage: "redaqt_messenger",
	ResourceEmail:   "smtp",
	ResourceSMS:     "sms_gateway",
	ResourceDevice:  "device_push",
}

// Identity carries the user fields receipts are addressed to.
type Identity struct {
	Alias string
	Email string
}

// BuildReceipt builds a receipt. Resource, service and target are only
// filled when a timing flag is set and the resource is known. Message
// receipts target the alias and Email receipts the email address; SMS and
// Device receipts have no target yet.
func BuildReceipt(timing ReceiptTiming, resource ResourceKind, who Identity) Receipt {
	r := Receipt{Timing: timing, Target: []string{}}
	if !timing.Enabled() {
		return r
	}

	service, ok := receiptServices[resource]
	if !ok {
		return r
	}
	r.Resource = ptr(string(resource))
	r.Service = ptr(service)

	switch resource {
	case ResourceMessage:
		if who.Alias != "" {
			r.Target = []string{who.Alias}
		}
	case ResourceEmail:
		if who.Email != "" {
			r.Target = []string{who.Email}
		}
	}
	return r
}
