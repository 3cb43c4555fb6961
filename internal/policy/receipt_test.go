package policy

import "testing"

func TestBuildReceipt(t *testing.T) {
	who := Identity{Alias: "jdoe", Email: "jdoe@example.com"}
	on := ReceiptTiming{OnRequest: true}

	tests := []struct {
		name     string
		timing   ReceiptTiming
		resource ResourceKind
		service  string
		target   []string
	}{
		{"disabled", ReceiptTiming{}, ResourceEmail, "", nil},
		{"no resource", on, ResourceNone, "", nil},
		{"message", on, ResourceMessage, "redaqt_messenger", []string{"jdoe"}},
		{"email", ReceiptTiming{OnDelivery: true}, ResourceEmail, "smtp", []string{"jdoe@example.com"}},
		{"sms has no target", on, ResourceSMS, "sms_gateway", nil},
		{"device has no target", on, ResourceDevice, "device_push", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := BuildReceipt(tt.timing, tt.resource, who)

			if r.Timing != tt.timing {
				t.Errorf("Timing = %+v", r.Timing)
			}
			if got := strOrEmpty(r.Service); got != tt.service {
				t.Errorf("Service = %q, want %q", got, tt.service)
			}
			if tt.service == "" && r.Resource != nil {
				t.Errorf("Resource = %q, want nil", *r.Resource)
			}
			if r.Target == nil {
				t.Fatal("Target should be an empty list, not nil")
			}
			if len(r.Target) != len(tt.target) {
				t.Fatalf("Target = %v, want %v", r.Target, tt.target)
			}
			for i := range tt.target {
				if r.Target[i] != tt.target[i] {
					t.Errorf("Target[%d] = %q", i, r.Target[i])
				}
			}
		})
	}
}
