package domain

import "testing"

func TestPaymentStatusTargetOrderStatus(t *testing.T) {
	tests := []struct {
		status PaymentStatus
		want   OrderStatus
		ok     bool
	}{
		{status: PaymentStatusApproved, want: OrderStatusPaid, ok: true},
		{status: PaymentStatusPending, want: OrderStatusProcessing, ok: true},
		{status: PaymentStatusInProcess, want: OrderStatusProcessing, ok: true},
		{status: PaymentStatusAuthorized, want: OrderStatusProcessing, ok: true},
		{status: PaymentStatusRejected, want: OrderStatusCancelled, ok: true},
		{status: PaymentStatusCancelled, want: OrderStatusCancelled, ok: true},
		{status: PaymentStatusRefunded, want: OrderStatusRefunded, ok: true},
		{status: PaymentStatusChargedBack, want: OrderStatusRefunded, ok: true},
		{status: PaymentStatus("in_mediation"), ok: false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			got, ok := tt.status.TargetOrderStatus()
			if ok != tt.ok || got != tt.want {
				t.Fatalf("TargetOrderStatus() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.ok)
			}
		})
	}
}
