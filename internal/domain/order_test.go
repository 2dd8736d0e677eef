package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// helper для создания базового заказа с двумя позициями (подытог 150.00).
func makeOrder() domain.Order {
	now := time.Now().UTC()
	order := domain.Order{
		ID:         "order-1",
		CustomerID: "customer-1",
		Status:     domain.OrderStatusPending,
		Lines: []domain.OrderLine{
			{ID: "line-1", ProductID: "p-1", Quantity: 2, UnitPrice: decimal.RequireFromString("50.00"), CreatedAt: now},
			{ID: "line-2", ProductID: "p-2", Quantity: 1, UnitPrice: decimal.RequireFromString("50.00"), CreatedAt: now},
		},
		Delivery:  domain.Delivery{Email: "Buyer@Example.com"},
		CreatedAt: now,
		UpdatedAt: now,
	}
	order.RecalculateTotal()
	return order
}

func TestOrderValidateInvariants_Ok(t *testing.T) {
	order := makeOrder()
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
}

func TestOrderValidateInvariants_Errors(t *testing.T) {
	cases := []struct {
		name string
		mut  func(o *domain.Order)
		want error
	}{
		{
			name: "no lines",
			mut: func(o *domain.Order) {
				o.Lines = nil
				o.RecalculateTotal()
			},
			want: domain.ErrCartEmpty,
		},
		{
			name: "zero quantity",
			mut: func(o *domain.Order) {
				o.Lines[0].Quantity = 0
				o.RecalculateTotal()
			},
			want: domain.ErrQuantityInvalid,
		},
		{
			name: "zero price",
			mut: func(o *domain.Order) {
				o.Lines[1].UnitPrice = decimal.Zero
				o.RecalculateTotal()
			},
			want: domain.ErrUnitPriceInvalid,
		},
		{
			name: "discount above subtotal",
			mut: func(o *domain.Order) {
				o.Discount = decimal.NewFromInt(200)
				o.RecalculateTotal()
			},
			want: domain.ErrDiscountInvalid,
		},
		{
			name: "total tampered",
			mut: func(o *domain.Order) {
				o.Total = decimal.NewFromInt(1)
			},
			want: domain.ErrTotalMismatch,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := makeOrder()
			tc.mut(&order)

			errs := order.ValidateInvariants()
			found := false
			for _, err := range errs {
				if errors.Is(err, tc.want) {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected %v in %v", tc.want, errs)
			}
		})
	}
}

func TestOrderTotal_Recalculated(t *testing.T) {
	order := makeOrder()
	if !order.Total.Equal(decimal.RequireFromString("150")) {
		t.Fatalf("expected total 150, got %s", order.Total)
	}

	order.Discount = decimal.RequireFromString("15.00")
	order.RecalculateTotal()
	if !order.Total.Equal(decimal.RequireFromString("135")) {
		t.Fatalf("expected total 135, got %s", order.Total)
	}

	// Повторный пересчёт детерминирован.
	order.RecalculateTotal()
	if !order.Total.Equal(decimal.RequireFromString("135")) {
		t.Fatalf("expected stable total 135, got %s", order.Total)
	}

	order.ShippingFee = decimal.RequireFromString("15.00")
	if !order.AmountDue().Equal(decimal.RequireFromString("150")) {
		t.Fatalf("expected amount due 150, got %s", order.AmountDue())
	}
}

func TestOrderTotal_NeverNegative(t *testing.T) {
	order := makeOrder()
	order.Discount = decimal.RequireFromString("500")
	order.RecalculateTotal()
	if !order.Total.IsZero() {
		t.Fatalf("expected zero total, got %s", order.Total)
	}
}

func TestCanTransition_Exhaustive(t *testing.T) {
	allowed := map[domain.OrderStatus]map[domain.OrderStatus]bool{
		domain.OrderStatusPending:    {domain.OrderStatusProcessing: true, domain.OrderStatusCancelled: true},
		domain.OrderStatusProcessing: {domain.OrderStatusPaid: true, domain.OrderStatusCancelled: true},
		domain.OrderStatusPaid:       {domain.OrderStatusPreparing: true, domain.OrderStatusRefunded: true},
		domain.OrderStatusPreparing:  {domain.OrderStatusShipped: true},
		domain.OrderStatusShipped:    {domain.OrderStatusDelivered: true},
	}

	for _, from := range domain.OrderStatuses() {
		for _, to := range domain.OrderStatuses() {
			want := allowed[from][to]
			if got := domain.CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestOrderStatus_Terminal(t *testing.T) {
	for _, status := range []domain.OrderStatus{domain.OrderStatusDelivered, domain.OrderStatusCancelled, domain.OrderStatusRefunded} {
		if !status.Terminal() {
			t.Errorf("expected %s to be terminal", status)
		}
	}
	if domain.OrderStatusPaid.Terminal() {
		t.Error("paid must not be terminal")
	}
	if domain.OrderStatus("lost").Valid() {
		t.Error("unknown status must be invalid")
	}
}

func TestOrderTransitionTo_RejectedLeavesOrderUnchanged(t *testing.T) {
	for _, from := range domain.OrderStatuses() {
		for _, to := range domain.OrderStatuses() {
			if domain.CanTransition(from, to) {
				continue
			}
			order := makeOrder()
			order.Status = from
			before := order.Status

			effects, err := order.TransitionTo(to)
			if !errors.Is(err, domain.ErrTransitionNotAllowed) {
				t.Fatalf("%s -> %s: expected ErrTransitionNotAllowed, got %v", from, to, err)
			}
			if order.Status != before {
				t.Fatalf("%s -> %s: status changed to %s", from, to, order.Status)
			}
			if !effects.Empty() {
				t.Fatalf("%s -> %s: expected no effects, got %+v", from, to, effects)
			}
		}
	}
}

func TestOrderTransitionTo_Effects(t *testing.T) {
	order := makeOrder()

	effects, err := order.TransitionTo(domain.OrderStatusProcessing)
	if err != nil {
		t.Fatalf("pending -> processing: %v", err)
	}
	if !effects.Empty() {
		t.Fatalf("expected no effects, got %+v", effects)
	}

	effects, err = order.TransitionTo(domain.OrderStatusPaid)
	if err != nil {
		t.Fatalf("processing -> paid: %v", err)
	}
	if !effects.ReserveStock || !order.StockReserved {
		t.Fatalf("expected stock reservation, got %+v reserved=%v", effects, order.StockReserved)
	}

	effects, err = order.TransitionTo(domain.OrderStatusRefunded)
	if err != nil {
		t.Fatalf("paid -> refunded: %v", err)
	}
	if !effects.ReleaseStock || effects.DeleteCouponUse || order.StockReserved {
		t.Fatalf("unexpected refund effects %+v reserved=%v", effects, order.StockReserved)
	}
}

func TestOrderTransitionTo_CancelFromPendingDropsCouponUse(t *testing.T) {
	order := makeOrder()

	effects, err := order.TransitionTo(domain.OrderStatusCancelled)
	if err != nil {
		t.Fatalf("pending -> cancelled: %v", err)
	}
	if !effects.DeleteCouponUse {
		t.Fatal("expected coupon use deletion")
	}
	if effects.ReleaseStock {
		t.Fatal("nothing was reserved, release must not happen")
	}
}

func TestOrderOwnership(t *testing.T) {
	order := makeOrder()
	if !order.OwnedBy("customer-1") {
		t.Fatal("expected owner match")
	}
	if order.OwnedBy("customer-2") {
		t.Fatal("expected owner mismatch")
	}

	order.CustomerID = ""
	if order.OwnedBy("") {
		t.Fatal("guest orders have no owner")
	}
	if got := order.CustomerKey(); got != "email:buyer@example.com" {
		t.Fatalf("unexpected guest customer key %q", got)
	}
}

func TestDeliveryValidate(t *testing.T) {
	d := domain.Delivery{
		Name:       "Ana",
		Email:      "ana@example.com",
		Phone:      "+55 11 99999-0000",
		Street:     "Rua A",
		City:       "São Paulo",
		State:      "SP",
		PostalCode: "01000-000",
	}
	if errs := d.Validate(); len(errs) != 0 {
		t.Fatalf("expected valid delivery, got %v", errs)
	}

	d.Email = "not-an-email"
	d.City = ""
	errs := d.Validate()
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %v", errs)
	}
}
