package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		err              error
		kind             Kind
		code             string
		versionConflict  bool
		idempotencyTaken bool
	}{
		{err: ErrCartEmpty, kind: KindValidation, code: "cart_empty"},
		{err: ErrCartPriceConflict, kind: KindValidation, code: "cart_price_conflict"},
		{err: ErrCouponNotFound, kind: KindNotFound, code: "coupon_not_found"},
		{err: ErrTransitionNotAllowed, kind: KindState, code: "transition_not_allowed"},
		{err: ErrPaymentGateway, kind: KindExternalService, code: "payment_gateway_unavailable"},
		{err: ErrCouponPerUserLimit, kind: KindLimit, code: "coupon_per_user_limit_reached"},
		{err: fmt.Errorf("checkout: %w", ErrInsufficientStock), kind: KindLimit, code: "insufficient_stock"},
		{err: fmt.Errorf("save order: %w", ErrOrderVersionConflict), kind: KindState, code: "order_version_conflict", versionConflict: true},
		{err: ErrIdempotencyReplay, kind: KindInternal, code: "internal", idempotencyTaken: true},
		{err: errors.Join(ErrIdempotencyKeyReused, errors.New("key k-1")), kind: KindInternal, code: "internal", idempotencyTaken: true},
		{err: errors.New("connection reset"), kind: KindInternal, code: "internal"},
		{err: nil, kind: KindInternal, code: "internal"},
	}

	for _, tc := range cases {
		name := "nil"
		if tc.err != nil {
			name = tc.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			require.Equal(t, tc.kind, KindOf(tc.err))
			require.Equal(t, tc.code, CodeOf(tc.err))
			require.Equal(t, tc.versionConflict, IsVersionConflict(tc.err))
			require.Equal(t, tc.idempotencyTaken, IsIdempotencyTaken(tc.err))
		})
	}
}

func TestErrorCarriesUserMessage(t *testing.T) {
	var de *Error
	require.ErrorAs(t, fmt.Errorf("apply coupon: %w", ErrCouponExpired), &de)
	require.Equal(t, KindValidation, de.Kind())
	require.Equal(t, "coupon_expired", de.Code())
	require.Equal(t, "coupon has expired", de.Error())
}
