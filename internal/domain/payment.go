package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// PaymentStatus — статус платежа на стороне провайдера (Mercado Pago).
type PaymentStatus string

const (
	PaymentStatusApproved    PaymentStatus = "approved"
	PaymentStatusPending     PaymentStatus = "pending"
	PaymentStatusInProcess   PaymentStatus = "in_process"
	PaymentStatusAuthorized  PaymentStatus = "authorized"
	PaymentStatusRejected    PaymentStatus = "rejected"
	PaymentStatusCancelled   PaymentStatus = "cancelled"
	PaymentStatusRefunded    PaymentStatus = "refunded"
	PaymentStatusChargedBack PaymentStatus = "charged_back"
)

// TargetOrderStatus сопоставляет статус платежа статусу заказа.
// ok=false для статусов, которые не двигают заказ.
func (s PaymentStatus) TargetOrderStatus() (OrderStatus, bool) {
	switch s {
	case PaymentStatusApproved:
		return OrderStatusPaid, true
	case PaymentStatusPending, PaymentStatusInProcess, PaymentStatusAuthorized:
		return OrderStatusProcessing, true
	case PaymentStatusCancelled, PaymentStatusRejected:
		return OrderStatusCancelled, true
	case PaymentStatusRefunded, PaymentStatusChargedBack:
		return OrderStatusRefunded, true
	default:
		return "", false
	}
}

// PreferenceItem — строка платёжной формы.
type PreferenceItem struct {
	ID         string
	Title      string
	Quantity   int
	UnitPrice  decimal.Decimal
	CurrencyID string
}

// PreferenceRequest — представление заказа для создания платёжной формы.
type PreferenceRequest struct {
	// ExternalReference возвращается провайдером в платеже и связывает его с заказом.
	ExternalReference string
	Items             []PreferenceItem
	PayerName         string
	PayerEmail        string
}

// Preference — созданная у провайдера платёжная форма.
type Preference struct {
	ID          string
	RedirectURL string
}

// PaymentView — сведения о платеже, полученные у провайдера.
type PaymentView struct {
	ID                string
	Status            PaymentStatus
	StatusDetail      string
	ExternalReference string
	Amount            decimal.Decimal
}

// Notification — асинхронное уведомление провайдера.
type Notification struct {
	Type      string
	PaymentID string
}

// NotificationTypePayment — тип уведомления о платеже.
const NotificationTypePayment = "payment"

// PaymentGateway — узкий порт платёжного провайдера.
type PaymentGateway interface {
	// CreatePreference создаёт платёжную форму и возвращает её идентификатор и URL.
	CreatePreference(ctx context.Context, req PreferenceRequest) (Preference, error)
	// FetchPayment возвращает текущие сведения о платеже.
	FetchPayment(ctx context.Context, paymentID string) (PaymentView, error)
}
