package domain

import "time"

// TimelineEvent — запись истории заказа: что произошло, в какой статус
// перешёл заказ и какой платёж (если был) это вызвал.
type TimelineEvent struct {
	OrderID   string
	Type      string
	Status    OrderStatus
	Reason    string
	PaymentID string
	Occurred  time.Time
}
