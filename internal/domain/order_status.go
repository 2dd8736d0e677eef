package domain

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан на checkout, оплата ещё не начата.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusProcessing — платёж в обработке у провайдера.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusPaid — оплата подтверждена, товар зарезервирован.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusPreparing — заказ собирается.
	OrderStatusPreparing OrderStatus = "preparing"
	// OrderStatusShipped — заказ передан в доставку.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered — заказ получен покупателем.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled — заказ отменён.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusRefunded — деньги возвращены покупателю.
	OrderStatusRefunded OrderStatus = "refunded"
)

// orderTransitions — полная таблица допустимых переходов.
// Состояния без исходящих переходов терминальные.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:       {OrderStatusPreparing, OrderStatusRefunded},
	OrderStatusPreparing:  {OrderStatusShipped},
	OrderStatusShipped:    {OrderStatusDelivered},
	OrderStatusDelivered:  nil,
	OrderStatusCancelled:  nil,
	OrderStatusRefunded:   nil,
}

// OrderStatuses возвращает все известные статусы в порядке жизненного цикла.
func OrderStatuses() []OrderStatus {
	return []OrderStatus{
		OrderStatusPending,
		OrderStatusProcessing,
		OrderStatusPaid,
		OrderStatusPreparing,
		OrderStatusShipped,
		OrderStatusDelivered,
		OrderStatusCancelled,
		OrderStatusRefunded,
	}
}

// Valid проверяет, что статус известен.
func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

// Terminal сообщает, что из статуса нет переходов.
func (s OrderStatus) Terminal() bool {
	return s.Valid() && len(orderTransitions[s]) == 0
}

// CanTransition — единственная точка проверки перехода между статусами.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AllowedTransitions возвращает копию списка допустимых следующих статусов.
func AllowedTransitions(from OrderStatus) []OrderStatus {
	next := orderTransitions[from]
	out := make([]OrderStatus, len(next))
	copy(out, next)
	return out
}

// TransitionEffects — побочные эффекты перехода, применяемые атомарно
// вместе с записью статуса.
type TransitionEffects struct {
	// ReserveStock резервирует остаток по всем позициям (всё или ничего).
	ReserveStock bool
	// ReleaseStock возвращает остаток по всем позициям.
	ReleaseStock bool
	// DeleteCouponUse освобождает использование купона заказом.
	DeleteCouponUse bool
}

// Empty сообщает, что переход не требует побочных эффектов.
func (e TransitionEffects) Empty() bool {
	return !e.ReserveStock && !e.ReleaseStock && !e.DeleteCouponUse
}

// EffectsFor вычисляет побочные эффекты перехода заказа в статус to.
func EffectsFor(order Order, to OrderStatus) TransitionEffects {
	var effects TransitionEffects
	from := order.Status

	switch to {
	case OrderStatusPaid:
		effects.ReserveStock = !order.StockReserved
	case OrderStatusCancelled:
		if from == OrderStatusPending || from == OrderStatusProcessing {
			effects.DeleteCouponUse = true
		}
		effects.ReleaseStock = order.StockReserved
	case OrderStatusRefunded:
		effects.ReleaseStock = order.StockReserved
	}

	return effects
}
