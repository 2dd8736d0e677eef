package order

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Mutator меняет поля заказа вместе с переходом и сообщает, изменил ли что-нибудь.
type Mutator func(order *domain.Order) bool

// WithPayment записывает сведения о платеже провайдера.
func WithPayment(paymentID string, status domain.PaymentStatus) Mutator {
	return func(order *domain.Order) bool {
		if order.PaymentID == paymentID && order.PaymentStatus == status {
			return false
		}
		order.PaymentID = paymentID
		order.PaymentStatus = status
		return true
	}
}

type applyFunc func(order *domain.Order) (domain.TransitionEffects, bool, error)

// Transition переводит заказ в статус to и применяет побочные эффекты перехода
// (резерв или возврат остатков, удаление использования купона) одной записью.
// Переход в текущий статус ничего не делает. Если при оплате не хватило остатка,
// заказ отменяется с причиной insufficient_stock и возвращается ErrStockUnavailable.
func (s *Service) Transition(ctx context.Context, orderID string, to domain.OrderStatus, reason string, mutators ...Mutator) (domain.Order, error) {
	if orderID == "" {
		return domain.Order{}, domain.ErrOrderIDRequired
	}
	if !to.Valid() {
		return domain.Order{}, domain.ErrTransitionNotAllowed
	}

	order, from, changed, err := s.update(ctx, orderID, func(o *domain.Order) (domain.TransitionEffects, bool, error) {
		if o.Status == to {
			return domain.TransitionEffects{}, applyMutators(o, mutators), nil
		}
		effects, err := o.TransitionTo(to)
		if err != nil {
			return domain.TransitionEffects{}, false, err
		}
		applyMutators(o, mutators)
		return effects, true, nil
	})
	if err != nil {
		s.metrics.RecordTransitionFailure(string(to), domain.CodeOf(err))
		if errors.Is(err, domain.ErrStockUnavailable) && to == domain.OrderStatusPaid {
			return s.cancelForShortage(ctx, orderID, mutators)
		}
		return order, err
	}
	if !changed || from == to {
		return order, nil
	}

	s.metrics.RecordTransition(string(from), string(to))
	s.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"from":     from,
		"to":       to,
		"reason":   reason,
	}).Info("order status changed")
	s.emitStatusEvent(ctx, &order, from, reason)

	return order, nil
}

// SetPaymentReference сохраняет идентификатор платёжной формы провайдера.
func (s *Service) SetPaymentReference(ctx context.Context, orderID, reference string) (domain.Order, error) {
	order, _, changed, err := s.update(ctx, orderID, func(o *domain.Order) (domain.TransitionEffects, bool, error) {
		if o.PaymentReference == reference {
			return domain.TransitionEffects{}, false, nil
		}
		o.PaymentReference = reference
		return domain.TransitionEffects{}, true, nil
	})
	if err != nil {
		return order, err
	}
	if changed {
		s.emitEvent(ctx, &order, domain.EventPaymentRequested, map[string]interface{}{
			"payment_reference": reference,
			"status":            order.Status,
			"ts":                order.UpdatedAt.Format(time.RFC3339Nano),
		})
	}
	return order, nil
}

func (s *Service) cancelForShortage(ctx context.Context, orderID string, mutators []Mutator) (domain.Order, error) {
	s.metrics.RecordStockShortage()
	s.logger.WithField("order_id", orderID).Warn("insufficient stock at payment approval, cancelling order")

	cancelled, err := s.Transition(ctx, orderID, domain.OrderStatusCancelled, ReasonInsufficientStock, mutators...)
	if err != nil {
		return cancelled, err
	}
	s.emitEvent(ctx, &cancelled, domain.EventOrderStockShortage, map[string]interface{}{
		"reason": ReasonInsufficientStock,
		"status": cancelled.Status,
		"ts":     cancelled.UpdatedAt.Format(time.RFC3339Nano),
	})
	return cancelled, domain.ErrStockUnavailable
}

// update перечитывает заказ, применяет apply и сохраняет результат с проверкой версии.
// При конфликте версий повторяет попытку с экспоненциальной задержкой.
func (s *Service) update(ctx context.Context, orderID string, apply applyFunc) (domain.Order, domain.OrderStatus, bool, error) {
	delay := s.baseDelay
	for attempt := 1; ; attempt++ {
		order, err := s.orders.Get(ctx, orderID)
		if err != nil {
			return domain.Order{}, "", false, err
		}
		from := order.Status

		effects, changed, err := apply(&order)
		if err != nil || !changed {
			return order, from, false, err
		}
		order.UpdatedAt = s.now()

		err = s.orders.Transition(ctx, order, effects)
		if err == nil {
			order.Version++
			return order, from, true, nil
		}

		if !domain.IsVersionConflict(err) || attempt >= s.maxAttempts {
			s.logger.WithError(err).WithFields(log.Fields{
				"order_id": orderID,
				"attempt":  attempt,
			}).Error("failed to persist order")
			return domain.Order{}, from, false, err
		}

		s.logger.WithFields(log.Fields{
			"order_id": orderID,
			"attempt":  attempt,
			"version":  order.Version,
		}).Warn("version conflict detected, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return domain.Order{}, from, false, ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
}

func applyMutators(order *domain.Order, mutators []Mutator) bool {
	changed := false
	for _, m := range mutators {
		if m != nil && m(order) {
			changed = true
		}
	}
	return changed
}

func (s *Service) emitStatusEvent(ctx context.Context, order *domain.Order, from domain.OrderStatus, reason string) {
	eventType := domain.EventOrderStatusChanged
	if order.Status == domain.OrderStatusCancelled {
		eventType = domain.EventOrderCancelled
	}
	payload := map[string]interface{}{
		"from":       from,
		"status":     order.Status,
		"updated_at": order.UpdatedAt.Format(time.RFC3339Nano),
		"ts":         order.UpdatedAt.Format(time.RFC3339Nano),
	}
	if reason != "" {
		payload["reason"] = reason
	}
	if order.PaymentID != "" {
		payload["payment_id"] = order.PaymentID
	}
	s.emitEvent(ctx, order, eventType, payload)
}

func (s *Service) emitEvent(ctx context.Context, order *domain.Order, eventType string, payload map[string]interface{}) {
	if payload == nil {
		payload = make(map[string]interface{})
	}
	payload["order_id"] = order.ID
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"event":    eventType,
		}).Error("marshal event failed")
		return
	}

	if s.outbox != nil {
		msg := domain.OutboxMessage{
			AggregateType: "order",
			AggregateID:   order.ID,
			EventType:     eventType,
			Payload:       data,
		}
		if _, err := s.outbox.Enqueue(ctx, msg); err != nil {
			s.logger.WithError(err).WithFields(log.Fields{
				"order_id": order.ID,
				"event":    eventType,
			}).Error("enqueue event failed")
		} else {
			s.metrics.RecordOutboxEvent()
		}
	}

	if s.timeline == nil {
		return
	}
	var reason string
	if r, ok := payload["reason"].(string); ok {
		reason = r
	}
	occurred := order.UpdatedAt
	if ts, ok := payload["ts"].(string); ok {
		if parsed, parseErr := time.Parse(time.RFC3339Nano, ts); parseErr == nil {
			occurred = parsed
		}
	}
	if occurred.IsZero() {
		occurred = s.now()
	}
	event := domain.TimelineEvent{
		OrderID:   order.ID,
		Type:      eventType,
		Status:    order.Status,
		Reason:    reason,
		PaymentID: order.PaymentID,
		Occurred:  occurred,
	}
	if err := s.timeline.Append(ctx, event); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"event":    eventType,
		}).Warn("append timeline event failed")
	} else {
		s.metrics.RecordTimelineEvent()
	}
}
