package domain

import "errors"

// Kind классифицирует доменную ошибку для внешнего ответа и логирования.
type Kind string

const (
	// KindInternal — ошибка инфраструктуры, детали наружу не отдаются.
	KindInternal Kind = "internal"
	// KindValidation — некорректный ввод, пользователь может исправить запрос.
	KindValidation Kind = "validation"
	// KindNotFound — сущность не найдена.
	KindNotFound Kind = "not_found"
	// KindState — операция нарушает инварианты состояния (устаревшее состояние клиента).
	KindState Kind = "state"
	// KindExternalService — внешний сервис недоступен или отклонил запрос.
	KindExternalService Kind = "external_service"
	// KindLimit — исчерпан лимит (купон, количество на складе).
	KindLimit Kind = "limit"
)

// Error — доменная ошибка с классом и стабильным кодом причины.
type Error struct {
	kind Kind
	code string
	msg  string
}

func newError(kind Kind, code, msg string) *Error {
	return &Error{kind: kind, code: code, msg: msg}
}

func (e *Error) Error() string { return e.msg }

// Kind возвращает класс ошибки.
func (e *Error) Kind() Kind { return e.kind }

// Code возвращает стабильный машинный код причины.
func (e *Error) Code() string { return e.code }

var (
	// Ошибка пустой корзины.
	ErrCartEmpty = newError(KindValidation, "cart_empty", "cart must contain at least one item")
	// Ошибка некорректного количества (<= 0).
	ErrQuantityInvalid = newError(KindValidation, "invalid_quantity", "quantity must be greater than zero")
	// Ошибка некорректной цены позиции.
	ErrUnitPriceInvalid = newError(KindValidation, "invalid_unit_price", "unit price must be greater than zero")
	// Повторяющиеся позиции одного товара с разной ценой.
	ErrCartPriceConflict = newError(KindValidation, "cart_price_conflict", "repeated cart items have different unit prices")
	// Ошибка отсутствующего идентификатора товара.
	ErrProductIDRequired = newError(KindValidation, "product_id_required", "product_id is required")
	// Ошибка отсутствующего имени получателя.
	ErrDeliveryNameRequired = newError(KindValidation, "delivery_name_required", "delivery name is required")
	// Ошибка некорректного email получателя.
	ErrDeliveryEmailInvalid = newError(KindValidation, "delivery_email_invalid", "delivery email is invalid")
	// Ошибка отсутствующего телефона получателя.
	ErrDeliveryPhoneRequired = newError(KindValidation, "delivery_phone_required", "delivery phone is required")
	// Ошибка неполного адреса доставки.
	ErrDeliveryAddressRequired = newError(KindValidation, "delivery_address_required", "delivery address is incomplete")
	// Ошибка отрицательной или превышающей подытог скидки.
	ErrDiscountInvalid = newError(KindValidation, "invalid_discount", "discount must be between zero and subtotal")
	// Ошибка несоответствия итоговой суммы и позиций.
	ErrTotalMismatch = newError(KindValidation, "total_mismatch", "order total does not match lines")
	// Ошибка отсутствующего идентификатора заказа.
	ErrOrderIDRequired = newError(KindValidation, "order_id_required", "order_id is required")
	// ErrMalformedNotification — уведомление платёжного провайдера без идентификатора платежа.
	ErrMalformedNotification = newError(KindValidation, "malformed_notification", "notification does not identify a payment")
	// ErrCouponNotYetValid — купон ещё не начал действовать.
	ErrCouponNotYetValid = newError(KindValidation, "coupon_not_yet_valid", "coupon is not valid yet")
	// ErrCouponExpired — срок действия купона истёк.
	ErrCouponExpired = newError(KindValidation, "coupon_expired", "coupon has expired")

	// ErrProductNotFound возвращается, если товар не найден или недоступен.
	ErrProductNotFound = newError(KindNotFound, "product_not_found", "product not found")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = newError(KindNotFound, "order_not_found", "order not found")
	// ErrCouponNotFound — купон не существует или выключен.
	ErrCouponNotFound = newError(KindNotFound, "coupon_not_found", "coupon not found")
	// ErrCouponUseNotFound — у заказа нет использования купона.
	ErrCouponUseNotFound = newError(KindNotFound, "coupon_use_not_found", "coupon use not found")

	// ErrTransitionNotAllowed — переход отсутствует в таблице состояний.
	ErrTransitionNotAllowed = newError(KindState, "transition_not_allowed", "order status transition is not allowed")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = newError(KindState, "order_version_conflict", "order version conflict")
	// ErrStockUnavailable — резерв невозможен: товар недоступен или остатка не хватает.
	ErrStockUnavailable = newError(KindState, "stock_unavailable", "stock reservation is not possible")
	// ErrDuplicateID — запись с таким идентификатором уже существует.
	ErrDuplicateID = newError(KindState, "duplicate_id", "record already exists")

	// ErrPaymentGateway — платёжный провайдер недоступен или отклонил запрос.
	ErrPaymentGateway = newError(KindExternalService, "payment_gateway_unavailable", "payment service is unavailable, please try again")

	// ErrCouponGlobalLimit — исчерпан общий лимит использований купона.
	ErrCouponGlobalLimit = newError(KindLimit, "coupon_global_limit_reached", "coupon usage limit reached")
	// ErrCouponPerUserLimit — исчерпан лимит использований купона на покупателя.
	ErrCouponPerUserLimit = newError(KindLimit, "coupon_per_user_limit_reached", "coupon already used by this customer")
	// ErrInsufficientStock — запрошено больше, чем есть на складе.
	ErrInsufficientStock = newError(KindLimit, "insufficient_stock", "insufficient stock for requested quantity")
)

var (
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
	// ErrIdempotencyKeyRequired — пустой ключ идемпотентности.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyHashRequired — не передан хэш запроса.
	ErrIdempotencyHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyNotFound — под ключом ничего не хранится.
	ErrIdempotencyNotFound = errors.New("idempotency record not found")
	// ErrIdempotencyReplay — ключ уже занят этим же запросом.
	ErrIdempotencyReplay = errors.New("idempotency key already holds this request")
	// ErrIdempotencyKeyReused — ключ уже занят другим запросом.
	ErrIdempotencyKeyReused = errors.New("idempotency key is bound to a different request")
)

// KindOf возвращает класс ошибки; неизвестные ошибки считаются внутренними.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.kind
	}
	return KindInternal
}

// CodeOf возвращает код причины или "internal" для инфраструктурных ошибок.
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.code
	}
	return string(KindInternal)
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsIdempotencyTaken сообщает, что ключ уже занят, тем же запросом или другим.
func IsIdempotencyTaken(err error) bool {
	return errors.Is(err, ErrIdempotencyReplay) || errors.Is(err, ErrIdempotencyKeyReused)
}
