package service

import (
	"errors"
	"fmt"
)

// 服务层业务错误（HTTP 层统一映射为业务码）
var (
	ErrInventoryInvalid    = errors.New("inventory params invalid")
	ErrInventoryNotFound   = errors.New("inventory level not found")
	ErrInsufficientStock   = errors.New("insufficient available stock")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrReservationInvalid  = errors.New("reservation params invalid")

	ErrAuditInvalid   = errors.New("audit params invalid")
	ErrAuditNotFound  = errors.New("audit entry not found")
	ErrAuditImmutable = errors.New("audit entries are immutable")

	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderFetchFailed   = errors.New("order fetch failed")
	ErrOrderStatusInvalid = errors.New("order status invalid")

	ErrShipmentInvalid      = errors.New("shipment params invalid")
	ErrShipmentNotFound     = errors.New("shipment not found")
	ErrLabelNotFound        = errors.New("shipment label not found")
	ErrShipmentNotCancelable = errors.New("shipment not cancelable")
	ErrAlreadyFullyShipped  = errors.New("order already fully shipped")
	ErrUnknownShipmentItem  = errors.New("shipment item not on order")

	ErrReturnInvalid = errors.New("return params invalid")

	ErrForbidden = errors.New("operation not permitted for role")

	ErrCircuitOpen     = errors.New("carrier temporarily unavailable")
	ErrCarrierRejected = errors.New("carrier request rejected")
)

// QuantityError 数量越界错误：携带边界值，供调用方提示精确余量
type QuantityError struct {
	SKU       string
	Requested int
	Limit     int    // 可用边界（剩余可发 / 已发数量 / 预留覆盖量）
	Kind      string // ship / return / reserve
}

// Error 实现 error 接口
func (e *QuantityError) Error() string {
	switch e.Kind {
	case "return":
		return fmt.Sprintf("cannot return %d of %s: only %d shipped", e.Requested, e.SKU, e.Limit)
	case "reserve":
		return fmt.Sprintf("cannot ship %d of %s: only %d reserved", e.Requested, e.SKU, e.Limit)
	default:
		return fmt.Sprintf("cannot ship %d of %s: only %d remaining", e.Requested, e.SKU, e.Limit)
	}
}

// AsQuantityError 判定并提取数量越界错误
func AsQuantityError(err error) (*QuantityError, bool) {
	var qe *QuantityError
	if errors.As(err, &qe) {
		return qe, true
	}
	return nil, false
}
