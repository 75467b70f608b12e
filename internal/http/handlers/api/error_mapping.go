package api

import (
	"errors"

	handlershared "github.com/stockkeeper/internal/http/handlers/shared"
	"github.com/stockkeeper/internal/http/response"
	"github.com/stockkeeper/internal/service"

	"github.com/gin-gonic/gin"
)

func respondError(c *gin.Context, code int, msg string, err error) {
	handlershared.RespondError(c, code, msg, err)
}

// mappedHandlerError 定义业务错误到接口错误响应的映射关系。
type mappedHandlerError struct {
	target error
	code   int
	msg    string
}

// respondWithMappedError 按规则表映射业务错误；数量越界错误原样透出边界信息
func respondWithMappedError(c *gin.Context, err error, rules []mappedHandlerError, fallbackCode int, fallbackMsg string) {
	if qtyErr, ok := service.AsQuantityError(err); ok {
		respondError(c, response.CodeBadRequest, qtyErr.Error(), nil)
		return
	}
	for _, rule := range rules {
		if errors.Is(err, rule.target) {
			respondError(c, rule.code, rule.msg, nil)
			return
		}
	}
	respondError(c, fallbackCode, fallbackMsg, err)
}

var inventoryCommonErrorRules = []mappedHandlerError{
	{target: service.ErrInventoryInvalid, code: response.CodeBadRequest, msg: "inventory params invalid"},
	{target: service.ErrInventoryNotFound, code: response.CodeNotFound, msg: "inventory level not found"},
	{target: service.ErrInsufficientStock, code: response.CodeBadRequest, msg: "insufficient available stock"},
	{target: service.ErrReservationInvalid, code: response.CodeBadRequest, msg: "reservation params invalid"},
	{target: service.ErrReservationNotFound, code: response.CodeNotFound, msg: "reservation not found"},
}

var orderCommonErrorRules = []mappedHandlerError{
	{target: service.ErrOrderNotFound, code: response.CodeNotFound, msg: "order not found"},
	{target: service.ErrOrderFetchFailed, code: response.CodeInternal, msg: "order fetch failed"},
	{target: service.ErrOrderStatusInvalid, code: response.CodeBadRequest, msg: "order status invalid"},
}

var shipmentCreateErrorRules = concatMappedHandlerErrors(orderCommonErrorRules, []mappedHandlerError{
	{target: service.ErrShipmentInvalid, code: response.CodeBadRequest, msg: "shipment params invalid"},
	{target: service.ErrAlreadyFullyShipped, code: response.CodeBadRequest, msg: "order already fully shipped"},
	{target: service.ErrUnknownShipmentItem, code: response.CodeBadRequest, msg: "shipment item not on order"},
	{target: service.ErrInsufficientStock, code: response.CodeBadRequest, msg: "insufficient available stock"},
	{target: service.ErrCircuitOpen, code: response.CodeServiceUnavailable, msg: "carrier temporarily unavailable"},
	{target: service.ErrCarrierRejected, code: response.CodeBadRequest, msg: "carrier request rejected"},
})

var shipmentQueryErrorRules = []mappedHandlerError{
	{target: service.ErrShipmentInvalid, code: response.CodeBadRequest, msg: "shipment params invalid"},
	{target: service.ErrShipmentNotFound, code: response.CodeNotFound, msg: "shipment not found"},
	{target: service.ErrLabelNotFound, code: response.CodeNotFound, msg: "shipment label not found"},
}

var shipmentTrackErrorRules = concatMappedHandlerErrors(shipmentQueryErrorRules, []mappedHandlerError{
	{target: service.ErrCircuitOpen, code: response.CodeServiceUnavailable, msg: "carrier temporarily unavailable"},
	{target: service.ErrCarrierRejected, code: response.CodeBadRequest, msg: "carrier request rejected"},
})

var shipmentCancelErrorRules = concatMappedHandlerErrors(shipmentQueryErrorRules, []mappedHandlerError{
	{target: service.ErrShipmentNotCancelable, code: response.CodeBadRequest, msg: "shipment not cancelable"},
})

var returnErrorRules = concatMappedHandlerErrors(orderCommonErrorRules, []mappedHandlerError{
	{target: service.ErrReturnInvalid, code: response.CodeBadRequest, msg: "return params invalid"},
})

func concatMappedHandlerErrors(groups ...[]mappedHandlerError) []mappedHandlerError {
	total := 0
	for _, group := range groups {
		total += len(group)
	}
	result := make([]mappedHandlerError, 0, total)
	for _, group := range groups {
		result = append(result, group...)
	}
	return result
}
