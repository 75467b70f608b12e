package service

import (
	"strings"

	"github.com/stockkeeper/internal/constants"
)

// orderStatusTransitions 订单状态机：键为当前状态，值为允许的下一跳
// 履约主链单向推进，cancelled/returned 为分支终态。
var orderStatusTransitions = map[string][]string{
	constants.OrderStatusPending:     {constants.OrderStatusProcessing, constants.OrderStatusCancelled},
	constants.OrderStatusProcessing:  {constants.OrderStatusPicking, constants.OrderStatusCancelled},
	constants.OrderStatusPicking:     {constants.OrderStatusPicked, constants.OrderStatusCancelled},
	constants.OrderStatusPicked:      {constants.OrderStatusPacking, constants.OrderStatusCancelled},
	constants.OrderStatusPacking:     {constants.OrderStatusPacked, constants.OrderStatusCancelled},
	constants.OrderStatusPacked:      {constants.OrderStatusReadyToShip, constants.OrderStatusCancelled},
	constants.OrderStatusReadyToShip: {constants.OrderStatusShipped, constants.OrderStatusCancelled},
	constants.OrderStatusShipped:     {constants.OrderStatusInTransit, constants.OrderStatusCancelled, constants.OrderStatusReturned},
	constants.OrderStatusInTransit:   {constants.OrderStatusDelivered, constants.OrderStatusCancelled, constants.OrderStatusReturned},
	constants.OrderStatusDelivered:   {constants.OrderStatusReturned},
	constants.OrderStatusCancelled:   {},
	constants.OrderStatusReturned:    {},
}

// isTransitionAllowed 判断订单状态流转是否合法
func isTransitionAllowed(from, to string) bool {
	current := strings.ToLower(strings.TrimSpace(from))
	target := strings.ToLower(strings.TrimSpace(to))
	if current == target {
		return true
	}
	for _, allowed := range orderStatusTransitions[current] {
		if allowed == target {
			return true
		}
	}
	return false
}

// isTerminalOrderStatus 判断订单是否处于分支终态
func isTerminalOrderStatus(status string) bool {
	s := strings.ToLower(strings.TrimSpace(status))
	return s == constants.OrderStatusCancelled || s == constants.OrderStatusReturned
}
