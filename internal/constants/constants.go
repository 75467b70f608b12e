package constants

// 订单状态常量（11 态履约状态机 + cancelled/returned 两个分支终态）
const (
	OrderStatusPending     = "pending"
	OrderStatusProcessing  = "processing"
	OrderStatusPicking     = "picking"
	OrderStatusPicked      = "picked"
	OrderStatusPacking     = "packing"
	OrderStatusPacked      = "packed"
	OrderStatusReadyToShip = "ready_to_ship"
	OrderStatusShipped     = "shipped"
	OrderStatusInTransit   = "in_transit"
	OrderStatusDelivered   = "delivered"
	OrderStatusCancelled   = "cancelled"
	OrderStatusReturned    = "returned"
)

// 预留单状态常量（active 为唯一非终态，终态单向不可逆）
const (
	ReservationStatusActive        = "active"
	ReservationStatusReleased      = "released"
	ReservationStatusForceReleased = "force_released"
	ReservationStatusExpired       = "expired"
)

// 审计动作常量
const (
	AuditActionCreate   = "create"
	AuditActionUpdate   = "update"
	AuditActionDelete   = "delete"
	AuditActionTransfer = "transfer"
	AuditActionReserve  = "reserve"
	AuditActionRelease  = "release"
	AuditActionImport   = "import"
)

// 货品状态常量（退货/入库）
const (
	StockConditionSellable = "sellable"
	StockConditionDamaged  = "damaged"
)

// 运单状态常量
const (
	ShipmentStatusPending      = "pending"
	ShipmentStatusLabelCreated = "label_created"
	ShipmentStatusInTransit    = "in_transit"
	ShipmentStatusDelivered    = "delivered"
	ShipmentStatusFailed       = "failed"
	ShipmentStatusReturned     = "returned"
)

// 熔断器状态常量
const (
	BreakerStateClosed   = "closed"
	BreakerStateOpen     = "open"
	BreakerStateHalfOpen = "half_open"
)

// 角色常量
const (
	RoleAdmin            = "admin"
	RoleInventoryManager = "inventory_manager"
	RoleViewer           = "viewer"
)

// 领域事件类型常量
const (
	EventInventoryCreated         = "inventory.created"
	EventInventoryUpdated         = "inventory.updated"
	EventReservationReleased      = "reservation.released"
	EventReservationForceReleased = "reservation.force_released"
	EventOrderCancelled           = "order.cancelled"
)

// outbox 事件状态常量
const (
	OutboxStatusPending    = "pending"
	OutboxStatusDispatched = "dispatched"
	OutboxStatusFailed     = "failed"
)

// 异步任务类型常量
const (
	TaskEventDispatch     = "event:dispatch"
	TaskOwnerNotification = "notification:owner"
)

// 队列名称常量
const (
	QueueDefault = "default"
)

// DefaultRetentionDays 审计记录默认保留约 7 年
const DefaultRetentionDays = 365 * 7

// 分页默认值
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// 强制释放原因码常量
const (
	ReasonCodeStuckOrder   = "stuck_order"
	ReasonCodeExpiredHold  = "expired_hold"
	ReasonCodeManualAdjust = "manual_adjust"
	ReasonCodeCancellation = "order_cancelled"
	ReasonCodeReturn       = "order_returned"
	ReasonCodeShipment     = "order_shipped"
)
