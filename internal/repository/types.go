package repository

import "time"

// AuditLogFilter 查询审计流水的过滤条件（始终叠加组织隔离）
type AuditLogFilter struct {
	Page        int
	PageSize    int
	SKU         string
	WarehouseID string
	Action      string
	UserID      uint
	ReasonCode  string
	StartDate   *time.Time
	EndDate     *time.Time
	SortBy      string
	SortOrder   string
}

// ReservationFilter 查询预留单的过滤条件
type ReservationFilter struct {
	Page     int
	PageSize int
	SKU      string
	OrderID  uint
	Status   string
}

// ShipmentFilter 查询运单的过滤条件
type ShipmentFilter struct {
	Page     int
	PageSize int
	OrderID  uint
	Provider string
	Status   string
}
