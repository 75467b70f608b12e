package api

import "github.com/stockkeeper/internal/provider"

// Handler 业务接口处理器入口
// 说明：该处理器用于库存、预留、履约、退货等业务 API。
type Handler struct {
	*provider.Container
}

// New 创建业务处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
