package admin

import (
	"github.com/stockkeeper/internal/http/response"

	"github.com/gin-gonic/gin"
)

// GetCarrierBreakerStatus 查询各承运商熔断器状态快照
func (h *Handler) GetCarrierBreakerStatus(c *gin.Context) {
	gateway := h.CarrierGateway
	if gateway == nil {
		respondError(c, response.CodeInternal, "carrier gateway unavailable", nil)
		return
	}

	breaker := gateway.Breaker()
	providers := gateway.Providers()
	snapshots := make([]interface{}, 0, len(providers))
	for _, provider := range providers {
		snapshot, err := breaker.Snapshot(c.Request.Context(), provider)
		if err != nil {
			requestLog(c).Warnw("breaker_snapshot_failed", "provider", provider, "error", err)
			continue
		}
		snapshots = append(snapshots, snapshot)
	}
	response.Success(c, snapshots)
}
