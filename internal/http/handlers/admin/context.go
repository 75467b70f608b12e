package admin

import (
	handlershared "github.com/stockkeeper/internal/http/handlers/shared"

	"github.com/gin-gonic/gin"
)

func getOrgID(c *gin.Context) (uint, bool) {
	return handlershared.GetContextUintWithKeys(c, "org_id", "organization id invalid", "organization id type invalid")
}

func getUserID(c *gin.Context) (uint, bool) {
	return handlershared.GetContextUintWithKeys(c, "user_id", "user id invalid", "user id type invalid")
}

func getRole(c *gin.Context) string {
	return handlershared.GetContextString(c, "role")
}
