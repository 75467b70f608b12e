package api

import (
	handlershared "github.com/stockkeeper/internal/http/handlers/shared"

	"github.com/gin-gonic/gin"
)

func getContextUintWithKeys(c *gin.Context, key, invalidMsg, typeInvalidMsg string) (uint, bool) {
	return handlershared.GetContextUintWithKeys(c, key, invalidMsg, typeInvalidMsg)
}

func getOrgID(c *gin.Context) (uint, bool) {
	return getContextUintWithKeys(c, "org_id", "organization id invalid", "organization id type invalid")
}

func getUserID(c *gin.Context) (uint, bool) {
	return getContextUintWithKeys(c, "user_id", "user id invalid", "user id type invalid")
}
