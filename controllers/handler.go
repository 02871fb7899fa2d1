package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/BerniceZTT/crm_pool/models"
	"github.com/BerniceZTT/crm_pool/service"
	"github.com/BerniceZTT/crm_pool/utils"

	"github.com/gin-gonic/gin"
)

// Handler HTTP 接口，持有全部业务组件
type Handler struct {
	svc *service.Services
}

// NewHandler 创建 Handler
func NewHandler(svc *service.Services) *Handler {
	return &Handler{svc: svc}
}

// currentUser 取当前登录用户，失败时直接写出 401
func currentUser(c *gin.Context) (*utils.LoginUser, bool) {
	user, err := utils.GetUser(c)
	if err != nil {
		utils.HandleError(c, utils.CreateUnauthorizedError())
		return nil, false
	}
	return user, true
}

// bindJSON 解析请求体，失败时直接写出 400
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		utils.HandleError(c, utils.CreateBadRequestError("请求参数错误: "+err.Error()))
		return false
	}
	return true
}

func kindParam(c *gin.Context) models.RecordKind {
	return models.RecordKind(c.Param("kind"))
}

func intQuery(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}

// partialResponse 部分失败的合并仍返回 200 与逐条结果
func partialResponse(c *gin.Context, data interface{}, err error) {
	var recErr *utils.RecordError
	if errors.As(err, &recErr) && recErr.Code == utils.CodePartialBatch && data != nil {
		c.JSON(http.StatusOK, gin.H{
			"success": false,
			"code":    recErr.Code,
			"error":   recErr.Error(),
			"data":    data,
		})
		return
	}
	utils.HandleError(c, err)
}
