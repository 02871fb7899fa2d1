package utils

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/BerniceZTT/crm_pool/models"
	"github.com/gin-gonic/gin"
)

// ApiError 自定义API错误
type ApiError struct {
	StatusCode int
	Message    string
	ErrorCode  string
}

// Error 实现error接口
func (e *ApiError) Error() string {
	return e.Message
}

// NewApiError 创建API错误
func NewApiError(message string, statusCode int, errorCode string) *ApiError {
	return &ApiError{
		StatusCode: statusCode,
		Message:    message,
		ErrorCode:  errorCode,
	}
}

// CreateUnauthorizedError 创建未授权错误
func CreateUnauthorizedError() *ApiError {
	return NewApiError("未授权访问", http.StatusUnauthorized, "UNAUTHORIZED")
}

// CreateForbiddenError 创建权限不足错误
func CreateForbiddenError() *ApiError {
	return NewApiError("权限不足", http.StatusForbidden, "FORBIDDEN")
}

// CreateBadRequestError 创建错误请求错误
func CreateBadRequestError(message string) *ApiError {
	return NewApiError(message, http.StatusBadRequest, "BAD_REQUEST")
}

// ErrorCode 记录操作错误码
type ErrorCode string

const (
	CodeNotFound           ErrorCode = "NOT_FOUND"
	CodeAlreadyClaimed     ErrorCode = "ALREADY_CLAIMED"
	CodeOwnershipMismatch  ErrorCode = "OWNERSHIP_MISMATCH"
	CodeDuplicateCode      ErrorCode = "DUPLICATE_CODE"
	CodeDuplicateName      ErrorCode = "DUPLICATE_NAME"
	CodePartialBatch       ErrorCode = "PARTIAL_BATCH_FAILURE"
	CodeAlreadyConverted   ErrorCode = "ALREADY_CONVERTED"
	CodeInvalidTransition  ErrorCode = "INVALID_TRANSITION"
	CodeCycleDetected      ErrorCode = "CYCLE_DETECTED"
	CodeConcurrentConflict ErrorCode = "CONCURRENT_CONFLICT"
)

// RecordError 销售记录操作错误
type RecordError struct {
	Code     ErrorCode
	Op       string
	RecordID string
	Reason   string
	Err      error
}

// Error 实现error接口
func (e *RecordError) Error() string {
	msg := string(e.Code)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.RecordID != "" {
		msg += " [" + e.RecordID + "]"
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap 返回底层错误
func (e *RecordError) Unwrap() error {
	return e.Err
}

// Is 错误码相同即视为同一类错误
func (e *RecordError) Is(target error) bool {
	t, ok := target.(*RecordError)
	return ok && t.Code == e.Code
}

// 哨兵错误，配合 errors.Is 使用
var (
	ErrNotFound           = &RecordError{Code: CodeNotFound}
	ErrAlreadyClaimed     = &RecordError{Code: CodeAlreadyClaimed}
	ErrOwnershipMismatch  = &RecordError{Code: CodeOwnershipMismatch}
	ErrDuplicateCode      = &RecordError{Code: CodeDuplicateCode}
	ErrDuplicateName      = &RecordError{Code: CodeDuplicateName}
	ErrPartialBatch       = &RecordError{Code: CodePartialBatch}
	ErrAlreadyConverted   = &RecordError{Code: CodeAlreadyConverted}
	ErrInvalidTransition  = &RecordError{Code: CodeInvalidTransition}
	ErrCycleDetected      = &RecordError{Code: CodeCycleDetected}
	ErrConcurrentConflict = &RecordError{Code: CodeConcurrentConflict}
)

// NewRecordError 创建记录操作错误
func NewRecordError(code ErrorCode, op, recordID, reason string) *RecordError {
	return &RecordError{Code: code, Op: op, RecordID: recordID, Reason: reason}
}

// CodeOf 提取错误码，非记录错误返回空串
func CodeOf(err error) ErrorCode {
	var re *RecordError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// StatusOf 错误码对应的HTTP状态码
func StatusOf(code ErrorCode) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeAlreadyClaimed, CodeOwnershipMismatch, CodeDuplicateCode, CodeDuplicateName,
		CodeAlreadyConverted, CodeConcurrentConflict:
		return http.StatusConflict
	case CodeInvalidTransition, CodeCycleDetected, CodePartialBatch:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// BatchError 批量结果存在失败时返回 PARTIAL_BATCH_FAILURE
func BatchError(result *models.BatchResult) error {
	failed := result.Failed()
	if len(failed) == 0 {
		return nil
	}
	return &RecordError{
		Code:   CodePartialBatch,
		Op:     result.Op,
		Reason: fmt.Sprintf("%d/%d failed", len(failed), len(result.Outcomes)),
	}
}

// HandleError 处理错误并返回适当的响应
func HandleError(c *gin.Context, err error) {
	if c == nil || err == nil {
		return
	}
	errorMessage := err.Error()

	// 处理记录操作错误
	var recErr *RecordError
	if errors.As(err, &recErr) {
		status := StatusOf(recErr.Code)
		Logger.Warn().Str("path", c.Request.URL.Path).Str("code", string(recErr.Code)).Msg(errorMessage)
		response := gin.H{"success": false, "error": errorMessage, "code": recErr.Code}
		if recErr.RecordID != "" {
			response["recordId"] = recErr.RecordID
		}
		c.JSON(status, response)
		return
	}

	// 处理API错误
	var apiErr *ApiError
	if errors.As(err, &apiErr) {
		response := gin.H{"success": false, "error": apiErr.Message}
		if apiErr.ErrorCode != "" {
			response["code"] = apiErr.ErrorCode
		}
		c.JSON(apiErr.StatusCode, response)
		return
	}

	// 其他未预期的错误
	LogError("API错误", err, map[string]interface{}{
		"path":   c.Request.URL.Path,
		"method": c.Request.Method,
	})
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   errorMessage,
		"success": false,
	})
}

// SuccessResponse 成功响应
func SuccessResponse(c *gin.Context, data interface{}, message string, statusCode ...int) {
	code := http.StatusOK
	if len(statusCode) > 0 {
		code = statusCode[0]
	}

	response := gin.H{"success": true}
	if data != nil {
		response["data"] = data
	}
	if message != "" {
		response["message"] = message
	}

	c.JSON(code, response)
}

// BatchResponse 批量操作响应，部分失败时附带错误码
func BatchResponse(c *gin.Context, result *models.BatchResult) {
	response := gin.H{
		"success":   true,
		"data":      result,
		"succeeded": result.Succeeded(),
	}
	if err := BatchError(result); err != nil {
		response["success"] = false
		response["code"] = CodePartialBatch
		response["error"] = err.Error()
	}
	c.JSON(http.StatusOK, response)
}
