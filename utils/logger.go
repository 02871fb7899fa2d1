package utils

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger 全局日志对象，初始化前丢弃所有输出
var Logger = zerolog.Nop()

// InitLogger 初始化日志系统
func InitLogger(debug bool) {
	// 配置日志输出
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}

	// 创建日志记录器
	Logger = zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger().
		Level(zerolog.InfoLevel)

	// 设置日志级别
	if debug {
		Logger = Logger.Level(zerolog.DebugLevel)
	}

	Logger.Info().Msg("日志系统初始化完成")
}

// LogApiRequest 记录API请求
func LogApiRequest(method, url string, params interface{}, headers map[string]string) {
	// 过滤敏感信息
	if headers != nil && headers["Authorization"] != "" {
		if len(headers["Authorization"]) > 15 {
			headers["Authorization"] = headers["Authorization"][:15] + "..."
		}
	}

	Logger.Debug().
		Str("method", method).
		Str("url", url).
		Interface("params", params).
		Interface("headers", headers).
		Msg("API请求")
}

// LogApiResponse 记录API响应
func LogApiResponse(method, url string, statusCode int, responseTime time.Duration) {
	event := Logger.Info()
	if statusCode >= 500 {
		event = Logger.Error()
	} else if statusCode >= 400 {
		event = Logger.Warn()
	}
	event.
		Str("method", method).
		Str("url", url).
		Int("statusCode", statusCode).
		Dur("responseTime", responseTime).
		Msg("API响应")
}

// LogTransition 记录一次已提交的归属变更
func LogTransition(op, kind, id, fromOwner, toOwner, reason string) {
	Logger.Info().
		Str("op", op).
		Str("kind", kind).
		Str("id", id).
		Str("from", fromOwner).
		Str("owner", toOwner).
		Str("reason", reason).
		Msg("归属变更")
}

// LogError 记录错误
func LogError(message string, err error, context map[string]interface{}) {
	Logger.Error().
		Err(err).
		Interface("context", context).
		Msg(message)
}

// LogDbOperation 记录数据库操作
func LogDbOperation(operation string, collection string, query interface{}) {
	Logger.Debug().
		Str("operation", operation).
		Str("collection", collection).
		Interface("query", query).
		Msg("数据库操作")
}

// LogInconsistency 记录数据不一致情况
func LogInconsistency(operation string, id string, expected interface{}, actual interface{}) {
	Logger.Error().
		Str("operation", operation).
		Str("id", id).
		Interface("expected", expected).
		Interface("actual", actual).
		Msg("数据一致性问题")
}
