package utils

import (
	"encoding/json"
	"fmt"

	"github.com/BerniceZTT/crm_pool/models"
	"github.com/dgrijalva/jwt-go"
	"github.com/gin-gonic/gin"
)

// LoginUser 当前登录用户
type LoginUser struct {
	ID       string `json:"id"`
	Role     string `json:"role"`
	Username string `json:"name"`
}

// IsManager 是否具备管理权限
func (u *LoginUser) IsManager() bool {
	return u != nil && models.UserRole(u.Role).IsManager()
}

// SystemUser 定时任务使用的系统身份
var SystemUser = &LoginUser{ID: "system", Role: string(models.UserRoleSUPER_ADMIN), Username: "system"}

func GetUser(c *gin.Context) (*LoginUser, error) {
	// 获取当前用户信息
	currentUser, exists := c.Get("user")
	if !exists {
		return nil, fmt.Errorf("GetUser 未授权访问")
	}

	// 处理不同类型的 claims
	var claims map[string]interface{}
	switch v := currentUser.(type) {
	case *LoginUser:
		return v, nil
	case jwt.MapClaims:
		claims = make(map[string]interface{}, len(v))
		for key, val := range v {
			claims[key] = val
		}
	case map[string]interface{}:
		claims = v
	default:
		// 尝试通过 JSON 序列化/反序列化转换
		data, err := json.Marshal(currentUser)
		if err != nil {
			return nil, fmt.Errorf("序列化用户信息失败: %v", err)
		}
		if err := json.Unmarshal(data, &claims); err != nil {
			return nil, fmt.Errorf("反序列化用户信息失败: %v", err)
		}
	}

	// 获取用户信息字段
	id, ok := claims["id"].(string)
	if !ok || id == "" {
		return nil, fmt.Errorf("无效的用户ID")
	}

	role, ok := claims["role"].(string)
	if !ok {
		return nil, fmt.Errorf("无效的用户角色")
	}

	username, ok := claims["username"].(string)
	if !ok {
		// 检查是否有 "name" 字段作为备选
		if name, ok := claims["name"].(string); ok {
			username = name
		} else {
			return nil, fmt.Errorf("无效的用户名")
		}
	}
	return &LoginUser{
		ID:       id,
		Role:     role,
		Username: username,
	}, nil
}
