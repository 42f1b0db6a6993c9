package response

import "github.com/gin-gonic/gin"

// Body 是所有接口统一的 JSON 响应结构。
type Body struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// OK 输出成功响应。
func OK(c *gin.Context, status int, message string, data any) {
	c.JSON(status, Body{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// Fail 输出失败响应。
func Fail(c *gin.Context, status int, message, errMsg string) {
	c.JSON(status, Body{
		Success: false,
		Message: message,
		Error:   errMsg,
	})
}

// FailWithData 输出带附加数据的失败响应（如登录时要求先验证邮箱）。
func FailWithData(c *gin.Context, status int, message, errMsg string, data any) {
	c.JSON(status, Body{
		Success: false,
		Message: message,
		Error:   errMsg,
		Data:    data,
	})
}
