package plugin

import (
	"acme-manager/internal/acme"
	"acme-manager/internal/renewal"
)

// ValidationContext 单个标识符的验证状态，
// 贯穿 Prepare → Commit → Submit → CleanUp 全程。
type ValidationContext struct {
	// 所属订单
	Order *renewal.OrderContext
	// 被验证的标识符（域名）
	Identifier string
	// 展示用标签（通常等于标识符）
	Label string

	// 本标识符生效的验证选项（全局覆盖已解析）
	Options *renewal.ValidationOptions

	// 执行验证的插件实例。插件声明可复用时整批共享一个，
	// 否则每个标识符单独创建。
	Plugin ValidationPlugin

	// 服务端授权对象
	Authorization acme.Authorization
	// 选中的质询，跳过验证时为nil
	Challenge *acme.Challenge
	// 质询类型
	ChallengeType string
	// 质询的密钥授权串 (token.thumbprint)
	KeyAuthorization string

	// 授权在运行前就已是有效状态
	Valid bool

	// 各阶段产生的错误，致命错误写回订单结果
	ErrorMessages []string
}

// AddError 记录验证错误
func (v *ValidationContext) AddError(msg string) {
	v.ErrorMessages = append(v.ErrorMessages, msg)
}

// Failed 验证是否已失败
func (v *ValidationContext) Failed() bool {
	return len(v.ErrorMessages) > 0
}
