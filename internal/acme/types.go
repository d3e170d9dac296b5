package acme

import (
	"time"

	acmewire "github.com/mholt/acmez/v3/acme"
)

// 线协议类型直接复用 acmez 的定义，包内统一别名，
// 调用方只需要导入本包。
type (
	// Order ACME订单（服务端状态）
	Order = acmewire.Order
	// Authorization 域名授权对象
	Authorization = acmewire.Authorization
	// Challenge 单个质询
	Challenge = acmewire.Challenge
	// Identifier 订单标识符 (dns/ip)
	Identifier = acmewire.Identifier
	// Problem ACME错误详情
	Problem = acmewire.Problem
)

// 质询类型
const (
	ChallengeTypeDNS01     = acmewire.ChallengeTypeDNS01
	ChallengeTypeHTTP01    = acmewire.ChallengeTypeHTTP01
	ChallengeTypeTLSALPN01 = acmewire.ChallengeTypeTLSALPN01
)

// 订单/授权状态
const (
	StatusPending     = "pending"
	StatusReady       = "ready"
	StatusProcessing  = "processing"
	StatusValid       = "valid"
	StatusInvalid     = "invalid"
	StatusDeactivated = "deactivated"
	StatusExpired     = "expired"
	StatusRevoked     = "revoked"
)

// RenewalInfo 服务端建议的续期窗口 (RFC 8555 扩展 / ARI)
type RenewalInfo struct {
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	ExplanationURL string    `json:"explanationUrl,omitempty"`
}

// IsZero 窗口是否为空
func (r *RenewalInfo) IsZero() bool {
	return r == nil || (r.Start.IsZero() && r.End.IsZero())
}
