package plugin

import (
	"context"
	"crypto"

	"acme-manager/internal/acme"
	"acme-manager/internal/renewal"
)

// TargetPlugin 目标插件：生成本次运行需要保护的目标。
// 返回 (nil, nil) 表示当前没有需要保护的内容。
type TargetPlugin interface {
	Generate(ctx context.Context) (*renewal.Target, error)
}

// OrderPlugin 订单插件：把目标切分为一个或多个订单
type OrderPlugin interface {
	Split(r *renewal.Renewal, target *renewal.Target) ([]*renewal.Order, error)
}

// ValidationPlugin 验证插件：完成单个标识符的所有权证明。
// 生命周期固定为 Prepare → Commit → Submit → CleanUp，
// CleanUp 无论成败总会执行。
type ValidationPlugin interface {
	// ChallengeTypes 支持的质询类型
	ChallengeTypes() []string
	// Parallelism 并发能力声明
	Parallelism() Parallelism
	// SelectChallenge 从多个可用质询中选择一个。
	// 只声明单一类型的插件不会被调用。
	SelectChallenge(choices []acme.Challenge) *acme.Challenge
	// PrepareChallenge 准备应答（写DNS记录、放置文件等）
	PrepareChallenge(ctx context.Context, vc *ValidationContext) Result
	// Commit 批次内所有Prepare完成后调用一次，
	// 用于合并等待（如DNS记录传播）
	Commit(ctx context.Context) Result
	// CleanUp 清理本实例准备过的所有应答
	CleanUp(ctx context.Context) Result
}

// CsrPlugin CSR插件：生成私钥和证书签名请求
type CsrPlugin interface {
	// GenerateCsr 生成CSR（DER）。keyPath非空且文件存在时复用已有私钥。
	GenerateCsr(ctx context.Context, target *renewal.Target, keyPath string) ([]byte, error)
	// Keys 返回最近一次GenerateCsr使用的私钥
	Keys() (crypto.Signer, error)
}

// StoreInfo 证书保存后的位置信息，供安装插件引用
type StoreInfo struct {
	// 保存插件名称
	Name string
	// 证书文件路径
	Path string
	// 私钥文件路径，可为空
	KeyPath string
}

// StorePlugin 保存插件：把签发的证书写入目标位置。
// 返回 (nil, nil) 表示该插件对此证书无事可做。
type StorePlugin interface {
	Save(ctx context.Context, cert *renewal.CertificateInfo) (*StoreInfo, error)
	Delete(ctx context.Context, cert *renewal.CertificateInfo) error
}

// InstallationPlugin 安装插件：把保存好的证书接入使用方
type InstallationPlugin interface {
	Install(ctx context.Context, stores map[string]*StoreInfo, newCert, previousCert *renewal.CertificateInfo) error
}

// Disabler 插件可选实现：报告自身当前不可用及原因
// （如缺少凭证配置）。不可用的插件导致订单中止。
type Disabler interface {
	Disabled() (bool, string)
}
