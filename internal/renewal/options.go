package renewal

// 各插件的选项类型：显式字段列表，不做反射式通用序列化。
// 选项随 Renewal 一起持久化，字段只增不改，保证历史记录可读。

// TargetOptions 目标插件选项
type TargetOptions struct {
	Plugin string `json:"plugin"`
	// manual 插件使用：主域名 + 备用域名
	CommonName  string   `json:"common_name,omitempty"`
	Identifiers []string `json:"identifiers,omitempty"`
	// 站点引用（IIS/网关等外部站点的编号）
	SiteIDs []int `json:"site_ids,omitempty"`
}

// OrderOptions 订单拆分插件选项
type OrderOptions struct {
	Plugin string `json:"plugin"`
}

// ValidationOptions 验证插件选项
type ValidationOptions struct {
	Plugin string `json:"plugin"`
	// 质询类型 (dns-01 / http-01)，为空时由插件决定
	ChallengeType string `json:"challenge_type,omitempty"`
	// dns 插件使用：DNS提供商名称
	Provider string `json:"provider,omitempty"`
	// dns 插件使用：记录写入后的传播等待秒数
	PropagationSeconds int `json:"propagation_seconds,omitempty"`
	// http 插件使用：站点根目录
	Webroot string `json:"webroot,omitempty"`
	// 禁用此配置（全局覆盖项可以临时下线）
	Disabled bool `json:"disabled,omitempty"`
}

// CsrOptions CSR插件选项
type CsrOptions struct {
	Plugin string `json:"plugin"`
	// rsa 插件使用：密钥位数，默认3072
	KeyBits int `json:"key_bits,omitempty"`
	// 跨次续期复用私钥
	ReusePrivateKey bool `json:"reuse_private_key,omitempty"`
	OcspMustStaple  bool `json:"ocsp_must_staple,omitempty"`
}

// StoreOptions 存储插件选项
type StoreOptions struct {
	Plugin string `json:"plugin"`
	// pemfiles 插件使用：输出目录
	Path string `json:"path,omitempty"`
	// cloud 插件使用：云提供商名称
	Provider string `json:"provider,omitempty"`
}

// InstallationOptions 安装插件选项
type InstallationOptions struct {
	Plugin string `json:"plugin"`
	// script 插件使用：安装命令, 支持 ${CERT_FILE} 等变量
	Script string `json:"script,omitempty"`
}
