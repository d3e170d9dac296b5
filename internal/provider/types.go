package provider

import "time"

// Certificate 证书内容
type Certificate struct {
	Certificate string // 证书内容 (PEM格式)
	PrivateKey  string // 私钥 (PEM格式)
	Chain       string // 证书链 (可选)
}

// UploadedCertificate 云端托管的证书信息
type UploadedCertificate struct {
	CertID    string    // 云端证书ID
	Name      string    // 托管名称
	Domain    string    // 主域名
	Sans      []string  // 备用域名列表
	NotAfter  time.Time // 过期时间
	Status    string    // 状态
}

// DNSRecord DNS记录
type DNSRecord struct {
	RecordID string // 记录ID
	Domain   string // 主域名
	RR       string // 主机记录 (子域名)
	Type     string // 记录类型
	Value    string // 记录值
	TTL      int    // TTL
}
