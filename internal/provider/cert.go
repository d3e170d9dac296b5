package provider

import "context"

// CertUploader 云端证书托管接口：把本地签发的证书
// 上传到云厂商的证书服务，供CDN/负载均衡等产品引用。
type CertUploader interface {
	// Name 返回提供商名称
	Name() string

	// UploadCertificate 上传证书，返回云端证书ID
	UploadCertificate(ctx context.Context, name string, cert *Certificate) (certID string, err error)

	// ListCertificates 列出云端已托管的证书
	ListCertificates(ctx context.Context) ([]*UploadedCertificate, error)

	// DeleteCertificate 删除云端证书（替换后清理旧证书用）
	DeleteCertificate(ctx context.Context, certID string) error
}
