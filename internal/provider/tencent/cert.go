package tencent

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/profile"
	ssl "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/ssl/v20191205"

	"acme-manager/internal/config"
	"acme-manager/internal/provider"
)

// CertUploader 腾讯云证书托管（SSL证书服务）
type CertUploader struct {
	client *ssl.Client
}

// NewCertUploader 创建腾讯云证书托管客户端
func NewCertUploader(cfg *config.TencentConfig) (*CertUploader, error) {
	credential := common.NewCredential(cfg.SecretID, cfg.SecretKey)
	cpf := profile.NewClientProfile()
	cpf.HttpProfile.Endpoint = "ssl.tencentcloudapi.com"

	region := cfg.Region
	if region == "" {
		region = "ap-guangzhou"
	}

	client, err := ssl.NewClient(credential, region, cpf)
	if err != nil {
		return nil, fmt.Errorf("创建腾讯云SSL客户端失败: %w", err)
	}

	return &CertUploader{client: client}, nil
}

// Name 返回提供商名称
func (p *CertUploader) Name() string {
	return "tencent"
}

// UploadCertificate 上传证书到SSL证书服务
func (p *CertUploader) UploadCertificate(ctx context.Context, name string, cert *provider.Certificate) (string, error) {
	log.Printf("[腾讯云] 上传证书: %s", name)

	request := ssl.NewUploadCertificateRequest()
	request.CertificatePublicKey = common.StringPtr(cert.Certificate)
	request.CertificatePrivateKey = common.StringPtr(cert.PrivateKey)
	request.CertificateType = common.StringPtr("SVR")
	request.Alias = common.StringPtr(name)

	response, err := p.client.UploadCertificate(request)
	if err != nil {
		return "", fmt.Errorf("上传证书失败: %w", err)
	}

	certID := ""
	if response.Response.CertificateId != nil {
		certID = *response.Response.CertificateId
	}
	log.Printf("[腾讯云] 证书上传成功，CertificateId: %s", certID)

	return certID, nil
}

// ListCertificates 列出托管的证书
func (p *CertUploader) ListCertificates(ctx context.Context) ([]*provider.UploadedCertificate, error) {
	request := ssl.NewDescribeCertificatesRequest()
	request.Limit = common.Uint64Ptr(100)

	response, err := p.client.DescribeCertificates(request)
	if err != nil {
		return nil, fmt.Errorf("获取证书列表失败: %w", err)
	}

	var certs []*provider.UploadedCertificate
	for _, cert := range response.Response.Certificates {
		var notAfter time.Time
		if cert.CertEndTime != nil {
			notAfter, _ = time.Parse("2006-01-02 15:04:05", *cert.CertEndTime)
		}

		var sans []string
		if cert.SubjectAltName != nil {
			for _, s := range cert.SubjectAltName {
				if s != nil {
					sans = append(sans, *s)
				}
			}
		}

		domain := ""
		if cert.Domain != nil {
			domain = *cert.Domain
		}
		alias := ""
		if cert.Alias != nil {
			alias = *cert.Alias
		}

		certs = append(certs, &provider.UploadedCertificate{
			CertID:   *cert.CertificateId,
			Name:     alias,
			Domain:   domain,
			Sans:     sans,
			NotAfter: notAfter,
			Status:   "issued",
		})
	}

	return certs, nil
}

// DeleteCertificate 删除托管的证书
func (p *CertUploader) DeleteCertificate(ctx context.Context, certID string) error {
	log.Printf("[腾讯云] 删除云端证书: %s", certID)

	request := ssl.NewDeleteCertificateRequest()
	request.CertificateId = common.StringPtr(certID)

	if _, err := p.client.DeleteCertificate(request); err != nil {
		return fmt.Errorf("删除证书失败: %w", err)
	}

	return nil
}
