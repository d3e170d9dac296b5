package huawei

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/huaweicloud/huaweicloud-sdk-go-v3/core/auth/basic"
	scm "github.com/huaweicloud/huaweicloud-sdk-go-v3/services/scm/v3"
	scmModel "github.com/huaweicloud/huaweicloud-sdk-go-v3/services/scm/v3/model"
	scmRegion "github.com/huaweicloud/huaweicloud-sdk-go-v3/services/scm/v3/region"

	"acme-manager/internal/config"
	"acme-manager/internal/provider"
)

// CertUploader 华为云证书托管（SCM）
type CertUploader struct {
	client *scm.ScmClient
}

// NewCertUploader 创建华为云证书托管客户端
func NewCertUploader(cfg *config.HuaweiConfig) (*CertUploader, error) {
	auth := basic.NewCredentialsBuilder().
		WithAk(cfg.AccessKey).
		WithSk(cfg.SecretKey).
		Build()

	region := cfg.Region
	if region == "" {
		region = "cn-north-4"
	}

	regionObj, err := scmRegion.SafeValueOf(region)
	if err != nil {
		return nil, fmt.Errorf("无效的区域: %s", region)
	}

	client := scm.NewScmClient(
		scm.ScmClientBuilder().
			WithRegion(regionObj).
			WithCredential(auth).
			Build())

	return &CertUploader{client: client}, nil
}

// Name 返回提供商名称
func (p *CertUploader) Name() string {
	return "huawei"
}

// UploadCertificate 导入证书到SCM
func (p *CertUploader) UploadCertificate(ctx context.Context, name string, cert *provider.Certificate) (string, error) {
	log.Printf("[华为云] 导入证书: %s", name)

	body := &scmModel.ImportCertificateRequestBody{
		Name:        name,
		Certificate: cert.Certificate,
		PrivateKey:  cert.PrivateKey,
	}
	if cert.Chain != "" {
		chain := cert.Chain
		body.CertificateChain = &chain
	}

	request := &scmModel.ImportCertificateRequest{Body: body}

	response, err := p.client.ImportCertificate(request)
	if err != nil {
		return "", fmt.Errorf("导入证书失败: %w", err)
	}

	certID := ""
	if response.CertificateId != nil {
		certID = *response.CertificateId
	}
	log.Printf("[华为云] 证书导入成功，证书ID: %s", certID)

	return certID, nil
}

// ListCertificates 列出SCM中托管的证书
func (p *CertUploader) ListCertificates(ctx context.Context) ([]*provider.UploadedCertificate, error) {
	request := &scmModel.ListCertificatesRequest{}

	response, err := p.client.ListCertificates(request)
	if err != nil {
		return nil, fmt.Errorf("获取证书列表失败: %w", err)
	}

	var certs []*provider.UploadedCertificate
	if response.Certificates != nil {
		for _, cert := range *response.Certificates {
			var notAfter time.Time
			if cert.ExpireTime != "" {
				notAfter, _ = time.Parse("2006-01-02 15:04:05", cert.ExpireTime)
			}

			var sans []string
			if cert.Sans != "" {
				sans = strings.Split(cert.Sans, ",")
			}

			certs = append(certs, &provider.UploadedCertificate{
				CertID:   cert.Id,
				Name:     cert.Name,
				Domain:   cert.Domain,
				Sans:     sans,
				NotAfter: notAfter,
				Status:   cert.Status,
			})
		}
	}

	return certs, nil
}

// DeleteCertificate 删除SCM中托管的证书
func (p *CertUploader) DeleteCertificate(ctx context.Context, certID string) error {
	log.Printf("[华为云] 删除云端证书: %s", certID)

	request := &scmModel.DeleteCertificateRequest{
		CertificateId: certID,
	}

	if _, err := p.client.DeleteCertificate(request); err != nil {
		return fmt.Errorf("删除证书失败: %w", err)
	}

	return nil
}
