package aliyun

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	cas "github.com/alibabacloud-go/cas-20200407/v3/client"
	openapi "github.com/alibabacloud-go/darabonba-openapi/v2/client"
	"github.com/alibabacloud-go/tea/tea"

	"acme-manager/internal/config"
	"acme-manager/internal/provider"
)

// CertUploader 阿里云证书托管（CAS）
type CertUploader struct {
	client *cas.Client
}

// NewCertUploader 创建阿里云证书托管客户端
func NewCertUploader(cfg *config.AliyunConfig) (*CertUploader, error) {
	clientConfig := &openapi.Config{
		AccessKeyId:     tea.String(cfg.AccessKeyID),
		AccessKeySecret: tea.String(cfg.AccessKeySecret),
		Endpoint:        tea.String("cas.aliyuncs.com"),
	}

	client, err := cas.NewClient(clientConfig)
	if err != nil {
		return nil, fmt.Errorf("创建阿里云CAS客户端失败: %w", err)
	}

	return &CertUploader{client: client}, nil
}

// Name 返回提供商名称
func (p *CertUploader) Name() string {
	return "aliyun"
}

// UploadCertificate 上传证书到CAS
func (p *CertUploader) UploadCertificate(ctx context.Context, name string, cert *provider.Certificate) (string, error) {
	log.Printf("[阿里云] 上传证书: %s", name)

	pemChain := cert.Certificate
	if cert.Chain != "" && !strings.Contains(pemChain, cert.Chain) {
		pemChain = pemChain + "\n" + cert.Chain
	}

	request := &cas.UploadUserCertificateRequest{
		Name: tea.String(name),
		Cert: tea.String(pemChain),
		Key:  tea.String(cert.PrivateKey),
	}

	response, err := p.client.UploadUserCertificate(request)
	if err != nil {
		return "", fmt.Errorf("上传证书失败: %w", err)
	}

	certID := fmt.Sprintf("%d", tea.Int64Value(response.Body.CertId))
	log.Printf("[阿里云] 证书上传成功，证书ID: %s", certID)

	return certID, nil
}

// ListCertificates 列出CAS中托管的证书
func (p *CertUploader) ListCertificates(ctx context.Context) ([]*provider.UploadedCertificate, error) {
	request := &cas.ListUserCertificateOrderRequest{
		OrderType: tea.String("UPLOAD"),
	}

	response, err := p.client.ListUserCertificateOrder(request)
	if err != nil {
		return nil, fmt.Errorf("获取证书列表失败: %w", err)
	}

	var certs []*provider.UploadedCertificate
	for _, cert := range response.Body.CertificateOrderList {
		domain := tea.StringValue(cert.CommonName)
		if domain == "" {
			domain = tea.StringValue(cert.Domain)
		}

		var notAfter time.Time
		if endTime := tea.Int64Value(cert.CertEndTime); endTime > 0 {
			notAfter = time.UnixMilli(endTime)
		}

		var sans []string
		if sansStr := tea.StringValue(cert.Sans); sansStr != "" {
			sans = strings.Split(sansStr, ",")
		}

		certs = append(certs, &provider.UploadedCertificate{
			CertID:   fmt.Sprintf("%d", tea.Int64Value(cert.CertificateId)),
			Name:     tea.StringValue(cert.Name),
			Domain:   domain,
			Sans:     sans,
			NotAfter: notAfter,
			Status:   tea.StringValue(cert.Status),
		})
	}

	return certs, nil
}

// DeleteCertificate 删除CAS中托管的证书
func (p *CertUploader) DeleteCertificate(ctx context.Context, certID string) error {
	log.Printf("[阿里云] 删除云端证书: %s", certID)

	var certId int64
	fmt.Sscanf(certID, "%d", &certId)

	request := &cas.DeleteUserCertificateRequest{
		CertId: tea.Int64(certId),
	}

	if _, err := p.client.DeleteUserCertificate(request); err != nil {
		return fmt.Errorf("删除证书失败: %w", err)
	}

	return nil
}
