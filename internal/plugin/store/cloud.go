package store

import (
	"context"
	"encoding/pem"
	"fmt"
	"log"
	"os"
	"time"

	"acme-manager/internal/plugin"
	"acme-manager/internal/provider"
	"acme-manager/internal/renewal"
)

// Cloud 云端证书保存插件：把签发的证书上传到云厂商的
// 证书服务，替换成功后清理同域名的旧证书。
type Cloud struct {
	uploader provider.CertUploader
}

// NewCloud 创建云端保存插件
func NewCloud(uploader provider.CertUploader) *Cloud {
	return &Cloud{uploader: uploader}
}

// Disabled 提供商未配置时不可用
func (c *Cloud) Disabled() (bool, string) {
	if c.uploader == nil {
		return true, "证书托管提供商未配置"
	}
	return false, ""
}

// Save 上传证书
func (c *Cloud) Save(ctx context.Context, cert *renewal.CertificateInfo) (*plugin.StoreInfo, error) {
	if !cert.HasPrivateKey() {
		// 云端托管必须带私钥，没有私钥时无事可做
		log.Printf("[云端保存] 私钥不可用，跳过上传")
		return nil, nil
	}

	keyData, err := os.ReadFile(cert.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("读取私钥失败: %w", err)
	}

	leaf := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Certificate.Raw})
	var chain []byte
	for _, cc := range cert.Chain {
		chain = append(chain, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cc.Raw})...)
	}

	name := fmt.Sprintf("%s-%s", cert.CommonName(), time.Now().Format("20060102"))
	certID, err := c.uploader.UploadCertificate(ctx, name, &provider.Certificate{
		Certificate: string(leaf),
		PrivateKey:  string(keyData),
		Chain:       string(chain),
	})
	if err != nil {
		return nil, err
	}

	c.cleanupReplaced(ctx, cert.CommonName(), certID)

	return &plugin.StoreInfo{
		Name: "cloud-" + c.uploader.Name(),
		Path: certID,
	}, nil
}

// cleanupReplaced 删除同域名的旧托管证书，失败只记录
func (c *Cloud) cleanupReplaced(ctx context.Context, domain, keepID string) {
	certs, err := c.uploader.ListCertificates(ctx)
	if err != nil {
		log.Printf("[云端保存] 获取证书列表失败: %v", err)
		return
	}
	for _, uc := range certs {
		if uc.CertID == keepID || uc.Domain != domain {
			continue
		}
		if err := c.uploader.DeleteCertificate(ctx, uc.CertID); err != nil {
			log.Printf("[云端保存] 删除旧证书 %s 失败: %v", uc.CertID, err)
		}
	}
}

// Delete 删除这张证书在云端的托管副本。只按域名匹配会把
// 刚上传的新证书一起删掉，必须再用过期时间精确定位。
func (c *Cloud) Delete(ctx context.Context, cert *renewal.CertificateInfo) error {
	certs, err := c.uploader.ListCertificates(ctx)
	if err != nil {
		return fmt.Errorf("获取证书列表失败: %w", err)
	}
	for _, uc := range certs {
		if uc.Domain != cert.CommonName() || !uc.NotAfter.Equal(cert.NotAfter()) {
			continue
		}
		if err := c.uploader.DeleteCertificate(ctx, uc.CertID); err != nil {
			return err
		}
	}
	return nil
}

// UploaderResolver 按名称解析云端证书托管提供商
type UploaderResolver func(name string) (provider.CertUploader, error)

// Register 注册保存插件
func Register(r *plugin.Registry, resolve UploaderResolver) {
	r.RegisterStore("pemfiles", func(opts renewal.StoreOptions) (plugin.StorePlugin, error) {
		return NewPemFiles(opts)
	})
	r.RegisterStore("cloud", func(opts renewal.StoreOptions) (plugin.StorePlugin, error) {
		uploader, err := resolve(opts.Provider)
		if err != nil {
			log.Printf("[云端保存] 提供商 %s 不可用: %v", opts.Provider, err)
			uploader = nil
		}
		return NewCloud(uploader), nil
	})
}
