package store

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"acme-manager/internal/plugin"
	"acme-manager/internal/renewal"
)

// PemFiles PEM文件保存插件：按域名建目录，
// 输出 cert.pem / key.pem / chain.pem / fullchain.pem。
type PemFiles struct {
	path string
}

// NewPemFiles 创建PEM文件保存插件
func NewPemFiles(opts renewal.StoreOptions) (*PemFiles, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("pemfiles 保存插件需要输出目录")
	}
	return &PemFiles{path: opts.Path}, nil
}

// Save 保存证书文件
func (p *PemFiles) Save(ctx context.Context, cert *renewal.CertificateInfo) (*plugin.StoreInfo, error) {
	outputDir := filepath.Join(p.path, cert.CommonName())

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("创建目录失败: %w", err)
	}

	leaf := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Certificate.Raw})
	var chain []byte
	for _, c := range cert.Chain {
		chain = append(chain, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: c.Raw})...)
	}

	certPath := filepath.Join(outputDir, "cert.pem")
	if err := os.WriteFile(certPath, leaf, 0644); err != nil {
		return nil, fmt.Errorf("保存证书失败: %w", err)
	}
	log.Printf("  - 证书文件: %s", certPath)

	keyPath := ""
	if cert.HasPrivateKey() {
		keyData, err := os.ReadFile(cert.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("读取私钥失败: %w", err)
		}
		keyPath = filepath.Join(outputDir, "key.pem")
		if err := os.WriteFile(keyPath, keyData, 0600); err != nil {
			return nil, fmt.Errorf("保存私钥失败: %w", err)
		}
		log.Printf("  - 私钥文件: %s", keyPath)
	} else {
		log.Printf("  - 警告: 私钥不可用")
	}

	if len(chain) > 0 {
		chainPath := filepath.Join(outputDir, "chain.pem")
		if err := os.WriteFile(chainPath, chain, 0644); err != nil {
			return nil, fmt.Errorf("保存证书链失败: %w", err)
		}
		log.Printf("  - 证书链文件: %s", chainPath)
	}

	fullchainPath := filepath.Join(outputDir, "fullchain.pem")
	if err := os.WriteFile(fullchainPath, append(append([]byte{}, leaf...), chain...), 0644); err != nil {
		return nil, fmt.Errorf("保存完整证书链失败: %w", err)
	}
	log.Printf("  - 完整证书链文件: %s", fullchainPath)

	log.Printf("证书已保存到: %s", outputDir)
	return &plugin.StoreInfo{
		Name:    "pemfiles",
		Path:    certPath,
		KeyPath: keyPath,
	}, nil
}

// Delete 删除之前保存的证书文件。目录按域名定位，新证书
// 写入后会占用同一个目录，此时里面躺着的已经不是要删的
// 那张证书，不能动。
func (p *PemFiles) Delete(ctx context.Context, cert *renewal.CertificateInfo) error {
	outputDir := filepath.Join(p.path, cert.CommonName())

	data, err := os.ReadFile(filepath.Join(outputDir, "cert.pem"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("读取证书文件失败: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil
	}
	current, err := x509.ParseCertificate(block.Bytes)
	if err != nil || !current.Equal(cert.Certificate) {
		return nil
	}

	for _, name := range []string{"cert.pem", "key.pem", "chain.pem", "fullchain.pem"} {
		path := filepath.Join(outputDir, name)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("删除文件失败 %s: %w", path, err)
		}
	}
	return nil
}
