package renewal

import (
	"crypto/sha1"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"time"

	"acme-manager/internal/domain"
)

// CertificateInfo 一张已签发证书（通常来自磁盘缓存）
type CertificateInfo struct {
	// 叶子证书
	Certificate *x509.Certificate
	// 中间证书链
	Chain []*x509.Certificate

	// 证书文件路径，内存中的新证书可以为空
	CertFile string
	// 私钥文件路径，为空表示私钥不可用
	KeyFile string
	// 缓存文件的写入时间
	CacheDate time.Time
}

// ParseCertificatePEM 解析PEM证书链，第一个块视为叶子证书
func ParseCertificatePEM(data []byte) (*CertificateInfo, error) {
	var certs []*x509.Certificate
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("解析证书失败: %w", err)
		}
		certs = append(certs, cert)
	}

	if len(certs) == 0 {
		return nil, fmt.Errorf("PEM中不包含证书")
	}

	return &CertificateInfo{
		Certificate: certs[0],
		Chain:       certs[1:],
	}, nil
}

// Thumbprint 叶子证书的SHA1指纹（小写HEX，比较时忽略大小写）
func (c *CertificateInfo) Thumbprint() string {
	sum := sha1.Sum(c.Certificate.Raw)
	return hex.EncodeToString(sum[:])
}

// CommonName 证书公用名
func (c *CertificateInfo) CommonName() string {
	return domain.Normalize(c.Certificate.Subject.CommonName)
}

// SanNames 证书覆盖的所有域名（CN + SANs，规范化）
func (c *CertificateInfo) SanNames() []string {
	names := append([]string{}, c.Certificate.DNSNames...)
	if cn := c.Certificate.Subject.CommonName; cn != "" {
		names = append(names, cn)
	}
	return domain.NormalizeSet(names)
}

// NotBefore 生效时间
func (c *CertificateInfo) NotBefore() time.Time {
	return c.Certificate.NotBefore
}

// NotAfter 过期时间
func (c *CertificateInfo) NotAfter() time.Time {
	return c.Certificate.NotAfter
}

// HasPrivateKey 私钥是否可用
func (c *CertificateInfo) HasPrivateKey() bool {
	return c.KeyFile != ""
}

// Matches 证书是否精确覆盖目标的形状（CN和SAN集合一致）
func (c *CertificateInfo) Matches(target *Target) bool {
	if target.CommonName != "" && c.CommonName() != domain.Normalize(target.CommonName) {
		return false
	}
	return domain.SameSet(c.SanNames(), target.Identifiers())
}
