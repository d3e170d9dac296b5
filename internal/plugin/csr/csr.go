package csr

import (
	"crypto"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"fmt"
	"os"

	"acme-manager/internal/plugin"
	"acme-manager/internal/renewal"
)

// RFC 7633 TLS Feature 扩展 (status_request)
var (
	oidTLSFeature       = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 1, 24}
	mustStapleExtension = pkix.Extension{Id: oidTLSFeature, Value: []byte{0x30, 0x03, 0x02, 0x01, 0x05}}
)

// buildCSR 用给定私钥生成CSR（DER）
func buildCSR(target *renewal.Target, key crypto.Signer, mustStaple bool) ([]byte, error) {
	template := &x509.CertificateRequest{
		Subject:  pkix.Name{CommonName: target.CommonName},
		DNSNames: target.Identifiers(),
	}
	if mustStaple {
		template.ExtraExtensions = append(template.ExtraExtensions, mustStapleExtension)
	}

	der, err := x509.CreateCertificateRequest(rand.Reader, template, key)
	if err != nil {
		return nil, fmt.Errorf("生成CSR失败: %w", err)
	}
	return der, nil
}

// MarshalPrivateKeyPEM 私钥序列化为PKCS#8 PEM
func MarshalPrivateKeyPEM(key crypto.Signer) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("序列化私钥失败: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// loadPrivateKey 从PEM文件加载私钥
func loadPrivateKey(path string) (crypto.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("私钥文件不是PEM格式: %s", path)
	}

	switch block.Type {
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("解析私钥失败: %w", err)
		}
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, fmt.Errorf("私钥类型不支持签名")
		}
		return signer, nil
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	default:
		return nil, fmt.Errorf("未知的私钥PEM类型: %s", block.Type)
	}
}

// savePrivateKey 私钥写入文件，权限0600
func savePrivateKey(path string, key crypto.Signer) error {
	pemData, err := MarshalPrivateKeyPEM(key)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, pemData, 0600); err != nil {
		return fmt.Errorf("写入私钥失败: %w", err)
	}
	return nil
}

// obtainKey 按复用策略取得私钥：允许复用且文件存在时加载，
// 否则生成新密钥并在允许复用时落盘。
func obtainKey(keyPath string, reuse bool, generate func() (crypto.Signer, error)) (crypto.Signer, error) {
	if reuse && keyPath != "" {
		if key, err := loadPrivateKey(keyPath); err == nil {
			return key, nil
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("加载已有私钥失败: %w", err)
		}
	}

	key, err := generate()
	if err != nil {
		return nil, err
	}
	if reuse && keyPath != "" {
		if err := savePrivateKey(keyPath, key); err != nil {
			return nil, err
		}
	}
	return key, nil
}

// Register 注册CSR插件
func Register(r *plugin.Registry) {
	r.RegisterCsr("rsa", func(opts *renewal.CsrOptions) (plugin.CsrPlugin, error) {
		return NewRSA(opts), nil
	})
	r.RegisterCsr("ec", func(opts *renewal.CsrOptions) (plugin.CsrPlugin, error) {
		return NewEC(opts), nil
	})
}
