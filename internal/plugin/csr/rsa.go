package csr

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"fmt"

	"acme-manager/internal/renewal"
)

// 默认RSA密钥位数
const defaultRSABits = 3072

// RSA RSA密钥的CSR插件
type RSA struct {
	opts *renewal.CsrOptions
	key  crypto.Signer
}

// NewRSA 创建RSA CSR插件
func NewRSA(opts *renewal.CsrOptions) *RSA {
	if opts == nil {
		opts = &renewal.CsrOptions{}
	}
	return &RSA{opts: opts}
}

// GenerateCsr 生成CSR，按选项决定是否复用已有私钥
func (r *RSA) GenerateCsr(ctx context.Context, target *renewal.Target, keyPath string) ([]byte, error) {
	bits := r.opts.KeyBits
	if bits == 0 {
		bits = defaultRSABits
	}

	key, err := obtainKey(keyPath, r.opts.ReusePrivateKey, func() (crypto.Signer, error) {
		return rsa.GenerateKey(rand.Reader, bits)
	})
	if err != nil {
		return nil, err
	}
	r.key = key

	return buildCSR(target, key, r.opts.OcspMustStaple)
}

// Keys 返回最近一次GenerateCsr使用的私钥
func (r *RSA) Keys() (crypto.Signer, error) {
	if r.key == nil {
		return nil, fmt.Errorf("尚未生成CSR")
	}
	return r.key, nil
}
