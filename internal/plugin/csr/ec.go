package csr

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"

	"acme-manager/internal/renewal"
)

// EC ECDSA密钥的CSR插件
type EC struct {
	opts *renewal.CsrOptions
	key  crypto.Signer
}

// NewEC 创建ECDSA CSR插件
func NewEC(opts *renewal.CsrOptions) *EC {
	if opts == nil {
		opts = &renewal.CsrOptions{}
	}
	return &EC{opts: opts}
}

// GenerateCsr 生成CSR，按选项决定是否复用已有私钥
func (e *EC) GenerateCsr(ctx context.Context, target *renewal.Target, keyPath string) ([]byte, error) {
	curve := elliptic.P256()
	if e.opts.KeyBits == 384 {
		curve = elliptic.P384()
	}

	key, err := obtainKey(keyPath, e.opts.ReusePrivateKey, func() (crypto.Signer, error) {
		return ecdsa.GenerateKey(curve, rand.Reader)
	})
	if err != nil {
		return nil, err
	}
	e.key = key

	return buildCSR(target, key, e.opts.OcspMustStaple)
}

// Keys 返回最近一次GenerateCsr使用的私钥
func (e *EC) Keys() (crypto.Signer, error) {
	if e.key == nil {
		return nil, fmt.Errorf("尚未生成CSR")
	}
	return e.key, nil
}
