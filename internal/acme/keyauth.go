package acme

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"math/big"
)

// keyAuthorization 计算 RFC 8555 §8.1 定义的 key authorization：
// token || "." || base64url(JWK指纹)，指纹按 RFC 7638 计算。
func keyAuthorization(token string, key crypto.Signer) (string, error) {
	thumb, err := jwkThumbprint(key)
	if err != nil {
		return "", err
	}
	return token + "." + thumb, nil
}

// jwkThumbprint RFC 7638 的JWK SHA-256指纹。
// 必需成员按字典序拼接，不能依赖通用JSON序列化的字段顺序。
func jwkThumbprint(key crypto.Signer) (string, error) {
	var canonical string

	switch pub := key.Public().(type) {
	case *ecdsa.PublicKey:
		size := (pub.Curve.Params().BitSize + 7) / 8
		crv := pub.Curve.Params().Name
		if crv == "P-256" || crv == "P-384" || crv == "P-521" {
			canonical = fmt.Sprintf(`{"crv":%q,"kty":"EC","x":%q,"y":%q}`,
				crv, b64Int(pub.X, size), b64Int(pub.Y, size))
		} else {
			return "", fmt.Errorf("不支持的椭圆曲线: %s", crv)
		}
	case *rsa.PublicKey:
		canonical = fmt.Sprintf(`{"e":%q,"kty":"RSA","n":%q}`,
			b64Int(big.NewInt(int64(pub.E)), 0), b64Int(pub.N, 0))
	default:
		return "", fmt.Errorf("不支持的账户密钥类型: %T", pub)
	}

	sum := sha256.Sum256([]byte(canonical))
	return base64.RawURLEncoding.EncodeToString(sum[:]), nil
}

// b64Int 大整数的base64url编码，size>0 时左补零到固定长度
func b64Int(n *big.Int, size int) string {
	b := n.Bytes()
	if size > 0 && len(b) < size {
		padded := make([]byte, size)
		copy(padded[size-len(b):], b)
		b = padded
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
