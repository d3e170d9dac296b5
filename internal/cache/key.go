package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"

	"acme-manager/internal/renewal"
)

// 缓存键算法版本。新版本只追加参与散列的字段，
// 查找时从新到旧逐版本尝试，避免升级导致缓存全部失效。
const (
	// 版本1：只有标识符集合
	keyVersion1 = 1
	// 版本2：加入公用名
	keyVersion2 = 2
	// 版本3：加入CSR选项
	keyVersion3 = 3
	// 版本4：加入订单区分段和站点引用
	keyVersion4 = 4

	currentKeyVersion = keyVersion4
)

// CacheKey 计算订单在指定算法版本下的缓存键（SHA1 HEX）。
// 同形状的订单（标识符集合、CSR选项、站点引用一致）必须得到同一个键。
func CacheKey(order *renewal.Order, version int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "v%d|", version)
	b.WriteString(strings.Join(order.Target.Identifiers(), ","))

	if version >= keyVersion2 {
		b.WriteString("|cn=")
		b.WriteString(strings.ToLower(order.Target.CommonName))
	}
	if version >= keyVersion3 {
		b.WriteString("|csr=")
		b.WriteString(csrOptionsKey(order.Renewal.CsrOptions))
	}
	if version >= keyVersion4 {
		b.WriteString("|part=")
		b.WriteString(strings.ToLower(order.CacheKeyPart))
		b.WriteString("|sites=")
		for i, id := range order.Target.SiteIDs() {
			if i > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(&b, "%d", id)
		}
	}

	sum := sha1.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func csrOptionsKey(opts *renewal.CsrOptions) string {
	if opts == nil {
		return ""
	}
	return fmt.Sprintf("%s/%d/%t/%t",
		strings.ToLower(opts.Plugin), opts.KeyBits, opts.ReusePrivateKey, opts.OcspMustStaple)
}
