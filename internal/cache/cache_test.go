package cache

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"acme-manager/internal/renewal"
)

func testOrder(identifiers ...string) *renewal.Order {
	r := renewal.New("test")
	r.ID = "11111111-2222-3333-4444-555555555555"
	r.CsrOptions = &renewal.CsrOptions{Plugin: "rsa", KeyBits: 3072}
	return &renewal.Order{
		Renewal: r,
		Target: &renewal.Target{
			CommonName: identifiers[0],
			Parts:      []*renewal.TargetPart{{Identifiers: identifiers}},
		},
	}
}

func testCertPEM(t *testing.T, cn string, sans []string) []byte {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	template := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: cn},
		DNSNames:     sans,
		NotBefore:    time.Now(),
		NotAfter:     time.Now().AddDate(0, 0, 90),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

func newTestStore(t *testing.T, reuseDays int) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), reuseDays)
	require.NoError(t, err)
	return s
}

func TestCacheKeyStable(t *testing.T) {
	// 标识符枚举顺序不影响缓存键
	a := testOrder("example.com", "www.example.com")
	b := testOrder("example.com")
	b.Target.Parts = []*renewal.TargetPart{{Identifiers: []string{"WWW.example.com", "example.com"}}}

	for v := keyVersion1; v <= currentKeyVersion; v++ {
		assert.Equal(t, CacheKey(a, v), CacheKey(b, v), "version %d", v)
	}
}

func TestCacheKeyChanges(t *testing.T) {
	base := testOrder("example.com", "www.example.com")

	// SAN集合变化
	sans := testOrder("example.com", "www.example.com", "api.example.com")
	assert.NotEqual(t, CacheKey(base, currentKeyVersion), CacheKey(sans, currentKeyVersion))

	// CSR选项变化
	csr := testOrder("example.com", "www.example.com")
	csr.Renewal.CsrOptions = &renewal.CsrOptions{Plugin: "rsa", KeyBits: 4096}
	assert.NotEqual(t, CacheKey(base, currentKeyVersion), CacheKey(csr, currentKeyVersion))

	// 站点引用变化
	site := testOrder("example.com", "www.example.com")
	site.Target.Parts[0].SiteID = 7
	assert.NotEqual(t, CacheKey(base, currentKeyVersion), CacheKey(site, currentKeyVersion))

	// CSR选项只进入版本3及以后
	assert.Equal(t, CacheKey(base, keyVersion2), CacheKey(csr, keyVersion2))
	// 站点引用只进入版本4
	assert.Equal(t, CacheKey(base, keyVersion3), CacheKey(site, keyVersion3))
}

func TestStoreAndCachedInfo(t *testing.T) {
	s := newTestStore(t, 30)
	order := testOrder("example.com", "www.example.com")
	certPEM := testCertPEM(t, "example.com", []string{"example.com", "www.example.com"})

	info, err := s.StoreCertificate(order, certPEM, []byte("fake key"))
	require.NoError(t, err)
	assert.True(t, info.HasPrivateKey())

	got := s.CachedInfo(order)
	require.NotNil(t, got)
	assert.Equal(t, "example.com", got.CommonName())
	assert.True(t, got.HasPrivateKey())
}

func TestStoreCertificateNoKeyReuse(t *testing.T) {
	// ReuseDays=0 时私钥从不落盘
	s := newTestStore(t, 0)
	order := testOrder("example.com")
	certPEM := testCertPEM(t, "example.com", []string{"example.com"})

	info, err := s.StoreCertificate(order, certPEM, []byte("fake key"))
	require.NoError(t, err)
	assert.False(t, info.HasPrivateKey())

	got := s.CachedInfo(order)
	require.NotNil(t, got)
	assert.False(t, got.HasPrivateKey())
}

func TestCachedInfoShapeMiss(t *testing.T) {
	s := newTestStore(t, 30)
	order := testOrder("example.com")
	certPEM := testCertPEM(t, "example.com", []string{"example.com"})
	_, err := s.StoreCertificate(order, certPEM, nil)
	require.NoError(t, err)

	// 形状变化后缓存键不同，不再命中
	reshaped := testOrder("example.com", "www.example.com")
	assert.Nil(t, s.CachedInfo(reshaped))
}

func TestCachedInfoOldVersionFallback(t *testing.T) {
	s := newTestStore(t, 30)
	order := testOrder("example.com")
	certPEM := testCertPEM(t, "example.com", []string{"example.com"})

	// 只有版本2的文件存在（模拟旧版本写入的缓存）
	path := s.filePath(order, keyVersion2, certSuffix)
	require.NoError(t, os.WriteFile(path, certPEM, 0644))

	got := s.CachedInfo(order)
	require.NotNil(t, got)
	assert.Equal(t, path, got.CertFile)
}

func TestCachedInfoLegacyFallback(t *testing.T) {
	s := newTestStore(t, 30)
	order := testOrder("example.com")

	// 旧版未分键的文件，SAN一致时命中
	legacy := s.legacyPath(order.Renewal.ID, certSuffix)
	require.NoError(t, os.WriteFile(legacy, testCertPEM(t, "example.com", []string{"example.com"}), 0644))
	assert.NotNil(t, s.CachedInfo(order))

	// SAN不一致时不得命中
	require.NoError(t, os.WriteFile(legacy, testCertPEM(t, "other.com", []string{"other.com"}), 0644))
	assert.Nil(t, s.CachedInfo(order))
}

func TestPreviousInfoFallback(t *testing.T) {
	s := newTestStore(t, 30)
	order := testOrder("example.com")
	certPEM := testCertPEM(t, "example.com", []string{"example.com"})
	_, err := s.StoreCertificate(order, certPEM, nil)
	require.NoError(t, err)

	// 形状无关的宽松查找
	assert.NotNil(t, s.PreviousInfo(order.Renewal, "main"))
	// 订单键不匹配时回退到该续期的任意文件
	assert.NotNil(t, s.PreviousInfo(order.Renewal, "other"))

	none := renewal.New("none")
	assert.Nil(t, s.PreviousInfo(none, "main"))
}

func TestKeyPathOldestFirst(t *testing.T) {
	s := newTestStore(t, 30)
	order := testOrder("example.com")

	// 无已有文件时返回当前版本路径
	assert.Equal(t, s.filePath(order, currentKeyVersion, keySuffix), s.Key(order))

	// 旧版本的私钥文件存在时优先复用
	old := s.filePath(order, keyVersion1, keySuffix)
	require.NoError(t, os.WriteFile(old, []byte("key"), 0600))
	assert.Equal(t, old, s.Key(order))
}

func TestDeleteAndRevoke(t *testing.T) {
	s := newTestStore(t, 30)
	order := testOrder("example.com")
	certPEM := testCertPEM(t, "example.com", []string{"example.com"})
	_, err := s.StoreCertificate(order, certPEM, []byte("key"))
	require.NoError(t, err)

	// 吊销只清私钥，证书保留
	s.Revoke(order.Renewal.ID)
	got := s.CachedInfo(order)
	require.NotNil(t, got)
	assert.False(t, got.HasPrivateKey())

	s.Delete(order.Renewal.ID, order.Name())
	assert.Nil(t, s.CachedInfo(order))

	files, err := filepath.Glob(filepath.Join(s.dir, order.Renewal.ID+"-*"))
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestStoreCertificateClearsStale(t *testing.T) {
	s := newTestStore(t, 30)

	order := testOrder("example.com")
	_, err := s.StoreCertificate(order, testCertPEM(t, "example.com", []string{"example.com"}), []byte("key"))
	require.NoError(t, err)

	// 同一订单形状变化后重新缓存，旧键的文件被清掉
	reshaped := testOrder("example.com", "www.example.com")
	_, err = s.StoreCertificate(reshaped, testCertPEM(t, "example.com", []string{"example.com", "www.example.com"}), []byte("key"))
	require.NoError(t, err)

	assert.Nil(t, s.CachedInfo(order))
	assert.NotNil(t, s.CachedInfo(reshaped))
}
