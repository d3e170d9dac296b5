package store

import (
	"context"
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

	"acme-manager/internal/provider"
	"acme-manager/internal/renewal"
)

func testCertInfo(t *testing.T, withKey bool) *renewal.CertificateInfo {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "example.com"},
		DNSNames:     []string{"example.com"},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().AddDate(0, 0, 90),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	info := &renewal.CertificateInfo{Certificate: cert}
	if withKey {
		keyDER, err := x509.MarshalECPrivateKey(key)
		require.NoError(t, err)
		keyPath := filepath.Join(t.TempDir(), "key.pem")
		require.NoError(t, os.WriteFile(keyPath, keyDER, 0600))
		info.KeyFile = keyPath
	}
	return info
}

func TestPemFilesSave(t *testing.T) {
	dir := t.TempDir()
	p, err := NewPemFiles(renewal.StoreOptions{Path: dir})
	require.NoError(t, err)

	info, err := p.Save(context.Background(), testCertInfo(t, true))
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "pemfiles", info.Name)

	for _, name := range []string{"cert.pem", "key.pem", "fullchain.pem"} {
		_, err := os.Stat(filepath.Join(dir, "example.com", name))
		assert.NoError(t, err, name)
	}

	// 没有链时不写chain.pem
	_, err = os.Stat(filepath.Join(dir, "example.com", "chain.pem"))
	assert.True(t, os.IsNotExist(err))
}

func TestPemFilesSaveNoKey(t *testing.T) {
	dir := t.TempDir()
	p, err := NewPemFiles(renewal.StoreOptions{Path: dir})
	require.NoError(t, err)

	info, err := p.Save(context.Background(), testCertInfo(t, false))
	require.NoError(t, err)
	assert.Empty(t, info.KeyPath)

	_, err = os.Stat(filepath.Join(dir, "example.com", "key.pem"))
	assert.True(t, os.IsNotExist(err))
}

func TestPemFilesDelete(t *testing.T) {
	dir := t.TempDir()
	p, err := NewPemFiles(renewal.StoreOptions{Path: dir})
	require.NoError(t, err)

	cert := testCertInfo(t, true)
	_, err = p.Save(context.Background(), cert)
	require.NoError(t, err)

	require.NoError(t, p.Delete(context.Background(), cert))
	_, err = os.Stat(filepath.Join(dir, "example.com", "cert.pem"))
	assert.True(t, os.IsNotExist(err))
}

func TestPemFilesDeleteKeepsReplacement(t *testing.T) {
	dir := t.TempDir()
	p, err := NewPemFiles(renewal.StoreOptions{Path: dir})
	require.NoError(t, err)
	ctx := context.Background()

	prev := testCertInfo(t, true)
	_, err = p.Save(ctx, prev)
	require.NoError(t, err)

	// 新证书落在同一个域名目录里
	next := testCertInfo(t, true)
	_, err = p.Save(ctx, next)
	require.NoError(t, err)

	// 删除旧证书不能连带删掉刚写入的新证书
	require.NoError(t, p.Delete(ctx, prev))
	data, err := os.ReadFile(filepath.Join(dir, "example.com", "cert.pem"))
	require.NoError(t, err)
	block, _ := pem.Decode(data)
	require.NotNil(t, block)
	current, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)
	assert.True(t, current.Equal(next.Certificate))

	_, err = os.Stat(filepath.Join(dir, "example.com", "key.pem"))
	assert.NoError(t, err)
}

func TestPemFilesRequiresPath(t *testing.T) {
	_, err := NewPemFiles(renewal.StoreOptions{})
	assert.Error(t, err)
}

// fakeUploader 内存证书托管
type fakeUploader struct {
	uploads map[string]*provider.UploadedCertificate
	next    int
}

func (f *fakeUploader) Name() string { return "fake" }

func (f *fakeUploader) UploadCertificate(ctx context.Context, name string, cert *provider.Certificate) (string, error) {
	f.next++
	id := string(rune('0' + f.next))
	f.uploads[id] = &provider.UploadedCertificate{CertID: id, Name: name, Domain: "example.com"}
	return id, nil
}

func (f *fakeUploader) ListCertificates(ctx context.Context) ([]*provider.UploadedCertificate, error) {
	var out []*provider.UploadedCertificate
	for _, c := range f.uploads {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeUploader) DeleteCertificate(ctx context.Context, certID string) error {
	delete(f.uploads, certID)
	return nil
}

func TestCloudSaveReplacesOld(t *testing.T) {
	fake := &fakeUploader{uploads: make(map[string]*provider.UploadedCertificate)}
	c := NewCloud(fake)
	ctx := context.Background()

	_, err := c.Save(ctx, testCertInfo(t, true))
	require.NoError(t, err)
	assert.Len(t, fake.uploads, 1)

	// 第二次上传后旧证书被清掉
	info, err := c.Save(ctx, testCertInfo(t, true))
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Len(t, fake.uploads, 1)
	_, ok := fake.uploads[info.Path]
	assert.True(t, ok)
}

func TestCloudDeleteTargetsOldCertificate(t *testing.T) {
	fake := &fakeUploader{uploads: make(map[string]*provider.UploadedCertificate)}
	c := NewCloud(fake)

	prev := testCertInfo(t, true)
	fake.uploads["old"] = &provider.UploadedCertificate{
		CertID:   "old",
		Domain:   "example.com",
		NotAfter: prev.NotAfter(),
	}
	fake.uploads["new"] = &provider.UploadedCertificate{
		CertID:   "new",
		Domain:   "example.com",
		NotAfter: prev.NotAfter().Add(90 * 24 * time.Hour),
	}

	// 同域名下只有过期时间吻合的旧证书被删
	require.NoError(t, c.Delete(context.Background(), prev))
	_, oldLeft := fake.uploads["old"]
	assert.False(t, oldLeft)
	_, newLeft := fake.uploads["new"]
	assert.True(t, newLeft)
}

func TestCloudSaveNoKey(t *testing.T) {
	fake := &fakeUploader{uploads: make(map[string]*provider.UploadedCertificate)}
	c := NewCloud(fake)

	info, err := c.Save(context.Background(), testCertInfo(t, false))
	require.NoError(t, err)
	assert.Nil(t, info)
	assert.Empty(t, fake.uploads)
}

func TestCloudDisabled(t *testing.T) {
	disabled, reason := NewCloud(nil).Disabled()
	assert.True(t, disabled)
	assert.NotEmpty(t, reason)
}
