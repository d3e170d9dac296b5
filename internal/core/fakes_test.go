package core

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"sync"
	"time"

	"acme-manager/internal/acme"
	"acme-manager/internal/plugin"
	"acme-manager/internal/renewal"
)

// fakeClient 内存ACME服务端：下单即pending，应答即通过，
// 终结后按CSR签出一张测试CA签发的证书。
type fakeClient struct {
	mu sync.Mutex

	caKey  *ecdsa.PrivateKey
	caCert *x509.Certificate
	serial int64

	// 授权URL到标识符的映射，CreateOrder时登记
	authzIdentifiers map[string]string
	// 这些标识符的质询应答会失败
	failIdentifiers map[string]bool
	// 每个订单的CSR，Finalize时登记
	csrs map[string]*x509.CertificateRequest

	// 服务端建议的续期窗口，nil表示不支持
	renewalInfo *acme.RenewalInfo

	createOrderCalls  int
	finalizeCalls     int
	deactivatedAuthzs []string
	revokedSerials    []string
}

func newFakeClient() *fakeClient {
	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		panic(err)
	}
	caTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "fake test ca"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().AddDate(10, 0, 0),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &caKey.PublicKey, caKey)
	if err != nil {
		panic(err)
	}
	caCert, err := x509.ParseCertificate(der)
	if err != nil {
		panic(err)
	}

	return &fakeClient{
		caKey:            caKey,
		caCert:           caCert,
		serial:           1,
		authzIdentifiers: make(map[string]string),
		failIdentifiers:  make(map[string]bool),
		csrs:             make(map[string]*x509.CertificateRequest),
	}
}

func (f *fakeClient) CreateOrder(ctx context.Context, identifiers []acme.Identifier) (acme.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createOrderCalls++

	order := acme.Order{
		Status:      acme.StatusPending,
		Identifiers: identifiers,
		Location:    fmt.Sprintf("order-%d", f.createOrderCalls),
	}
	for i, id := range identifiers {
		url := fmt.Sprintf("authz-%d-%d", f.createOrderCalls, i)
		f.authzIdentifiers[url] = id.Value
		order.Authorizations = append(order.Authorizations, url)
	}
	return order, nil
}

func (f *fakeClient) GetAuthorization(ctx context.Context, authzURL string) (acme.Authorization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	identifier, ok := f.authzIdentifiers[authzURL]
	if !ok {
		return acme.Authorization{}, fmt.Errorf("未知授权: %s", authzURL)
	}
	return acme.Authorization{
		Status:     acme.StatusPending,
		Identifier: acme.Identifier{Type: "dns", Value: identifier},
		Location:   authzURL,
		Challenges: []acme.Challenge{
			{Type: acme.ChallengeTypeDNS01, Token: "tok-" + identifier, Status: acme.StatusPending},
			{Type: acme.ChallengeTypeHTTP01, Token: "tok-" + identifier, Status: acme.StatusPending},
		},
	}, nil
}

func (f *fakeClient) AnswerChallenge(ctx context.Context, authz acme.Authorization, chal acme.Challenge) (acme.Authorization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failIdentifiers[authz.Identifier.Value] {
		authz.Status = acme.StatusInvalid
		return authz, fmt.Errorf("质询验证失败: %s", authz.Identifier.Value)
	}
	authz.Status = acme.StatusValid
	return authz, nil
}

func (f *fakeClient) DeactivateAuthorization(ctx context.Context, authzURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deactivatedAuthzs = append(f.deactivatedAuthzs, authzURL)
	return nil
}

func (f *fakeClient) Finalize(ctx context.Context, order acme.Order, csr []byte) (acme.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalizeCalls++

	parsed, err := x509.ParseCertificateRequest(csr)
	if err != nil {
		return order, fmt.Errorf("解析CSR失败: %w", err)
	}
	order.Status = acme.StatusValid
	order.Certificate = "cert-" + order.Location
	f.csrs[order.Certificate] = parsed
	return order, nil
}

func (f *fakeClient) GetCertificate(ctx context.Context, order acme.Order) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	csr, ok := f.csrs[order.Certificate]
	if !ok {
		return nil, fmt.Errorf("订单尚未签发证书")
	}

	f.serial++
	template := &x509.Certificate{
		SerialNumber: big.NewInt(f.serial),
		Subject:      csr.Subject,
		DNSNames:     csr.DNSNames,
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().AddDate(0, 0, 90),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, f.caCert, csr.PublicKey, f.caKey)
	if err != nil {
		return nil, err
	}

	leaf := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	ca := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: f.caCert.Raw})
	return append(leaf, ca...), nil
}

func (f *fakeClient) GetRenewalInfo(ctx context.Context, leaf *x509.Certificate) (*acme.RenewalInfo, error) {
	return f.renewalInfo, nil
}

func (f *fakeClient) RevokeCertificate(ctx context.Context, cert *x509.Certificate, key crypto.Signer, reason int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revokedSerials = append(f.revokedSerials, cert.SerialNumber.String())
	return nil
}

func (f *fakeClient) KeyAuthorization(token string) (string, error) {
	return token + ".fake-thumbprint", nil
}

// fakeValidation 记录生命周期调用次数的验证插件。
// 同一工厂产出的实例共享计数器。
type validationCounters struct {
	mu       sync.Mutex
	prepared []string
	commits  int
	cleanups int

	instances int
	// 这些标识符在Prepare阶段失败
	failPrepare map[string]bool
}

type fakeValidation struct {
	counters *validationCounters
	par      plugin.Parallelism
}

func newValidationCounters() *validationCounters {
	return &validationCounters{failPrepare: make(map[string]bool)}
}

// factory 注册用的工厂函数，每次调用都计一个新实例
func (c *validationCounters) factory(par plugin.Parallelism) plugin.ValidationFactory {
	return func(opts *renewal.ValidationOptions) (plugin.ValidationPlugin, error) {
		c.mu.Lock()
		c.instances++
		c.mu.Unlock()
		return &fakeValidation{counters: c, par: par}, nil
	}
}

func (p *fakeValidation) ChallengeTypes() []string {
	return []string{acme.ChallengeTypeDNS01}
}

func (p *fakeValidation) Parallelism() plugin.Parallelism {
	return p.par
}

func (p *fakeValidation) SelectChallenge(choices []acme.Challenge) *acme.Challenge {
	return &choices[0]
}

func (p *fakeValidation) PrepareChallenge(ctx context.Context, vc *plugin.ValidationContext) plugin.Result {
	p.counters.mu.Lock()
	defer p.counters.mu.Unlock()
	p.counters.prepared = append(p.counters.prepared, vc.Identifier)
	if p.counters.failPrepare[vc.Identifier] {
		return plugin.Fatalf("模拟准备失败")
	}
	return plugin.Ok()
}

func (p *fakeValidation) Commit(ctx context.Context) plugin.Result {
	p.counters.mu.Lock()
	defer p.counters.mu.Unlock()
	p.counters.commits++
	return plugin.Ok()
}

func (p *fakeValidation) CleanUp(ctx context.Context) plugin.Result {
	p.counters.mu.Lock()
	defer p.counters.mu.Unlock()
	p.counters.cleanups++
	return plugin.Ok()
}

// fakeStore 记录调用顺序的保存插件
type storeCounters struct {
	mu    sync.Mutex
	saves int
	// 第N次保存失败，0表示不失败
	failOnSave int
	deletes    int
}

type fakeStore struct {
	name     string
	counters *storeCounters
}

func (s *fakeStore) Save(ctx context.Context, cert *renewal.CertificateInfo) (*plugin.StoreInfo, error) {
	s.counters.mu.Lock()
	defer s.counters.mu.Unlock()
	s.counters.saves++
	if s.counters.failOnSave > 0 && s.counters.saves == s.counters.failOnSave {
		return nil, fmt.Errorf("模拟保存失败")
	}
	return &plugin.StoreInfo{Name: s.name, Path: "/fake/" + cert.CommonName()}, nil
}

func (s *fakeStore) Delete(ctx context.Context, cert *renewal.CertificateInfo) error {
	s.counters.mu.Lock()
	defer s.counters.mu.Unlock()
	s.counters.deletes++
	return nil
}

// fakeInstall 记录调用的安装插件
type installCounters struct {
	mu       sync.Mutex
	installs []map[string]*plugin.StoreInfo
	fail     bool
}

type fakeInstall struct {
	counters *installCounters
}

func (i *fakeInstall) Install(ctx context.Context, stores map[string]*plugin.StoreInfo, newCert, previousCert *renewal.CertificateInfo) error {
	i.counters.mu.Lock()
	defer i.counters.mu.Unlock()
	i.counters.installs = append(i.counters.installs, stores)
	if i.counters.fail {
		return fmt.Errorf("模拟安装失败")
	}
	return nil
}
