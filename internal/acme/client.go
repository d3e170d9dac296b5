package acme

import (
	"context"
	"crypto"
	"crypto/x509"
	"fmt"
	"log"
	"net/http"
	"time"

	acmewire "github.com/mholt/acmez/v3/acme"
)

// Client ACME客户端能力接口。
// 订单/授权/质询的编排由核心流水线负责，客户端只做协议往返。
type Client interface {
	// CreateOrder 为一组标识符创建订单
	CreateOrder(ctx context.Context, identifiers []Identifier) (Order, error)

	// GetAuthorization 获取授权详情
	GetAuthorization(ctx context.Context, authzURL string) (Authorization, error)

	// AnswerChallenge 提交质询应答并等待服务端验证结果
	AnswerChallenge(ctx context.Context, authz Authorization, chal Challenge) (Authorization, error)

	// DeactivateAuthorization 停用授权（避免触发服务端pending授权数限制）
	DeactivateAuthorization(ctx context.Context, authzURL string) error

	// Finalize 提交CSR并等待订单签发完成
	Finalize(ctx context.Context, order Order, csr []byte) (Order, error)

	// GetCertificate 下载订单的证书链 (PEM)
	GetCertificate(ctx context.Context, order Order) ([]byte, error)

	// GetRenewalInfo 查询服务端建议的续期窗口，服务端不支持时返回 nil
	GetRenewalInfo(ctx context.Context, leaf *x509.Certificate) (*RenewalInfo, error)

	// RevokeCertificate 吊销证书
	RevokeCertificate(ctx context.Context, cert *x509.Certificate, key crypto.Signer, reason int) error

	// KeyAuthorization 计算质询令牌的key authorization
	KeyAuthorization(token string) (string, error)
}

// ClientConfig acmez客户端配置
type ClientConfig struct {
	DirectoryURL string
	UserAgent    string
	Timeout      time.Duration
	PollTimeout  time.Duration
}

// acmezClient 基于 mholt/acmez 低层API的实现
type acmezClient struct {
	client  *acmewire.Client
	account acmewire.Account
}

// NewClient 创建ACME客户端并确保账户已注册
func NewClient(ctx context.Context, cfg ClientConfig, acct Account) (Client, error) {
	if cfg.DirectoryURL == "" {
		return nil, fmt.Errorf("未配置ACME目录地址")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	pollTimeout := cfg.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = 5 * time.Minute
	}

	low := &acmewire.Client{
		Directory:   cfg.DirectoryURL,
		UserAgent:   cfg.UserAgent,
		HTTPClient:  &http.Client{Timeout: timeout},
		PollTimeout: pollTimeout,
	}

	wireAcct, err := ensureAccount(ctx, low, acct)
	if err != nil {
		return nil, err
	}

	return &acmezClient{client: low, account: wireAcct}, nil
}

func (c *acmezClient) CreateOrder(ctx context.Context, identifiers []Identifier) (Order, error) {
	order, err := c.client.NewOrder(ctx, c.account, Order{Identifiers: identifiers})
	if err != nil {
		return Order{}, fmt.Errorf("创建订单失败: %w", err)
	}
	return order, nil
}

func (c *acmezClient) GetAuthorization(ctx context.Context, authzURL string) (Authorization, error) {
	authz, err := c.client.GetAuthorization(ctx, c.account, authzURL)
	if err != nil {
		return Authorization{}, fmt.Errorf("获取授权详情失败: %w", err)
	}
	return authz, nil
}

func (c *acmezClient) AnswerChallenge(ctx context.Context, authz Authorization, chal Challenge) (Authorization, error) {
	if _, err := c.client.InitiateChallenge(ctx, c.account, chal); err != nil {
		return authz, fmt.Errorf("提交质询应答失败: %w", err)
	}

	// 轮询授权直到服务端给出验证结果
	polled, err := c.client.PollAuthorization(ctx, c.account, authz)
	if err != nil {
		return polled, fmt.Errorf("等待质询验证失败: %w", err)
	}
	return polled, nil
}

func (c *acmezClient) DeactivateAuthorization(ctx context.Context, authzURL string) error {
	if _, err := c.client.DeactivateAuthorization(ctx, c.account, authzURL); err != nil {
		return fmt.Errorf("停用授权失败: %w", err)
	}
	return nil
}

func (c *acmezClient) Finalize(ctx context.Context, order Order, csr []byte) (Order, error) {
	finalized, err := c.client.FinalizeOrder(ctx, c.account, order, csr)
	if err != nil {
		return order, fmt.Errorf("提交CSR失败: %w", err)
	}
	return finalized, nil
}

func (c *acmezClient) GetCertificate(ctx context.Context, order Order) ([]byte, error) {
	if order.Certificate == "" {
		return nil, fmt.Errorf("订单尚未签发证书")
	}

	chains, err := c.client.GetCertificateChain(ctx, c.account, order.Certificate)
	if err != nil {
		return nil, fmt.Errorf("下载证书失败: %w", err)
	}
	if len(chains) == 0 {
		return nil, fmt.Errorf("服务端未返回证书链")
	}
	return chains[0].ChainPEM, nil
}

func (c *acmezClient) GetRenewalInfo(ctx context.Context, leaf *x509.Certificate) (*RenewalInfo, error) {
	ari, err := c.client.GetRenewalInfo(ctx, leaf)
	if err != nil {
		// 服务端不提供续期窗口不是错误，调用方按无建议处理
		log.Printf("[ACME] 查询续期窗口失败: %v", err)
		return nil, nil
	}

	return &RenewalInfo{
		Start:          ari.SuggestedWindow.Start,
		End:            ari.SuggestedWindow.End,
		ExplanationURL: ari.ExplanationURL,
	}, nil
}

func (c *acmezClient) RevokeCertificate(ctx context.Context, cert *x509.Certificate, key crypto.Signer, reason int) error {
	if key == nil {
		// 证书私钥不可用时用账户私钥吊销
		key = c.account.PrivateKey
	}
	if err := c.client.RevokeCertificate(ctx, c.account, cert, key, reason); err != nil {
		return fmt.Errorf("吊销证书失败: %w", err)
	}
	return nil
}

func (c *acmezClient) KeyAuthorization(token string) (string, error) {
	return keyAuthorization(token, c.account.PrivateKey)
}

// DNSIdentifiers 把域名列表转换为ACME标识符
func DNSIdentifiers(domains []string) []Identifier {
	ids := make([]Identifier, 0, len(domains))
	for _, d := range domains {
		ids = append(ids, Identifier{Type: "dns", Value: d})
	}
	return ids
}
