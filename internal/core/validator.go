package core

import (
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"time"

	domainpkg "acme-manager/internal/domain"
	"acme-manager/internal/renewal"
)

// EndpointProbe 线上证书探测器：直接连目标端口看
// 实际部署的是哪张证书，用于安装后核对和状态展示。
type EndpointProbe struct {
	// 连接超时，默认10秒
	Timeout time.Duration
}

// NewEndpointProbe 创建探测器
func NewEndpointProbe() *EndpointProbe {
	return &EndpointProbe{Timeout: 10 * time.Second}
}

// Fetch 抓取线上端点当前部署的证书
func (p *EndpointProbe) Fetch(domain string) (*renewal.CertificateInfo, error) {
	addr := domain
	if !strings.Contains(addr, ":") {
		addr += ":443"
	}

	dialer := &net.Dialer{Timeout: p.Timeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return nil, fmt.Errorf("连接 %s 失败: %w", addr, err)
	}
	defer conn.Close()

	certs := conn.ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return nil, fmt.Errorf("端点 %s 未返回证书", addr)
	}
	return &renewal.CertificateInfo{
		Certificate: certs[0],
		Chain:       certs[1:],
	}, nil
}

// Verify 核对线上证书：域名要被覆盖，指纹要与预期一致
func (p *EndpointProbe) Verify(domain, thumbprint string) error {
	info, err := p.Fetch(domain)
	if err != nil {
		return err
	}

	var matched bool
	for _, name := range info.SanNames() {
		if domainpkg.MatchDomain(name, domain) {
			matched = true
			break
		}
	}
	if !matched {
		return fmt.Errorf("线上证书不覆盖域名 %s (证书域名: %v)", domain, info.SanNames())
	}

	if thumbprint != "" && !strings.EqualFold(info.Thumbprint(), thumbprint) {
		return fmt.Errorf("线上证书指纹 %s 与预期 %s 不一致，可能尚未生效", info.Thumbprint(), thumbprint)
	}
	return nil
}
