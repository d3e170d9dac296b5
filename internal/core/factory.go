package core

import (
	"fmt"
	"sync"

	"acme-manager/internal/config"
	"acme-manager/internal/plugin"
	"acme-manager/internal/plugin/csr"
	"acme-manager/internal/plugin/installation"
	"acme-manager/internal/plugin/order"
	"acme-manager/internal/plugin/store"
	"acme-manager/internal/plugin/target"
	"acme-manager/internal/plugin/validation"
	"acme-manager/internal/provider"
	"acme-manager/internal/provider/aliyun"
	"acme-manager/internal/provider/huawei"
	"acme-manager/internal/provider/tencent"
)

// Factory 提供商与插件装配工厂
type Factory struct {
	config *config.Config

	// 缓存已创建的提供商实例。多个续期任务可能并发装配
	// 插件，缓存读写需要加锁。
	mu           sync.Mutex
	dnsProviders map[string]provider.DNSProvider
	uploaders    map[string]provider.CertUploader
}

// NewFactory 创建工厂
func NewFactory(cfg *config.Config) *Factory {
	return &Factory{
		config:       cfg,
		dnsProviders: make(map[string]provider.DNSProvider),
		uploaders:    make(map[string]provider.CertUploader),
	}
}

// Registry 装配插件注册表，所有内置插件在这里静态注册
func (f *Factory) Registry() *plugin.Registry {
	r := plugin.NewRegistry()
	target.Register(r)
	order.Register(r)
	validation.Register(r, f.DNSProvider)
	csr.Register(r)
	store.Register(r, f.CertUploader)
	installation.Register(r)
	return r
}

// DNSProvider 获取DNS提供商
func (f *Factory) DNSProvider(name string) (provider.DNSProvider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// 检查缓存
	if p, ok := f.dnsProviders[name]; ok {
		return p, nil
	}

	// 创建新实例
	var p provider.DNSProvider
	var err error

	switch name {
	case "aliyun":
		if f.config.Providers.Aliyun == nil {
			return nil, fmt.Errorf("阿里云DNS提供商未配置")
		}
		p, err = aliyun.NewDNSProvider(f.config.Providers.Aliyun)

	case "tencent":
		if f.config.Providers.Tencent == nil {
			return nil, fmt.Errorf("腾讯云DNS提供商未配置")
		}
		p, err = tencent.NewDNSProvider(f.config.Providers.Tencent)

	case "huawei":
		if f.config.Providers.Huawei == nil {
			return nil, fmt.Errorf("华为云DNS提供商未配置")
		}
		p, err = huawei.NewDNSProvider(f.config.Providers.Huawei)

	default:
		return nil, fmt.Errorf("不支持的DNS提供商: %s", name)
	}

	if err != nil {
		return nil, err
	}

	// 缓存实例
	f.dnsProviders[name] = p
	return p, nil
}

// CertUploader 获取云端证书托管提供商
func (f *Factory) CertUploader(name string) (provider.CertUploader, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// 检查缓存
	if p, ok := f.uploaders[name]; ok {
		return p, nil
	}

	// 创建新实例
	var p provider.CertUploader
	var err error

	switch name {
	case "aliyun":
		if f.config.Providers.Aliyun == nil {
			return nil, fmt.Errorf("阿里云证书托管未配置")
		}
		p, err = aliyun.NewCertUploader(f.config.Providers.Aliyun)

	case "tencent":
		if f.config.Providers.Tencent == nil {
			return nil, fmt.Errorf("腾讯云证书托管未配置")
		}
		p, err = tencent.NewCertUploader(f.config.Providers.Tencent)

	case "huawei":
		if f.config.Providers.Huawei == nil {
			return nil, fmt.Errorf("华为云证书托管未配置")
		}
		p, err = huawei.NewCertUploader(f.config.Providers.Huawei)

	default:
		return nil, fmt.Errorf("不支持的证书托管提供商: %s", name)
	}

	if err != nil {
		return nil, err
	}

	// 缓存实例
	f.uploaders[name] = p
	return p, nil
}
