package validation

import (
	"log"

	"acme-manager/internal/plugin"
	"acme-manager/internal/provider"
	"acme-manager/internal/renewal"
)

// DNSResolver 按名称解析DNS提供商
type DNSResolver func(name string) (provider.DNSProvider, error)

// Register 注册验证插件。DNS提供商解析失败时插件进入
// 不可用状态而不是注册失败，由订单处理环节中止订单。
func Register(r *plugin.Registry, resolve DNSResolver) {
	r.RegisterValidation("dns", func(opts *renewal.ValidationOptions) (plugin.ValidationPlugin, error) {
		prov, err := resolve(opts.Provider)
		if err != nil {
			log.Printf("[验证] DNS提供商 %s 不可用: %v", opts.Provider, err)
			prov = nil
		}
		return NewDNS(opts, prov), nil
	})
	r.RegisterValidation("http", func(opts *renewal.ValidationOptions) (plugin.ValidationPlugin, error) {
		return NewHTTP(opts), nil
	})
}
