package order

import (
	"acme-manager/internal/plugin"
	"acme-manager/internal/renewal"
)

// Single 单订单插件：整个目标一张证书
type Single struct{}

// Split 不拆分
func (Single) Split(r *renewal.Renewal, target *renewal.Target) ([]*renewal.Order, error) {
	return []*renewal.Order{{
		Renewal: r,
		Target:  target,
	}}, nil
}

// Register 注册订单插件
func Register(reg *plugin.Registry) {
	reg.RegisterOrder("single", func(opts *renewal.OrderOptions) (plugin.OrderPlugin, error) {
		return Single{}, nil
	})
	reg.RegisterOrder("domain", func(opts *renewal.OrderOptions) (plugin.OrderPlugin, error) {
		return Domain{}, nil
	})
}
