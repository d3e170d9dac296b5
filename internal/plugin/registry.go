package plugin

import (
	"fmt"
	"strings"

	"acme-manager/internal/renewal"
)

// 各类插件的工厂函数。验证插件的工厂会被重复调用：
// 不支持实例复用的插件每个标识符都拿到新实例。
type (
	TargetFactory       func(opts *renewal.TargetOptions) (TargetPlugin, error)
	OrderFactory        func(opts *renewal.OrderOptions) (OrderPlugin, error)
	ValidationFactory   func(opts *renewal.ValidationOptions) (ValidationPlugin, error)
	CsrFactory          func(opts *renewal.CsrOptions) (CsrPlugin, error)
	StoreFactory        func(opts renewal.StoreOptions) (StorePlugin, error)
	InstallationFactory func(opts renewal.InstallationOptions) (InstallationPlugin, error)
)

// Registry 插件注册表。编译期静态注册，按名称（不区分大小写）解析，
// 不做任何运行时扫描。
type Registry struct {
	targets       map[string]TargetFactory
	orders        map[string]OrderFactory
	validations   map[string]ValidationFactory
	csrs          map[string]CsrFactory
	stores        map[string]StoreFactory
	installations map[string]InstallationFactory
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{
		targets:       make(map[string]TargetFactory),
		orders:        make(map[string]OrderFactory),
		validations:   make(map[string]ValidationFactory),
		csrs:          make(map[string]CsrFactory),
		stores:        make(map[string]StoreFactory),
		installations: make(map[string]InstallationFactory),
	}
}

func (r *Registry) RegisterTarget(name string, f TargetFactory) {
	r.targets[strings.ToLower(name)] = f
}

func (r *Registry) RegisterOrder(name string, f OrderFactory) {
	r.orders[strings.ToLower(name)] = f
}

func (r *Registry) RegisterValidation(name string, f ValidationFactory) {
	r.validations[strings.ToLower(name)] = f
}

func (r *Registry) RegisterCsr(name string, f CsrFactory) {
	r.csrs[strings.ToLower(name)] = f
}

func (r *Registry) RegisterStore(name string, f StoreFactory) {
	r.stores[strings.ToLower(name)] = f
}

func (r *Registry) RegisterInstallation(name string, f InstallationFactory) {
	r.installations[strings.ToLower(name)] = f
}

// Target 按名称创建目标插件
func (r *Registry) Target(opts *renewal.TargetOptions) (TargetPlugin, error) {
	f, ok := r.targets[strings.ToLower(opts.Plugin)]
	if !ok {
		return nil, fmt.Errorf("未注册的目标插件: %s", opts.Plugin)
	}
	return f(opts)
}

// Order 按名称创建订单插件
func (r *Registry) Order(opts *renewal.OrderOptions) (OrderPlugin, error) {
	f, ok := r.orders[strings.ToLower(opts.Plugin)]
	if !ok {
		return nil, fmt.Errorf("未注册的订单插件: %s", opts.Plugin)
	}
	return f(opts)
}

// Validation 返回验证插件的工厂，由调用方决定实例生命周期
func (r *Registry) Validation(name string) (ValidationFactory, error) {
	f, ok := r.validations[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("未注册的验证插件: %s", name)
	}
	return f, nil
}

// Csr 按名称创建CSR插件
func (r *Registry) Csr(opts *renewal.CsrOptions) (CsrPlugin, error) {
	f, ok := r.csrs[strings.ToLower(opts.Plugin)]
	if !ok {
		return nil, fmt.Errorf("未注册的CSR插件: %s", opts.Plugin)
	}
	return f(opts)
}

// Store 按名称创建保存插件
func (r *Registry) Store(opts renewal.StoreOptions) (StorePlugin, error) {
	f, ok := r.stores[strings.ToLower(opts.Plugin)]
	if !ok {
		return nil, fmt.Errorf("未注册的保存插件: %s", opts.Plugin)
	}
	return f(opts)
}

// Installation 按名称创建安装插件
func (r *Registry) Installation(opts renewal.InstallationOptions) (InstallationPlugin, error) {
	f, ok := r.installations[strings.ToLower(opts.Plugin)]
	if !ok {
		return nil, fmt.Errorf("未注册的安装插件: %s", opts.Plugin)
	}
	return f(opts)
}
