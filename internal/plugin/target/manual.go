package target

import (
	"context"
	"fmt"

	"acme-manager/internal/domain"
	"acme-manager/internal/plugin"
	"acme-manager/internal/renewal"
)

// Manual 手工目标插件：直接使用选项中的域名列表
type Manual struct {
	opts *renewal.TargetOptions
}

// NewManual 创建手工目标插件
func NewManual(opts *renewal.TargetOptions) (*Manual, error) {
	if len(opts.Identifiers) == 0 && opts.CommonName == "" {
		return nil, fmt.Errorf("manual 目标插件需要至少一个域名")
	}
	return &Manual{opts: opts}, nil
}

// Generate 生成目标
func (m *Manual) Generate(ctx context.Context) (*renewal.Target, error) {
	ids := append([]string{}, m.opts.Identifiers...)
	if m.opts.CommonName != "" {
		found := false
		cn := domain.Normalize(m.opts.CommonName)
		for _, id := range ids {
			if domain.Normalize(id) == cn {
				found = true
				break
			}
		}
		if !found {
			ids = append([]string{m.opts.CommonName}, ids...)
		}
	}

	var parts []*renewal.TargetPart
	if len(m.opts.SiteIDs) > 0 {
		// 站点引用进入目标形状，影响缓存键
		for _, siteID := range m.opts.SiteIDs {
			parts = append(parts, &renewal.TargetPart{Identifiers: ids, SiteID: siteID})
		}
	} else {
		parts = []*renewal.TargetPart{{Identifiers: ids}}
	}

	return &renewal.Target{
		CommonName: m.opts.CommonName,
		Parts:      parts,
	}, nil
}

// Register 注册目标插件
func Register(r *plugin.Registry) {
	r.RegisterTarget("manual", func(opts *renewal.TargetOptions) (plugin.TargetPlugin, error) {
		return NewManual(opts)
	})
}
