package renewal

import (
	"fmt"

	"acme-manager/internal/domain"
)

// TargetPart 目标的一个分组（通常对应一个站点）
type TargetPart struct {
	// 标识符（域名，规范化小写）
	Identifiers []string
	// 站点引用，0表示无
	SiteID int
}

// Target 本次运行需要保护的完整目标，由目标插件动态生成，
// 不持久化，只有形状参与缓存键计算。
type Target struct {
	CommonName string
	Parts      []*TargetPart
}

// Identifiers 汇总所有分组的标识符（去重、排序）
func (t *Target) Identifiers() []string {
	var all []string
	for _, p := range t.Parts {
		all = append(all, p.Identifiers...)
	}
	return domain.NormalizeSet(all)
}

// SiteIDs 汇总所有站点引用（仅非零）
func (t *Target) SiteIDs() []int {
	var ids []int
	for _, p := range t.Parts {
		if p.SiteID != 0 {
			ids = append(ids, p.SiteID)
		}
	}
	return ids
}

// 公用名长度上限（RFC 5280 对 CN 的限制）
const maxCommonNameLength = 64

// Validate 校验目标形状：标识符数量、公用名合法性
func (t *Target) Validate(maxDomains int) error {
	ids := t.Identifiers()
	if len(ids) == 0 {
		return fmt.Errorf("目标不包含任何标识符")
	}
	if maxDomains > 0 && len(ids) > maxDomains {
		return fmt.Errorf("目标包含 %d 个标识符，超过上限 %d", len(ids), maxDomains)
	}

	if t.CommonName != "" {
		if len(t.CommonName) > maxCommonNameLength {
			return fmt.Errorf("公用名 %q 超过 %d 字符", t.CommonName, maxCommonNameLength)
		}
		cn := domain.Normalize(t.CommonName)
		found := false
		for _, id := range ids {
			if id == cn {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("公用名 %q 不在标识符列表中", t.CommonName)
		}
	}

	return nil
}
