package order

import (
	"sort"

	"acme-manager/internal/domain"
	"acme-manager/internal/renewal"
)

// Domain 按主域名拆分插件：每个可注册域名一张证书，
// 订单区分键为主域名本身。
type Domain struct{}

// Split 按主域名分组拆分目标
func (Domain) Split(r *renewal.Renewal, target *renewal.Target) ([]*renewal.Order, error) {
	groups := make(map[string][]*renewal.TargetPart)
	var names []string

	for _, part := range target.Parts {
		// 同一分组内的标识符也可能属于不同主域名，逐个归类
		byMain := make(map[string][]string)
		for _, id := range part.Identifiers {
			main := domain.ExtractMainDomain(id)
			byMain[main] = append(byMain[main], id)
		}
		for main, ids := range byMain {
			if _, ok := groups[main]; !ok {
				names = append(names, main)
			}
			groups[main] = append(groups[main], &renewal.TargetPart{
				Identifiers: ids,
				SiteID:      part.SiteID,
			})
		}
	}
	sort.Strings(names)

	var orders []*renewal.Order
	for _, main := range names {
		parts := groups[main]
		sub := &renewal.Target{Parts: parts}

		// 公用名落在本组时保留，否则取组内第一个标识符
		cn := domain.Normalize(target.CommonName)
		kept := ""
		for _, id := range sub.Identifiers() {
			if id == cn {
				kept = cn
				break
			}
		}
		if kept == "" {
			if ids := sub.Identifiers(); len(ids) > 0 {
				kept = ids[0]
			}
		}
		sub.CommonName = kept

		orders = append(orders, &renewal.Order{
			Renewal:      r,
			Target:       sub,
			CacheKeyPart: main,
		})
	}

	return orders, nil
}
