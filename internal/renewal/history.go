package renewal

import (
	"sort"
	"strings"
	"time"
)

// StaticOrderInfo 从历史记录折叠出来的单订单当前状态。
// 按需重算，从不单独持久化。
type StaticOrderInfo struct {
	Key            string
	DueDate        *DueDate
	LastThumbprint string
	RenewCount     int
	LastRenewal    time.Time
	Missing        bool
	Revoked        bool
}

// Projector 历史投影器：把续期任务的历史运行结果
// 归并为各订单的当前状态，用于排期和展示。
type Projector struct {
	calculator *Calculator
}

// NewProjector 创建投影器
func NewProjector(calculator *Calculator) *Projector {
	return &Projector{calculator: calculator}
}

// CurrentOrders 折叠历史，返回当前已知的订单状态列表。
// 当前标记为 Missing 的订单会被过滤掉。
func (p *Projector) CurrentOrders(r *Renewal) []*StaticOrderInfo {
	history := make([]*RenewResult, len(r.History))
	copy(history, r.History)
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].Date.Before(history[j].Date)
	})

	infos := make(map[string]*StaticOrderInfo)
	var order []string

	for _, result := range history {
		for _, or := range result.OrderResults {
			key := strings.ToLower(or.Key)
			info, ok := infos[key]
			if !ok {
				info = &StaticOrderInfo{Key: key}
				infos[key] = info
				order = append(order, key)
			}

			// 最近一次提到该订单的结果决定 missing/revoked 状态
			info.Missing = or.Missing
			info.Revoked = or.Revoked

			// 到期窗口：显式记录优先，否则从运行时间和过期时间重算
			switch {
			case or.DueDate != nil:
				info.DueDate = or.DueDate
			case or.ExpireDate != nil:
				due := p.calculator.ComputeDueDate(result.Date, *or.ExpireDate, nil)
				info.DueDate = &due
			}

			// 只有成功的结果推进指纹和续期计数
			if or.Success {
				info.RenewCount++
				info.LastRenewal = result.Date
				if or.Thumbprint != "" {
					info.LastThumbprint = or.Thumbprint
				}
			}
		}
	}

	var out []*StaticOrderInfo
	for _, key := range order {
		if info := infos[key]; !info.Missing {
			out = append(out, info)
		}
	}
	return out
}

// FindOrder 按订单键查找当前状态，不存在时返回 nil
func (p *Projector) FindOrder(r *Renewal, key string) *StaticOrderInfo {
	key = strings.ToLower(key)
	for _, info := range p.CurrentOrders(r) {
		if info.Key == key {
			return info
		}
	}
	return nil
}
