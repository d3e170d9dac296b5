package renewal

import (
	"math/rand"
	"time"

	"acme-manager/internal/acme"
	"acme-manager/internal/config"
)

// 到期窗口边界的来源标记
const (
	// SourceRenewalDays 常规续期天数规则
	SourceRenewalDays = "rd"
	// SourceMinimumValid 到期前保底天数护栏
	SourceMinimumValid = "mv"
	// SourceRenewalInfo 服务端建议窗口
	SourceRenewalInfo = "ri"
)

// DueDate 续期窗口。Source 形如 "rd-mv"，
// 分别标记起点和终点由哪条规则决定。
type DueDate struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Source string    `json:"source"`
}

// Calculator 到期窗口计算器。
// Now/Random 可注入，测试用确定性时钟和随机源。
type Calculator struct {
	settings config.RenewalConfig

	Now    func() time.Time
	Random func() float64
}

// NewCalculator 创建计算器
func NewCalculator(settings config.RenewalConfig) *Calculator {
	return &Calculator{
		settings: settings,
		Now:      time.Now,
		Random:   rand.Float64,
	}
}

// ComputeDueDate 按规则顺序计算续期窗口。
// 后续规则只会收紧窗口，不会放宽。
func (c *Calculator) ComputeDueDate(validFrom, validUntil time.Time, info *acme.RenewalInfo) DueDate {
	useServer := !c.settings.DisableServerSchedule && !info.IsZero()

	// 1. 常规规则：签发后 RenewalDays 天到期
	end := validFrom.AddDate(0, 0, c.settings.RenewalDays)
	endSource := SourceRenewalDays

	// 2. 护栏：终点不晚于过期前 RenewalMinimumValidDays 天
	if mv := validUntil.AddDate(0, 0, -c.settings.RenewalMinimumValidDays); mv.Before(end) {
		end = mv
		endSource = SourceMinimumValid
	}

	// 3. 护栏：服务端建议的终点更早则采纳
	if useServer && !info.End.IsZero() && !info.End.After(end) {
		end = info.End
		endSource = SourceRenewalInfo
	}

	// 4. 起点 = 终点 - 窗口宽度
	start := end.AddDate(0, 0, -c.settings.RenewalDaysRange)
	startSource := SourceRenewalDays

	// 5. 护栏：服务端建议的起点更早则采纳
	if useServer && !info.Start.IsZero() && info.Start.Before(start) {
		start = info.Start
		startSource = SourceRenewalInfo
	}

	// 6. 钳制：起点不得晚于终点，此时沿用终点的来源
	if start.After(end) {
		start = end
		startSource = endSource
	}

	return DueDate{
		Start:  start,
		End:    end,
		Source: startSource + "-" + endSource,
	}
}

// ShouldRun 判断订单本次运行是否应该续期。
// 没有可用的上一张证书时总是执行；在窗口内按每日均匀概率
// 随机触发，把续期负载分散到整个窗口（刻意抖动，不是缺陷）。
func (c *Calculator) ShouldRun(ctx *OrderContext) bool {
	info := ctx.OrderInfo

	// 历史中从未成功安装过 → 总是执行
	if info == nil || info.LastThumbprint == "" {
		return true
	}

	prev := ctx.Previous
	if prev == nil {
		return true
	}

	due := c.ComputeDueDate(prev.NotBefore(), prev.NotAfter(), ctx.RenewalInfo)
	now := c.Now()

	if now.Before(due.Start) {
		return false
	}

	daysLeft := int(due.End.Sub(now).Hours() / 24)
	if daysLeft <= 1 {
		return true
	}

	return c.Random() < 1.0/float64(daysLeft)
}
