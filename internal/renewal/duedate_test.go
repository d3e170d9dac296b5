package renewal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"acme-manager/internal/acme"
	"acme-manager/internal/config"
)

func testCalculator() *Calculator {
	return NewCalculator(config.RenewalConfig{
		RenewalDays:             60,
		RenewalMinimumValidDays: 30,
		RenewalDaysRange:        5,
	})
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestComputeDueDateRenewalDays(t *testing.T) {
	c := testCalculator()

	// 90天有效期：NotBefore+60 早于 NotAfter-30 等于同一天，rd 不被挤掉
	notBefore := date(2026, 1, 1)
	notAfter := notBefore.AddDate(0, 0, 91)

	due := c.ComputeDueDate(notBefore, notAfter, nil)
	assert.Equal(t, notBefore.AddDate(0, 0, 60), due.End)
	assert.Equal(t, "rd-rd", due.Source)
	assert.Equal(t, due.End.AddDate(0, 0, -5), due.Start)
}

func TestComputeDueDateMinimumValidGuard(t *testing.T) {
	c := testCalculator()

	// 短证书：NotAfter-30 早于 NotBefore+60，护栏生效
	notBefore := date(2026, 1, 1)
	notAfter := notBefore.AddDate(0, 0, 45)

	due := c.ComputeDueDate(notBefore, notAfter, nil)
	assert.Equal(t, notAfter.AddDate(0, 0, -30), due.End)
	assert.Equal(t, "rd-mv", due.Source)
}

func TestComputeDueDateShortCertificate(t *testing.T) {
	c := testCalculator()

	// 极短证书：终点被护栏压到签发之前，起点仍按窗口宽度
	// 回推，来源保持 rd-mv
	notBefore := date(2026, 1, 1)
	notAfter := notBefore.AddDate(0, 0, 10)

	due := c.ComputeDueDate(notBefore, notAfter, nil)
	assert.Equal(t, notAfter.AddDate(0, 0, -30), due.End)
	assert.Equal(t, due.End.AddDate(0, 0, -5), due.Start)
	assert.Equal(t, "rd-mv", due.Source)
	assert.False(t, due.Start.After(due.End))
}

func TestComputeDueDateZeroRange(t *testing.T) {
	c := NewCalculator(config.RenewalConfig{
		RenewalDays:             60,
		RenewalMinimumValidDays: 30,
	})

	// 窗口宽度为零时起止重合，仍然满足 Start <= End
	notBefore := date(2026, 1, 1)
	due := c.ComputeDueDate(notBefore, notBefore.AddDate(0, 0, 91), nil)
	assert.Equal(t, due.End, due.Start)
	assert.Equal(t, "rd-rd", due.Source)
}

func TestComputeDueDateServerOverride(t *testing.T) {
	c := testCalculator()

	notBefore := date(2026, 1, 1)
	notAfter := notBefore.AddDate(0, 0, 91)

	// 服务端建议的终点早于本地计算值 → 采纳并标记 ri
	info := &acme.RenewalInfo{
		Start: notBefore.AddDate(0, 0, 40),
		End:   notBefore.AddDate(0, 0, 50),
	}
	due := c.ComputeDueDate(notBefore, notAfter, info)
	assert.Equal(t, info.End, due.End)
	assert.Contains(t, due.Source, "ri")

	// 服务端建议的起点早于 end-range → 起点也采纳
	assert.Equal(t, info.Start, due.Start)
	assert.Equal(t, "ri-ri", due.Source)
}

func TestComputeDueDateServerLaterIgnored(t *testing.T) {
	c := testCalculator()

	notBefore := date(2026, 1, 1)
	notAfter := notBefore.AddDate(0, 0, 91)

	// 服务端建议的终点晚于本地计算值 → 不得放宽窗口
	info := &acme.RenewalInfo{
		Start: notBefore.AddDate(0, 0, 70),
		End:   notBefore.AddDate(0, 0, 80),
	}
	due := c.ComputeDueDate(notBefore, notAfter, info)
	assert.Equal(t, notBefore.AddDate(0, 0, 60), due.End)
	assert.Equal(t, "rd-rd", due.Source)
}

func TestComputeDueDateServerScheduleDisabled(t *testing.T) {
	c := NewCalculator(config.RenewalConfig{
		RenewalDays:             60,
		RenewalMinimumValidDays: 30,
		RenewalDaysRange:        5,
		DisableServerSchedule:   true,
	})

	notBefore := date(2026, 1, 1)
	notAfter := notBefore.AddDate(0, 0, 91)

	info := &acme.RenewalInfo{End: notBefore.AddDate(0, 0, 10)}
	due := c.ComputeDueDate(notBefore, notAfter, info)
	assert.Equal(t, notBefore.AddDate(0, 0, 60), due.End)
	assert.NotContains(t, due.Source, "ri")
}

func TestComputeDueDateMonotonic(t *testing.T) {
	c := testCalculator()

	// 任意有效期组合下 Start <= End 恒成立
	for days := 1; days <= 120; days++ {
		notBefore := date(2026, 1, 1)
		due := c.ComputeDueDate(notBefore, notBefore.AddDate(0, 0, days), nil)
		assert.False(t, due.Start.After(due.End), "days=%d", days)
	}
}

func certInfo(t *testing.T, notBefore, notAfter time.Time) *CertificateInfo {
	t.Helper()
	return &CertificateInfo{
		Certificate: testCertificate(t, "example.com", []string{"example.com"}, notBefore, notAfter),
		KeyFile:     "key.pem",
	}
}

func shouldRunContext(t *testing.T, prev *CertificateInfo) *OrderContext {
	t.Helper()
	r := New("test")
	ctx := NewOrderContext(&Order{Renewal: r, Target: &Target{}}, RunUnattended)
	ctx.Previous = prev
	if prev != nil {
		ctx.OrderInfo = &StaticOrderInfo{Key: "main", LastThumbprint: prev.Thumbprint()}
	}
	return ctx
}

func TestShouldRunNoPrevious(t *testing.T) {
	c := testCalculator()
	assert.True(t, c.ShouldRun(shouldRunContext(t, nil)))
}

func TestShouldRunBeforeWindow(t *testing.T) {
	c := testCalculator()
	now := date(2026, 3, 1)
	c.Now = func() time.Time { return now }

	// 证书刚签发，窗口远未开始
	prev := certInfo(t, now.AddDate(0, 0, -1), now.AddDate(0, 0, 89))
	assert.False(t, c.ShouldRun(shouldRunContext(t, prev)))
}

func TestShouldRunWindowEnd(t *testing.T) {
	c := testCalculator()
	now := date(2026, 3, 1)
	c.Now = func() time.Time { return now }
	c.Random = func() float64 { return 0.999 }

	// 窗口只剩一天 → 无条件执行
	prev := certInfo(t, now.AddDate(0, 0, -60), now.AddDate(0, 0, 30))
	assert.True(t, c.ShouldRun(shouldRunContext(t, prev)))
}

func TestShouldRunDailyHazard(t *testing.T) {
	c := testCalculator()
	now := date(2026, 3, 1)
	c.Now = func() time.Time { return now }

	// 窗口内还剩约3天：概率阈值为 1/3
	prev := certInfo(t, now.AddDate(0, 0, -57), now.AddDate(0, 0, 33))

	c.Random = func() float64 { return 0.2 }
	assert.True(t, c.ShouldRun(shouldRunContext(t, prev)))

	c.Random = func() float64 { return 0.9 }
	assert.False(t, c.ShouldRun(shouldRunContext(t, prev)))
}

func TestShouldRunNeverInstalled(t *testing.T) {
	c := testCalculator()
	now := date(2026, 3, 1)
	c.Now = func() time.Time { return now }

	// 有缓存证书但历史中从未成功安装 → 总是执行
	prev := certInfo(t, now.AddDate(0, 0, -1), now.AddDate(0, 0, 89))
	ctx := shouldRunContext(t, prev)
	ctx.OrderInfo = nil
	assert.True(t, c.ShouldRun(ctx))
}
