package renewal

import "strings"

// RunLevel 执行模式标志位，影响流水线各环节的行为
type RunLevel uint8

const (
	// RunForce 忽略到期窗口，强制执行所有订单
	RunForce RunLevel = 1 << iota
	// RunNoCache 忽略缓存证书，强制走服务端签发
	RunNoCache
	// RunTest 测试模式，关键动作前交互确认
	RunTest
	// RunNoTaskScheduler 跳过定时任务健康检查
	RunNoTaskScheduler
	// RunForceValidation 对已通过的授权也重新验证
	RunForceValidation
	// RunInteractive 交互模式（手动触发）
	RunInteractive
)

// RunUnattended 无人值守的默认模式
const RunUnattended RunLevel = 0

// Has 检查是否包含指定标志
func (r RunLevel) Has(flag RunLevel) bool {
	return r&flag != 0
}

// String 用于日志输出
func (r RunLevel) String() string {
	if r == RunUnattended {
		return "unattended"
	}

	var parts []string
	for _, f := range []struct {
		flag RunLevel
		name string
	}{
		{RunForce, "force"},
		{RunNoCache, "no-cache"},
		{RunTest, "test"},
		{RunNoTaskScheduler, "no-scheduler"},
		{RunForceValidation, "force-validation"},
		{RunInteractive, "interactive"},
	} {
		if r.Has(f.flag) {
			parts = append(parts, f.name)
		}
	}
	return strings.Join(parts, "|")
}
