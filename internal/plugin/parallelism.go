package plugin

// Parallelism 验证插件的并发能力标志位，三个轴相互独立
type Parallelism uint8

const (
	// ParallelPrepare 多个质询的Prepare可以并发执行
	ParallelPrepare Parallelism = 1 << iota
	// ParallelAnswer 多个质询的提交可以并发执行
	ParallelAnswer
	// ParallelReuse 同一个插件实例可以跨标识符复用；
	// 未声明时每个标识符必须使用新实例
	ParallelReuse
)

// ParallelNone 无任何并发能力
const ParallelNone Parallelism = 0

// Has 是否包含指定能力
func (p Parallelism) Has(flag Parallelism) bool {
	return p&flag != 0
}
