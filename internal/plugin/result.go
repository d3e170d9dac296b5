package plugin

import "fmt"

// ResultKind 插件调用结果的级别
type ResultKind int

const (
	// KindOk 成功
	KindOk ResultKind = iota
	// KindNonFatal 失败但不导致订单失败，只记录
	KindNonFatal
	// KindFatal 失败且导致订单失败
	KindFatal
)

// Result 插件调用的结果。插件边界上不使用panic，
// 所有失败都显式表达为 NonFatal 或 Fatal。
type Result struct {
	Kind    ResultKind
	Message string
}

// Ok 成功结果
func Ok() Result {
	return Result{Kind: KindOk}
}

// Fatalf 致命失败
func Fatalf(format string, args ...any) Result {
	return Result{Kind: KindFatal, Message: fmt.Sprintf(format, args...)}
}

// NonFatalf 非致命失败
func NonFatalf(format string, args ...any) Result {
	return Result{Kind: KindNonFatal, Message: fmt.Sprintf(format, args...)}
}

// FatalErr 包装错误为致命失败
func FatalErr(err error) Result {
	return Result{Kind: KindFatal, Message: err.Error()}
}

// Success 是否成功
func (r Result) Success() bool {
	return r.Kind == KindOk
}

// Fatal 是否致命
func (r Result) Fatal() bool {
	return r.Kind == KindFatal
}

func (r Result) String() string {
	switch r.Kind {
	case KindOk:
		return "ok"
	case KindNonFatal:
		return r.Message
	default:
		return r.Message
	}
}
