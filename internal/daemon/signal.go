package daemon

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
)

// SignalHandler 把终止信号转成 context 取消。续期循环
// 和进行中的ACME调用都挂在这个 context 上，收到信号后
// 走完当前订单再退出。
type SignalHandler struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewSignalHandler 创建信号处理器
func NewSignalHandler() *SignalHandler {
	ctx, cancel := context.WithCancel(context.Background())
	return &SignalHandler{
		ctx:    ctx,
		cancel: cancel,
	}
}

// Context 续期循环使用的根 context，信号到达后被取消
func (h *SignalHandler) Context() context.Context {
	return h.ctx
}

// Start 开始监听 SIGINT / SIGTERM
func (h *SignalHandler) Start() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Printf("收到信号 %v，停止续期调度并退出...", sig)
		h.cancel()
	}()
}
