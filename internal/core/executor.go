package core

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"

	"acme-manager/internal/cache"
	"acme-manager/internal/config"
	"acme-manager/internal/plugin"
	"acme-manager/internal/renewal"
)

// TaskScheduler 定时任务集成。续期成功后确认调度器健康，
// 没有配置调度器时整个检查跳过。
type TaskScheduler interface {
	// EnsureHealthy 确认调度器在运行。interactive 为真时
	// 允许与用户交互确认后再创建任务。
	EnsureHealthy(ctx context.Context, interactive bool) error
}

// RenewalExecutor 单个续期任务的执行器：
// 生成目标、拆分订单、排期判定、驱动订单处理。
type RenewalExecutor struct {
	registry   *plugin.Registry
	processor  *OrderProcessor
	calculator *renewal.Calculator
	projector  *renewal.Projector
	cache      *cache.Store
	settings   config.ExecutionConfig

	// 可选的调度器集成，nil时跳过健康检查
	Scheduler TaskScheduler
}

// NewRenewalExecutor 创建续期执行器
func NewRenewalExecutor(registry *plugin.Registry, processor *OrderProcessor, calculator *renewal.Calculator, projector *renewal.Projector, cacheStore *cache.Store, settings config.ExecutionConfig) *RenewalExecutor {
	return &RenewalExecutor{
		registry:   registry,
		processor:  processor,
		calculator: calculator,
		projector:  projector,
		cache:      cacheStore,
		settings:   settings,
	}
}

// HandleRenewal 执行一次续期运行，返回本次运行结果。
// 所有失败都收敛到结果里，不向上抛错。
func (e *RenewalExecutor) HandleRenewal(ctx context.Context, r *renewal.Renewal, level renewal.RunLevel) *renewal.RenewResult {
	result := renewal.NewRenewResult()
	log.Printf("[执行] 开始处理续期任务 %s (模式: %s)", r.DisplayName(), level)

	target, ok := e.generateTarget(ctx, r, result)
	if !ok {
		return result
	}

	orders, ok := e.splitOrders(r, target, result)
	if !ok {
		return result
	}

	e.handleOrders(ctx, r, orders, level, result)
	return result
}

// generateTarget 调目标插件生成本次要保护的目标
func (e *RenewalExecutor) generateTarget(ctx context.Context, r *renewal.Renewal, result *renewal.RenewResult) (*renewal.Target, bool) {
	tp, err := e.registry.Target(r.TargetOptions)
	if err != nil {
		result.Abortf("创建目标插件失败: %v", err)
		return nil, false
	}
	if d, ok := tp.(plugin.Disabler); ok {
		if disabled, reason := d.Disabled(); disabled {
			result.Abortf("目标插件 %s 已禁用: %s", r.TargetOptions.Plugin, reason)
			return nil, false
		}
	}

	target, err := tp.Generate(ctx)
	if err != nil {
		result.Abortf("生成目标失败: %v", err)
		return nil, false
	}
	if target == nil {
		result.Abortf("目标插件 %s 没有返回需要保护的内容", r.TargetOptions.Plugin)
		return nil, false
	}
	return target, true
}

// splitOrders 按订单插件拆分目标并校验每个订单的形状
func (e *RenewalExecutor) splitOrders(r *renewal.Renewal, target *renewal.Target, result *renewal.RenewResult) ([]*renewal.Order, bool) {
	op, err := e.registry.Order(r.OrderOptions)
	if err != nil {
		result.Abortf("创建订单插件失败: %v", err)
		return nil, false
	}

	orders, err := op.Split(r, target)
	if err != nil {
		result.Abortf("拆分订单失败: %v", err)
		return nil, false
	}
	if len(orders) == 0 {
		result.Abortf("订单插件 %s 没有产生任何订单", r.OrderOptions.Plugin)
		return nil, false
	}

	maxDomains := e.settings.MaxDomains
	for _, order := range orders {
		if err := order.Target.Validate(maxDomains); err != nil {
			// 多订单时形状是拆分出来的，责任在订单插件
			blame := r.TargetOptions.Plugin
			if len(orders) > 1 {
				blame = r.OrderOptions.Plugin
			}
			result.Abortf("插件 %s 产生了无效订单 %s: %v", blame, order.Name(), err)
			return nil, false
		}
	}
	return orders, true
}

// handleOrders 订单级主流程：排期判定、执行、落历史
func (e *RenewalExecutor) handleOrders(ctx context.Context, r *renewal.Renewal, orders []*renewal.Order, level renewal.RunLevel, result *renewal.RenewResult) {
	contexts := make([]*renewal.OrderContext, 0, len(orders))
	current := make(map[string]bool, len(orders))
	for _, order := range orders {
		contexts = append(contexts, renewal.NewOrderContext(order, level))
		current[order.Name()] = true
	}

	infos := e.projector.CurrentOrders(r)
	e.processor.PrepareOrders(ctx, contexts, infos)

	// 历史中存在但本次拆分不再产出的订单：记为missing，
	// 结束时清掉它们的缓存，不参与执行。
	var missing []string
	for _, info := range infos {
		if !current[info.Key] {
			missing = append(missing, info.Key)
			or := renewal.NewOrderResult(info.Key)
			or.Missing = true
			result.OrderResults = append(result.OrderResults, or)
			log.Printf("[执行] 订单 %s 已不存在，标记为缺失", info.Key)
		}
	}
	defer func() {
		for _, key := range missing {
			e.cache.Delete(r.ID, key)
		}
	}()

	runnable := e.selectRunnable(contexts, r, level)
	if len(runnable) == 0 {
		log.Printf("[执行] %s 没有到期的订单", r.DisplayName())
		result.AbortClean()
		return
	}

	// 前置/后置脚本无条件配对执行，后置脚本负责收拾前置的副作用
	e.runScript(ctx, r, e.settings.PreScript, "前置")
	defer e.runScript(ctx, r, e.settings.PostScript, "后置")

	e.processor.ExecuteOrders(ctx, runnable, level)
	e.processor.ProcessOrders(ctx, runnable, result)

	success := true
	for _, oc := range runnable {
		result.OrderResults = append(result.OrderResults, oc.Result)
		if !oc.Result.Success {
			success = false
		}
	}
	result.Success = success && !result.Abort

	e.ensureScheduler(ctx, level, result)
}

// selectRunnable 决定哪些订单本次真正执行
func (e *RenewalExecutor) selectRunnable(contexts []*renewal.OrderContext, r *renewal.Renewal, level renewal.RunLevel) []*renewal.OrderContext {
	// 新建/变更的任务和无缓存模式不做筛选，全量执行
	if level.Has(renewal.RunNoCache) || r.New || r.Updated {
		return contexts
	}

	var runnable []*renewal.OrderContext
	for _, oc := range contexts {
		switch {
		case oc.ShouldRun:
			runnable = append(runnable, oc)
		case level.Has(renewal.RunForce):
			runnable = append(runnable, oc)
		case e.calculator.ShouldRun(oc):
			runnable = append(runnable, oc)
		default:
			log.Printf("[执行] 订单 %s 未到续期窗口，跳过", oc.Order.FriendlyName())
		}
	}
	return runnable
}

// runScript 执行前置/后置脚本，失败只记录
func (e *RenewalExecutor) runScript(ctx context.Context, r *renewal.Renewal, script, label string) {
	if script == "" {
		return
	}
	log.Printf("[执行] 运行%s脚本: %s", label, script)

	cmd := exec.CommandContext(ctx, "sh", "-c", script)
	cmd.Env = append(os.Environ(), fmt.Sprintf("RENEWAL=%s", r.ID))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		log.Printf("[执行] %s脚本失败: %v", label, err)
	}
}

// ensureScheduler 续期成功后确认调度器健康
func (e *RenewalExecutor) ensureScheduler(ctx context.Context, level renewal.RunLevel, result *renewal.RenewResult) {
	if e.Scheduler == nil || level.Has(renewal.RunNoTaskScheduler) || !result.Success {
		return
	}
	if err := e.Scheduler.EnsureHealthy(ctx, level.Has(renewal.RunTest)); err != nil {
		log.Printf("[执行] 调度器健康检查失败: %v", err)
		result.AddError(fmt.Sprintf("调度器健康检查失败: %v", err))
	}
}
