package core

import (
	"context"
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"

	"acme-manager/internal/acme"
	"acme-manager/internal/config"
	"acme-manager/internal/plugin"
	"acme-manager/internal/renewal"
	"acme-manager/internal/storage"
)

const defaultParallelBatchSize = 10

// ValidationCoordinator 质询验证协调器。
// 把一批订单的授权走完 Prepare → Commit → Submit → CleanUp，
// 按插件声明的并行能力决定串行还是分批并行。
type ValidationCoordinator struct {
	registry *plugin.Registry
	client   acme.Client
	settings config.ExecutionConfig
	globals  []*storage.GlobalValidationOption
}

// NewValidationCoordinator 创建验证协调器
func NewValidationCoordinator(registry *plugin.Registry, client acme.Client, settings config.ExecutionConfig, globals []*storage.GlobalValidationOption) *ValidationCoordinator {
	return &ValidationCoordinator{
		registry: registry,
		client:   client,
		settings: settings,
		globals:  globals,
	}
}

// ValidateOrders 验证一批订单的所有授权。
// 错误写入各订单的结果，不向上抛：单个授权失败不应
// 中断其他订单的验证。
func (v *ValidationCoordinator) ValidateOrders(ctx context.Context, contexts []*renewal.OrderContext, level renewal.RunLevel) {
	vcs := v.fetchAuthorizations(ctx, contexts)

	// 授权获取阶段出错时不再推进，避免半初始化的质询状态
	for _, oc := range contexts {
		if oc.Result.HasFatalError() {
			log.Printf("[验证] 订单 %s 已失败，跳过本轮验证", oc.Order.FriendlyName())
			return
		}
	}

	groups, ok := v.groupByOptions(vcs)
	if !ok {
		return
	}

	for _, group := range groups {
		v.runAuthorizations(ctx, group.options, group.contexts, level)
	}

	// 留在pending的授权主动停用，防止触达服务端的pending授权上限
	for _, vc := range vcs {
		if vc.Authorization.Status != acme.StatusPending {
			continue
		}
		if err := v.client.DeactivateAuthorization(ctx, vc.Authorization.Location); err != nil {
			log.Printf("[验证] 停用授权 %s 失败: %v", vc.Label, err)
		}
	}
}

// fetchAuthorizations 并行拉取所有订单的授权详情
func (v *ValidationCoordinator) fetchAuthorizations(ctx context.Context, contexts []*renewal.OrderContext) []*plugin.ValidationContext {
	var mu sync.Mutex
	var out []*plugin.ValidationContext
	g, gctx := errgroup.WithContext(ctx)

	for _, oc := range contexts {
		if oc.Order.Details == nil || oc.Result.HasFatalError() {
			continue
		}
		for _, authzURL := range oc.Order.Details.Authorizations {
			oc, authzURL := oc, authzURL
			g.Go(func() error {
				authz, err := v.client.GetAuthorization(gctx, authzURL)
				if err != nil {
					mu.Lock()
					oc.Result.AddError(fmt.Sprintf("获取授权详情失败: %v", err), true)
					mu.Unlock()
					return nil
				}

				identifier := authz.IdentifierValue()
				mu.Lock()
				out = append(out, &plugin.ValidationContext{
					Order:         oc,
					Identifier:    identifier,
					Label:         identifier,
					Authorization: authz,
					Valid:         authz.Status == acme.StatusValid,
				})
				mu.Unlock()
				return nil
			})
		}
	}

	g.Wait()
	return out
}

// optionsGroup 同一份验证配置下的授权集合
type optionsGroup struct {
	options  *renewal.ValidationOptions
	contexts []*plugin.ValidationContext
}

// groupByOptions 为每个授权解析生效的验证选项并按选项分组。
// 全局覆盖优先于任务自身配置，但只在覆盖插件确实能验证
// 该授权时才生效；两者都不可用时整批失败。
func (v *ValidationCoordinator) groupByOptions(vcs []*plugin.ValidationContext) ([]*optionsGroup, bool) {
	index := make(map[*renewal.ValidationOptions]*optionsGroup)
	var groups []*optionsGroup

	for _, vc := range vcs {
		opts := v.resolveOptions(vc)
		if opts == nil {
			vc.Order.Result.AddError(fmt.Sprintf("标识符 %s 没有可用的验证配置", vc.Label), true)
			log.Printf("[验证] 标识符 %s 没有可用的验证配置", vc.Label)
			return nil, false
		}
		vc.Options = opts

		group, ok := index[opts]
		if !ok {
			group = &optionsGroup{options: opts}
			index[opts] = group
			groups = append(groups, group)
		}
		group.contexts = append(group.contexts, vc)
	}
	return groups, true
}

// resolveOptions 单个授权生效的验证选项
func (v *ValidationCoordinator) resolveOptions(vc *plugin.ValidationContext) *renewal.ValidationOptions {
	for _, g := range v.globals {
		if !g.Match(vc.Identifier) {
			continue
		}
		if v.canValidate(g.Validation, vc) {
			log.Printf("[验证] 标识符 %s 命中全局覆盖 %s", vc.Label, g.Pattern)
			return g.Validation
		}
		log.Printf("[验证] 全局覆盖 %s 无法验证 %s，回退任务配置", g.Pattern, vc.Label)
		break
	}

	local := vc.Order.Order.Renewal.ValidationOptions
	if local != nil && v.canValidate(local, vc) {
		return local
	}
	return nil
}

// canValidate 该配置能否验证此授权：插件存在且未禁用，
// 并且授权已有效或存在插件支持的质询类型。
func (v *ValidationCoordinator) canValidate(opts *renewal.ValidationOptions, vc *plugin.ValidationContext) bool {
	factory, err := v.registry.Validation(opts.Plugin)
	if err != nil {
		return false
	}
	inst, err := factory(opts)
	if err != nil {
		return false
	}
	if d, ok := inst.(plugin.Disabler); ok {
		if disabled, _ := d.Disabled(); disabled {
			return false
		}
	}
	if vc.Valid {
		return true
	}
	return len(usableChallenges(inst, opts, vc.Authorization)) > 0
}

// usableChallenges 授权中插件可处理的质询
func usableChallenges(inst plugin.ValidationPlugin, opts *renewal.ValidationOptions, authz acme.Authorization) []acme.Challenge {
	supported := make(map[string]bool)
	for _, t := range inst.ChallengeTypes() {
		if opts.ChallengeType == "" || opts.ChallengeType == t {
			supported[t] = true
		}
	}

	var out []acme.Challenge
	for _, chal := range authz.Challenges {
		if supported[chal.Type] {
			out = append(out, chal)
		}
	}
	return out
}

// runAuthorizations 执行一组同配置授权的完整验证生命周期
func (v *ValidationCoordinator) runAuthorizations(ctx context.Context, opts *renewal.ValidationOptions, group []*plugin.ValidationContext, level renewal.RunLevel) {
	factory, err := v.registry.Validation(opts.Plugin)
	if err != nil {
		v.failGroup(group, fmt.Sprintf("验证插件不可用: %v", err))
		return
	}

	shared, err := factory(opts)
	if err != nil {
		v.failGroup(group, fmt.Sprintf("创建验证插件失败: %v", err))
		return
	}
	if d, ok := shared.(plugin.Disabler); ok {
		if disabled, reason := d.Disabled(); disabled {
			v.failGroup(group, "验证插件已禁用: "+reason)
			return
		}
	}

	par := shared.Parallelism()
	reuse := par.Has(plugin.ParallelReuse)

	// 选质询、挂插件实例。已有效的授权默认跳过。
	var runnable []*plugin.ValidationContext
	for _, vc := range group {
		if vc.Valid && !level.Has(renewal.RunForceValidation) {
			log.Printf("[验证] %s 授权已有效，跳过", vc.Label)
			continue
		}

		inst := shared
		if !reuse {
			if inst, err = factory(opts); err != nil {
				v.failContext(vc, fmt.Sprintf("创建验证插件失败: %v", err))
				continue
			}
		}
		vc.Plugin = inst

		if !v.selectChallenge(vc, opts) {
			continue
		}
		runnable = append(runnable, vc)
	}
	if len(runnable) == 0 {
		return
	}

	// CleanUp 无论验证成败都要执行
	defer v.cleanup(ctx, runnable)

	// 同一订单的授权串行时首错即停，跨订单则继续给其他订单机会
	breakOnError := sameOrder(runnable)

	prepareParallel := !v.settings.DisableMultiThreading && par.Has(plugin.ParallelPrepare)
	v.runPhase(ctx, runnable, prepareParallel, breakOnError, "准备质询", func(pctx context.Context, vc *plugin.ValidationContext) plugin.Result {
		return vc.Plugin.PrepareChallenge(pctx, vc)
	})

	// Commit 是批量捆绑点：DNS记录全部写入后只等一次传播
	committed := make(map[plugin.ValidationPlugin]bool)
	for _, vc := range runnable {
		if vc.Failed() || committed[vc.Plugin] {
			continue
		}
		committed[vc.Plugin] = true
		if res := vc.Plugin.Commit(ctx); !res.Success() {
			for _, other := range runnable {
				if other.Plugin == vc.Plugin && !other.Failed() {
					v.failContext(other, "提交质询准备失败: "+res.Message)
				}
			}
		}
	}

	answerParallel := !v.settings.DisableMultiThreading && par.Has(plugin.ParallelAnswer)
	v.runPhase(ctx, runnable, answerParallel, breakOnError, "提交质询应答", func(pctx context.Context, vc *plugin.ValidationContext) plugin.Result {
		return v.submit(pctx, vc)
	})
}

// selectChallenge 为授权挑选质询并计算key authorization
func (v *ValidationCoordinator) selectChallenge(vc *plugin.ValidationContext, opts *renewal.ValidationOptions) bool {
	candidates := usableChallenges(vc.Plugin, opts, vc.Authorization)
	if len(candidates) == 0 {
		// 已有效的授权拿不到可重验的质询不算错误
		if !vc.Valid {
			v.failContext(vc, "授权中没有插件支持的质询类型")
		}
		return false
	}

	var chal *acme.Challenge
	if len(candidates) == 1 {
		chal = &candidates[0]
	} else if chal = vc.Plugin.SelectChallenge(candidates); chal == nil {
		v.failContext(vc, "插件未能从多个质询类型中选择")
		return false
	}

	keyAuth, err := v.client.KeyAuthorization(chal.Token)
	if err != nil {
		v.failContext(vc, fmt.Sprintf("计算key authorization失败: %v", err))
		return false
	}

	vc.Challenge = chal
	vc.ChallengeType = chal.Type
	vc.KeyAuthorization = keyAuth
	return true
}

// phaseFunc 单个授权的一个验证阶段
type phaseFunc func(ctx context.Context, vc *plugin.ValidationContext) plugin.Result

// runPhase 执行一个验证阶段。并行时按批大小分批，
// 串行时可按 breakOnError 首错即停。
func (v *ValidationCoordinator) runPhase(ctx context.Context, vcs []*plugin.ValidationContext, parallel, breakOnError bool, name string, fn phaseFunc) {
	if !parallel {
		for _, vc := range vcs {
			if vc.Failed() {
				continue
			}
			if res := fn(ctx, vc); !res.Success() {
				v.failResult(vc, name, res)
				if breakOnError {
					return
				}
			}
		}
		return
	}

	batchSize := v.settings.ParallelBatchSize
	if batchSize <= 0 {
		batchSize = defaultParallelBatchSize
	}

	for start := 0; start < len(vcs); start += batchSize {
		end := start + batchSize
		if end > len(vcs) {
			end = len(vcs)
		}
		batch := vcs[start:end]

		// 同一订单的授权共享一个结果对象，结果对象不是并发
		// 安全的，失败统一等批次收束后再记
		results := make([]*plugin.Result, len(batch))
		var wg sync.WaitGroup
		for i, vc := range batch {
			if vc.Failed() {
				continue
			}
			i, vc := i, vc
			wg.Add(1)
			go func() {
				defer wg.Done()
				res := fn(ctx, vc)
				results[i] = &res
			}()
		}
		wg.Wait()

		for i, vc := range batch {
			if res := results[i]; res != nil && !res.Success() {
				v.failResult(vc, name, *res)
			}
		}
	}
}

// submit 提交质询应答并等待服务端验证结论
func (v *ValidationCoordinator) submit(ctx context.Context, vc *plugin.ValidationContext) plugin.Result {
	if vc.Challenge == nil {
		return plugin.Ok()
	}

	authz, err := v.client.AnswerChallenge(ctx, vc.Authorization, *vc.Challenge)
	vc.Authorization = authz
	if err != nil {
		return plugin.Fatalf("%v", err)
	}
	if authz.Status != acme.StatusValid {
		return plugin.Fatalf("授权最终状态为 %s", authz.Status)
	}

	log.Printf("[验证] %s 验证通过 (%s)", vc.Label, vc.ChallengeType)
	return plugin.Ok()
}

// cleanup 对每个插件实例执行一次清理，失败只记录
func (v *ValidationCoordinator) cleanup(ctx context.Context, vcs []*plugin.ValidationContext) {
	done := make(map[plugin.ValidationPlugin]bool)
	for _, vc := range vcs {
		if vc.Plugin == nil || done[vc.Plugin] {
			continue
		}
		done[vc.Plugin] = true
		if res := vc.Plugin.CleanUp(ctx); !res.Success() {
			log.Printf("[验证] %s 清理失败: %s", vc.Label, res.Message)
			vc.Order.Result.AddError("清理质询失败: "+res.Message, false)
		}
	}
}

// failResult 按插件结果级别记录阶段失败
func (v *ValidationCoordinator) failResult(vc *plugin.ValidationContext, phase string, res plugin.Result) {
	msg := phase + "失败: " + res.Message
	vc.AddError(msg)
	vc.Order.Result.AddError(fmt.Sprintf("标识符 %s %s", vc.Label, msg), res.Fatal() && !vc.Valid)
	log.Printf("[验证] %s %s", vc.Label, msg)
}

// failContext 记录单个授权的失败。授权运行前已有效时
// 不把订单打成致命失败，避免复验异常拖垮本来正常的续期。
func (v *ValidationCoordinator) failContext(vc *plugin.ValidationContext, msg string) {
	vc.AddError(msg)
	vc.Order.Result.AddError(fmt.Sprintf("标识符 %s %s", vc.Label, msg), !vc.Valid)
	log.Printf("[验证] %s %s", vc.Label, msg)
}

// failGroup 整组失败
func (v *ValidationCoordinator) failGroup(group []*plugin.ValidationContext, msg string) {
	for _, vc := range group {
		v.failContext(vc, msg)
	}
}

// sameOrder 所有授权是否属于同一个订单
func sameOrder(vcs []*plugin.ValidationContext) bool {
	for _, vc := range vcs[1:] {
		if vc.Order != vcs[0].Order {
			return false
		}
	}
	return true
}
