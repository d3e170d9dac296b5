package core

import (
	"context"
	"encoding/pem"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"acme-manager/internal/acme"
	"acme-manager/internal/cache"
	"acme-manager/internal/plugin"
	csrplugin "acme-manager/internal/plugin/csr"
	"acme-manager/internal/renewal"
)

// OrderProcessor 订单处理器：缓存决策、签发、保存与安装
type OrderProcessor struct {
	client     acme.Client
	registry   *plugin.Registry
	cache      *cache.Store
	calculator *renewal.Calculator
	validator  *ValidationCoordinator
}

// NewOrderProcessor 创建订单处理器
func NewOrderProcessor(client acme.Client, registry *plugin.Registry, cacheStore *cache.Store, calculator *renewal.Calculator, validator *ValidationCoordinator) *OrderProcessor {
	return &OrderProcessor{
		client:     client,
		registry:   registry,
		cache:      cacheStore,
		calculator: calculator,
		validator:  validator,
	}
}

// PrepareOrders 为每个订单补齐缓存证书、历史状态和
// 服务端续期建议，并给出初步的执行判定。
func (p *OrderProcessor) PrepareOrders(ctx context.Context, contexts []*renewal.OrderContext, infos []*renewal.StaticOrderInfo) {
	byKey := make(map[string]*renewal.StaticOrderInfo, len(infos))
	for _, info := range infos {
		byKey[info.Key] = info
	}

	for _, oc := range contexts {
		order := oc.Order
		oc.OrderInfo = byKey[order.Name()]
		oc.Previous = p.cache.PreviousInfo(order.Renewal, order.Name())
		oc.Cached = p.cache.CachedInfo(order)

		switch {
		case oc.OrderInfo != nil && oc.OrderInfo.Revoked:
			// 上一张证书已吊销，无条件重签
			log.Printf("[订单] %s 证书已吊销，强制续期", order.FriendlyName())
			oc.ShouldRun = true

		case oc.Cached == nil:
			// 新订单或形状变化，缓存键对不上
			oc.ShouldRun = true

		default:
			// 缓存命中时顺带刷新服务端续期建议，供排期收紧窗口
			ri, err := p.client.GetRenewalInfo(ctx, oc.Cached.Certificate)
			if err != nil {
				log.Printf("[订单] %s 查询续期窗口失败: %v", order.FriendlyName(), err)
			} else {
				oc.RenewalInfo = ri
			}
		}
	}
}

// ExecuteOrders 执行一批订单：能用缓存的用缓存，其余
// 顺序下单、批量验证、并发取证。
func (p *OrderProcessor) ExecuteOrders(ctx context.Context, contexts []*renewal.OrderContext, level renewal.RunLevel) {
	var pending []*renewal.OrderContext
	for _, oc := range contexts {
		if cached := p.fromCache(oc, level); cached != nil {
			log.Printf("[订单] %s 使用缓存证书 (%s 写入)", oc.Order.FriendlyName(), cached.CacheDate.Format("2006-01-02 15:04"))
			continue
		}
		pending = append(pending, oc)
	}
	if len(pending) == 0 {
		return
	}

	// 下单保持顺序执行，服务端对同一账户的下单可能有先后语义
	var toValidate []*renewal.OrderContext
	for _, oc := range pending {
		details, err := p.client.CreateOrder(ctx, acme.DNSIdentifiers(oc.Order.Target.Identifiers()))
		if err != nil {
			oc.Result.AddError(fmt.Sprintf("创建订单失败: %v", err), true)
			continue
		}
		oc.Order.Details = &details

		if details.Status == acme.StatusPending {
			toValidate = append(toValidate, oc)
		}
	}

	// 一次批量验证调用，让插件的跨订单并行能力充分发挥
	if len(toValidate) > 0 {
		p.validator.ValidateOrders(ctx, toValidate, level)
	}

	// 证书下载相互独立，放开并发
	g, gctx := errgroup.WithContext(ctx)
	for _, oc := range pending {
		if oc.Order.Details == nil || oc.Result.HasFatalError() {
			continue
		}
		oc := oc
		g.Go(func() error {
			if err := p.downloadCertificate(gctx, oc); err != nil {
				oc.Result.AddError(err.Error(), true)
			}
			return nil
		})
	}
	g.Wait()
}

// downloadCertificate 生成CSR、提交终结并把证书写入缓存
func (p *OrderProcessor) downloadCertificate(ctx context.Context, oc *renewal.OrderContext) error {
	order := oc.Order

	csrOpts := order.Renewal.CsrOptions
	if csrOpts == nil {
		csrOpts = &renewal.CsrOptions{Plugin: "rsa"}
	}
	csrPlugin, err := p.registry.Csr(csrOpts)
	if err != nil {
		return fmt.Errorf("创建CSR插件失败: %w", err)
	}

	order.KeyPath = p.cache.Key(order)
	csrDER, err := csrPlugin.GenerateCsr(ctx, order.Target, order.KeyPath)
	if err != nil {
		return fmt.Errorf("生成CSR失败: %w", err)
	}
	if err := p.cache.StoreCsr(order, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: csrDER})); err != nil {
		log.Printf("[订单] %s 缓存CSR失败: %v", order.FriendlyName(), err)
	}

	details, err := p.client.Finalize(ctx, *order.Details, csrDER)
	if err != nil {
		return err
	}
	order.Details = &details

	certPEM, err := p.client.GetCertificate(ctx, details)
	if err != nil {
		return err
	}

	var keyPEM []byte
	if key, err := csrPlugin.Keys(); err == nil {
		if keyPEM, err = csrplugin.MarshalPrivateKeyPEM(key); err != nil {
			return fmt.Errorf("序列化私钥失败: %w", err)
		}
	}

	info, err := p.cache.StoreCertificate(order, certPEM, keyPEM)
	if err != nil {
		return err
	}
	oc.New = info
	log.Printf("[订单] %s 证书签发完成，指纹 %s", order.FriendlyName(), info.Thumbprint())
	return nil
}

// fromCache 决定订单是否复用缓存证书
func (p *OrderProcessor) fromCache(oc *renewal.OrderContext, level renewal.RunLevel) *renewal.CertificateInfo {
	cached := oc.Cached
	if cached == nil {
		return nil
	}
	// 已吊销的证书绝不复用
	if oc.OrderInfo != nil && oc.OrderInfo.Revoked {
		return nil
	}
	if level.Has(renewal.RunNoCache) {
		log.Printf("[订单] %s 按指令跳过缓存", oc.Order.FriendlyName())
		return nil
	}
	// 无私钥的缓存证书装不了，视同没有缓存
	if !cached.HasPrivateKey() {
		return nil
	}
	reuseDays := p.cache.ReuseDays()
	if reuseDays <= 0 {
		return nil
	}
	if cached.CacheDate.IsZero() || time.Since(cached.CacheDate) > time.Duration(reuseDays)*24*time.Hour {
		return nil
	}
	return cached
}

// ProcessOrders 顺序处理所有订单的保存与安装。
// 安装动作有外部副作用，禁止并行，且一单硬失败即中止后续。
func (p *OrderProcessor) ProcessOrders(ctx context.Context, contexts []*renewal.OrderContext, result *renewal.RenewResult) {
	for i, oc := range contexts {
		cert := oc.Certificate()
		if cert == nil {
			if !oc.Result.HasFatalError() {
				oc.Result.AddError("没有可用的证书", true)
			}
		} else if !oc.Result.HasFatalError() {
			oc.Result.Thumbprint = cert.Thumbprint()
			expires := cert.NotAfter()
			oc.Result.ExpireDate = &expires

			p.processOrder(ctx, oc, cert)

			// 服务端建议的窗口更紧时显式落盘，宽于默认计算则不覆盖
			if oc.Result.Success && oc.RenewalInfo != nil {
				due := p.calculator.ComputeDueDate(cert.NotBefore(), cert.NotAfter(), oc.RenewalInfo)
				if strings.Contains(due.Source, renewal.SourceRenewalInfo) {
					oc.Result.DueDate = &due
				}
			}
		}

		if !oc.Result.Success {
			if rest := len(contexts) - i - 1; rest > 0 {
				result.Abortf("订单 %s 失败，中止剩余 %d 个订单", oc.Order.FriendlyName(), rest)
			}
			return
		}
	}
}

// processOrder 单个订单的保存与安装链
func (p *OrderProcessor) processOrder(ctx context.Context, oc *renewal.OrderContext, cert *renewal.CertificateInfo) {
	r := oc.Order.Renewal

	storeInfos := make(map[string]*plugin.StoreInfo)
	var storePlugins []plugin.StorePlugin

	for _, opts := range r.StoreOptions {
		sp, err := p.registry.Store(opts)
		if err != nil {
			oc.Result.AddError(fmt.Sprintf("创建保存插件失败: %v", err), true)
			return
		}
		if d, ok := sp.(plugin.Disabler); ok {
			if disabled, reason := d.Disabled(); disabled {
				oc.Result.AddError(fmt.Sprintf("保存插件 %s 已禁用: %s", opts.Plugin, reason), true)
				return
			}
		}

		// 保存失败是致命的：装不上的证书不如不签
		info, err := sp.Save(ctx, cert)
		if err != nil {
			oc.Result.AddError(fmt.Sprintf("保存插件 %s 失败: %v", opts.Plugin, err), true)
			return
		}
		storePlugins = append(storePlugins, sp)
		if info != nil {
			storeInfos[info.Name] = info
		}
	}

	for _, opts := range r.InstallationOptions {
		ip, err := p.registry.Installation(opts)
		if err != nil {
			oc.Result.AddError(fmt.Sprintf("创建安装插件失败: %v", err), true)
			return
		}
		if d, ok := ip.(plugin.Disabler); ok {
			if disabled, reason := d.Disabled(); disabled {
				oc.Result.AddError(fmt.Sprintf("安装插件 %s 已禁用: %s", opts.Plugin, reason), true)
				return
			}
		}

		// 安装失败记入订单错误，但不中断后续安装插件
		if err := ip.Install(ctx, storeInfos, cert, oc.Previous); err != nil {
			oc.Result.AddError(fmt.Sprintf("安装插件 %s 失败: %v", opts.Plugin, err), true)
		}
	}

	oc.Result.Success = !oc.Result.HasFatalError()

	// 新证书替换旧证书后，把旧证书从各保存目标里清掉
	if oc.Result.Success && oc.Previous != nil && oc.Previous.Thumbprint() != cert.Thumbprint() {
		for _, sp := range storePlugins {
			if err := sp.Delete(ctx, oc.Previous); err != nil {
				log.Printf("[订单] %s 清理旧证书失败: %v", oc.Order.FriendlyName(), err)
				oc.Result.AddError(fmt.Sprintf("清理旧证书失败: %v", err), false)
			}
		}
	}
}
