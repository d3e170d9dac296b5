package core

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"acme-manager/internal/acme"
	"acme-manager/internal/cache"
	"acme-manager/internal/config"
	"acme-manager/internal/notification"
	"acme-manager/internal/plugin"
	"acme-manager/internal/renewal"
	"acme-manager/internal/storage"
)

// Manager 续期任务管理器：批量驱动所有任务的检查与执行
type Manager struct {
	config     *config.Config
	factory    *Factory
	registry   *plugin.Registry
	store      *storage.RenewalStore
	cache      *cache.Store
	calculator *renewal.Calculator
	projector  *renewal.Projector
	notifier   *notification.WebhookNotifier
	probe      *EndpointProbe

	// 懒初始化的ACME客户端，首次运行时注册账户
	client acme.Client

	// 可选的调度器健康检查，由命令行注入
	Scheduler TaskScheduler
}

// NewManager 创建管理器
func NewManager(cfg *config.Config) (*Manager, error) {
	store, err := storage.NewRenewalStore(filepath.Join(cfg.DataDir, "renewals"))
	if err != nil {
		return nil, err
	}
	cacheStore, err := cache.NewStore(filepath.Join(cfg.DataDir, "certificates"), cfg.Renewal.ReuseDays)
	if err != nil {
		return nil, err
	}

	factory := NewFactory(cfg)
	calculator := renewal.NewCalculator(cfg.Renewal)

	return &Manager{
		config:     cfg,
		factory:    factory,
		registry:   factory.Registry(),
		store:      store,
		cache:      cacheStore,
		calculator: calculator,
		projector:  renewal.NewProjector(calculator),
		notifier:   notification.NewWebhookNotifier(cfg.Webhook),
		probe:      NewEndpointProbe(),
	}, nil
}

// Run 检查并执行所有续期任务
func (m *Manager) Run(ctx context.Context, level renewal.RunLevel) error {
	log.Println("========== 开始检查续期任务 ==========")

	renewals, err := m.store.All()
	if err != nil {
		return err
	}
	if len(renewals) == 0 {
		log.Println("没有配置续期任务")
		return nil
	}

	executor, err := m.newExecutor(ctx)
	if err != nil {
		return err
	}

	concurrency := m.config.Execution.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, r := range renewals {
		r := r
		g.Go(func() error {
			m.processRenewal(gctx, executor, r, level)
			return nil
		})
	}
	g.Wait()

	m.clean()
	log.Println("========== 检查完成 ==========")
	return nil
}

// ProcessRenewal 按ID或名称执行单个续期任务
func (m *Manager) ProcessRenewal(ctx context.Context, idOrName string, level renewal.RunLevel) error {
	r, err := m.store.Find(idOrName)
	if err != nil {
		return err
	}

	executor, err := m.newExecutor(ctx)
	if err != nil {
		return err
	}

	m.processRenewal(ctx, executor, r, level)
	if last := r.History[len(r.History)-1]; !last.Success {
		return fmt.Errorf("续期任务 %s 执行失败", r.DisplayName())
	}
	return nil
}

// processRenewal 执行一个任务并落历史、发通知
func (m *Manager) processRenewal(ctx context.Context, executor *RenewalExecutor, r *renewal.Renewal, level renewal.RunLevel) {
	result := executor.HandleRenewal(ctx, r, level)
	r.AppendResult(result)
	if err := m.store.Save(r); err != nil {
		log.Printf("[管理] 保存续期记录 %s 失败: %v", r.DisplayName(), err)
	}
	m.notify(ctx, r, result)
}

// newExecutor 装配一次运行用的执行链
func (m *Manager) newExecutor(ctx context.Context) (*RenewalExecutor, error) {
	client, err := m.acmeClient(ctx)
	if err != nil {
		return nil, err
	}

	globals, err := m.store.GlobalValidationOptions()
	if err != nil {
		log.Printf("[管理] 读取全局验证配置失败: %v", err)
	}

	validator := NewValidationCoordinator(m.registry, client, m.config.Execution, globals)
	processor := NewOrderProcessor(client, m.registry, m.cache, m.calculator, validator)
	executor := NewRenewalExecutor(m.registry, processor, m.calculator, m.projector, m.cache, m.config.Execution)
	executor.Scheduler = m.Scheduler
	return executor, nil
}

// acmeClient 懒初始化ACME客户端
func (m *Manager) acmeClient(ctx context.Context) (acme.Client, error) {
	if m.client != nil {
		return m.client, nil
	}

	client, err := acme.NewClient(ctx, acme.ClientConfig{
		DirectoryURL: m.config.Acme.DirectoryURL,
		UserAgent:    "acme-manager",
		Timeout:      time.Duration(m.config.Acme.Timeout) * time.Second,
		PollTimeout:  time.Duration(m.config.Acme.PollTimeout) * time.Second,
	}, acme.Account{
		Email: m.config.Acme.Email,
		Dir:   filepath.Join(m.config.DataDir, "accounts", m.config.Acme.Email),
	})
	if err != nil {
		return nil, fmt.Errorf("初始化ACME客户端失败: %w", err)
	}
	m.client = client
	return client, nil
}

// notify 按运行结果发送webhook通知
func (m *Manager) notify(ctx context.Context, r *renewal.Renewal, result *renewal.RenewResult) {
	if !m.notifier.IsEnabled() {
		return
	}

	// 干净中止表示没有到期订单，不打扰
	if result.Abort && result.Success {
		return
	}

	name := r.DisplayName()
	if result.Success {
		thumbprint := ""
		for _, or := range result.OrderResults {
			if or.Thumbprint != "" {
				thumbprint = or.Thumbprint
				break
			}
		}
		if err := m.notifier.NotifyRenewalSucceeded(ctx, name, thumbprint); err != nil {
			log.Printf("[管理] 发送成功通知失败: %v", err)
		}
		return
	}

	reason := "未知错误"
	if len(result.ErrorMessages) > 0 {
		reason = result.ErrorMessages[0]
	} else {
		for _, or := range result.OrderResults {
			if len(or.ErrorMessages) > 0 {
				reason = or.ErrorMessages[0].Message
				break
			}
		}
	}
	if err := m.notifier.NotifyRenewalFailed(ctx, name, reason); err != nil {
		log.Printf("[管理] 发送失败通知失败: %v", err)
	}
}

// Revoke 吊销任务当前的所有证书并在历史中留痕，
// 下次运行会无条件重新签发。
func (m *Manager) Revoke(ctx context.Context, idOrName string) error {
	r, err := m.store.Find(idOrName)
	if err != nil {
		return err
	}
	client, err := m.acmeClient(ctx)
	if err != nil {
		return err
	}

	result := renewal.NewRenewResult()
	for _, info := range m.projector.CurrentOrders(r) {
		or := renewal.NewOrderResult(info.Key)
		or.Revoked = true

		cert := m.cache.PreviousInfo(r, info.Key)
		if cert == nil {
			log.Printf("[管理] 订单 %s 缓存中没有证书，仅标记吊销", info.Key)
		} else if err := client.RevokeCertificate(ctx, cert.Certificate, nil, 0); err != nil {
			or.AddError(fmt.Sprintf("吊销失败: %v", err), true)
		} else {
			log.Printf("[管理] 订单 %s 证书已吊销", info.Key)
		}
		result.OrderResults = append(result.OrderResults, or)
	}

	// 私钥一并作废，防止下次复用已吊销证书的密钥
	m.cache.Revoke(r.ID)

	r.AppendResult(result)
	if err := m.store.Save(r); err != nil {
		return err
	}

	if m.notifier.IsEnabled() {
		if err := m.notifier.NotifyCertRevoked(ctx, r.DisplayName()); err != nil {
			log.Printf("[管理] 发送吊销通知失败: %v", err)
		}
	}
	return nil
}

// List 打印所有续期任务的当前状态
func (m *Manager) List(ctx context.Context) error {
	renewals, err := m.store.All()
	if err != nil {
		return err
	}
	if len(renewals) == 0 {
		log.Println("没有配置续期任务")
		return nil
	}

	for _, r := range renewals {
		log.Printf("任务 %s (%s)", r.DisplayName(), r.ID)
		for _, info := range m.projector.CurrentOrders(r) {
			line := fmt.Sprintf("  订单 %s: 已续期 %d 次", info.Key, info.RenewCount)
			if info.DueDate != nil {
				line += fmt.Sprintf("，续期窗口 %s ~ %s (%s)",
					info.DueDate.Start.Format("2006-01-02"),
					info.DueDate.End.Format("2006-01-02"),
					info.DueDate.Source)
			}
			if info.Revoked {
				line += "，证书已吊销"
			}
			log.Print(line)
		}
	}
	return nil
}

// Verify 核对线上端点部署的证书与最近一次续期结果是否一致
func (m *Manager) Verify(ctx context.Context, idOrName string) error {
	r, err := m.store.Find(idOrName)
	if err != nil {
		return err
	}

	var failed bool
	for _, info := range m.projector.CurrentOrders(r) {
		cert := m.cache.PreviousInfo(r, info.Key)
		if cert == nil {
			continue
		}
		domain := cert.CommonName()
		if err := m.probe.Verify(domain, info.LastThumbprint); err != nil {
			log.Printf("[管理] %s 线上核对失败: %v", domain, err)
			failed = true
		} else {
			log.Printf("[管理] %s 线上证书与最近续期一致", domain)
		}
	}
	if failed {
		return fmt.Errorf("存在未通过线上核对的域名")
	}
	return nil
}

// clean 物理清理软删除的任务及其证书缓存
func (m *Manager) clean() {
	removed, err := m.store.Clean()
	if err != nil {
		log.Printf("[管理] 清理续期记录失败: %v", err)
		return
	}
	for _, id := range removed {
		m.cache.DeleteAll(id)
	}
}

// Store 暴露存储层给命令行的增删查
func (m *Manager) Store() *storage.RenewalStore {
	return m.store
}

// GetConfig 获取配置
func (m *Manager) GetConfig() *config.Config {
	return m.config
}
