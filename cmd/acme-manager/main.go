package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"acme-manager/internal/config"
	"acme-manager/internal/core"
	"acme-manager/internal/daemon"
	"acme-manager/internal/renewal"
)

func printUsage() {
	fmt.Println(`ACME证书自动续期工具 (DNS验证支持阿里云、腾讯云、华为云)

用法:
  acme-manager [config.yaml]                       # 检查并执行到期的续期任务（单次运行）
  acme-manager [config.yaml] start                 # 启动守护进程（后台运行）
  acme-manager [config.yaml] stop                  # 停止守护进程
  acme-manager [config.yaml] restart               # 重启守护进程
  acme-manager [config.yaml] status                # 查看运行状态
  acme-manager [config.yaml] daemon                # 前台守护进程模式（调试用）
  acme-manager [config.yaml] list                  # 列出所有续期任务
  acme-manager [config.yaml] add <名称> <域名...>  # 新建续期任务
  acme-manager [config.yaml] renew <任务>          # 立即执行单个任务（可加 --force --no-cache）
  acme-manager [config.yaml] revoke <任务>         # 吊销任务的证书
  acme-manager [config.yaml] verify <任务>         # 核对线上部署的证书
  acme-manager [config.yaml] delete <任务>         # 删除续期任务（软删除）

示例:
  acme-manager                                     # 使用默认配置，单次运行
  acme-manager config.yaml add blog example.com *.example.com
  acme-manager config.yaml renew blog --force
  acme-manager config.yaml start

配置文件示例:
  acme:
    directory_url: "https://acme-v02.api.letsencrypt.org/directory"
    email: "admin@example.com"

  renewal:
    renewal_days: 60
    renewal_minimum_valid_days: 30
    renewal_days_range: 5
    reuse_days: 1

  providers:
    aliyun:
      access_key_id: "xxx"
      access_key_secret: "xxx"

  data_dir: "./data"
  check_interval: 24`)
}

func main() {
	configPath := "config.yaml"
	args := os.Args[1:]
	if len(args) > 0 {
		if args[0] == "-h" || args[0] == "--help" {
			printUsage()
			return
		}
		configPath = args[0]
		args = args[1:]
	}

	command := ""
	if len(args) > 0 {
		command = args[0]
		args = args[1:]
	}

	// 守护进程命令不需要加载配置
	switch command {
	case "start":
		handleStart(configPath)
		return
	case "stop":
		handleStop(configPath)
		return
	case "restart":
		handleRestart(configPath)
		return
	case "status":
		handleStatus(configPath)
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	manager, err := core.NewManager(cfg)
	if err != nil {
		log.Fatalf("初始化失败: %v", err)
	}
	manager.Scheduler = newSchedulerCheck(configPath)

	sigHandler := daemon.NewSignalHandler()
	sigHandler.Start()
	ctx := sigHandler.Context()

	switch command {
	case "":
		if err := manager.Run(ctx, renewal.RunUnattended); err != nil {
			log.Fatalf("运行出错: %v", err)
		}
	case "daemon":
		runLoop(ctx, manager, cfg)
	case "list":
		if err := manager.List(ctx); err != nil {
			log.Fatalf("列出任务失败: %v", err)
		}
	case "add":
		handleAdd(cfg, manager, args)
	case "renew":
		handleRenew(ctx, manager, args)
	case "revoke":
		requireArg(args, "revoke", "任务")
		if err := manager.Revoke(ctx, args[0]); err != nil {
			log.Fatalf("吊销失败: %v", err)
		}
	case "verify":
		requireArg(args, "verify", "任务")
		if err := manager.Verify(ctx, args[0]); err != nil {
			log.Fatalf("核对失败: %v", err)
		}
	case "delete":
		requireArg(args, "delete", "任务")
		handleDelete(manager, args[0])
	default:
		printUsage()
		os.Exit(2)
	}
}

func requireArg(args []string, command, name string) {
	if len(args) < 1 {
		log.Fatalf("用法: acme-manager [config.yaml] %s <%s>", command, name)
	}
}

func handleStart(configPath string) {
	d := daemon.NewDaemon(configPath)
	if err := d.Start(); err != nil {
		log.Fatalf("启动失败: %v", err)
	}

	// 后台化的子进程继续执行守护逻辑
	if daemon.IsDaemonized() {
		runDaemonBackground(configPath, d)
	}
}

func handleStop(configPath string) {
	d := daemon.NewDaemon(configPath)
	if err := d.Stop(); err != nil {
		log.Fatalf("停止失败: %v", err)
	}
}

func handleRestart(configPath string) {
	d := daemon.NewDaemon(configPath)
	if err := d.Restart(); err != nil {
		log.Fatalf("重启失败: %v", err)
	}
}

func handleStatus(configPath string) {
	d := daemon.NewDaemon(configPath)
	d.Status()
}

func runDaemonBackground(configPath string, d *daemon.Daemon) {
	if err := d.WritePid(); err != nil {
		log.Fatalf("写入PID失败: %v", err)
	}
	defer d.RemovePid()

	sigHandler := daemon.NewSignalHandler()
	sigHandler.Start()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	manager, err := core.NewManager(cfg)
	if err != nil {
		log.Fatalf("初始化失败: %v", err)
	}

	log.Printf("守护进程已启动，PID: %d，检查间隔: %d 小时", os.Getpid(), cfg.CheckInterval)
	runLoop(sigHandler.Context(), manager, cfg)
}

// runLoop 守护进程主循环：立即跑一轮，之后按检查间隔轮询
func runLoop(ctx context.Context, manager *core.Manager, cfg *config.Config) {
	if err := manager.Run(ctx, renewal.RunUnattended); err != nil {
		log.Printf("运行出错: %v", err)
	}

	ticker := time.NewTicker(time.Duration(cfg.CheckInterval) * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("守护进程正在退出...")
			return
		case <-ticker.C:
			log.Printf("开始定时检查...")
			if err := manager.Run(ctx, renewal.RunUnattended); err != nil {
				log.Printf("运行出错: %v", err)
			}
		}
	}
}

func handleAdd(cfg *config.Config, manager *core.Manager, args []string) {
	if len(args) < 2 {
		log.Fatalf("用法: acme-manager [config.yaml] add <名称> <域名...>")
	}
	name, domains := args[0], args[1:]

	provider := defaultProvider(cfg)
	if provider == "" {
		log.Fatalf("配置中没有可用的DNS提供商")
	}

	r := renewal.New(name)
	r.TargetOptions = &renewal.TargetOptions{
		Plugin:      "manual",
		CommonName:  domains[0],
		Identifiers: domains,
	}
	r.OrderOptions = &renewal.OrderOptions{Plugin: "single"}
	r.ValidationOptions = &renewal.ValidationOptions{Plugin: "dns", Provider: provider}
	r.CsrOptions = &renewal.CsrOptions{Plugin: "rsa"}
	r.StoreOptions = []renewal.StoreOptions{
		{Plugin: "pemfiles", Path: filepath.Join(cfg.DataDir, "certs")},
	}

	if err := manager.Store().Save(r); err != nil {
		log.Fatalf("保存任务失败: %v", err)
	}
	log.Printf("已创建续期任务 %s (%s)，下次运行时签发证书", name, r.ID)
}

func handleRenew(ctx context.Context, manager *core.Manager, args []string) {
	requireArg(args, "renew", "任务")

	level := renewal.RunInteractive
	for _, flag := range args[1:] {
		switch flag {
		case "--force":
			level |= renewal.RunForce
		case "--no-cache":
			level |= renewal.RunNoCache
		case "--force-validation":
			level |= renewal.RunForceValidation
		case "--test":
			level |= renewal.RunTest
		default:
			log.Fatalf("未知参数: %s", flag)
		}
	}

	if err := manager.ProcessRenewal(ctx, args[0], level); err != nil {
		log.Fatalf("续期失败: %v", err)
	}
}

func handleDelete(manager *core.Manager, idOrName string) {
	r, err := manager.Store().Find(idOrName)
	if err != nil {
		log.Fatalf("查找任务失败: %v", err)
	}
	if err := manager.Store().Delete(r); err != nil {
		log.Fatalf("删除任务失败: %v", err)
	}
	log.Printf("已删除续期任务 %s，缓存将在下次运行时清理", r.DisplayName())
}

func defaultProvider(cfg *config.Config) string {
	switch {
	case cfg.Providers.Aliyun != nil:
		return "aliyun"
	case cfg.Providers.Tencent != nil:
		return "tencent"
	case cfg.Providers.Huawei != nil:
		return "huawei"
	}
	return ""
}

// schedulerCheck 续期成功后确认守护进程在跑，
// 没有调度就只签发一次、不会自动续期。
type schedulerCheck struct {
	daemon *daemon.Daemon
}

func newSchedulerCheck(configPath string) *schedulerCheck {
	return &schedulerCheck{daemon: daemon.NewDaemon(configPath)}
}

func (s *schedulerCheck) EnsureHealthy(ctx context.Context, interactive bool) error {
	if _, running := s.daemon.IsRunning(); running {
		return nil
	}
	if interactive && confirm("守护进程未运行，现在启动吗? [y/N] ") {
		return s.daemon.Start()
	}
	return fmt.Errorf("守护进程未运行，证书到期后不会自动续期")
}

func confirm(prompt string) bool {
	fmt.Print(prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
