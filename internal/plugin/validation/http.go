package validation

import (
	"context"
	"log"
	"os"
	"path/filepath"

	"acme-manager/internal/acme"
	"acme-manager/internal/plugin"
	"acme-manager/internal/renewal"
)

// HTTP http-01 webroot 验证插件。把密钥授权串写到站点的
// .well-known/acme-challenge 目录下。站点根目录是共享资源，
// 不声明任何并发能力，每个标识符使用独立实例串行执行。
type HTTP struct {
	opts *renewal.ValidationOptions

	// 本实例写过的质询文件
	written []string
}

// NewHTTP 创建 http-01 验证插件
func NewHTTP(opts *renewal.ValidationOptions) *HTTP {
	return &HTTP{opts: opts}
}

// ChallengeTypes 支持的质询类型
func (h *HTTP) ChallengeTypes() []string {
	return []string{acme.ChallengeTypeHTTP01}
}

// Parallelism 不支持任何并发
func (h *HTTP) Parallelism() plugin.Parallelism {
	return plugin.ParallelNone
}

// SelectChallenge 固定选 http-01
func (h *HTTP) SelectChallenge(choices []acme.Challenge) *acme.Challenge {
	for i := range choices {
		if choices[i].Type == acme.ChallengeTypeHTTP01 {
			return &choices[i]
		}
	}
	return nil
}

// Disabled 未配置站点根目录时不可用
func (h *HTTP) Disabled() (bool, string) {
	if h.opts != nil && h.opts.Disabled {
		return true, "验证配置已禁用"
	}
	if h.opts == nil || h.opts.Webroot == "" {
		return true, "站点根目录未配置"
	}
	return false, ""
}

// PrepareChallenge 写入质询应答文件
func (h *HTTP) PrepareChallenge(ctx context.Context, vc *plugin.ValidationContext) plugin.Result {
	if vc.Challenge == nil {
		return plugin.Fatalf("缺少质询对象")
	}

	dir := filepath.Join(h.opts.Webroot, ".well-known", "acme-challenge")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return plugin.Fatalf("创建质询目录失败: %v", err)
	}

	path := filepath.Join(dir, vc.Challenge.Token)
	if err := os.WriteFile(path, []byte(vc.KeyAuthorization), 0644); err != nil {
		return plugin.Fatalf("写入质询文件失败: %v", err)
	}

	h.written = append(h.written, path)
	log.Printf("[验证] 质询文件已写入: %s", path)
	return plugin.Ok()
}

// Commit http-01 无需等待
func (h *HTTP) Commit(ctx context.Context) plugin.Result {
	return plugin.Ok()
}

// CleanUp 删除写过的质询文件
func (h *HTTP) CleanUp(ctx context.Context) plugin.Result {
	result := plugin.Ok()
	for _, path := range h.written {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("[验证] 删除质询文件失败 %s: %v", path, err)
			result = plugin.NonFatalf("清理质询文件失败: %v", err)
		}
	}
	h.written = nil
	return result
}
