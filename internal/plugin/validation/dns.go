package validation

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"log"
	"strings"
	"sync"
	"time"

	"acme-manager/internal/acme"
	"acme-manager/internal/plugin"
	"acme-manager/internal/provider"
	"acme-manager/internal/renewal"
)

// 默认的DNS记录传播等待时间
const defaultPropagation = 60 * time.Second

// DNS dns-01 验证插件。Prepare阶段写TXT记录，
// Commit阶段整批等待一次传播，CleanUp删除写过的记录。
// 三个并发轴全部支持：记录互不干扰，实例可以复用。
type DNS struct {
	opts     *renewal.ValidationOptions
	provider provider.DNSProvider

	mu sync.Mutex
	// 本实例创建过的记录，清理时使用
	prepared []preparedRecord
	// 自上次Commit以来是否有新记录
	dirty bool
}

type preparedRecord struct {
	domain string
	rr     string
	value  string
}

// NewDNS 创建 dns-01 验证插件
func NewDNS(opts *renewal.ValidationOptions, prov provider.DNSProvider) *DNS {
	return &DNS{opts: opts, provider: prov}
}

// ChallengeTypes 支持的质询类型
func (d *DNS) ChallengeTypes() []string {
	return []string{acme.ChallengeTypeDNS01}
}

// Parallelism 并发能力
func (d *DNS) Parallelism() plugin.Parallelism {
	return plugin.ParallelPrepare | plugin.ParallelAnswer | plugin.ParallelReuse
}

// SelectChallenge 只支持单一类型，固定选 dns-01
func (d *DNS) SelectChallenge(choices []acme.Challenge) *acme.Challenge {
	for i := range choices {
		if choices[i].Type == acme.ChallengeTypeDNS01 {
			return &choices[i]
		}
	}
	return nil
}

// Disabled 提供商缺失或配置下线时不可用
func (d *DNS) Disabled() (bool, string) {
	if d.opts != nil && d.opts.Disabled {
		return true, "验证配置已禁用"
	}
	if d.provider == nil {
		return true, "DNS提供商未配置"
	}
	return false, ""
}

// PrepareChallenge 写入质询TXT记录
func (d *DNS) PrepareChallenge(ctx context.Context, vc *plugin.ValidationContext) plugin.Result {
	identifier := strings.TrimPrefix(vc.Identifier, "*.")
	rr := "_acme-challenge." + identifier
	value := txtRecordValue(vc.KeyAuthorization)

	if err := d.provider.AddRecord(ctx, identifier, rr, "TXT", value); err != nil {
		return plugin.Fatalf("写入验证记录失败: %v", err)
	}

	d.mu.Lock()
	d.prepared = append(d.prepared, preparedRecord{domain: identifier, rr: rr, value: value})
	d.dirty = true
	d.mu.Unlock()
	return plugin.Ok()
}

// Commit 整批记录写完后等待一次传播
func (d *DNS) Commit(ctx context.Context) plugin.Result {
	d.mu.Lock()
	dirty := d.dirty
	d.dirty = false
	d.mu.Unlock()
	if !dirty {
		return plugin.Ok()
	}

	wait := defaultPropagation
	if d.opts != nil && d.opts.PropagationSeconds > 0 {
		wait = time.Duration(d.opts.PropagationSeconds) * time.Second
	}

	log.Printf("[验证] 等待DNS记录传播 %s...", wait)
	select {
	case <-time.After(wait):
		return plugin.Ok()
	case <-ctx.Done():
		return plugin.Fatalf("等待DNS传播被中断: %v", ctx.Err())
	}
}

// CleanUp 删除本实例写过的所有记录，失败只记录不致命
func (d *DNS) CleanUp(ctx context.Context) plugin.Result {
	d.mu.Lock()
	prepared := d.prepared
	d.prepared = nil
	d.dirty = false
	d.mu.Unlock()

	result := plugin.Ok()
	for _, rec := range prepared {
		found, err := d.provider.FindRecord(ctx, rec.domain, rec.rr, "TXT", rec.value)
		if err != nil {
			log.Printf("[验证] 查找待清理记录失败 %s: %v", rec.rr, err)
			result = plugin.NonFatalf("清理验证记录失败: %v", err)
			continue
		}
		if found == nil {
			continue
		}
		if err := d.provider.DeleteRecord(ctx, rec.domain, found.RecordID); err != nil {
			log.Printf("[验证] 删除验证记录失败 %s: %v", rec.rr, err)
			result = plugin.NonFatalf("清理验证记录失败: %v", err)
		}
	}
	return result
}

// txtRecordValue dns-01 记录值：密钥授权串的SHA-256摘要，base64url编码
func txtRecordValue(keyAuth string) string {
	sum := sha256.Sum256([]byte(keyAuth))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
