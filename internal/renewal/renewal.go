package renewal

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Renewal 一个持久化的证书续期任务
type Renewal struct {
	ID               string `json:"id"`
	FriendlyName     string `json:"friendly_name,omitempty"`
	LastFriendlyName string `json:"last_friendly_name,omitempty"`

	// ACME账户引用（邮箱），为空时使用全局默认账户
	Account string `json:"account,omitempty"`

	// 各环节插件选项。target/order/validation/store/installation
	// 创建后必须非空；CSR在用户自带CSR时可以为空。
	TargetOptions       *TargetOptions        `json:"target"`
	OrderOptions        *OrderOptions         `json:"order"`
	ValidationOptions   *ValidationOptions    `json:"validation"`
	CsrOptions          *CsrOptions           `json:"csr,omitempty"`
	StoreOptions        []StoreOptions        `json:"store"`
	InstallationOptions []InstallationOptions `json:"installation"`

	// 历史运行记录，按时间顺序追加
	History []*RenewResult `json:"history,omitempty"`

	// 软删除标记，物理清理只由后端GC执行
	Deleted bool `json:"deleted,omitempty"`

	// 运行期标志，不持久化
	New     bool `json:"-"`
	Updated bool `json:"-"`
}

// New 创建新的续期任务，填好不变量要求的非空选项
func New(friendlyName string) *Renewal {
	return &Renewal{
		ID:                  uuid.NewString(),
		FriendlyName:        friendlyName,
		TargetOptions:       &TargetOptions{},
		OrderOptions:        &OrderOptions{},
		ValidationOptions:   &ValidationOptions{},
		StoreOptions:        []StoreOptions{},
		InstallationOptions: []InstallationOptions{},
		New:                 true,
	}
}

// DisplayName 展示名称
func (r *Renewal) DisplayName() string {
	if r.FriendlyName != "" {
		return r.FriendlyName
	}
	if r.LastFriendlyName != "" {
		return r.LastFriendlyName
	}
	return r.ID
}

// AppendResult 追加一次运行结果并标记待持久化
func (r *Renewal) AppendResult(result *RenewResult) {
	r.History = append(r.History, result)
	r.Updated = true
}

// ErrorMessage 订单错误，fatal表示导致订单失败
type ErrorMessage struct {
	Message string `json:"message"`
	Fatal   bool   `json:"fatal"`
}

// OrderResult 单个订单的运行结果
type OrderResult struct {
	// 订单键（小写），与缓存键前缀一致
	Key           string         `json:"key"`
	Success       bool           `json:"success"`
	Missing       bool           `json:"missing,omitempty"`
	Revoked       bool           `json:"revoked,omitempty"`
	Thumbprint    string         `json:"thumbprint,omitempty"`
	ExpireDate    *time.Time     `json:"expire_date,omitempty"`
	DueDate       *DueDate       `json:"due_date,omitempty"`
	ErrorMessages []ErrorMessage `json:"errors,omitempty"`
}

// NewOrderResult 创建订单结果
func NewOrderResult(key string) *OrderResult {
	return &OrderResult{Key: strings.ToLower(key)}
}

// AddError 记录错误。fatal的错误同时将订单标记为失败。
func (o *OrderResult) AddError(msg string, fatal bool) {
	o.ErrorMessages = append(o.ErrorMessages, ErrorMessage{Message: msg, Fatal: fatal})
	if fatal {
		o.Success = false
	}
}

// HasFatalError 是否存在致命错误
func (o *OrderResult) HasFatalError() bool {
	for _, e := range o.ErrorMessages {
		if e.Fatal {
			return true
		}
	}
	return false
}

// RenewResult 一次续期运行的汇总结果
type RenewResult struct {
	Date          time.Time      `json:"date"`
	Success       bool           `json:"success"`
	Abort         bool           `json:"abort,omitempty"`
	OrderResults  []*OrderResult `json:"orders,omitempty"`
	ErrorMessages []string       `json:"errors,omitempty"`
}

// NewRenewResult 创建运行结果
func NewRenewResult() *RenewResult {
	return &RenewResult{Date: time.Now()}
}

// Abortf 以失败中止整个续期
func (r *RenewResult) Abortf(format string, args ...any) *RenewResult {
	r.Abort = true
	r.Success = false
	r.AddError(fmt.Sprintf(format, args...))
	return r
}

// AbortClean 干净中止（无到期订单时的正常情况）
func (r *RenewResult) AbortClean() *RenewResult {
	r.Abort = true
	r.Success = true
	return r
}

// AddError 记录汇总级错误
func (r *RenewResult) AddError(msg string) {
	r.ErrorMessages = append(r.ErrorMessages, msg)
}
