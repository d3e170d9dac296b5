package renewal

import (
	"strings"

	"acme-manager/internal/acme"
)

// Order 从目标拆分出来的一次证书请求。
// 每次运行重新创建，运行结束即丢弃，只有缓存产物落盘。
type Order struct {
	Renewal *Renewal
	Target  *Target

	// 区分同一续期下多个订单的键，单订单时为空
	CacheKeyPart string

	// 可复用私钥文件路径，由CSR插件在需要时填写
	KeyPath string

	// 服务端订单状态，创建订单后填写
	Details *acme.Order
}

// Name 订单键（小写）：CacheKeyPart 或默认 "main"
func (o *Order) Name() string {
	if o.CacheKeyPart == "" {
		return "main"
	}
	return strings.ToLower(o.CacheKeyPart)
}

// FriendlyName 日志用名称
func (o *Order) FriendlyName() string {
	name := o.Renewal.DisplayName()
	if o.CacheKeyPart != "" {
		name += " [" + o.CacheKeyPart + "]"
	}
	return name
}

// OrderContext 订单的运行期上下文
type OrderContext struct {
	Order    *Order
	RunLevel RunLevel
	Result   *OrderResult

	// 本次运行是否应该执行该订单
	ShouldRun bool

	// 形状精确匹配的缓存证书
	Cached *CertificateInfo
	// 宽松匹配的上一张证书（用于替换后清理）
	Previous *CertificateInfo
	// 本次运行新获得的证书
	New *CertificateInfo

	// 服务端建议的续期窗口
	RenewalInfo *acme.RenewalInfo

	// 历史投影得到的订单当前状态
	OrderInfo *StaticOrderInfo
}

// NewOrderContext 创建订单上下文
func NewOrderContext(order *Order, level RunLevel) *OrderContext {
	return &OrderContext{
		Order:    order,
		RunLevel: level,
		Result:   NewOrderResult(order.Name()),
	}
}

// Certificate 本次运行生效的证书：新签发的优先，其次缓存
func (c *OrderContext) Certificate() *CertificateInfo {
	if c.New != nil {
		return c.New
	}
	return c.Cached
}
