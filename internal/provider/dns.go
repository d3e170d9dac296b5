package provider

import "context"

// DNSProvider DNS提供商接口，服务于 dns-01 质询的记录生命周期。
// 同一记录名可以同时存在多个TXT值（通配符和裸域共用
// _acme-challenge 记录名），因此添加不做覆盖。
type DNSProvider interface {
	// Name 返回提供商名称
	Name() string

	// AddRecord 添加DNS记录
	// domain: 被验证的域名 (如 www.example.com)
	// rr: 完整记录名 (如 _acme-challenge.www.example.com)
	// recordType: 记录类型 (如 TXT)
	// value: 记录值
	// 相同名称+值的记录已存在时视为成功，不同值时追加新记录。
	AddRecord(ctx context.Context, domain, rr, recordType, value string) error

	// DeleteRecord 删除DNS记录
	DeleteRecord(ctx context.Context, domain, recordID string) error

	// FindRecord 按名称、类型、值查找DNS记录。
	// value为空时只按名称和类型匹配。未找到返回 (nil, nil)。
	FindRecord(ctx context.Context, domain, rr, recordType, value string) (*DNSRecord, error)

	// ListRecords 列出DNS记录
	ListRecords(ctx context.Context, domain string) ([]*DNSRecord, error)
}
