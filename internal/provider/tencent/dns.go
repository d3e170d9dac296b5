package tencent

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/profile"
	dnspod "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/dnspod/v20210323"

	"acme-manager/internal/config"
	"acme-manager/internal/domain"
	"acme-manager/internal/provider"
)

// DNSProvider 腾讯云DNS提供商 (DNSPod)
type DNSProvider struct {
	client *dnspod.Client
}

// NewDNSProvider 创建腾讯云DNS提供商
func NewDNSProvider(cfg *config.TencentConfig) (*DNSProvider, error) {
	credential := common.NewCredential(cfg.SecretID, cfg.SecretKey)
	cpf := profile.NewClientProfile()
	cpf.HttpProfile.Endpoint = "dnspod.tencentcloudapi.com"

	client, err := dnspod.NewClient(credential, "", cpf)
	if err != nil {
		return nil, fmt.Errorf("创建腾讯云DNSPod客户端失败: %w", err)
	}

	return &DNSProvider{client: client}, nil
}

// Name 返回提供商名称
func (p *DNSProvider) Name() string {
	return "tencent"
}

// AddRecord 添加DNS记录。同名同值的记录已存在时直接成功，
// 同名不同值时追加新记录。
func (p *DNSProvider) AddRecord(ctx context.Context, dom, rr, recordType, value string) error {
	mainDomain := domain.ExtractMainDomain(dom)
	subDomain := extractSubDomain(rr, mainDomain)

	log.Printf("[腾讯云DNS] 添加记录: %s.%s -> %s (类型: %s)", subDomain, mainDomain, value, recordType)

	existing, err := p.FindRecord(ctx, dom, rr, recordType, value)
	if err != nil {
		log.Printf("[腾讯云DNS] 检查现有记录失败: %v", err)
	}
	if existing != nil {
		log.Printf("[腾讯云DNS] 相同记录已存在，跳过")
		return nil
	}

	request := dnspod.NewCreateRecordRequest()
	request.Domain = common.StringPtr(mainDomain)
	request.SubDomain = common.StringPtr(subDomain)
	request.RecordType = common.StringPtr(recordType)
	request.RecordLine = common.StringPtr("默认")
	request.Value = common.StringPtr(value)
	request.TTL = common.Uint64Ptr(600)

	_, err = p.client.CreateRecord(request)
	if err != nil {
		return fmt.Errorf("添加DNS记录失败: %w", err)
	}

	log.Printf("[腾讯云DNS] 记录已添加")
	return nil
}

// DeleteRecord 删除DNS记录
func (p *DNSProvider) DeleteRecord(ctx context.Context, dom, recordID string) error {
	mainDomain := domain.ExtractMainDomain(dom)

	log.Printf("[腾讯云DNS] 删除记录: ID=%s", recordID)

	var recordIdUint uint64
	fmt.Sscanf(recordID, "%d", &recordIdUint)

	request := dnspod.NewDeleteRecordRequest()
	request.Domain = common.StringPtr(mainDomain)
	request.RecordId = common.Uint64Ptr(recordIdUint)

	_, err := p.client.DeleteRecord(request)
	if err != nil {
		return fmt.Errorf("删除DNS记录失败: %w", err)
	}

	log.Printf("[腾讯云DNS] 记录已删除")
	return nil
}

// FindRecord 查找DNS记录，value非空时要求值也一致
func (p *DNSProvider) FindRecord(ctx context.Context, dom, rr, recordType, value string) (*provider.DNSRecord, error) {
	mainDomain := domain.ExtractMainDomain(dom)
	subDomain := extractSubDomain(rr, mainDomain)

	request := dnspod.NewDescribeRecordListRequest()
	request.Domain = common.StringPtr(mainDomain)
	request.Subdomain = common.StringPtr(subDomain)
	request.RecordType = common.StringPtr(recordType)

	response, err := p.client.DescribeRecordList(request)
	if err != nil {
		// 没有记录时腾讯云返回错误而不是空列表
		if strings.Contains(err.Error(), "NoRecord") || strings.Contains(err.Error(), "记录列表为空") {
			return nil, nil
		}
		return nil, fmt.Errorf("查询DNS记录失败: %w", err)
	}

	if response.Response != nil && response.Response.RecordList != nil {
		for _, record := range response.Response.RecordList {
			if record.Name == nil || *record.Name != subDomain ||
				record.Type == nil || *record.Type != recordType {
				continue
			}
			if value != "" && (record.Value == nil || *record.Value != value) {
				continue
			}
			return &provider.DNSRecord{
				RecordID: fmt.Sprintf("%d", *record.RecordId),
				Domain:   mainDomain,
				RR:       *record.Name,
				Type:     *record.Type,
				Value:    *record.Value,
				TTL:      int(*record.TTL),
			}, nil
		}
	}

	return nil, nil
}

// ListRecords 列出DNS记录
func (p *DNSProvider) ListRecords(ctx context.Context, dom string) ([]*provider.DNSRecord, error) {
	mainDomain := domain.ExtractMainDomain(dom)

	request := dnspod.NewDescribeRecordListRequest()
	request.Domain = common.StringPtr(mainDomain)

	response, err := p.client.DescribeRecordList(request)
	if err != nil {
		if strings.Contains(err.Error(), "NoRecord") {
			return nil, nil
		}
		return nil, fmt.Errorf("获取DNS记录列表失败: %w", err)
	}

	var records []*provider.DNSRecord
	if response.Response != nil && response.Response.RecordList != nil {
		for _, record := range response.Response.RecordList {
			records = append(records, &provider.DNSRecord{
				RecordID: fmt.Sprintf("%d", *record.RecordId),
				Domain:   mainDomain,
				RR:       *record.Name,
				Type:     *record.Type,
				Value:    *record.Value,
				TTL:      int(*record.TTL),
			})
		}
	}

	return records, nil
}

// extractSubDomain 提取子域名部分
func extractSubDomain(fullRecord, mainDomain string) string {
	if strings.HasSuffix(fullRecord, "."+mainDomain) {
		return strings.TrimSuffix(fullRecord, "."+mainDomain)
	}
	return fullRecord
}
