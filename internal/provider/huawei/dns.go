package huawei

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/huaweicloud/huaweicloud-sdk-go-v3/core/auth/basic"
	dns "github.com/huaweicloud/huaweicloud-sdk-go-v3/services/dns/v2"
	dnsModel "github.com/huaweicloud/huaweicloud-sdk-go-v3/services/dns/v2/model"
	dnsRegion "github.com/huaweicloud/huaweicloud-sdk-go-v3/services/dns/v2/region"

	"acme-manager/internal/config"
	"acme-manager/internal/domain"
	"acme-manager/internal/provider"
)

// DNSProvider 华为云DNS提供商
type DNSProvider struct {
	client *dns.DnsClient
}

// NewDNSProvider 创建华为云DNS提供商
func NewDNSProvider(cfg *config.HuaweiConfig) (*DNSProvider, error) {
	auth := basic.NewCredentialsBuilder().
		WithAk(cfg.AccessKey).
		WithSk(cfg.SecretKey).
		Build()

	region := cfg.Region
	if region == "" {
		region = "cn-north-4"
	}

	regionObj, err := dnsRegion.SafeValueOf(region)
	if err != nil {
		return nil, fmt.Errorf("无效的区域: %s", region)
	}

	client := dns.NewDnsClient(
		dns.DnsClientBuilder().
			WithRegion(regionObj).
			WithCredential(auth).
			Build())

	return &DNSProvider{client: client}, nil
}

// Name 返回提供商名称
func (p *DNSProvider) Name() string {
	return "huawei"
}

// getZoneID 获取域名的Zone ID
func (p *DNSProvider) getZoneID(dom string) (string, error) {
	mainDomain := domain.ExtractMainDomain(dom)

	request := &dnsModel.ListPublicZonesRequest{}

	response, err := p.client.ListPublicZones(request)
	if err != nil {
		return "", fmt.Errorf("获取Zone列表失败: %w", err)
	}

	if response.Zones != nil {
		for _, zone := range *response.Zones {
			if zone.Name != nil {
				zoneName := strings.TrimSuffix(*zone.Name, ".")
				if zoneName == mainDomain {
					return *zone.Id, nil
				}
			}
		}
	}

	return "", fmt.Errorf("未找到域名 %s 的Zone", mainDomain)
}

// quoteTXT 华为云要求TXT值带引号
func quoteTXT(recordType, value string) string {
	if recordType == "TXT" && !strings.HasPrefix(value, "\"") {
		return "\"" + value + "\""
	}
	return value
}

// AddRecord 添加DNS记录。华为云按记录集管理多值，
// 同名记录集已存在时把新值合并进去。
func (p *DNSProvider) AddRecord(ctx context.Context, dom, rr, recordType, value string) error {
	mainDomain := domain.ExtractMainDomain(dom)
	subDomain := extractSubDomain(rr, mainDomain)
	value = quoteTXT(recordType, value)

	log.Printf("[华为云DNS] 添加记录: %s.%s -> %s (类型: %s)", subDomain, mainDomain, value, recordType)

	zoneID, err := p.getZoneID(dom)
	if err != nil {
		return err
	}

	recordName := subDomain + "." + mainDomain + "."

	existing, err := p.findRecordSet(zoneID, recordName, recordType)
	if err != nil {
		log.Printf("[华为云DNS] 检查现有记录失败: %v", err)
	}

	if existing != nil {
		records := []string{value}
		if existing.Records != nil {
			for _, r := range *existing.Records {
				if r == value {
					log.Printf("[华为云DNS] 相同记录已存在，跳过")
					return nil
				}
				records = append(records, r)
			}
		}

		request := &dnsModel.UpdateRecordSetRequest{
			ZoneId:      zoneID,
			RecordsetId: *existing.Id,
			Body: &dnsModel.UpdateRecordSetReq{
				Name:    &recordName,
				Type:    &recordType,
				Records: &records,
			},
		}
		if _, err := p.client.UpdateRecordSet(request); err != nil {
			return fmt.Errorf("更新DNS记录失败: %w", err)
		}
		log.Printf("[华为云DNS] 记录值已合并")
		return nil
	}

	request := &dnsModel.CreateRecordSetRequest{
		ZoneId: zoneID,
		Body: &dnsModel.CreateRecordSetRequestBody{
			Name:    recordName,
			Type:    recordType,
			Records: []string{value},
		},
	}

	_, err = p.client.CreateRecordSet(request)
	if err != nil {
		return fmt.Errorf("添加DNS记录失败: %w", err)
	}

	log.Printf("[华为云DNS] 记录已添加")
	return nil
}

// DeleteRecord 删除DNS记录集
func (p *DNSProvider) DeleteRecord(ctx context.Context, dom, recordID string) error {
	log.Printf("[华为云DNS] 删除记录: ID=%s", recordID)

	zoneID, err := p.getZoneID(dom)
	if err != nil {
		return err
	}

	request := &dnsModel.DeleteRecordSetRequest{
		ZoneId:      zoneID,
		RecordsetId: recordID,
	}

	_, err = p.client.DeleteRecordSet(request)
	if err != nil {
		return fmt.Errorf("删除DNS记录失败: %w", err)
	}

	log.Printf("[华为云DNS] 记录已删除")
	return nil
}

// findRecordSet 按名称和类型查找记录集
func (p *DNSProvider) findRecordSet(zoneID, recordName, recordType string) (*dnsModel.ListRecordSets, error) {
	request := &dnsModel.ListRecordSetsByZoneRequest{
		ZoneId: zoneID,
		Name:   &recordName,
		Type:   &recordType,
	}

	response, err := p.client.ListRecordSetsByZone(request)
	if err != nil {
		return nil, fmt.Errorf("查询DNS记录失败: %w", err)
	}

	if response.Recordsets != nil {
		for _, recordSet := range *response.Recordsets {
			if recordSet.Name != nil && *recordSet.Name == recordName &&
				recordSet.Type != nil && *recordSet.Type == recordType {
				rs := recordSet
				return &rs, nil
			}
		}
	}
	return nil, nil
}

// FindRecord 查找DNS记录，value非空时要求记录集包含该值
func (p *DNSProvider) FindRecord(ctx context.Context, dom, rr, recordType, value string) (*provider.DNSRecord, error) {
	mainDomain := domain.ExtractMainDomain(dom)
	subDomain := extractSubDomain(rr, mainDomain)
	value = quoteTXT(recordType, value)

	zoneID, err := p.getZoneID(dom)
	if err != nil {
		return nil, err
	}

	recordName := subDomain + "." + mainDomain + "."

	recordSet, err := p.findRecordSet(zoneID, recordName, recordType)
	if err != nil || recordSet == nil {
		return nil, err
	}

	found := ""
	if recordSet.Records != nil {
		for _, r := range *recordSet.Records {
			if value == "" || r == value {
				found = r
				break
			}
		}
	}
	if found == "" && value != "" {
		return nil, nil
	}

	var ttl int
	if recordSet.Ttl != nil {
		ttl = int(*recordSet.Ttl)
	}
	return &provider.DNSRecord{
		RecordID: *recordSet.Id,
		Domain:   mainDomain,
		RR:       subDomain,
		Type:     *recordSet.Type,
		Value:    found,
		TTL:      ttl,
	}, nil
}

// ListRecords 列出DNS记录
func (p *DNSProvider) ListRecords(ctx context.Context, dom string) ([]*provider.DNSRecord, error) {
	mainDomain := domain.ExtractMainDomain(dom)

	zoneID, err := p.getZoneID(dom)
	if err != nil {
		return nil, err
	}

	request := &dnsModel.ListRecordSetsByZoneRequest{
		ZoneId: zoneID,
	}

	response, err := p.client.ListRecordSetsByZone(request)
	if err != nil {
		return nil, fmt.Errorf("获取DNS记录列表失败: %w", err)
	}

	var records []*provider.DNSRecord
	if response.Recordsets != nil {
		for _, recordSet := range *response.Recordsets {
			var value string
			if recordSet.Records != nil && len(*recordSet.Records) > 0 {
				value = (*recordSet.Records)[0]
			}

			rr := ""
			if recordSet.Name != nil {
				rr = strings.TrimSuffix(*recordSet.Name, "."+mainDomain+".")
			}

			var ttl int
			if recordSet.Ttl != nil {
				ttl = int(*recordSet.Ttl)
			}

			recordType := ""
			if recordSet.Type != nil {
				recordType = *recordSet.Type
			}

			records = append(records, &provider.DNSRecord{
				RecordID: *recordSet.Id,
				Domain:   mainDomain,
				RR:       rr,
				Type:     recordType,
				Value:    value,
				TTL:      ttl,
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
