package domain

import (
	"sort"
	"strings"
)

// ExtractMainDomain 从完整域名提取主域名
// 例如: www.example.com -> example.com, sub.test.example.com -> example.com
func ExtractMainDomain(domain string) string {
	domain = strings.TrimPrefix(domain, "*.")
	parts := strings.Split(domain, ".")
	if len(parts) >= 2 {
		return parts[len(parts)-2] + "." + parts[len(parts)-1]
	}
	return domain
}

// ExtractSubDomain 提取子域名部分（用于DNS记录的RR值）
// 例如: _acme-challenge.www.example.com 中提取 _acme-challenge.www
func ExtractSubDomain(fullRecord, mainDomain string) string {
	if fullRecord == mainDomain {
		return "@"
	}
	if strings.HasSuffix(fullRecord, "."+mainDomain) {
		return strings.TrimSuffix(fullRecord, "."+mainDomain)
	}
	return fullRecord
}

// IsSubDomain 检查是否为子域名
func IsSubDomain(domain, mainDomain string) bool {
	return strings.HasSuffix(domain, "."+mainDomain) || domain == mainDomain
}

// MatchDomain 检查域名是否匹配（支持通配符）
func MatchDomain(certDomain, targetDomain string) bool {
	certDomain = Normalize(certDomain)
	targetDomain = Normalize(targetDomain)

	// 完全匹配
	if certDomain == targetDomain {
		return true
	}

	// 通配符匹配：*.example.com 只匹配 example.com 下一级的域名
	if strings.HasPrefix(certDomain, "*.") {
		base := strings.TrimPrefix(certDomain, "*.")
		if !strings.HasSuffix(targetDomain, "."+base) {
			return false
		}
		prefix := strings.TrimSuffix(targetDomain, "."+base)
		return prefix != "" && !strings.Contains(prefix, ".")
	}

	return false
}

// Normalize 规范化域名：小写、去除首尾空白和末尾的点
func Normalize(domain string) string {
	return strings.ToLower(strings.TrimSuffix(strings.TrimSpace(domain), "."))
}

// NormalizeSet 规范化并排序一组域名，去除重复项。
// 排序后的结果用于缓存键计算，保证枚举顺序不影响结果。
func NormalizeSet(domains []string) []string {
	seen := make(map[string]struct{}, len(domains))
	var out []string
	for _, d := range domains {
		n := Normalize(d)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// SameSet 判断两组域名规范化后是否为同一集合
func SameSet(a, b []string) bool {
	na, nb := NormalizeSet(a), NormalizeSet(b)
	if len(na) != len(nb) {
		return false
	}
	for i := range na {
		if na[i] != nb[i] {
			return false
		}
	}
	return true
}
