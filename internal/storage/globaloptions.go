package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"acme-manager/internal/domain"
	"acme-manager/internal/renewal"
)

const globalOptionsFile = "globaloptions.json"

// GlobalValidationOption 按标识符模式生效的验证选项覆盖。
// 运维侧统一切换验证方式时用，优先级高于任务自身的配置。
type GlobalValidationOption struct {
	// 标识符通配模式，如 *.example.com
	Pattern    string                     `json:"pattern"`
	Validation *renewal.ValidationOptions `json:"validation"`
}

// Match 标识符是否命中该模式。通配符只匹配一级子域名，
// 与证书域名匹配的语义保持一致。
func (g *GlobalValidationOption) Match(identifier string) bool {
	return domain.MatchDomain(g.Pattern, identifier)
}

// GlobalValidationOptions 读取全局验证覆盖配置，文件不存在时返回空
func (s *RenewalStore) GlobalValidationOptions() ([]*GlobalValidationOption, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, globalOptionsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("读取全局验证配置失败: %w", err)
	}

	var opts []*GlobalValidationOption
	if err := json.Unmarshal(data, &opts); err != nil {
		return nil, fmt.Errorf("解析全局验证配置失败: %w", err)
	}

	var out []*GlobalValidationOption
	for _, o := range opts {
		if o == nil || strings.TrimSpace(o.Pattern) == "" || o.Validation == nil {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}
