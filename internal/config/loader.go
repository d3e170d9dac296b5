package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load 加载配置文件
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	applyDefaults(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// applyDefaults 设置默认值
func applyDefaults(config *Config) {
	if config.DataDir == "" {
		config.DataDir = "./data"
	}
	if config.CheckInterval == 0 {
		config.CheckInterval = 24
	}

	if config.Acme.Timeout <= 0 {
		config.Acme.Timeout = 30
	}
	if config.Acme.PollTimeout <= 0 {
		config.Acme.PollTimeout = 300
	}

	if config.Renewal.RenewalDays <= 0 {
		config.Renewal.RenewalDays = 55
	}
	if config.Renewal.RenewalMinimumValidDays <= 0 {
		config.Renewal.RenewalMinimumValidDays = 7
	}
	if config.Renewal.RenewalDaysRange <= 0 {
		config.Renewal.RenewalDaysRange = 5
	}
	if config.Renewal.ReuseDays < 0 {
		config.Renewal.ReuseDays = 0
	}

	if config.Execution.ParallelBatchSize <= 0 {
		config.Execution.ParallelBatchSize = 10
	}
	if config.Execution.MaxDomains <= 0 {
		config.Execution.MaxDomains = 100
	}
	if config.Execution.Concurrency <= 0 {
		config.Execution.Concurrency = 1
	}
}

// validate 验证配置
func validate(config *Config) error {
	if config.Acme.DirectoryURL == "" {
		return fmt.Errorf("未配置 acme.directory_url")
	}
	if config.Acme.Email == "" {
		return fmt.Errorf("未配置 acme.email")
	}

	if config.Renewal.RenewalDays <= config.Renewal.RenewalDaysRange {
		return fmt.Errorf("renewal_days (%d) 必须大于 renewal_days_range (%d)",
			config.Renewal.RenewalDays, config.Renewal.RenewalDaysRange)
	}

	return nil
}

// ValidateProvider 验证指定提供商的凭证是否配置完整。
// 续期任务引用提供商时在创建阶段调用，而不是在配置加载时全量检查。
func (c *Config) ValidateProvider(name string) error {
	switch name {
	case "aliyun":
		if c.Providers.Aliyun == nil {
			return fmt.Errorf("提供商 aliyun 未配置凭证")
		}
		if c.Providers.Aliyun.AccessKeyID == "" || c.Providers.Aliyun.AccessKeySecret == "" {
			return fmt.Errorf("aliyun 凭证不完整")
		}
	case "tencent":
		if c.Providers.Tencent == nil {
			return fmt.Errorf("提供商 tencent 未配置凭证")
		}
		if c.Providers.Tencent.SecretID == "" || c.Providers.Tencent.SecretKey == "" {
			return fmt.Errorf("tencent 凭证不完整")
		}
	case "huawei":
		if c.Providers.Huawei == nil {
			return fmt.Errorf("提供商 huawei 未配置凭证")
		}
		if c.Providers.Huawei.AccessKey == "" || c.Providers.Huawei.SecretKey == "" {
			return fmt.Errorf("huawei 凭证不完整")
		}
	default:
		return fmt.Errorf("不支持的提供商: %s", name)
	}
	return nil
}
