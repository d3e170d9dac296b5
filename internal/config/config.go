package config

// Config 配置结构
type Config struct {
	// ACME服务端配置
	Acme AcmeConfig `yaml:"acme"`

	// 续期策略
	Renewal RenewalConfig `yaml:"renewal"`

	// 执行策略
	Execution ExecutionConfig `yaml:"execution"`

	// 云平台凭证配置
	Providers ProvidersConfig `yaml:"providers"`

	// 数据目录（续期记录、证书缓存、账户信息）
	DataDir string `yaml:"data_dir"`

	// 检查间隔（小时）
	CheckInterval int `yaml:"check_interval"`

	// Webhook 通知配置
	Webhook *WebhookConfig `yaml:"webhook,omitempty"`
}

// AcmeConfig ACME服务端配置
type AcmeConfig struct {
	DirectoryURL string `yaml:"directory_url"`
	Email        string `yaml:"email"`
	// 单次协议往返超时（秒），默认30
	Timeout int `yaml:"timeout,omitempty"`
	// 订单/授权轮询总超时（秒），默认300
	PollTimeout int `yaml:"poll_timeout,omitempty"`
}

// RenewalConfig 续期策略
type RenewalConfig struct {
	// 证书签发后多少天到期应续期
	RenewalDays int `yaml:"renewal_days"`
	// 到期前保底天数：续期窗口不得晚于 NotAfter-RenewalMinimumValidDays
	RenewalMinimumValidDays int `yaml:"renewal_minimum_valid_days"`
	// 续期窗口宽度（天）
	RenewalDaysRange int `yaml:"renewal_days_range"`
	// 忽略服务端建议的续期窗口
	DisableServerSchedule bool `yaml:"disable_server_schedule"`
	// 缓存证书可复用的最大天数，0表示不复用（也不落盘私钥）
	ReuseDays int `yaml:"reuse_days"`
}

// ExecutionConfig 执行策略
type ExecutionConfig struct {
	// 并行验证批大小，默认10
	ParallelBatchSize int `yaml:"parallel_batch_size"`
	// 禁用所有并行执行
	DisableMultiThreading bool `yaml:"disable_multi_threading"`
	// 单订单最大标识符数量，默认100
	MaxDomains int `yaml:"max_domains"`
	// 批量处理续期任务的并发数，默认1
	Concurrency int `yaml:"concurrency"`
	// 续期执行前/后运行的脚本
	PreScript  string `yaml:"pre_script,omitempty"`
	PostScript string `yaml:"post_script,omitempty"`
}

// ProvidersConfig 云平台凭证配置
type ProvidersConfig struct {
	Aliyun  *AliyunConfig  `yaml:"aliyun,omitempty"`
	Tencent *TencentConfig `yaml:"tencent,omitempty"`
	Huawei  *HuaweiConfig  `yaml:"huawei,omitempty"`
}

// AliyunConfig 阿里云配置
type AliyunConfig struct {
	AccessKeyID     string `yaml:"access_key_id"`
	AccessKeySecret string `yaml:"access_key_secret"`
	Region          string `yaml:"region"`
}

// TencentConfig 腾讯云配置
type TencentConfig struct {
	SecretID  string `yaml:"secret_id"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
}

// HuaweiConfig 华为云配置
type HuaweiConfig struct {
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
	ProjectID string `yaml:"project_id"`
}

// WebhookConfig Webhook 通知配置
type WebhookConfig struct {
	Enabled      bool              `yaml:"enabled"`                 // 是否启用
	URL          string            `yaml:"url"`                     // Webhook URL
	Headers      map[string]string `yaml:"headers,omitempty"`       // 自定义请求头
	Events       []string          `yaml:"events,omitempty"`        // 订阅的事件类型
	Timeout      int               `yaml:"timeout,omitempty"`       // 请求超时时间（秒），默认30
	Retries      int               `yaml:"retries,omitempty"`       // 重试次数，默认3
	BodyTemplate string            `yaml:"body_template,omitempty"` // 请求体模板（JSON格式）
}
