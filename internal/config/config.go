// 包 config 负责加载与校验运行配置（settings.yaml 或 settings.toml），
// 对外提供结构体 Config 及默认值/合法性校验。
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultRetriesDelay 为重试间隔（毫秒）；显式配置为 0 表示不等待
	DefaultRetriesDelay = 100

	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/90.0.4430.212 Safari/537.36"
	DefaultAccept    = "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"
)

// Config 汇总环的元信息、名单来源、审计参数、输出路径与日志设置。
type Config struct {
	// 名单来源
	ListPaths   []string     `yaml:"LIST" toml:"LIST"`
	JSONLists   []string     `yaml:"JSON_LISTS" toml:"JSON_LISTS"`
	TOMLLists   []string     `yaml:"TOML_LISTS" toml:"TOML_LISTS"`
	PageSources []PageSource `yaml:"PAGE_SOURCES" toml:"PAGE_SOURCES"`

	// 环元信息
	RingName        string `yaml:"RING_NAME" toml:"RING_NAME"`
	RingDescription string `yaml:"RING_DESCRIPTION" toml:"RING_DESCRIPTION"`
	RingOwner       string `yaml:"RING_OWNER" toml:"RING_OWNER"`
	RingOwnerSite   string `yaml:"RING_OWNER_SITE" toml:"RING_OWNER_SITE"`
	BaseURL         string `yaml:"BASE_URL" toml:"BASE_URL"`
	NextURLText     string `yaml:"NEXT_URL_TEXT" toml:"NEXT_URL_TEXT"`
	PrevURLText     string `yaml:"PREV_URL_TEXT" toml:"PREV_URL_TEXT"`

	// 环构建
	Shuffle    bool `yaml:"SHUFFLE" toml:"SHUFFLE"`
	NoSlug     bool `yaml:"NO_SLUG" toml:"NO_SLUG"`
	SkipVerify bool `yaml:"SKIP_VERIFY" toml:"SKIP_VERIFY"`
	DryRun     bool `yaml:"DRY_RUN" toml:"DRY_RUN"`

	// 审计
	Audit             bool   `yaml:"AUDIT" toml:"AUDIT"`
	AuditRetriesMax   int    `yaml:"AUDIT_RETRIES_MAX" toml:"AUDIT_RETRIES_MAX"`
	AuditRetriesDelay int    `yaml:"AUDIT_RETRIES_DELAY" toml:"AUDIT_RETRIES_DELAY"` // 毫秒
	AuditConcurrency  int    `yaml:"AUDIT_CONCURRENCY" toml:"AUDIT_CONCURRENCY"`     // 0 表示不限制
	AuditFeeds        bool   `yaml:"AUDIT_FEEDS" toml:"AUDIT_FEEDS"`
	DiscoverFeeds     bool   `yaml:"DISCOVER_FEEDS" toml:"DISCOVER_FEEDS"`
	ClientUserAgent   string `yaml:"CLIENT_USER_AGENT" toml:"CLIENT_USER_AGENT"`
	ClientHeader      string `yaml:"CLIENT_HEADER" toml:"CLIENT_HEADER"`

	// 输出
	PathOutput               string `yaml:"PATH_OUTPUT" toml:"PATH_OUTPUT"`
	PathTemplates            string `yaml:"PATH_TEMPLATES" toml:"PATH_TEMPLATES"`
	PathAssets               string `yaml:"PATH_ASSETS" toml:"PATH_ASSETS"`
	FilenameTemplateRedirect string `yaml:"FILENAME_TEMPLATE_REDIRECT" toml:"FILENAME_TEMPLATE_REDIRECT"`
	SkipMinify               bool   `yaml:"SKIP_MINIFY" toml:"SKIP_MINIFY"`

	Database Database `yaml:"DATABASE" toml:"DATABASE"`

	LogLevel  string `yaml:"LOG_LEVEL" toml:"LOG_LEVEL"`
	LogFormat string `yaml:"LOG_FORMAT" toml:"LOG_FORMAT"` // text|json|pretty
	LogLocale string `yaml:"LOG_LOCALE" toml:"LOG_LOCALE"` // zh-CN|en
	LogColor  string `yaml:"LOG_COLOR" toml:"LOG_COLOR"`   // auto|always|never
}

// PageSource 描述一个成员列表页及其 CSS 选择器：
// - item：每个成员条目容器
// - 其余字段取文本或属性（支持 a@href 与 "||" 回退）
type PageSource struct {
	URL   string `yaml:"url" toml:"url"`
	Item  string `yaml:"item" toml:"item"`
	Slug  string `yaml:"slug" toml:"slug"`
	Name  string `yaml:"name" toml:"name"`
	Link  string `yaml:"link" toml:"link"`
	RSS   string `yaml:"rss" toml:"rss"`
	About string `yaml:"about" toml:"about"`
	Owner string `yaml:"owner" toml:"owner"`
}

// Database 仅用于审计历史；DSN 为空表示不记录。
type Database struct {
	Type string `yaml:"type" toml:"type"` // sqlite
	DSN  string `yaml:"dsn" toml:"dsn"`
}

// Default 返回填充了默认值的配置，供没有配置文件时使用。
func Default() *Config {
	c := preset()
	_ = c.Validate()
	return c
}

// preset 预填零值有意义的字段，解码时被文件中的值覆盖。
func preset() *Config {
	return &Config{AuditRetriesDelay: DefaultRetriesDelay}
}

// Load 读取配置文件（按扩展名选择 YAML 或 TOML）并解码。
// 校验与其余默认值留给 Validate，调用方应在应用命令行覆盖之后再调用。
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	c := preset()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("unmarshal config %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("unmarshal config %s: %w", path, err)
		}
	}
	return c, nil
}

// Validate 负责合法性检查与默认值设置，避免在业务层分散判空逻辑。
func (c *Config) Validate() error {
	if c.AuditRetriesMax == 0 {
		c.AuditRetriesMax = 3
	}
	if c.AuditRetriesMax < 1 {
		return errors.New("AUDIT_RETRIES_MAX must be >= 1")
	}
	if c.AuditRetriesDelay < 0 {
		return errors.New("AUDIT_RETRIES_DELAY must be >= 0")
	}
	if c.AuditConcurrency < 0 {
		return errors.New("AUDIT_CONCURRENCY must be >= 0")
	}
	if c.Audit && strings.TrimSpace(c.BaseURL) == "" {
		return errors.New("BASE_URL is required when AUDIT is enabled")
	}
	if len(c.ListPaths) == 0 && len(c.JSONLists) == 0 && len(c.TOMLLists) == 0 && len(c.PageSources) == 0 {
		c.ListPaths = []string{"./websites.json"}
	}
	if c.RingName == "" {
		c.RingName = "webring"
	}
	if c.NextURLText == "" {
		c.NextURLText = "next"
	}
	if c.PrevURLText == "" {
		c.PrevURLText = "previous"
	}
	if c.NextURLText == c.PrevURLText {
		return fmt.Errorf("NEXT_URL_TEXT and PREV_URL_TEXT must differ (both %q)", c.NextURLText)
	}
	if c.ClientUserAgent == "" {
		c.ClientUserAgent = DefaultUserAgent
	}
	if c.ClientHeader == "" {
		c.ClientHeader = DefaultAccept
	}
	if c.PathOutput == "" {
		c.PathOutput = "./output"
	}
	if c.PathTemplates == "" {
		c.PathTemplates = "./templates"
	}
	if c.PathAssets == "" {
		c.PathAssets = "./assets"
	}
	if c.FilenameTemplateRedirect == "" {
		c.FilenameTemplateRedirect = "redirect.html"
	}
	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	if c.Database.Type != "sqlite" {
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "pretty"
	}
	if c.LogLocale == "" {
		c.LogLocale = "zh-CN"
	}
	if c.LogColor == "" {
		c.LogColor = "auto"
	}
	return nil
}
