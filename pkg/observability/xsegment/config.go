package xsegment

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// 默认配置值
const (
	// DefaultMaxFileCount 默认保留的段数量
	DefaultMaxFileCount = 10

	// DefaultMaxFileLength 默认单个段的字节阈值（10 MiB）
	DefaultMaxFileLength int64 = 10 * 1024 * 1024

	// DefaultFileMode 默认段文件权限
	DefaultFileMode os.FileMode = 0o644
)

// Config 引擎配置，引擎打开后不可变。
type Config struct {
	// Directory 段文件所在目录，不存在时递归创建
	Directory string

	// MaxFileCount 最多保留的段数量，超出时删除索引最小的段
	// 必须 >= 1
	MaxFileCount int

	// MaxFileLength 活跃段的字节阈值，超过后轮转到新段
	// 必须 >= 0
	MaxFileLength int64

	// LeadingText 每个新建段的首行内容（可选）
	// 写入时自动追加换行符
	LeadingText string

	// FileMode 段文件权限，0 表示 DefaultFileMode
	// 仅允许权限位（0000~0777）
	FileMode os.FileMode
}

// DefaultConfig 返回以 dir 为目录、其余字段取默认值的配置。
func DefaultConfig(dir string) Config {
	return Config{
		Directory:     dir,
		MaxFileCount:  DefaultMaxFileCount,
		MaxFileLength: DefaultMaxFileLength,
	}
}

// Validate 校验配置。
//
// 校验失败属于编程错误，与运行期的“目录被普通文件占用”不同：
// 后者只能在打开时发现，通过诊断通道上报。
func (c Config) Validate() error {
	if c.Directory == "" {
		return ErrEmptyDirectory
	}
	if strings.ContainsRune(c.Directory, 0) {
		return fmt.Errorf("%w: directory contains null byte", ErrEmptyDirectory)
	}
	if c.MaxFileCount < 1 {
		return fmt.Errorf("%w: got %d, want >= 1", ErrInvalidMaxFileCount, c.MaxFileCount)
	}
	if c.MaxFileLength < 0 {
		return fmt.Errorf("%w: got %d, want >= 0", ErrInvalidMaxFileLength, c.MaxFileLength)
	}
	if c.FileMode&^os.FileMode(0o777) != 0 {
		return fmt.Errorf("%w: got %04o, only permission bits (0000~0777) allowed",
			ErrInvalidFileMode, c.FileMode)
	}
	return nil
}

// fileMode 返回生效的段文件权限。
func (c Config) fileMode() os.FileMode {
	if c.FileMode == 0 {
		return DefaultFileMode
	}
	return c.FileMode
}

// =============================================================================
// 配置文件加载
// =============================================================================

// Format 配置文件格式。
type Format string

// 支持的配置格式。
const (
	// FormatYAML YAML 格式。
	FormatYAML Format = "yaml"

	// FormatJSON JSON 格式。
	FormatJSON Format = "json"
)

// fileConfig 配置文件中的字段布局。
//
// file_mode 以八进制字符串书写（如 "0640"），避免 YAML/JSON 对前导零整数的歧义。
type fileConfig struct {
	Directory     string `koanf:"directory"`
	MaxFileCount  int    `koanf:"max_file_count"`
	MaxFileLength int64  `koanf:"max_file_length"`
	LeadingText   string `koanf:"leading_text"`
	FileMode      string `koanf:"file_mode"`
}

// ConfigOption 配置加载选项。
type ConfigOption func(*configOptions)

type configOptions struct {
	section string
}

// WithConfigSection 指定配置所在的顶层键，如 "seglog"。
// 默认读取整个文档。
func WithConfigSection(section string) ConfigOption {
	return func(o *configOptions) {
		o.section = section
	}
}

// LoadConfig 从文件加载配置，根据扩展名（.yaml/.yml/.json）识别格式。
// 文件中未出现的字段取默认值。
func LoadConfig(path string, opts ...ConfigOption) (Config, error) {
	format, err := detectFormat(path)
	if err != nil {
		return Config{}, err
	}
	data, err := os.ReadFile(path) //#nosec G304 -- 配置路径由调用方决定
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	return ParseConfig(data, format, opts...)
}

// ParseConfig 从字节数据解析配置，文档中未出现的字段取默认值。
func ParseConfig(data []byte, format Format, opts ...ConfigOption) (Config, error) {
	var parser koanf.Parser
	switch format {
	case FormatYAML:
		parser = yaml.Parser()
	case FormatJSON:
		parser = json.Parser()
	default:
		return Config{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	options := configOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	k := koanf.New(".")
	if len(data) > 0 {
		if err := k.Load(rawbytes.Provider(data), parser); err != nil {
			return Config{}, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	fc := fileConfig{
		MaxFileCount:  DefaultMaxFileCount,
		MaxFileLength: DefaultMaxFileLength,
	}
	if err := k.UnmarshalWithConf(options.section, &fc, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	cfg := Config{
		Directory:     fc.Directory,
		MaxFileCount:  fc.MaxFileCount,
		MaxFileLength: fc.MaxFileLength,
		LeadingText:   fc.LeadingText,
	}
	if fc.FileMode != "" {
		mode, err := strconv.ParseUint(fc.FileMode, 8, 32)
		if err != nil {
			return Config{}, fmt.Errorf("%w: file_mode %q: %w", ErrInvalidFileMode, fc.FileMode, err)
		}
		cfg.FileMode = os.FileMode(mode)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// detectFormat 根据文件扩展名检测配置格式。
func detectFormat(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown extension %q", ErrUnsupportedFormat, ext)
	}
}
