package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config 是应用配置的根结构体
type Config struct {
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	Model    ModelConfig    `mapstructure:"model" yaml:"model"`
	Whisper  WhisperConfig  `mapstructure:"whisper" yaml:"whisper"`
	Audio    AudioConfig    `mapstructure:"audio" yaml:"audio"`
	Dialogue DialogueConfig `mapstructure:"dialogue" yaml:"dialogue"`
	Sampling SamplingConfig `mapstructure:"sampling" yaml:"sampling"`
	Speech   SpeechConfig   `mapstructure:"speech" yaml:"speech"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}

// StorageConfig 对话历史存储配置
type StorageConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// ModelConfig 远程推理服务配置
type ModelConfig struct {
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`         // WebSocket 地址
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`           // 单次请求超时
	ContextSize int           `mapstructure:"context_size" yaml:"context_size"` // 0 表示使用服务端上报的值
}

// WhisperConfig 语音识别服务配置
type WhisperConfig struct {
	Endpoint  string        `mapstructure:"endpoint" yaml:"endpoint"`
	Language  string        `mapstructure:"language" yaml:"language"`
	Translate bool          `mapstructure:"translate" yaml:"translate"`
	MaxTokens int           `mapstructure:"max_tokens" yaml:"max_tokens"` // 每段音频最多解码 token 数
	AudioCtx  int           `mapstructure:"audio_ctx" yaml:"audio_ctx"`   // 0 表示全部
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// AudioConfig 音频采集与 VAD 配置
type AudioConfig struct {
	CaptureCommand []string      `mapstructure:"capture_command" yaml:"capture_command"` // 输出 s16le 单声道 PCM 的命令，空表示读取 stdin
	SampleRate     int           `mapstructure:"sample_rate" yaml:"sample_rate"`
	BufferMs       int           `mapstructure:"buffer_ms" yaml:"buffer_ms"`
	VoiceMs        int           `mapstructure:"voice_ms" yaml:"voice_ms"`
	WindowMs       int           `mapstructure:"window_ms" yaml:"window_ms"`
	LastMs         int           `mapstructure:"last_ms" yaml:"last_ms"`
	VadThold       float64       `mapstructure:"vad_thold" yaml:"vad_thold"`
	FreqThold      float64       `mapstructure:"freq_thold" yaml:"freq_thold"`
	PrintEnergy    bool          `mapstructure:"print_energy" yaml:"print_energy"`
	PollInterval   time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
}

// DialogueConfig 对话与上下文窗口配置
type DialogueConfig struct {
	Person        string   `mapstructure:"person" yaml:"person"`
	BotName       string   `mapstructure:"bot_name" yaml:"bot_name"`
	ChatSymbol    string   `mapstructure:"chat_symbol" yaml:"chat_symbol"`
	PromptFile    string   `mapstructure:"prompt_file" yaml:"prompt_file"`
	SessionPath   string   `mapstructure:"session_path" yaml:"session_path"` // 会话缓存文件，空表示不缓存
	Compression   string   `mapstructure:"compression" yaml:"compression"`   // none, lz4, zstd
	NPrev         int      `mapstructure:"n_prev" yaml:"n_prev"`             // 溢出时重新评估的尾部 token 数
	MaxTokens     int      `mapstructure:"max_tokens" yaml:"max_tokens"`     // 每轮最多生成 token 数，0 表示不限
	VerbosePrompt bool     `mapstructure:"verbose_prompt" yaml:"verbose_prompt"`
	Antiprompts   []string `mapstructure:"antiprompts" yaml:"antiprompts,omitempty"` // 额外的结束标记
}

// SamplingConfig 采样参数
type SamplingConfig struct {
	TopK             int     `mapstructure:"top_k" yaml:"top_k"`
	TopP             float64 `mapstructure:"top_p" yaml:"top_p"`
	Temperature      float64 `mapstructure:"temperature" yaml:"temperature"`
	RepeatPenalty    float64 `mapstructure:"repeat_penalty" yaml:"repeat_penalty"`
	RepeatLastN      int     `mapstructure:"repeat_last_n" yaml:"repeat_last_n"`
	FrequencyPenalty float64 `mapstructure:"frequency_penalty" yaml:"frequency_penalty"`
	PresencePenalty  float64 `mapstructure:"presence_penalty" yaml:"presence_penalty"`
	PenalizeNewline  bool    `mapstructure:"penalize_nl" yaml:"penalize_nl"`
	EOSLogit         float64 `mapstructure:"eos_logit" yaml:"eos_logit"`
	Seed             uint64  `mapstructure:"seed" yaml:"seed"`
}

// SpeechConfig 语音合成配置
type SpeechConfig struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled"`
	Command string        `mapstructure:"command" yaml:"command"`
	VoiceID int           `mapstructure:"voice_id" yaml:"voice_id"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

var (
	globalConfig *Config
	configPath   string
	mu           sync.RWMutex
)

// Load 加载配置文件
// 优先级: ENV > 配置文件 > 默认值
func Load(path string) (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	SetDefaults()

	viper.SetEnvPrefix("PARLEY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if path != "" {
		expandedPath, err := ExpandPath(path)
		if err != nil {
			return nil, err
		}
		configPath = expandedPath

		viper.SetConfigFile(expandedPath)
		if err := viper.ReadInConfig(); err != nil {
			// 配置文件不存在时使用默认值，解析错误直接返回
			var pathErr *os.PathError
			if !errors.As(err, &pathErr) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", expandedPath, err)
			}
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	globalConfig = &cfg
	return &cfg, nil
}

// Validate 检查取值范围
func (c *Config) Validate() error {
	if c.Sampling.TopP < 0 || c.Sampling.TopP > 1 {
		return fmt.Errorf("sampling.top_p must be within [0, 1], got %v", c.Sampling.TopP)
	}
	if c.Sampling.TopK < 0 {
		return fmt.Errorf("sampling.top_k must not be negative, got %d", c.Sampling.TopK)
	}
	if c.Sampling.RepeatLastN < 0 {
		return fmt.Errorf("sampling.repeat_last_n must not be negative, got %d", c.Sampling.RepeatLastN)
	}
	if c.Dialogue.NPrev < 0 {
		return fmt.Errorf("dialogue.n_prev must not be negative, got %d", c.Dialogue.NPrev)
	}
	if c.Dialogue.Person == "" || c.Dialogue.BotName == "" {
		return errors.New("dialogue.person and dialogue.bot_name must be set")
	}
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be positive, got %d", c.Audio.SampleRate)
	}
	switch c.Dialogue.Compression {
	case "none", "lz4", "zstd":
	default:
		return fmt.Errorf("dialogue.compression must be one of none, lz4, zstd, got %q", c.Dialogue.Compression)
	}
	return nil
}

// GetConfig 获取当前配置
func GetConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return globalConfig
}

// Set 设置配置值，并在已加载配置文件时写回文件
func Set(key string, value any) error {
	mu.Lock()
	defer mu.Unlock()

	viper.Set(key, value)

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	globalConfig = &cfg

	if configPath == "" {
		return nil
	}
	return SaveTo(&cfg, configPath)
}

// Get 返回任意配置项
func Get(key string) any {
	mu.RLock()
	defer mu.RUnlock()
	return viper.Get(key)
}

// GetString 返回字符串配置项
func GetString(key string) string {
	mu.RLock()
	defer mu.RUnlock()
	return viper.GetString(key)
}

// GetInt 返回整数配置项
func GetInt(key string) int {
	mu.RLock()
	defer mu.RUnlock()
	return viper.GetInt(key)
}

// GetBool 返回布尔配置项
func GetBool(key string) bool {
	mu.RLock()
	defer mu.RUnlock()
	return viper.GetBool(key)
}

// ConfigPath 返回当前使用的配置文件路径
func ConfigPath() string {
	mu.RLock()
	defer mu.RUnlock()
	return configPath
}

// SaveTo 保存配置到指定路径
func SaveTo(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Reset 重置配置（主要用于测试）
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	globalConfig = nil
	configPath = ""
	viper.Reset()
}
