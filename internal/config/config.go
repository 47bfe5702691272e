// =============================================================================
// 文件: internal/config/config.go
// 描述: 配置管理 - 接收驱动的 YAML 配置与启动期校验
// =============================================================================
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cube3power/Aeron/internal/protocol"
)

// Config 主配置
type Config struct {
	LogLevel string `yaml:"log_level"`

	Receiver  ReceiverConfig  `yaml:"receiver"`
	Conductor ConductorConfig `yaml:"conductor"`
	Metrics   MetricsConfig   `yaml:"metrics"`

	// Subscriptions 启动时下发的订阅
	Subscriptions []SubscriptionConfig `yaml:"subscriptions"`
}

// ReceiverConfig 接收线程配置
type ReceiverConfig struct {
	// InitialWindow 初始接收窗口
	InitialWindow uint32 `yaml:"initial_window"`

	// CommandBufferLength 命令环形缓冲区大小 (2 的幂)
	CommandBufferLength int `yaml:"command_buffer_length"`

	// EventQueueLength 缓冲区就绪事件队列容量
	EventQueueLength int `yaml:"event_queue_length"`

	// MaxFrameLength 允许的最大帧长, 按帧对齐
	MaxFrameLength int `yaml:"max_frame_length"`
}

// ConductorConfig conductor 线程配置
type ConductorConfig struct {
	// TermBufferLength term 缓冲区大小, 按帧对齐
	TermBufferLength int `yaml:"term_buffer_length"`

	// CommandBufferLength 命令环形缓冲区大小 (2 的幂)
	CommandBufferLength int `yaml:"command_buffer_length"`

	// NakDelayMs 空洞保持多少毫秒后发 NAK
	NakDelayMs int `yaml:"nak_delay_ms"`
}

// MetricsConfig 监控配置
type MetricsConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Listen      string `yaml:"listen"`
	Path        string `yaml:"path"`
	HealthPath  string `yaml:"health_path"`
	EnablePprof bool   `yaml:"enable_pprof"`
}

// SubscriptionConfig 一条启动订阅
type SubscriptionConfig struct {
	Destination string   `yaml:"destination"`
	ChannelIDs  []uint64 `yaml:"channel_ids"`
}

// Default 默认配置
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Receiver: ReceiverConfig{
			InitialWindow:       1000,
			CommandBufferLength: 64 * 1024,
			EventQueueLength:    1024,
			MaxFrameLength:      4096,
		},
		Conductor: ConductorConfig{
			TermBufferLength:    16 * 1024 * 1024,
			CommandBufferLength: 64 * 1024,
			NakDelayMs:          20,
		},
		Metrics: MetricsConfig{
			Enabled:    true,
			Listen:     "127.0.0.1:9090",
			Path:       "/metrics",
			HealthPath: "/health",
		},
	}
}

// Load 读取 YAML 配置, 缺省字段回填默认值
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 启动期校验, 失败阻止启动
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "", "error", "info", "debug":
	default:
		return fmt.Errorf("log_level 非法: %q (可选 error/info/debug)", c.LogLevel)
	}

	if c.Receiver.InitialWindow == 0 {
		return fmt.Errorf("receiver.initial_window 必须大于 0")
	}
	if err := checkPowerOfTwo("receiver.command_buffer_length", c.Receiver.CommandBufferLength); err != nil {
		return err
	}
	if c.Receiver.EventQueueLength <= 0 {
		return fmt.Errorf("receiver.event_queue_length 必须大于 0")
	}
	if err := protocol.CheckMaxFrameLength(c.Receiver.MaxFrameLength); err != nil {
		return fmt.Errorf("receiver.max_frame_length: %w", err)
	}

	if err := protocol.CheckMaxFrameLength(c.Conductor.TermBufferLength); err != nil {
		return fmt.Errorf("conductor.term_buffer_length: %w", err)
	}
	if err := checkPowerOfTwo("conductor.command_buffer_length", c.Conductor.CommandBufferLength); err != nil {
		return err
	}
	if c.Conductor.NakDelayMs < 0 {
		return fmt.Errorf("conductor.nak_delay_ms 不能为负")
	}

	// term 缓冲区必须能容纳最大帧
	if c.Receiver.MaxFrameLength > c.Conductor.TermBufferLength {
		return fmt.Errorf("max_frame_length(%d) 超过 term_buffer_length(%d)",
			c.Receiver.MaxFrameLength, c.Conductor.TermBufferLength)
	}

	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		return fmt.Errorf("metrics.listen 未配置")
	}

	for i, sub := range c.Subscriptions {
		if sub.Destination == "" {
			return fmt.Errorf("subscriptions[%d].destination 未配置", i)
		}
		if len(sub.ChannelIDs) == 0 {
			return fmt.Errorf("subscriptions[%d].channel_ids 为空", i)
		}
	}
	return nil
}

// NakDelay NAK 延迟
func (c *ConductorConfig) NakDelay() time.Duration {
	return time.Duration(c.NakDelayMs) * time.Millisecond
}

func checkPowerOfTwo(name string, v int) error {
	if v <= 0 || v&(v-1) != 0 {
		return fmt.Errorf("%s 必须是 2 的幂: %d", name, v)
	}
	return nil
}

// GenerateExample 生成示例配置
func GenerateExample() string {
	return `# Aeron 接收驱动配置
log_level: info

receiver:
  initial_window: 1000
  command_buffer_length: 65536
  event_queue_length: 1024
  max_frame_length: 4096

conductor:
  term_buffer_length: 16777216
  command_buffer_length: 65536
  nak_delay_ms: 20

metrics:
  enabled: true
  listen: "127.0.0.1:9090"
  path: /metrics
  health_path: /health
  enable_pprof: false

subscriptions:
  - destination: "udp://0.0.0.0:40123"
    channel_ids: [10, 20]
`
}
