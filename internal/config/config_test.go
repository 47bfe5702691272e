// =============================================================================
// 文件: internal/config/config_test.go
// =============================================================================
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("默认配置应通过校验: %v", err)
	}
}

func TestLoadExample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(GenerateExample()), 0o644); err != nil {
		t.Fatalf("写入失败: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	if cfg.Receiver.InitialWindow != 1000 {
		t.Errorf("initial_window = %d, want 1000", cfg.Receiver.InitialWindow)
	}
	if cfg.Conductor.NakDelay() != 20*time.Millisecond {
		t.Errorf("NakDelay = %v, want 20ms", cfg.Conductor.NakDelay())
	}
	if len(cfg.Subscriptions) != 1 || len(cfg.Subscriptions[0].ChannelIDs) != 2 {
		t.Errorf("订阅未加载: %+v", cfg.Subscriptions)
	}
}

func TestLoadFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("log_level: debug\n"), 0o644); err != nil {
		t.Fatalf("写入失败: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log_level = %q, want debug", cfg.LogLevel)
	}
	if cfg.Conductor.TermBufferLength != 16*1024*1024 {
		t.Errorf("term_buffer_length 默认值未回填: %d", cfg.Conductor.TermBufferLength)
	}
}

func TestValidateFailures(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"坏日志级别", func(c *Config) { c.LogLevel = "verbose" }, "log_level"},
		{"零窗口", func(c *Config) { c.Receiver.InitialWindow = 0 }, "initial_window"},
		{"非 2 的幂命令缓冲区", func(c *Config) { c.Receiver.CommandBufferLength = 1000 }, "command_buffer_length"},
		{"未对齐最大帧长", func(c *Config) { c.Receiver.MaxFrameLength = 1000 }, "max_frame_length"},
		{"未对齐 term 长度", func(c *Config) { c.Conductor.TermBufferLength = 1000 }, "term_buffer_length"},
		{"负 NAK 延迟", func(c *Config) { c.Conductor.NakDelayMs = -1 }, "nak_delay_ms"},
		{"帧长超过 term", func(c *Config) {
			c.Receiver.MaxFrameLength = 64 * 1024 * 1024
		}, "term_buffer_length"},
		{"空订阅目的地", func(c *Config) {
			c.Subscriptions = []SubscriptionConfig{{ChannelIDs: []uint64{1}}}
		}, "destination"},
		{"空通道列表", func(c *Config) {
			c.Subscriptions = []SubscriptionConfig{{Destination: "udp://0.0.0.0:1"}}
		}, "channel_ids"},
	}

	for _, tc := range cases {
		cfg := Default()
		tc.mutate(cfg)
		err := cfg.Validate()
		if err == nil {
			t.Errorf("%s: 应校验失败", tc.name)
			continue
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Errorf("%s: err = %v, 应包含 %q", tc.name, err, tc.want)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("缺失文件应报错")
	}
}
