// =============================================================================
// 文件: cmd/aeron-receiver/main.go
// 描述: 主程序入口 - 接收驱动: conductor + receiver 双线程与 Prometheus 指标
// =============================================================================
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cube3power/Aeron/internal/concurrent"
	"github.com/cube3power/Aeron/internal/conductor"
	"github.com/cube3power/Aeron/internal/config"
	"github.com/cube3power/Aeron/internal/metrics"
	"github.com/cube3power/Aeron/internal/receiver"
)

var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// receiverStats 把接收器计数适配成 metrics 收集器需要的接口
type receiverStats struct {
	r *receiver.Receiver
}

func (s *receiverStats) GetDatagramsReceived() uint64 { return s.r.AggregateStats().DatagramsReceived }
func (s *receiverStats) GetBytesReceived() uint64     { return s.r.AggregateStats().BytesReceived }
func (s *receiverStats) GetBytesSent() uint64         { return s.r.AggregateStats().BytesSent }
func (s *receiverStats) GetDataFrames() uint64        { return s.r.AggregateStats().DataFrames }
func (s *receiverStats) GetHeartbeats() uint64        { return s.r.AggregateStats().Heartbeats }
func (s *receiverStats) GetDupeFrames() uint64        { return s.r.AggregateStats().DupeFrames }
func (s *receiverStats) GetDropCounts() map[string]uint64 {
	agg := s.r.AggregateStats()
	return map[string]uint64{
		"unknown_channel": agg.DropsUnknownChannel,
		"not_ready":       agg.DropsNotReady,
		"control_on_data": agg.DropsControlOnData,
		"rebuild_error":   agg.DropsRebuildError,
		"malformed":       agg.DropsMalformed,
	}
}
func (s *receiverStats) GetSMsSent() uint64           { return s.r.AggregateStats().SMsSent }
func (s *receiverStats) GetNaksSent() uint64          { return s.r.AggregateStats().NaksSent }
func (s *receiverStats) GetCommandsProcessed() uint64 { return s.r.CommandsProcessed() }
func (s *receiverStats) GetBuffersBound() uint64      { return s.r.BuffersBound() }
func (s *receiverStats) GetDestinationCount() int     { return s.r.DestinationCount() }
func (s *receiverStats) GetChannelCount() int         { return s.r.ChannelCount() }
func (s *receiverStats) GetSessionCount() int         { return s.r.SessionCount() }

func main() {
	configPath := flag.String("c", "config.yaml", "配置文件路径")
	showVersion := flag.Bool("v", false, "显示版本")
	genConfig := flag.Bool("gen-config", false, "生成示例配置文件")
	flag.Parse()

	if *showVersion {
		fmt.Printf("aeron-receiver %s (build: %s, commit: %s)\n", Version, BuildTime, GitCommit)
		return
	}
	if *genConfig {
		fmt.Print(config.GenerateExample())
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "配置加载失败: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil && err != context.Canceled {
		fmt.Fprintf(os.Stderr, "驱动退出: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	// 线程间通道: receiver 命令缓冲区 + 事件队列, conductor 命令缓冲区
	receiverCommands, err := concurrent.NewRingBuffer(cfg.Receiver.CommandBufferLength)
	if err != nil {
		return err
	}
	conductorCommands, err := concurrent.NewRingBuffer(cfg.Conductor.CommandBufferLength)
	if err != nil {
		return err
	}
	eventQueue := receiver.NewEventQueue(cfg.Receiver.EventQueueLength)

	receiverProxy := conductor.NewReceiverProxy(receiverCommands, eventQueue)
	conductorProxy := conductor.NewConductorProxy(conductorCommands)

	cond, err := conductor.NewConductor(conductorCommands, receiverProxy, conductor.Options{
		TermBufferLength: cfg.Conductor.TermBufferLength,
		NakDelay:         cfg.Conductor.NakDelay(),
		LogLevel:         cfg.LogLevel,
	})
	if err != nil {
		return err
	}

	frameLatency := metrics.NewFrameLatencyHistogram()
	recv := receiver.NewReceiver(receiverCommands, eventQueue, conductorProxy, receiver.Options{
		InitialWindow: cfg.Receiver.InitialWindow,
		FrameLatency:  frameLatency,
		LogLevel:      cfg.LogLevel,
	})

	// 启动订阅
	for _, sub := range cfg.Subscriptions {
		if !receiverProxy.AddSubscriber(sub.Destination, sub.ChannelIDs) {
			return fmt.Errorf("订阅命令写入失败: %s", sub.Destination)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *metrics.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewMetricsServer(
			cfg.Metrics.Listen, cfg.Metrics.Path, cfg.Metrics.HealthPath, cfg.Metrics.EnablePprof)

		stats := &receiverStats{r: recv}
		if err := metricsServer.Register(metrics.NewReceiverCollector(stats)); err != nil {
			return err
		}
		if err := metricsServer.Register(frameLatency); err != nil {
			return err
		}
		metricsServer.SetSnapshotFunc(func() map[string]interface{} {
			agg := recv.AggregateStats()
			return map[string]interface{}{
				"datagrams_recv":  agg.DatagramsReceived,
				"bytes_recv":      agg.BytesReceived,
				"bytes_sent":      agg.BytesSent,
				"data_frames":     agg.DataFrames,
				"heartbeats":      agg.Heartbeats,
				"sms_sent":        agg.SMsSent,
				"naks_sent":       agg.NaksSent,
				"destinations":    recv.DestinationCount(),
				"channels":        recv.ChannelCount(),
				"sessions":        recv.SessionCount(),
				"buffers_created": cond.BuffersCreated(),
			}
		})
		if err := metricsServer.Start(); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			metricsServer.Stop(shutdownCtx)
		}()
		fmt.Printf("[INFO] %s [MAIN] 指标服务: http://%s%s\n",
			time.Now().Format("15:04:05"), cfg.Metrics.Listen, cfg.Metrics.Path)
	}

	fmt.Printf("[INFO] %s [MAIN] aeron-receiver %s 已启动, %d 条订阅\n",
		time.Now().Format("15:04:05"), Version, len(cfg.Subscriptions))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return cond.Run(gctx) })
	g.Go(func() error { return recv.Run(gctx) })

	return g.Wait()
}
