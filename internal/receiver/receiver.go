// =============================================================================
// 文件: internal/receiver/receiver.go
// 描述: 接收线程事件循环 - 消费 conductor 命令, 轮询 UDP 端点与丢包检测
// =============================================================================
package receiver

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cube3power/Aeron/internal/concurrent"
	"github.com/cube3power/Aeron/internal/protocol"
	"github.com/cube3power/Aeron/internal/transport"
)

// Options 接收器配置
type Options struct {
	// InitialWindow 初始接收窗口 (源端放行前的配额)
	InitialWindow uint32

	// FrameLatency 帧处理延迟观测出口, 可为 nil
	FrameLatency LatencyObserver

	// LogLevel error / info / debug
	LogLevel string
}

// Receiver 接收线程
//
// 单线程事件循环: 命令环形缓冲区 → destination 端点轮询 → 丢包扫描。
// 除 Run 外的方法仅供同线程 (或测试) 调用。
type Receiver struct {
	commandBuffer  *concurrent.RingBuffer
	eventQueue     *EventQueue
	conductorProxy TermBufferRequester

	handlerByDestination map[string]*DataFrameHandler

	opts     Options
	logLevel int

	commandsProcessed uint64
	buffersBound      uint64
}

// NewReceiver 创建接收器
func NewReceiver(
	commandBuffer *concurrent.RingBuffer,
	eventQueue *EventQueue,
	conductorProxy TermBufferRequester,
	opts Options,
) *Receiver {
	level := transport.LogLevelInfo
	switch opts.LogLevel {
	case "debug":
		level = transport.LogLevelDebug
	case "error":
		level = transport.LogLevelError
	}
	if opts.InitialWindow == 0 {
		opts.InitialWindow = 1000
	}

	return &Receiver{
		commandBuffer:        commandBuffer,
		eventQueue:           eventQueue,
		conductorProxy:       conductorProxy,
		handlerByDestination: make(map[string]*DataFrameHandler),
		opts:                 opts,
		logLevel:             level,
	}
}

// Run 运行事件循环直到 ctx 取消
func (r *Receiver) Run(ctx context.Context) error {
	defer r.closeAll()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		work := r.DoWork()
		if work == 0 {
			// 空转让出调度; 端点 Poll 本身带短阻塞, 这里只避免纯忙等
			time.Sleep(50 * time.Microsecond)
		}
	}
}

// DoWork 执行一轮事件循环, 返回完成的工作量
func (r *Receiver) DoWork() int {
	work := r.ProcessCommands()

	for _, h := range r.handlerByDestination {
		n, err := h.Poll()
		if err != nil {
			r.log(transport.LogLevelError, "端点轮询失败: %v", err)
			continue
		}
		work += n
		work += h.ScanForGaps()
	}

	return work
}

// ProcessCommands 消费命令环形缓冲区
func (r *Receiver) ProcessCommands() int {
	n := r.commandBuffer.Read(func(msgTypeID uint32, payload []byte) {
		if err := r.onCommand(msgTypeID, payload); err != nil {
			r.log(transport.LogLevelError, "命令处理失败 type=%#x: %v", msgTypeID, err)
		}
	})
	atomic.AddUint64(&r.commandsProcessed, uint64(n))
	return n
}

// onCommand 处理一条 conductor 命令
func (r *Receiver) onCommand(msgTypeID uint32, payload []byte) error {
	switch msgTypeID {
	case protocol.MsgAddSubscriber:
		msg, err := protocol.DecodeSubscriberMessage(payload)
		if err != nil {
			return err
		}
		return r.onAddSubscriber(msg)

	case protocol.MsgRemoveSubscriber:
		msg, err := protocol.DecodeSubscriberMessage(payload)
		if err != nil {
			return err
		}
		return r.onRemoveSubscriber(msg)

	case protocol.MsgNewReceiveBufferNotification:
		// 通知本身只是唤醒, 事件体在队列里
		return r.drainEventQueue()

	default:
		return fmt.Errorf("未知命令类型: %#x", msgTypeID)
	}
}

// onAddSubscriber 注册订阅; destination 第一次出现时绑定端点
func (r *Receiver) onAddSubscriber(msg *protocol.SubscriberMessage) error {
	handler, err := r.handlerFor(msg.Destination, true)
	if err != nil {
		return err
	}
	handler.AddChannels(msg.ChannelIDs)
	return nil
}

// onRemoveSubscriber 释放订阅引用
func (r *Receiver) onRemoveSubscriber(msg *protocol.SubscriberMessage) error {
	handler, err := r.handlerFor(msg.Destination, false)
	if err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: destination=%s", ErrSubscriptionNotRegistered, msg.Destination)
	}
	if err := handler.RemoveChannels(msg.ChannelIDs); err != nil {
		return err
	}
	// destination 上最后一个通道移除后释放端点
	if handler.ChannelCount() == 0 {
		delete(r.handlerByDestination, handler.Destination().CanonicalForm())
		return handler.Close()
	}
	return nil
}

// drainEventQueue 排空缓冲区就绪事件
func (r *Receiver) drainEventQueue() error {
	for {
		event := r.eventQueue.Poll()
		if event == nil {
			return nil
		}

		handler := r.handlerByDestination[event.Destination]
		if handler == nil {
			return fmt.Errorf("%w: destination=%s", ErrChannelNotFound, event.Destination)
		}
		if err := handler.OnSubscriptionReady(event, event.LossHandler); err != nil {
			return err
		}
		atomic.AddUint64(&r.buffersBound, 1)
	}
}

// handlerFor 查找 destination 的处理器, create 时不存在则新建
func (r *Receiver) handlerFor(destinationURI string, create bool) (*DataFrameHandler, error) {
	dest, err := ParseDestination(destinationURI)
	if err != nil {
		return nil, err
	}

	key := dest.CanonicalForm()
	if handler := r.handlerByDestination[key]; handler != nil {
		return handler, nil
	}
	if !create {
		return nil, nil
	}

	handler, err := NewDataFrameHandler(dest, r.conductorProxy, r.opts.InitialWindow, r.opts.FrameLatency, r.opts.LogLevel)
	if err != nil {
		return nil, err
	}
	r.handlerByDestination[key] = handler
	r.log(transport.LogLevelInfo, "destination 已绑定: %s", key)
	return handler, nil
}

// Handler 按 destination URI 查找处理器 (测试与统计用)
func (r *Receiver) Handler(destinationURI string) *DataFrameHandler {
	dest, err := ParseDestination(destinationURI)
	if err != nil {
		return nil
	}
	return r.handlerByDestination[dest.CanonicalForm()]
}

// closeAll 释放全部端点
func (r *Receiver) closeAll() {
	for key, handler := range r.handlerByDestination {
		if err := handler.Close(); err != nil {
			r.log(transport.LogLevelError, "端点关闭失败 %s: %v", key, err)
		}
		delete(r.handlerByDestination, key)
	}
}

// =============================================================================
// 统计 (metrics 收集器读取)
// =============================================================================

// CommandsProcessed 已处理命令数
func (r *Receiver) CommandsProcessed() uint64 {
	return atomic.LoadUint64(&r.commandsProcessed)
}

// BuffersBound 已绑定的 term 缓冲区数
func (r *Receiver) BuffersBound() uint64 {
	return atomic.LoadUint64(&r.buffersBound)
}

// DestinationCount 活跃 destination 数
func (r *Receiver) DestinationCount() int {
	return len(r.handlerByDestination)
}

// AggregateStats 汇总全部处理器计数
func (r *Receiver) AggregateStats() HandlerStats {
	var total HandlerStats
	for _, h := range r.handlerByDestination {
		s := h.Stats()
		total.DataFrames += s.DataFrames
		total.Heartbeats += s.Heartbeats
		total.DupeFrames += s.DupeFrames
		total.DropsUnknownChannel += s.DropsUnknownChannel
		total.DropsNotReady += s.DropsNotReady
		total.DropsControlOnData += s.DropsControlOnData
		total.DropsRebuildError += s.DropsRebuildError
		total.DropsMalformed += s.DropsMalformed
		total.SMsSent += s.SMsSent
		total.NaksSent += s.NaksSent
		total.DatagramsReceived += s.DatagramsReceived
		total.BytesReceived += s.BytesReceived
		total.DatagramsSent += s.DatagramsSent
		total.BytesSent += s.BytesSent
	}
	return total
}

// ChannelCount 全部 destination 的通道总数
func (r *Receiver) ChannelCount() int {
	count := 0
	for _, h := range r.handlerByDestination {
		count += h.ChannelCount()
	}
	return count
}

// SessionCount 全部 destination 的会话总数
func (r *Receiver) SessionCount() int {
	count := 0
	for _, h := range r.handlerByDestination {
		count += h.SessionCount()
	}
	return count
}

func (r *Receiver) log(level int, format string, args ...interface{}) {
	if level > r.logLevel {
		return
	}
	prefix := map[int]string{0: "[ERROR]", 1: "[INFO]", 2: "[DEBUG]"}[level]
	fmt.Printf("%s %s [RECV] %s\n", prefix, time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
}
