// =============================================================================
// 文件: internal/conductor/conductor.go
// 描述: conductor 线程 - term 缓冲区分配与生命周期管理
// =============================================================================
package conductor

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cube3power/Aeron/internal/concurrent"
	"github.com/cube3power/Aeron/internal/protocol"
	"github.com/cube3power/Aeron/internal/receiver"
)

// Options conductor 配置
type Options struct {
	// TermBufferLength 每个 term 缓冲区大小, 必须按帧对齐
	TermBufferLength int

	// NakDelay 丢包检测的 NAK 延迟策略
	NakDelay time.Duration

	// LogLevel error / info / debug
	LogLevel string
}

// termKey term 缓冲区登记键
type termKey struct {
	destination string
	sessionID   uint64
	channelID   uint64
	termID      uint64
}

// Conductor 控制面线程
//
// 消费 receiver 发来的 CREATE_TERM_BUFFER 命令, 分配缓冲区,
// 通过 ReceiverProxy 送回 (事件队列 + 唤醒通知)。
// 缓冲区在会话关闭且静默确认后回收, 回收协议在上层。
type Conductor struct {
	commandBuffer *concurrent.RingBuffer
	receiverProxy *ReceiverProxy

	termBuffers map[termKey][]byte

	opts     Options
	logLevel int

	buffersCreated uint64
}

// NewConductor 创建 conductor
func NewConductor(commandBuffer *concurrent.RingBuffer, receiverProxy *ReceiverProxy, opts Options) (*Conductor, error) {
	if err := protocol.CheckMaxFrameLength(opts.TermBufferLength); err != nil {
		return nil, fmt.Errorf("term 缓冲区长度非法: %w", err)
	}

	level := 1
	switch opts.LogLevel {
	case "debug":
		level = 2
	case "error":
		level = 0
	}

	return &Conductor{
		commandBuffer: commandBuffer,
		receiverProxy: receiverProxy,
		termBuffers:   make(map[termKey][]byte),
		opts:          opts,
		logLevel:      level,
	}, nil
}

// Run 运行事件循环直到 ctx 取消
func (c *Conductor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if c.DoWork() == 0 {
			time.Sleep(100 * time.Microsecond)
		}
	}
}

// DoWork 消费一轮命令, 返回处理条数
func (c *Conductor) DoWork() int {
	return c.commandBuffer.Read(func(msgTypeID uint32, payload []byte) {
		if err := c.onCommand(msgTypeID, payload); err != nil {
			c.log(0, "命令处理失败 type=%#x: %v", msgTypeID, err)
		}
	})
}

func (c *Conductor) onCommand(msgTypeID uint32, payload []byte) error {
	switch msgTypeID {
	case protocol.MsgCreateTermBuffer:
		msg, err := protocol.DecodeQualifiedMessage(payload)
		if err != nil {
			return err
		}
		return c.onCreateTermBuffer(msg)

	default:
		return fmt.Errorf("未知命令类型: %#x", msgTypeID)
	}
}

// onCreateTermBuffer 分配缓冲区并通知 receiver
//
// 同一 (destination, session, channel, term) 的重复申请复用已有缓冲区。
func (c *Conductor) onCreateTermBuffer(msg *protocol.QualifiedMessage) error {
	key := termKey{msg.Destination, msg.SessionID, msg.ChannelID, msg.TermID}

	buf := c.termBuffers[key]
	if buf == nil {
		buf = make([]byte, c.opts.TermBufferLength)
		c.termBuffers[key] = buf
		atomic.AddUint64(&c.buffersCreated, 1)
		c.log(2, "分配 term 缓冲区: session=%d channel=%d term=%d len=%d",
			msg.SessionID, msg.ChannelID, msg.TermID, len(buf))
	}

	event := &receiver.NewReceiveBufferEvent{
		Destination: msg.Destination,
		SessionID:   msg.SessionID,
		ChannelID:   msg.ChannelID,
		TermID:      msg.TermID,
		Buffer:      buf,
		LossHandler: receiver.NewGapScanner(msg.TermID, len(buf), c.opts.NakDelay),
	}

	// 队列满时退避重试; 事件不能丢, 否则 receiver 永远等不到缓冲区
	for !c.receiverProxy.NewReceiveBuffer(event) {
		time.Sleep(50 * time.Microsecond)
	}
	if !c.receiverProxy.TermBufferCreated(msg.Destination, msg.SessionID, msg.ChannelID, msg.TermID) {
		return fmt.Errorf("唤醒通知写入失败: receiver 命令缓冲区已满")
	}
	return nil
}

// ReleaseTermBuffers 回收一个会话的全部缓冲区 (会话关闭后调用)
func (c *Conductor) ReleaseTermBuffers(destination string, sessionID, channelID uint64) int {
	released := 0
	for key := range c.termBuffers {
		if key.destination == destination && key.sessionID == sessionID && key.channelID == channelID {
			delete(c.termBuffers, key)
			released++
		}
	}
	return released
}

// BuffersCreated 已分配缓冲区数
func (c *Conductor) BuffersCreated() uint64 {
	return atomic.LoadUint64(&c.buffersCreated)
}

// TermBufferCount 当前登记的缓冲区数
func (c *Conductor) TermBufferCount() int {
	return len(c.termBuffers)
}

func (c *Conductor) log(level int, format string, args ...interface{}) {
	if level > c.logLevel {
		return
	}
	prefix := map[int]string{0: "[ERROR]", 1: "[INFO]", 2: "[DEBUG]"}[level]
	fmt.Printf("%s %s [COND] %s\n", prefix, time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
}
