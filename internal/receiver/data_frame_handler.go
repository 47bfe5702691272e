// =============================================================================
// 文件: internal/receiver/data_frame_handler.go
// 描述: 数据帧处理核心 - 路由入站帧, 发出 SM/NAK, 向 conductor 申请缓冲区
// =============================================================================
package receiver

import (
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/cube3power/Aeron/internal/protocol"
	"github.com/cube3power/Aeron/internal/transport"
)

// FrameSink 控制帧的发送出口; *transport.UdpTransport 满足该接口
type FrameSink interface {
	SendTo(data []byte, addr *net.UDPAddr) (int, error)
}

// LatencyObserver 帧处理延迟观测出口; prometheus.Histogram 满足该接口
type LatencyObserver interface {
	Observe(float64)
}

// HandlerStats 处理器计数快照 (含底层端点计数)
type HandlerStats struct {
	DataFrames          uint64
	Heartbeats          uint64
	DupeFrames          uint64
	DropsUnknownChannel uint64
	DropsNotReady       uint64
	DropsControlOnData  uint64
	DropsRebuildError   uint64
	DropsMalformed      uint64
	SMsSent             uint64
	NaksSent            uint64

	DatagramsReceived uint64
	BytesReceived     uint64
	DatagramsSent     uint64
	BytesSent         uint64
}

// DataFrameHandler 一个 destination 的数据帧处理器
//
// 独占该 destination 的 UDP 端点; 所有方法都只在接收线程上调用。
type DataFrameHandler struct {
	destination    *UdpDestination
	transport      *transport.UdpTransport
	sink           FrameSink
	conductorProxy TermBufferRequester

	subscriptionByChannelID map[uint64]*Subscription

	// 预分配的控制帧缓冲区, 发送路径零分配
	smBuf        []byte
	nakBuf       []byte
	smFlyweight  protocol.StatusMessageFlyweight
	nakFlyweight protocol.NakFlyweight

	dupes         *DupeTracker
	frameLatency  LatencyObserver
	initialWindow uint32
	logLevel      int

	// 统计
	dataFrames          uint64
	heartbeats          uint64
	dupeFrames          uint64
	dropsUnknownChannel uint64
	dropsNotReady       uint64
	dropsControlOnData  uint64
	dropsRebuildError   uint64
	smsSent             uint64
	naksSent            uint64
}

// NewDataFrameHandler 创建处理器并绑定 destination 的 UDP 端点
func NewDataFrameHandler(
	destination *UdpDestination,
	conductorProxy TermBufferRequester,
	initialWindow uint32,
	frameLatency LatencyObserver,
	logLevel string,
) (*DataFrameHandler, error) {
	h := newDataFrameHandler(destination, conductorProxy, initialWindow, frameLatency, logLevel)

	t, err := transport.NewUdpTransport(h, destination.LocalData(), logLevel)
	if err != nil {
		return nil, err
	}
	h.transport = t
	h.sink = t
	return h, nil
}

// newDataFrameHandler 不绑定端点的内部构造, 测试注入 FrameSink 用
func newDataFrameHandler(
	destination *UdpDestination,
	conductorProxy TermBufferRequester,
	initialWindow uint32,
	frameLatency LatencyObserver,
	logLevel string,
) *DataFrameHandler {
	level := transport.LogLevelInfo
	switch logLevel {
	case "debug":
		level = transport.LogLevelDebug
	case "error":
		level = transport.LogLevelError
	}

	h := &DataFrameHandler{
		destination:             destination,
		conductorProxy:          conductorProxy,
		subscriptionByChannelID: make(map[uint64]*Subscription),
		smBuf:                   make([]byte, protocol.SMHeaderLength),
		nakBuf:                  make([]byte, protocol.AlignFrameLength(protocol.NakHeaderLength)),
		dupes:                   NewDupeTracker(),
		frameLatency:            frameLatency,
		initialWindow:           initialWindow,
		logLevel:                level,
	}
	// 预分配缓冲区大小固定, Wrap 不会失败
	if err := h.smFlyweight.Wrap(h.smBuf, 0); err != nil {
		panic(err)
	}
	if err := h.nakFlyweight.Wrap(h.nakBuf, 0); err != nil {
		panic(err)
	}
	return h
}

// Destination 处理器的 destination
func (h *DataFrameHandler) Destination() *UdpDestination {
	return h.destination
}

// Close 关闭端点并释放全部订阅
func (h *DataFrameHandler) Close() error {
	for id, sub := range h.subscriptionByChannelID {
		sub.Close()
		delete(h.subscriptionByChannelID, id)
	}
	if h.transport != nil {
		return h.transport.Close()
	}
	return nil
}

// Poll 轮询底层端点
func (h *DataFrameHandler) Poll() (int, error) {
	if h.transport == nil {
		return 0, nil
	}
	return h.transport.Poll()
}

// =============================================================================
// 订阅注册表 (conductor 命令驱动, 接收线程单线程执行)
// =============================================================================

// AddChannels 注册通道; 已注册的通道增加引用
func (h *DataFrameHandler) AddChannels(channelIDs []uint64) {
	for _, channelID := range channelIDs {
		if sub := h.subscriptionByChannelID[channelID]; sub != nil {
			sub.IncRef()
			continue
		}
		h.subscriptionByChannelID[channelID] = NewSubscription(h.destination, channelID)
		h.log(transport.LogLevelDebug, "新增订阅: channel=%d dest=%s", channelID, h.destination)
	}
}

// RemoveChannels 释放通道引用; 计数归零时销毁订阅
func (h *DataFrameHandler) RemoveChannels(channelIDs []uint64) error {
	for _, channelID := range channelIDs {
		sub := h.subscriptionByChannelID[channelID]
		if sub == nil {
			return fmt.Errorf("%w: channel=%d", ErrSubscriptionNotRegistered, channelID)
		}
		if sub.DecRef() == 0 {
			delete(h.subscriptionByChannelID, channelID)
			sub.Close()
			h.log(transport.LogLevelDebug, "销毁订阅: channel=%d dest=%s", channelID, h.destination)
		}
	}
	return nil
}

// ChannelCount 已注册通道数
func (h *DataFrameHandler) ChannelCount() int {
	return len(h.subscriptionByChannelID)
}

// Subscription 按通道查找订阅
func (h *DataFrameHandler) Subscription(channelID uint64) *Subscription {
	return h.subscriptionByChannelID[channelID]
}

// =============================================================================
// 入站帧处理
// =============================================================================

// OnDataFrame 数据帧入口
func (h *DataFrameHandler) OnDataFrame(header *protocol.DataHeaderFlyweight, buf []byte, length int, srcAddr *net.UDPAddr) {
	if h.frameLatency != nil {
		start := time.Now()
		defer func() { h.frameLatency.Observe(time.Since(start).Seconds()) }()
	}

	channelID := header.ChannelID()

	sub := h.subscriptionByChannelID[channelID]
	if sub == nil {
		// 未订阅的通道: 单播端口可能被共享, 静默丢弃
		atomic.AddUint64(&h.dropsUnknownChannel, 1)
		return
	}

	atomic.AddUint64(&h.dataFrames, 1)

	sessionID := header.SessionID()
	termID := header.TermID()

	if session := sub.Session(sessionID); session != nil {
		if header.IsHeartbeat() {
			atomic.AddUint64(&h.heartbeats, 1)
			return
		}
		if session.Status() != SessionActive {
			// 缓冲区尚未就绪, 等 conductor 通知后源端会重传
			atomic.AddUint64(&h.dropsNotReady, 1)
			return
		}
		if h.dupes.Observe(sessionID, termID, header.TermOffset()) {
			atomic.AddUint64(&h.dupeFrames, 1)
		}
		if err := session.RebuildBuffer(header, buf, length); err != nil {
			atomic.AddUint64(&h.dropsRebuildError, 1)
			h.log(transport.LogLevelError, "重组失败, 丢弃帧: %v", err)
		}
		return
	}

	// 新会话: 记录来源地址, 向 conductor 申请 term 缓冲区。
	// 只在会话创建时申请一次, 后续滚动由状态消息驱动。
	// 首帧负载不写入 - 缓冲区还不存在。
	sub.CreateSession(sessionID, srcAddr)
	h.conductorProxy.CreateTermBuffer(h.destination.CanonicalForm(), sessionID, channelID, termID)
	h.log(transport.LogLevelDebug, "新会话: session=%d channel=%d term=%d from %s",
		sessionID, channelID, termID, srcAddr)
}

// OnStatusMessageFrame 数据端点上不应出现 SM, 计数后忽略
func (h *DataFrameHandler) OnStatusMessageFrame(header *protocol.StatusMessageFlyweight, buf []byte, length int, srcAddr *net.UDPAddr) {
	atomic.AddUint64(&h.dropsControlOnData, 1)
	h.log(transport.LogLevelDebug, "数据端点收到 SM, 忽略: from %s", srcAddr)
}

// OnNakFrame 数据端点上不应出现 NAK, 计数后忽略
func (h *DataFrameHandler) OnNakFrame(header *protocol.NakFlyweight, buf []byte, length int, srcAddr *net.UDPAddr) {
	atomic.AddUint64(&h.dropsControlOnData, 1)
	h.log(transport.LogLevelDebug, "数据端点收到 NAK, 忽略: from %s", srcAddr)
}

// =============================================================================
// conductor 通知
// =============================================================================

// OnSubscriptionReady term 缓冲区就绪, 绑定会话并发出首个 SM
//
// 通道或会话不存在说明 conductor/receiver 状态失配, 属逻辑错误。
func (h *DataFrameHandler) OnSubscriptionReady(event *NewReceiveBufferEvent, lossHandler LossHandler) error {
	sub := h.subscriptionByChannelID[event.ChannelID]
	if sub == nil {
		return fmt.Errorf("%w: channel=%d", ErrChannelNotFound, event.ChannelID)
	}

	session := sub.Session(event.SessionID)
	if session == nil {
		return fmt.Errorf("%w: session=%d", ErrSessionNotFound, event.SessionID)
	}

	// 单播场景 NAK 由数据帧处理器代发; 只把 (会话, 发送通道) 交给检测器
	lossHandler.SetNakEmitter(func(termID uint64, termOffset, length uint32) {
		if err := h.SendNak(session, termID, termOffset, length); err != nil {
			h.log(transport.LogLevelError, "NAK 发送失败: %v", err)
		}
	})

	session.BindTermBuffer(event.TermID, event.Buffer, lossHandler)

	// 就绪后立即发 SM, 放行等待中的源端
	if _, err := h.sendStatusMessage(0, h.initialWindow, event.TermID, session, sub); err != nil {
		return fmt.Errorf("初始 SM 发送失败: %w", err)
	}
	return nil
}

// =============================================================================
// 控制帧发送
// =============================================================================

// sendStatusMessage 填充 SM flyweight 并发送, 返回发送字节数
func (h *DataFrameHandler) sendStatusMessage(
	termOffset uint32,
	window uint32,
	termID uint64,
	session *SubscribedSession,
	sub *Subscription,
) (int, error) {
	h.smFlyweight.SetVersion(protocol.CurrentVersion)
	h.smFlyweight.SetFlags(0)
	h.smFlyweight.SetHeaderType(protocol.HdrTypeSM)
	h.smFlyweight.SetFrameLength(protocol.SMHeaderLength)
	h.smFlyweight.SetTermOffset(0)
	h.smFlyweight.SetSessionID(session.SessionID())
	h.smFlyweight.SetChannelID(sub.ChannelID())
	h.smFlyweight.SetTermID(termID)
	h.smFlyweight.SetHighestContiguousTermOffset(termOffset)
	h.smFlyweight.SetReceiverWindow(window)

	n, err := h.sink.SendTo(h.smBuf[:protocol.SMHeaderLength], session.SourceAddress())
	if err != nil {
		return n, err
	}
	atomic.AddUint64(&h.smsSent, 1)
	if n < protocol.SMHeaderLength {
		// 短发送交给调用方裁决
		return n, fmt.Errorf("%w: SM 发送 %d/%d", ErrShortSend, n, protocol.SMHeaderLength)
	}
	return n, nil
}

// SendStatusMessage 按会话当前水位发出 SM
func (h *DataFrameHandler) SendStatusMessage(session *SubscribedSession, termID uint64, window uint32) (int, error) {
	sub := h.subscriptionByChannelID[session.ChannelID()]
	if sub == nil {
		return 0, fmt.Errorf("%w: channel=%d", ErrChannelNotFound, session.ChannelID())
	}
	return h.sendStatusMessage(session.HighestContiguousOffset(), window, termID, session, sub)
}

// SendNak 发出重传请求; 发送不完整是硬错误
func (h *DataFrameHandler) SendNak(session *SubscribedSession, termID uint64, termOffset, length uint32) error {
	h.nakFlyweight.SetVersion(protocol.CurrentVersion)
	h.nakFlyweight.SetFlags(0)
	h.nakFlyweight.SetHeaderType(protocol.HdrTypeNak)
	h.nakFlyweight.SetFrameLength(protocol.NakHeaderLength)
	h.nakFlyweight.SetTermOffset(0)
	h.nakFlyweight.SetSessionID(session.SessionID())
	h.nakFlyweight.SetChannelID(session.ChannelID())
	h.nakFlyweight.SetTermID(termID)
	h.nakFlyweight.SetNakTermOffset(termOffset)
	h.nakFlyweight.SetLength(length)

	n, err := h.sink.SendTo(h.nakBuf[:protocol.NakHeaderLength], session.SourceAddress())
	if err != nil {
		return err
	}
	if n < protocol.NakHeaderLength {
		return fmt.Errorf("%w: NAK 发送 %d/%d", ErrShortSend, n, protocol.NakHeaderLength)
	}
	atomic.AddUint64(&h.naksSent, 1)
	return nil
}

// ScanForGaps 轮询全部活跃会话的丢包检测器, 返回发出的 NAK 数
func (h *DataFrameHandler) ScanForGaps() int {
	naks := 0
	for _, sub := range h.subscriptionByChannelID {
		sub.EachSession(func(s *SubscribedSession) {
			if s.Status() == SessionActive && s.LossHandler() != nil {
				naks += s.LossHandler().Scan()
			}
		})
	}
	return naks
}

// Stats 计数快照 (合并底层端点计数)
func (h *DataFrameHandler) Stats() HandlerStats {
	stats := HandlerStats{
		DataFrames:          atomic.LoadUint64(&h.dataFrames),
		Heartbeats:          atomic.LoadUint64(&h.heartbeats),
		DupeFrames:          atomic.LoadUint64(&h.dupeFrames),
		DropsUnknownChannel: atomic.LoadUint64(&h.dropsUnknownChannel),
		DropsNotReady:       atomic.LoadUint64(&h.dropsNotReady),
		DropsControlOnData:  atomic.LoadUint64(&h.dropsControlOnData),
		DropsRebuildError:   atomic.LoadUint64(&h.dropsRebuildError),
		SMsSent:             atomic.LoadUint64(&h.smsSent),
		NaksSent:            atomic.LoadUint64(&h.naksSent),
	}
	if h.transport != nil {
		datagramsRecv, bytesRecv, datagramsSent, bytesSent, framesDropped := h.transport.Stats()
		stats.DatagramsReceived = datagramsRecv
		stats.BytesReceived = bytesRecv
		stats.DatagramsSent = datagramsSent
		stats.BytesSent = bytesSent
		stats.DropsMalformed = framesDropped
	}
	return stats
}

// SessionCount 全部订阅的活跃会话总数
func (h *DataFrameHandler) SessionCount() int {
	count := 0
	for _, sub := range h.subscriptionByChannelID {
		count += sub.SessionCount()
	}
	return count
}

// =============================================================================
// 日志方法
// =============================================================================

func (h *DataFrameHandler) log(level int, format string, args ...interface{}) {
	if level > h.logLevel {
		return
	}
	prefix := map[int]string{0: "[ERROR]", 1: "[INFO]", 2: "[DEBUG]"}[level]
	fmt.Printf("%s %s [RECV] %s\n", prefix, time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
}
