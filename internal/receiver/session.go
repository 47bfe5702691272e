// =============================================================================
// 文件: internal/receiver/session.go
// 描述: SubscribedSession - 每个 (destination, channel, session) 的接收状态
// =============================================================================
package receiver

import (
	"fmt"
	"net"

	"github.com/cube3power/Aeron/internal/protocol"
)

// 会话状态
const (
	SessionProvisioned = iota // 已创建, term 缓冲区未就绪
	SessionActive             // term 缓冲区已绑定
	SessionClosed
)

// SubscribedSession 一个通道上的一个生产者会话
//
// 仅在接收线程上访问, 不加锁。
type SubscribedSession struct {
	sessionID     uint64
	channelID     uint64
	sourceAddress *net.UDPAddr

	status        int
	termBuffers   map[uint64][]byte
	currentTermID uint64
	lossHandler   LossHandler
}

// NewSubscribedSession 创建 Provisioned 状态的会话
func NewSubscribedSession(sessionID, channelID uint64, sourceAddress *net.UDPAddr) *SubscribedSession {
	return &SubscribedSession{
		sessionID:     sessionID,
		channelID:     channelID,
		sourceAddress: sourceAddress,
		status:        SessionProvisioned,
		termBuffers:   make(map[uint64][]byte),
	}
}

// SessionID 会话 ID
func (s *SubscribedSession) SessionID() uint64 { return s.sessionID }

// ChannelID 通道 ID
func (s *SubscribedSession) ChannelID() uint64 { return s.channelID }

// SourceAddress 会话来源地址 (首个数据帧的发送方)
func (s *SubscribedSession) SourceAddress() *net.UDPAddr { return s.sourceAddress }

// Status 会话状态
func (s *SubscribedSession) Status() int { return s.status }

// LossHandler 已绑定的丢包检测器, 未激活时为 nil
func (s *SubscribedSession) LossHandler() LossHandler { return s.lossHandler }

// BindTermBuffer 绑定 conductor 分配的 term 缓冲区, 会话进入 Active
func (s *SubscribedSession) BindTermBuffer(termID uint64, buf []byte, lossHandler LossHandler) {
	s.termBuffers[termID] = buf
	s.currentTermID = termID
	s.lossHandler = lossHandler
	s.status = SessionActive
}

// TermBuffer 按 termID 查找缓冲区
func (s *SubscribedSession) TermBuffer(termID uint64) []byte {
	return s.termBuffers[termID]
}

// RebuildBuffer 将数据帧负载重组进 term 缓冲区
//
// 前置条件: 会话 Active 且帧引用的 term 已有缓冲区。
// 重复帧按原偏移重写同样的字节, 幂等; 水位推进交给丢包检测器, 只增不减。
func (s *SubscribedSession) RebuildBuffer(header *protocol.DataHeaderFlyweight, buf []byte, length int) error {
	if s.status != SessionActive {
		return fmt.Errorf("%w: session=%d status=%d", ErrSessionNotActive, s.sessionID, s.status)
	}

	termBuf := s.termBuffers[header.TermID()]
	if termBuf == nil {
		return fmt.Errorf("%w: session=%d term=%d", ErrTermBufferMissing, s.sessionID, header.TermID())
	}

	frameLength := int(header.FrameLength())
	if frameLength > length {
		return fmt.Errorf("%w: frameLength=%d datagram=%d", protocol.ErrBufferOverflow, frameLength, length)
	}
	payloadLen := frameLength - protocol.DataHeaderLength
	if payloadLen <= 0 {
		// 心跳帧, 无可写负载
		return nil
	}

	termOffset := int(header.TermOffset())
	if termOffset+payloadLen > len(termBuf) {
		return fmt.Errorf("%w: termOffset=%d payload=%d capacity=%d",
			protocol.ErrBufferOverflow, termOffset, payloadLen, len(termBuf))
	}

	copy(termBuf[termOffset:], buf[protocol.DataHeaderLength:frameLength])

	if s.lossHandler != nil {
		s.lossHandler.OnFrame(header.TermOffset(), uint32(payloadLen))
	}
	return nil
}

// HighestContiguousOffset 当前 term 的最高连续偏移
func (s *SubscribedSession) HighestContiguousOffset() uint32 {
	if s.lossHandler == nil {
		return 0
	}
	return s.lossHandler.HighestContiguous()
}

// Close 释放会话: 置为 Closed 并丢弃本会话持有的 term 缓冲区与检测器引用;
// 不通知 conductor, 缓冲区仍登记在 conductor 处
func (s *SubscribedSession) Close() {
	s.status = SessionClosed
	s.termBuffers = make(map[uint64][]byte)
	s.lossHandler = nil
}
