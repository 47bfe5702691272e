// =============================================================================
// 文件: internal/conductor/proxy.go
// 描述: 线程间代理 - receiver 与 conductor 互发命令的单写入口
// =============================================================================
package conductor

import (
	"github.com/cube3power/Aeron/internal/concurrent"
	"github.com/cube3power/Aeron/internal/protocol"
	"github.com/cube3power/Aeron/internal/receiver"
)

// ReceiverProxy conductor 线程写入 receiver 命令缓冲区的代理
//
// 命令走环形缓冲区; 缓冲区句柄这类大事件走有界队列, 环形缓冲区只写唤醒。
// 单写者: 只允许 conductor 线程调用。
type ReceiverProxy struct {
	commandBuffer *concurrent.RingBuffer
	eventQueue    *receiver.EventQueue
}

// NewReceiverProxy 创建代理
func NewReceiverProxy(commandBuffer *concurrent.RingBuffer, eventQueue *receiver.EventQueue) *ReceiverProxy {
	return &ReceiverProxy{commandBuffer: commandBuffer, eventQueue: eventQueue}
}

// AddSubscriber 下发订阅命令
func (p *ReceiverProxy) AddSubscriber(destination string, channelIDs []uint64) bool {
	msg := &protocol.SubscriberMessage{Destination: destination, ChannelIDs: channelIDs}
	return p.commandBuffer.Write(protocol.MsgAddSubscriber, msg.Encode())
}

// RemoveSubscriber 下发退订命令
func (p *ReceiverProxy) RemoveSubscriber(destination string, channelIDs []uint64) bool {
	msg := &protocol.SubscriberMessage{Destination: destination, ChannelIDs: channelIDs}
	return p.commandBuffer.Write(protocol.MsgRemoveSubscriber, msg.Encode())
}

// NewReceiveBuffer 事件入队, 队列满返回 false (调用方退避重试)
func (p *ReceiverProxy) NewReceiveBuffer(event *receiver.NewReceiveBufferEvent) bool {
	return p.eventQueue.Offer(event)
}

// TermBufferCreated 写入缓冲区就绪通知 (事件体已在队列中)
func (p *ReceiverProxy) TermBufferCreated(destination string, sessionID, channelID, termID uint64) bool {
	msg := &protocol.QualifiedMessage{
		Destination: destination,
		SessionID:   sessionID,
		ChannelID:   channelID,
		TermID:      termID,
	}
	return p.commandBuffer.Write(protocol.MsgNewReceiveBufferNotification, msg.Encode())
}

// ConductorProxy receiver 线程写入 conductor 命令缓冲区的代理
//
// 单写者: 只允许 receiver 线程调用。
type ConductorProxy struct {
	commandBuffer *concurrent.RingBuffer
}

// NewConductorProxy 创建代理
func NewConductorProxy(commandBuffer *concurrent.RingBuffer) *ConductorProxy {
	return &ConductorProxy{commandBuffer: commandBuffer}
}

// CreateTermBuffer 申请 term 缓冲区, fire-and-forget
func (p *ConductorProxy) CreateTermBuffer(destination string, sessionID, channelID, termID uint64) {
	msg := &protocol.QualifiedMessage{
		Destination: destination,
		SessionID:   sessionID,
		ChannelID:   channelID,
		TermID:      termID,
	}
	p.commandBuffer.Write(protocol.MsgCreateTermBuffer, msg.Encode())
}
