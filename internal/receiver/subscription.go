// =============================================================================
// 文件: internal/receiver/subscription.go
// 描述: Subscription - 一个 destination 上一个通道的引用计数订阅
// =============================================================================
package receiver

import "net"

// TermBufferRequester 接收线程向 conductor 申请 term 缓冲区的出口
//
// 由 ConductorProxy 实现; fire-and-forget。
type TermBufferRequester interface {
	CreateTermBuffer(destination string, sessionID, channelID, termID uint64)
}

// Subscription 一个通道的订阅, 持有该通道上所有活跃会话
//
// 引用计数由接收线程的命令循环驱动, 单线程, 无需原子操作。
// 计数恒等于该通道上 AddChannels 与 RemoveChannels 的差值。
type Subscription struct {
	destination *UdpDestination
	channelID   uint64
	refCount    int
	sessions    map[uint64]*SubscribedSession

	// 关闭钩子, 计数归零销毁时触发一次
	onClose func()
}

// NewSubscription 创建订阅, 初始计数 1
func NewSubscription(destination *UdpDestination, channelID uint64) *Subscription {
	return &Subscription{
		destination: destination,
		channelID:   channelID,
		refCount:    1,
		sessions:    make(map[uint64]*SubscribedSession),
	}
}

// ChannelID 通道 ID
func (s *Subscription) ChannelID() uint64 { return s.channelID }

// RefCount 当前引用计数
func (s *Subscription) RefCount() int { return s.refCount }

// IncRef 增加引用
func (s *Subscription) IncRef() int {
	s.refCount++
	return s.refCount
}

// DecRef 释放引用
func (s *Subscription) DecRef() int {
	s.refCount--
	return s.refCount
}

// Session 按会话 ID 查找
func (s *Subscription) Session(sessionID uint64) *SubscribedSession {
	return s.sessions[sessionID]
}

// CreateSession 创建 Provisioned 会话并记录来源地址
func (s *Subscription) CreateSession(sessionID uint64, sourceAddress *net.UDPAddr) *SubscribedSession {
	session := NewSubscribedSession(sessionID, s.channelID, sourceAddress)
	s.sessions[sessionID] = session
	return session
}

// SessionCount 活跃会话数
func (s *Subscription) SessionCount() int {
	return len(s.sessions)
}

// EachSession 遍历会话
func (s *Subscription) EachSession(fn func(*SubscribedSession)) {
	for _, session := range s.sessions {
		fn(session)
	}
}

// SetCloseHook 设置销毁钩子
func (s *Subscription) SetCloseHook(fn func()) {
	s.onClose = fn
}

// Close 释放全部会话并触发钩子
func (s *Subscription) Close() {
	for id, session := range s.sessions {
		session.Close()
		delete(s.sessions, id)
	}
	if s.onClose != nil {
		s.onClose()
		s.onClose = nil
	}
}
