// =============================================================================
// 文件: internal/receiver/errors.go
// =============================================================================
package receiver

import "errors"

var (
	// ErrSubscriptionNotRegistered 对未注册的通道执行 RemoveChannels
	ErrSubscriptionNotRegistered = errors.New("订阅未注册")

	// ErrShortSend 控制帧未能完整发出
	ErrShortSend = errors.New("控制帧发送不完整")

	// ErrChannelNotFound conductor 通知引用了不存在的通道 (逻辑错误)
	ErrChannelNotFound = errors.New("通道不存在")

	// ErrSessionNotFound conductor 通知引用了不存在的会话 (逻辑错误)
	ErrSessionNotFound = errors.New("会话不存在")

	// ErrSessionNotActive term 缓冲区尚未绑定时写入会话
	ErrSessionNotActive = errors.New("会话未激活")

	// ErrTermBufferMissing 帧引用的 term 没有对应缓冲区
	ErrTermBufferMissing = errors.New("term 缓冲区不存在")
)
