// =============================================================================
// 文件: internal/protocol/status_message.go
// 描述: 状态消息 (SM) Flyweight - 接收端向源端通告连续水位与接收窗口
// =============================================================================
package protocol

import "encoding/binary"

// SM 字段偏移 (公共头部之后)
const (
	smSessionIDOffset         = BaseHeaderLength
	smChannelIDOffset         = BaseHeaderLength + 8
	smTermIDOffset            = BaseHeaderLength + 16
	smHighestTermOffsetOffset = BaseHeaderLength + 24
	smReceiverWindowOffset    = BaseHeaderLength + 28

	// SMHeaderLength 状态消息帧总长
	SMHeaderLength = BaseHeaderLength + 32
)

// StatusMessageFlyweight 状态消息视图
type StatusMessageFlyweight struct {
	HeaderFlyweight
}

// Wrap 绑定到 buf 的 offset 处
func (s *StatusMessageFlyweight) Wrap(buf []byte, offset int) error {
	if err := checkExtent(buf, offset, SMHeaderLength); err != nil {
		return err
	}
	s.buf = buf
	s.offset = offset
	return nil
}

// SessionID 会话 ID
func (s *StatusMessageFlyweight) SessionID() uint64 {
	return binary.LittleEndian.Uint64(s.buf[s.offset+smSessionIDOffset:])
}

// SetSessionID 写入会话 ID
func (s *StatusMessageFlyweight) SetSessionID(id uint64) {
	binary.LittleEndian.PutUint64(s.buf[s.offset+smSessionIDOffset:], id)
}

// ChannelID 通道 ID
func (s *StatusMessageFlyweight) ChannelID() uint64 {
	return binary.LittleEndian.Uint64(s.buf[s.offset+smChannelIDOffset:])
}

// SetChannelID 写入通道 ID
func (s *StatusMessageFlyweight) SetChannelID(id uint64) {
	binary.LittleEndian.PutUint64(s.buf[s.offset+smChannelIDOffset:], id)
}

// TermID term 编号
func (s *StatusMessageFlyweight) TermID() uint64 {
	return binary.LittleEndian.Uint64(s.buf[s.offset+smTermIDOffset:])
}

// SetTermID 写入 term 编号
func (s *StatusMessageFlyweight) SetTermID(id uint64) {
	binary.LittleEndian.PutUint64(s.buf[s.offset+smTermIDOffset:], id)
}

// HighestContiguousTermOffset 最高连续 term 偏移
func (s *StatusMessageFlyweight) HighestContiguousTermOffset() uint32 {
	return binary.LittleEndian.Uint32(s.buf[s.offset+smHighestTermOffsetOffset:])
}

// SetHighestContiguousTermOffset 写入最高连续 term 偏移
func (s *StatusMessageFlyweight) SetHighestContiguousTermOffset(offset uint32) {
	binary.LittleEndian.PutUint32(s.buf[s.offset+smHighestTermOffsetOffset:], offset)
}

// ReceiverWindow 接收窗口
func (s *StatusMessageFlyweight) ReceiverWindow() uint32 {
	return binary.LittleEndian.Uint32(s.buf[s.offset+smReceiverWindowOffset:])
}

// SetReceiverWindow 写入接收窗口
func (s *StatusMessageFlyweight) SetReceiverWindow(window uint32) {
	binary.LittleEndian.PutUint32(s.buf[s.offset+smReceiverWindowOffset:], window)
}
