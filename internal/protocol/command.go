// =============================================================================
// 文件: internal/protocol/command.go
// 描述: 控制协议消息 - conductor/receiver 线程间环形缓冲区承载的命令编码
// =============================================================================
package protocol

import (
	"encoding/binary"
	"fmt"
)

// 控制协议事件类型
const (
	MsgAddSubscriber                uint32 = 0x04
	MsgRemoveSubscriber             uint32 = 0x05
	MsgCreateTermBuffer             uint32 = 0x06
	MsgNewReceiveBufferNotification uint32 = 0x07
)

// =============================================================================
// SubscriberMessage
// 格式: count(u32) + count×channelId(u64) + destination(长度前缀 UTF-8)
// =============================================================================

// SubscriberMessage 订阅命令 (ADD_SUBSCRIBER / REMOVE_SUBSCRIBER 共用负载)
type SubscriberMessage struct {
	Destination string
	ChannelIDs  []uint64
}

// Encode 编码订阅命令
func (m *SubscriberMessage) Encode() []byte {
	total := 4 + len(m.ChannelIDs)*8 + 4 + len(m.Destination)
	buf := make([]byte, total)

	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(m.ChannelIDs)))
	offset := 4
	for _, id := range m.ChannelIDs {
		binary.LittleEndian.PutUint64(buf[offset:], id)
		offset += 8
	}
	if _, err := PutStringUTF8(buf, offset, m.Destination); err != nil {
		// 缓冲区按需分配, 不可能越界
		panic(err)
	}
	return buf
}

// DecodeSubscriberMessage 解码订阅命令
func DecodeSubscriberMessage(buf []byte) (*SubscriberMessage, error) {
	if len(buf) < 4 {
		return nil, fmt.Errorf("订阅命令太短: %d 字节", len(buf))
	}
	count := int(binary.LittleEndian.Uint32(buf[0:4]))
	offset := 4
	if err := checkExtent(buf, offset, count*8); err != nil {
		return nil, fmt.Errorf("订阅命令通道数组越界: %w", err)
	}

	ids := make([]uint64, count)
	for i := 0; i < count; i++ {
		ids[i] = binary.LittleEndian.Uint64(buf[offset:])
		offset += 8
	}

	dest, _, err := GetStringUTF8(buf, offset)
	if err != nil {
		return nil, fmt.Errorf("订阅命令目的地解码失败: %w", err)
	}
	return &SubscriberMessage{Destination: dest, ChannelIDs: ids}, nil
}

// =============================================================================
// QualifiedMessage
// 格式: sessionId(u64) + channelId(u64) + termId(u64) + destination
// CREATE_TERM_BUFFER 与 NEW_RECEIVE_BUFFER_NOTIFICATION 共用该负载
// =============================================================================

// QualifiedMessage 带完整限定符的命令
type QualifiedMessage struct {
	Destination string
	SessionID   uint64
	ChannelID   uint64
	TermID      uint64
}

// Encode 编码命令
func (m *QualifiedMessage) Encode() []byte {
	buf := make([]byte, 24+4+len(m.Destination))
	binary.LittleEndian.PutUint64(buf[0:8], m.SessionID)
	binary.LittleEndian.PutUint64(buf[8:16], m.ChannelID)
	binary.LittleEndian.PutUint64(buf[16:24], m.TermID)
	if _, err := PutStringUTF8(buf, 24, m.Destination); err != nil {
		panic(err)
	}
	return buf
}

// DecodeQualifiedMessage 解码命令
func DecodeQualifiedMessage(buf []byte) (*QualifiedMessage, error) {
	if len(buf) < 28 {
		return nil, fmt.Errorf("限定命令太短: %d 字节", len(buf))
	}
	m := &QualifiedMessage{
		SessionID: binary.LittleEndian.Uint64(buf[0:8]),
		ChannelID: binary.LittleEndian.Uint64(buf[8:16]),
		TermID:    binary.LittleEndian.Uint64(buf[16:24]),
	}
	dest, _, err := GetStringUTF8(buf, 24)
	if err != nil {
		return nil, fmt.Errorf("限定命令目的地解码失败: %w", err)
	}
	m.Destination = dest
	return m, nil
}
