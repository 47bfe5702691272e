// =============================================================================
// 文件: internal/protocol/nak.go
// 描述: NAK Flyweight - 接收端向源端请求重传缺失区间
// =============================================================================
package protocol

import "encoding/binary"

// NAK 字段偏移 (公共头部之后)
const (
	nakSessionIDOffset  = BaseHeaderLength
	nakChannelIDOffset  = BaseHeaderLength + 8
	nakTermIDOffset     = BaseHeaderLength + 16
	nakTermOffsetOffset = BaseHeaderLength + 24
	nakLengthOffset     = BaseHeaderLength + 28

	// NakHeaderLength NAK 帧总长
	NakHeaderLength = BaseHeaderLength + 32
)

// NakFlyweight NAK 帧视图
type NakFlyweight struct {
	HeaderFlyweight
}

// Wrap 绑定到 buf 的 offset 处
func (n *NakFlyweight) Wrap(buf []byte, offset int) error {
	if err := checkExtent(buf, offset, NakHeaderLength); err != nil {
		return err
	}
	n.buf = buf
	n.offset = offset
	return nil
}

// SessionID 会话 ID
func (n *NakFlyweight) SessionID() uint64 {
	return binary.LittleEndian.Uint64(n.buf[n.offset+nakSessionIDOffset:])
}

// SetSessionID 写入会话 ID
func (n *NakFlyweight) SetSessionID(id uint64) {
	binary.LittleEndian.PutUint64(n.buf[n.offset+nakSessionIDOffset:], id)
}

// ChannelID 通道 ID
func (n *NakFlyweight) ChannelID() uint64 {
	return binary.LittleEndian.Uint64(n.buf[n.offset+nakChannelIDOffset:])
}

// SetChannelID 写入通道 ID
func (n *NakFlyweight) SetChannelID(id uint64) {
	binary.LittleEndian.PutUint64(n.buf[n.offset+nakChannelIDOffset:], id)
}

// TermID term 编号
func (n *NakFlyweight) TermID() uint64 {
	return binary.LittleEndian.Uint64(n.buf[n.offset+nakTermIDOffset:])
}

// SetTermID 写入 term 编号
func (n *NakFlyweight) SetTermID(id uint64) {
	binary.LittleEndian.PutUint64(n.buf[n.offset+nakTermIDOffset:], id)
}

// NakTermOffset 缺失区间起始偏移
//
// 公共头部的 TermOffset 字段与缺失区间无关, NAK 用独立字段表达区间起点。
func (n *NakFlyweight) NakTermOffset() uint32 {
	return binary.LittleEndian.Uint32(n.buf[n.offset+nakTermOffsetOffset:])
}

// SetNakTermOffset 写入缺失区间起始偏移
func (n *NakFlyweight) SetNakTermOffset(offset uint32) {
	binary.LittleEndian.PutUint32(n.buf[n.offset+nakTermOffsetOffset:], offset)
}

// Length 缺失区间长度
func (n *NakFlyweight) Length() uint32 {
	return binary.LittleEndian.Uint32(n.buf[n.offset+nakLengthOffset:])
}

// SetLength 写入缺失区间长度
func (n *NakFlyweight) SetLength(length uint32) {
	binary.LittleEndian.PutUint32(n.buf[n.offset+nakLengthOffset:], length)
}
