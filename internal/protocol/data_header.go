// =============================================================================
// 文件: internal/protocol/data_header.go
// 描述: 数据帧头 Flyweight
// =============================================================================
package protocol

import "encoding/binary"

// 数据帧字段偏移 (公共头部之后)
const (
	dataSessionIDOffset = BaseHeaderLength
	dataChannelIDOffset = BaseHeaderLength + 8
	dataTermIDOffset    = BaseHeaderLength + 16

	// DataHeaderLength 数据帧头总长; frameLength 等于该值的帧是心跳, 不携带负载
	DataHeaderLength = BaseHeaderLength + 24
)

// DataHeaderFlyweight 数据帧头视图
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+---------------+-+-+-----------+-------------------------------+
//	|    Version    |B|E|   Flags   |             Type              |
//	+---------------+-+-+-----------+-------------------------------+
//	|R|                       Frame Length                          |
//	+-+-------------------------------------------------------------+
//	|R|                       Term Offset                           |
//	+-+-------------------------------------------------------------+
//	|                          Session ID                           |
//	|                                                               |
//	+---------------------------------------------------------------+
//	|                          Channel ID                           |
//	|                                                               |
//	+---------------------------------------------------------------+
//	|                           Term ID                             |
//	|                                                               |
//	+---------------------------------------------------------------+
//	|                            Payload                           ...
type DataHeaderFlyweight struct {
	HeaderFlyweight
}

// Wrap 绑定到 buf 的 offset 处
func (d *DataHeaderFlyweight) Wrap(buf []byte, offset int) error {
	if err := checkExtent(buf, offset, DataHeaderLength); err != nil {
		return err
	}
	d.buf = buf
	d.offset = offset
	return nil
}

// SessionID 会话 ID
func (d *DataHeaderFlyweight) SessionID() uint64 {
	return binary.LittleEndian.Uint64(d.buf[d.offset+dataSessionIDOffset:])
}

// SetSessionID 写入会话 ID
func (d *DataHeaderFlyweight) SetSessionID(id uint64) {
	binary.LittleEndian.PutUint64(d.buf[d.offset+dataSessionIDOffset:], id)
}

// ChannelID 通道 ID
func (d *DataHeaderFlyweight) ChannelID() uint64 {
	return binary.LittleEndian.Uint64(d.buf[d.offset+dataChannelIDOffset:])
}

// SetChannelID 写入通道 ID
func (d *DataHeaderFlyweight) SetChannelID(id uint64) {
	binary.LittleEndian.PutUint64(d.buf[d.offset+dataChannelIDOffset:], id)
}

// TermID term 编号
func (d *DataHeaderFlyweight) TermID() uint64 {
	return binary.LittleEndian.Uint64(d.buf[d.offset+dataTermIDOffset:])
}

// SetTermID 写入 term 编号
func (d *DataHeaderFlyweight) SetTermID(id uint64) {
	binary.LittleEndian.PutUint64(d.buf[d.offset+dataTermIDOffset:], id)
}

// IsHeartbeat 帧是否只有头部 (心跳帧, 无负载可写)
func (d *DataHeaderFlyweight) IsHeartbeat() bool {
	return d.FrameLength() <= DataHeaderLength
}
