// =============================================================================
// 文件: internal/protocol/errors.go
// =============================================================================
package protocol

import "errors"

var (
	// ErrInvalidHeaderLength 帧头长度非法 (配置期校验, 阻止启动)
	ErrInvalidHeaderLength = errors.New("帧头长度非法")

	// ErrInvalidFrameAlignment 帧对齐非法 (配置期校验, 阻止启动)
	ErrInvalidFrameAlignment = errors.New("帧对齐非法")

	// ErrBufferOverflow 访问越过底层缓冲区边界, 该数据报被丢弃
	ErrBufferOverflow = errors.New("缓冲区越界")
)
