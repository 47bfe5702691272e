// =============================================================================
// 文件: internal/transport/udp.go
// 描述: UDP 传输端点 - 一个 destination 对应一个绑定端口, 按帧类型分发
// =============================================================================
package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cube3power/Aeron/internal/protocol"
)

// =============================================================================
// 常量定义
// =============================================================================

const (
	LogLevelError = iota
	LogLevelInfo
	LogLevelDebug
)

const (
	// readBufferLength 单个数据报的最大长度 (64KB, UDP 上限)
	readBufferLength = 64 * 1024

	// defaultPollTimeout 单次 Poll 在 socket 上的最长阻塞时间
	defaultPollTimeout = time.Millisecond
)

// =============================================================================
// 类型定义
// =============================================================================

// FrameHandler 入站帧回调
//
// Poll 解出帧类型后调用对应方法; flyweight 与 buf 指向传输层的接收缓冲区,
// 回调返回后内容即被下一个数据报覆盖, 不得跨调用持有。
type FrameHandler interface {
	OnDataFrame(header *protocol.DataHeaderFlyweight, buf []byte, length int, srcAddr *net.UDPAddr)
	OnStatusMessageFrame(header *protocol.StatusMessageFlyweight, buf []byte, length int, srcAddr *net.UDPAddr)
	OnNakFrame(header *protocol.NakFlyweight, buf []byte, length int, srcAddr *net.UDPAddr)
}

// UdpTransport UDP 传输端点
type UdpTransport struct {
	conn    *net.UDPConn
	handler FrameHandler

	readBuf []byte
	header  protocol.HeaderFlyweight
	dataHdr protocol.DataHeaderFlyweight
	smHdr   protocol.StatusMessageFlyweight
	nakHdr  protocol.NakFlyweight

	pollTimeout time.Duration
	logLevel    int

	// 统计
	datagramsRecv uint64
	bytesRecv     uint64
	datagramsSent uint64
	bytesSent     uint64
	framesDropped uint64

	closeOnce sync.Once
	closed    uint32
}

// NewUdpTransport 创建并绑定传输端点
func NewUdpTransport(handler FrameHandler, bindAddr *net.UDPAddr, logLevel string) (*UdpTransport, error) {
	level := LogLevelInfo
	switch logLevel {
	case "debug":
		level = LogLevelDebug
	case "error":
		level = LogLevelError
	}

	conn, err := net.ListenUDP("udp", bindAddr)
	if err != nil {
		return nil, fmt.Errorf("绑定 UDP 端点失败 %s: %w", bindAddr, err)
	}

	t := &UdpTransport{
		conn:        conn,
		handler:     handler,
		readBuf:     make([]byte, readBufferLength),
		pollTimeout: defaultPollTimeout,
		logLevel:    level,
	}
	t.log(LogLevelInfo, "UDP 端点已绑定: %s", conn.LocalAddr())
	return t, nil
}

// LocalAddr 实际绑定地址
func (t *UdpTransport) LocalAddr() *net.UDPAddr {
	return t.conn.LocalAddr().(*net.UDPAddr)
}

// Poll 读取至多一个数据报并分发, 返回处理的帧数
//
// 接收线程事件循环唯一的阻塞点; 超时返回 (0, nil)。
func (t *UdpTransport) Poll() (int, error) {
	if atomic.LoadUint32(&t.closed) == 1 {
		return 0, nil
	}

	if err := t.conn.SetReadDeadline(time.Now().Add(t.pollTimeout)); err != nil {
		return 0, fmt.Errorf("设置读超时失败: %w", err)
	}

	n, srcAddr, err := t.conn.ReadFromUDP(t.readBuf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return 0, nil
		}
		if atomic.LoadUint32(&t.closed) == 1 {
			return 0, nil
		}
		return 0, fmt.Errorf("读取数据报失败: %w", err)
	}

	atomic.AddUint64(&t.datagramsRecv, 1)
	atomic.AddUint64(&t.bytesRecv, uint64(n))

	return t.dispatch(t.readBuf[:n], n, srcAddr), nil
}

// dispatch 解析公共头部并按帧类型分发
func (t *UdpTransport) dispatch(buf []byte, length int, srcAddr *net.UDPAddr) int {
	if err := t.header.Wrap(buf, 0); err != nil {
		atomic.AddUint64(&t.framesDropped, 1)
		t.log(LogLevelDebug, "数据报太短, 丢弃: %d 字节 from %s", length, srcAddr)
		return 0
	}

	// frameLength 超过数据报实际长度说明帧被截断
	if int(t.header.FrameLength()) > length {
		atomic.AddUint64(&t.framesDropped, 1)
		t.log(LogLevelDebug, "截断帧, 丢弃: frameLength=%d datagram=%d from %s",
			t.header.FrameLength(), length, srcAddr)
		return 0
	}

	switch t.header.HeaderType() {
	case protocol.HdrTypeData:
		if err := t.dataHdr.Wrap(buf, 0); err != nil {
			atomic.AddUint64(&t.framesDropped, 1)
			return 0
		}
		t.handler.OnDataFrame(&t.dataHdr, buf, length, srcAddr)

	case protocol.HdrTypeSM:
		if err := t.smHdr.Wrap(buf, 0); err != nil {
			atomic.AddUint64(&t.framesDropped, 1)
			return 0
		}
		t.handler.OnStatusMessageFrame(&t.smHdr, buf, length, srcAddr)

	case protocol.HdrTypeNak:
		if err := t.nakHdr.Wrap(buf, 0); err != nil {
			atomic.AddUint64(&t.framesDropped, 1)
			return 0
		}
		t.handler.OnNakFrame(&t.nakHdr, buf, length, srcAddr)

	default:
		atomic.AddUint64(&t.framesDropped, 1)
		t.log(LogLevelDebug, "未知帧类型 %#x, 丢弃", t.header.HeaderType())
		return 0
	}

	return 1
}

// SendTo 发送数据到指定地址, 返回实际发送字节数
//
// 短发送不在这里判定; 调用方决定是否致命。
func (t *UdpTransport) SendTo(data []byte, addr *net.UDPAddr) (int, error) {
	if atomic.LoadUint32(&t.closed) == 1 {
		return 0, fmt.Errorf("端点已关闭")
	}

	n, err := t.conn.WriteToUDP(data, addr)
	if err != nil {
		return n, fmt.Errorf("发送失败 to %s: %w", addr, err)
	}

	atomic.AddUint64(&t.datagramsSent, 1)
	atomic.AddUint64(&t.bytesSent, uint64(n))
	return n, nil
}

// Close 关闭端点, 幂等
func (t *UdpTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		atomic.StoreUint32(&t.closed, 1)
		err = t.conn.Close()
		t.log(LogLevelInfo, "UDP 端点已关闭")
	})
	return err
}

// Stats 传输层计数快照
func (t *UdpTransport) Stats() (datagramsRecv, bytesRecv, datagramsSent, bytesSent, framesDropped uint64) {
	return atomic.LoadUint64(&t.datagramsRecv),
		atomic.LoadUint64(&t.bytesRecv),
		atomic.LoadUint64(&t.datagramsSent),
		atomic.LoadUint64(&t.bytesSent),
		atomic.LoadUint64(&t.framesDropped)
}

// =============================================================================
// 日志方法
// =============================================================================

func (t *UdpTransport) log(level int, format string, args ...interface{}) {
	if level > t.logLevel {
		return
	}
	prefix := map[int]string{0: "[ERROR]", 1: "[INFO]", 2: "[DEBUG]"}[level]
	fmt.Printf("%s %s [UDP] %s\n", prefix, time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
}
