// =============================================================================
// 文件: internal/transport/udp_test.go
// 描述: UDP 传输端点测试 (回环)
// =============================================================================
package transport

import (
	"net"
	"testing"
	"time"

	"github.com/cube3power/Aeron/internal/protocol"
)

// captureHandler 记录分发结果
type captureHandler struct {
	dataFrames int
	smFrames   int
	nakFrames  int

	lastSessionID uint64
	lastChannelID uint64
	lastTermID    uint64
	lastSrc       *net.UDPAddr
	lastLength    int
}

func (c *captureHandler) OnDataFrame(h *protocol.DataHeaderFlyweight, buf []byte, length int, src *net.UDPAddr) {
	c.dataFrames++
	c.lastSessionID = h.SessionID()
	c.lastChannelID = h.ChannelID()
	c.lastTermID = h.TermID()
	c.lastSrc = src
	c.lastLength = length
}

func (c *captureHandler) OnStatusMessageFrame(h *protocol.StatusMessageFlyweight, buf []byte, length int, src *net.UDPAddr) {
	c.smFrames++
}

func (c *captureHandler) OnNakFrame(h *protocol.NakFlyweight, buf []byte, length int, src *net.UDPAddr) {
	c.nakFrames++
}

func newLoopbackTransport(t *testing.T, h FrameHandler) (*UdpTransport, *net.UDPConn) {
	t.Helper()

	bind := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0}
	tr, err := NewUdpTransport(h, bind, "error")
	if err != nil {
		t.Fatalf("创建端点失败: %v", err)
	}
	t.Cleanup(func() { tr.Close() })

	sender, err := net.DialUDP("udp", nil, tr.LocalAddr())
	if err != nil {
		t.Fatalf("创建发送端失败: %v", err)
	}
	t.Cleanup(func() { sender.Close() })

	return tr, sender
}

// pollUntil 轮询直到处理了 want 帧或超时
func pollUntil(t *testing.T, tr *UdpTransport, want int) int {
	t.Helper()

	got := 0
	deadline := time.Now().Add(2 * time.Second)
	for got < want && time.Now().Before(deadline) {
		n, err := tr.Poll()
		if err != nil {
			t.Fatalf("Poll 失败: %v", err)
		}
		got += n
	}
	return got
}

func buildDataFrame(sessionID, channelID, termID uint64, termOffset uint32, payload []byte) []byte {
	buf := make([]byte, protocol.DataHeaderLength+len(payload))

	var d protocol.DataHeaderFlyweight
	if err := d.Wrap(buf, 0); err != nil {
		panic(err)
	}
	d.SetVersion(protocol.CurrentVersion)
	d.SetFlags(protocol.Unfragmented)
	d.SetHeaderType(protocol.HdrTypeData)
	d.SetFrameLength(uint32(len(buf)))
	d.SetTermOffset(termOffset)
	d.SetSessionID(sessionID)
	d.SetChannelID(channelID)
	d.SetTermID(termID)
	copy(buf[protocol.DataHeaderLength:], payload)
	return buf
}

func TestTransportDispatchDataFrame(t *testing.T) {
	h := &captureHandler{}
	tr, sender := newLoopbackTransport(t, h)

	frame := buildDataFrame(42, 17, 7, 0, []byte("hello"))
	if _, err := sender.Write(frame); err != nil {
		t.Fatalf("发送失败: %v", err)
	}

	if got := pollUntil(t, tr, 1); got != 1 {
		t.Fatalf("处理帧数 = %d, want 1", got)
	}
	if h.dataFrames != 1 {
		t.Errorf("dataFrames = %d, want 1", h.dataFrames)
	}
	if h.lastSessionID != 42 || h.lastChannelID != 17 || h.lastTermID != 7 {
		t.Errorf("限定符不匹配: session=%d channel=%d term=%d",
			h.lastSessionID, h.lastChannelID, h.lastTermID)
	}
	if h.lastLength != len(frame) {
		t.Errorf("length = %d, want %d", h.lastLength, len(frame))
	}
	if h.lastSrc == nil {
		t.Error("未记录来源地址")
	}
}

func TestTransportDispatchByType(t *testing.T) {
	h := &captureHandler{}
	tr, sender := newLoopbackTransport(t, h)

	smBuf := make([]byte, protocol.SMHeaderLength)
	var sm protocol.StatusMessageFlyweight
	if err := sm.Wrap(smBuf, 0); err != nil {
		t.Fatal(err)
	}
	sm.SetHeaderType(protocol.HdrTypeSM)
	sm.SetFrameLength(protocol.SMHeaderLength)

	nakBuf := make([]byte, protocol.NakHeaderLength)
	var nak protocol.NakFlyweight
	if err := nak.Wrap(nakBuf, 0); err != nil {
		t.Fatal(err)
	}
	nak.SetHeaderType(protocol.HdrTypeNak)
	nak.SetFrameLength(protocol.NakHeaderLength)

	sender.Write(smBuf)
	sender.Write(nakBuf)

	if got := pollUntil(t, tr, 2); got != 2 {
		t.Fatalf("处理帧数 = %d, want 2", got)
	}
	if h.smFrames != 1 || h.nakFrames != 1 {
		t.Errorf("分发错误: sm=%d nak=%d", h.smFrames, h.nakFrames)
	}
}

func TestTransportDropsRunt(t *testing.T) {
	h := &captureHandler{}
	tr, sender := newLoopbackTransport(t, h)

	// 小于公共头部的数据报被静默丢弃
	sender.Write([]byte{0x01, 0x02, 0x03})
	// 类型未知的完整头部也被丢弃
	junk := make([]byte, protocol.BaseHeaderLength)
	junk[2] = 0x7F
	sender.Write(junk)

	// 两个数据报都应被读出但不产生帧
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		tr.Poll()
		_, _, _, _, dropped := tr.Stats()
		if dropped >= 2 {
			break
		}
	}

	_, _, _, _, dropped := tr.Stats()
	if dropped != 2 {
		t.Errorf("framesDropped = %d, want 2", dropped)
	}
	if h.dataFrames+h.smFrames+h.nakFrames != 0 {
		t.Error("坏帧不应分发")
	}
}

func TestTransportDropsTruncatedFrame(t *testing.T) {
	h := &captureHandler{}
	tr, sender := newLoopbackTransport(t, h)

	// frameLength 声称 1024 字节但数据报只有头部
	buf := make([]byte, protocol.DataHeaderLength)
	var d protocol.DataHeaderFlyweight
	if err := d.Wrap(buf, 0); err != nil {
		t.Fatal(err)
	}
	d.SetHeaderType(protocol.HdrTypeData)
	d.SetFrameLength(1024)
	sender.Write(buf)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		tr.Poll()
		if _, _, _, _, dropped := tr.Stats(); dropped >= 1 {
			break
		}
	}

	if h.dataFrames != 0 {
		t.Error("截断帧不应分发")
	}
}

func TestTransportSendTo(t *testing.T) {
	h := &captureHandler{}
	tr, _ := newLoopbackTransport(t, h)

	peer, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("创建对端失败: %v", err)
	}
	defer peer.Close()

	data := []byte("status message")
	n, err := tr.SendTo(data, peer.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("SendTo 失败: %v", err)
	}
	if n != len(data) {
		t.Errorf("发送字节数 = %d, want %d", n, len(data))
	}

	peer.SetReadDeadline(time.Now().Add(2 * time.Second))
	recv := make([]byte, 64)
	rn, _, err := peer.ReadFromUDP(recv)
	if err != nil {
		t.Fatalf("对端读取失败: %v", err)
	}
	if string(recv[:rn]) != string(data) {
		t.Errorf("收到 %q, want %q", recv[:rn], data)
	}
}

func TestTransportCloseIdempotent(t *testing.T) {
	h := &captureHandler{}
	tr, _ := newLoopbackTransport(t, h)

	if err := tr.Close(); err != nil {
		t.Errorf("首次 Close 失败: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Errorf("重复 Close 应无害: %v", err)
	}
	if _, err := tr.SendTo([]byte("x"), tr.LocalAddr()); err == nil {
		t.Error("关闭后 SendTo 应失败")
	}
}
