// =============================================================================
// 文件: internal/receiver/receiver_test.go
// 描述: 接收线程命令循环集成测试 (真实 UDP 端点)
// =============================================================================
package receiver

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/cube3power/Aeron/internal/concurrent"
	"github.com/cube3power/Aeron/internal/protocol"
)

// freeLoopbackDestination 申请一个空闲端口的 destination URI
func freeLoopbackDestination(t *testing.T) string {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("申请端口失败: %v", err)
	}
	port := conn.LocalAddr().(*net.UDPAddr).Port
	conn.Close()
	return fmt.Sprintf("udp://127.0.0.1:%d", port)
}

func newTestReceiver(t *testing.T) (*Receiver, *concurrent.RingBuffer, *EventQueue, *stubRequester) {
	t.Helper()
	rb, err := concurrent.NewRingBuffer(64 * 1024)
	if err != nil {
		t.Fatalf("创建环形缓冲区失败: %v", err)
	}
	q := NewEventQueue(16)
	requester := &stubRequester{}
	r := NewReceiver(rb, q, requester, Options{InitialWindow: 1000, LogLevel: "error"})
	t.Cleanup(r.closeAll)
	return r, rb, q, requester
}

func writeSubscriberCommand(t *testing.T, rb *concurrent.RingBuffer, msgType uint32, dest string, ids []uint64) {
	t.Helper()
	msg := &protocol.SubscriberMessage{Destination: dest, ChannelIDs: ids}
	if !rb.Write(msgType, msg.Encode()) {
		t.Fatal("命令写入失败")
	}
}

func TestReceiverAddRemoveSubscriber(t *testing.T) {
	r, rb, _, _ := newTestReceiver(t)
	dest := freeLoopbackDestination(t)

	writeSubscriberCommand(t, rb, protocol.MsgAddSubscriber, dest, []uint64{17, 18})
	if n := r.ProcessCommands(); n != 1 {
		t.Fatalf("处理命令数 = %d, want 1", n)
	}

	h := r.Handler(dest)
	if h == nil {
		t.Fatal("destination 处理器未创建")
	}
	if h.ChannelCount() != 2 {
		t.Errorf("ChannelCount = %d, want 2", h.ChannelCount())
	}
	if r.DestinationCount() != 1 {
		t.Errorf("DestinationCount = %d, want 1", r.DestinationCount())
	}

	// 全部通道移除后端点释放
	writeSubscriberCommand(t, rb, protocol.MsgRemoveSubscriber, dest, []uint64{17, 18})
	r.ProcessCommands()
	if r.DestinationCount() != 0 {
		t.Errorf("移除后 DestinationCount = %d, want 0", r.DestinationCount())
	}
}

func TestReceiverEndToEnd(t *testing.T) {
	r, rb, q, requester := newTestReceiver(t)
	destURI := freeLoopbackDestination(t)

	// 订阅 channel 17
	writeSubscriberCommand(t, rb, protocol.MsgAddSubscriber, destURI, []uint64{17})
	r.ProcessCommands()

	h := r.Handler(destURI)
	if h == nil {
		t.Fatal("处理器未创建")
	}

	// 向端点发送首个数据帧
	sender, err := net.DialUDP("udp", nil, h.Destination().LocalData())
	if err != nil {
		t.Fatalf("创建发送端失败: %v", err)
	}
	defer sender.Close()

	frame := buildDataFrame(42, 17, 7, 0, protocol.Unfragmented, nil)
	if _, err := sender.Write(frame); err != nil {
		t.Fatalf("发送失败: %v", err)
	}

	// 轮询直到会话创建并申请缓冲区
	deadline := time.Now().Add(2 * time.Second)
	for len(requester.requests) == 0 && time.Now().Before(deadline) {
		r.DoWork()
	}
	if len(requester.requests) != 1 {
		t.Fatalf("CreateTermBuffer 调用次数 = %d, want 1", len(requester.requests))
	}

	// conductor 送回缓冲区: 事件入队 + 环形缓冲区唤醒
	termBuf := make([]byte, 64*1024)
	event := &NewReceiveBufferEvent{
		Destination: h.Destination().CanonicalForm(),
		SessionID:   42,
		ChannelID:   17,
		TermID:      7,
		Buffer:      termBuf,
		LossHandler: NewGapScanner(7, len(termBuf), 10*time.Millisecond),
	}
	if !q.Offer(event) {
		t.Fatal("事件入队失败")
	}
	notify := &protocol.QualifiedMessage{
		Destination: event.Destination, SessionID: 42, ChannelID: 17, TermID: 7,
	}
	if !rb.Write(protocol.MsgNewReceiveBufferNotification, notify.Encode()) {
		t.Fatal("通知写入失败")
	}

	// 初始 SM 会发往 sender 的地址
	sender.SetReadDeadline(time.Now().Add(2 * time.Second))
	r.ProcessCommands()

	smBuf := make([]byte, 128)
	n, err := sender.Read(smBuf)
	if err != nil {
		t.Fatalf("读取初始 SM 失败: %v", err)
	}
	var sm protocol.StatusMessageFlyweight
	if err := sm.Wrap(smBuf[:n], 0); err != nil {
		t.Fatalf("SM 解码失败: %v", err)
	}
	if sm.HeaderType() != protocol.HdrTypeSM || sm.SessionID() != 42 {
		t.Errorf("初始 SM 不正确: type=%#x session=%d", sm.HeaderType(), sm.SessionID())
	}
	if r.BuffersBound() != 1 {
		t.Errorf("BuffersBound = %d, want 1", r.BuffersBound())
	}

	// 发送负载帧并确认重组进缓冲区
	payload := buildDataFrame(42, 17, 7, 64, protocol.Unfragmented, []byte("hello"))
	if _, err := sender.Write(payload); err != nil {
		t.Fatalf("发送失败: %v", err)
	}
	deadline = time.Now().Add(2 * time.Second)
	for h.Stats().DataFrames < 2 && time.Now().Before(deadline) {
		r.DoWork()
	}
	if string(termBuf[64:69]) != "hello" {
		t.Errorf("term 缓冲区内容 = %q, want hello", termBuf[64:69])
	}

	// 端点计数透传到汇总统计
	agg := r.AggregateStats()
	if agg.DatagramsReceived < 2 {
		t.Errorf("DatagramsReceived = %d, want >= 2", agg.DatagramsReceived)
	}
	if agg.BytesReceived == 0 {
		t.Error("BytesReceived 应大于 0")
	}
	if agg.BytesSent == 0 {
		t.Error("BytesSent 应大于 0 (初始 SM 已发出)")
	}
}

func TestReceiverRemoveUnknownDestination(t *testing.T) {
	r, rb, _, _ := newTestReceiver(t)

	// 未注册 destination 的移除命令只记录错误, 不影响循环
	writeSubscriberCommand(t, rb, protocol.MsgRemoveSubscriber, "udp://127.0.0.1:39999", []uint64{1})
	if n := r.ProcessCommands(); n != 1 {
		t.Errorf("命令应被消费: %d", n)
	}
	if r.DestinationCount() != 0 {
		t.Error("注册表应保持为空")
	}
}
