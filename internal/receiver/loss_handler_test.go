// =============================================================================
// 文件: internal/receiver/loss_handler_test.go
// 描述: 丢包检测器测试
// =============================================================================
package receiver

import (
	"testing"
	"time"
)

type nakRecord struct {
	termID     uint64
	termOffset uint32
	length     uint32
}

func newTestScanner(delay time.Duration) (*GapScanner, *time.Time, *[]nakRecord) {
	now := time.Unix(1000, 0)
	scanner := NewGapScanner(7, 64*1024, delay)
	scanner.now = func() time.Time { return now }

	var naks []nakRecord
	scanner.SetNakEmitter(func(termID uint64, termOffset, length uint32) {
		naks = append(naks, nakRecord{termID, termOffset, length})
	})
	return scanner, &now, &naks
}

func TestGapScannerContiguousAdvance(t *testing.T) {
	scanner, _, _ := newTestScanner(time.Millisecond)

	scanner.OnFrame(0, 64)
	if scanner.HighestContiguous() != 64 {
		t.Errorf("水位 = %d, want 64", scanner.HighestContiguous())
	}
	scanner.OnFrame(64, 64)
	if scanner.HighestContiguous() != 128 {
		t.Errorf("水位 = %d, want 128", scanner.HighestContiguous())
	}

	// 重复帧不回退
	scanner.OnFrame(0, 64)
	if scanner.HighestContiguous() != 128 {
		t.Errorf("重复帧后水位回退: %d", scanner.HighestContiguous())
	}
}

func TestGapScannerOutOfOrderMerge(t *testing.T) {
	scanner, _, _ := newTestScanner(time.Millisecond)

	// 乱序到达: 128..192, 64..128, 最后 0..64 补齐
	scanner.OnFrame(128, 64)
	scanner.OnFrame(64, 64)
	if scanner.HighestContiguous() != 0 {
		t.Errorf("空洞未补时水位应为 0: %d", scanner.HighestContiguous())
	}

	scanner.OnFrame(0, 64)
	if scanner.HighestContiguous() != 192 {
		t.Errorf("补齐后水位 = %d, want 192", scanner.HighestContiguous())
	}
}

func TestGapScannerNakAfterDelay(t *testing.T) {
	scanner, now, naks := newTestScanner(10 * time.Millisecond)

	scanner.OnFrame(0, 64)
	scanner.OnFrame(192, 64)

	// 登记空洞
	if n := scanner.Scan(); n != 0 {
		t.Fatalf("登记扫描不应发 NAK: %d", n)
	}
	// 延迟未到
	*now = now.Add(5 * time.Millisecond)
	if n := scanner.Scan(); n != 0 {
		t.Fatalf("延迟未到不应发 NAK: %d", n)
	}
	// 延迟已到
	*now = now.Add(10 * time.Millisecond)
	if n := scanner.Scan(); n != 1 {
		t.Fatalf("应发 1 个 NAK: %d", n)
	}

	if len(*naks) != 1 {
		t.Fatalf("NAK 数 = %d, want 1", len(*naks))
	}
	got := (*naks)[0]
	if got.termID != 7 || got.termOffset != 64 || got.length != 128 {
		t.Errorf("NAK = %+v, want {7 64 128}", got)
	}
}

func TestGapScannerReemission(t *testing.T) {
	scanner, now, naks := newTestScanner(10 * time.Millisecond)

	scanner.OnFrame(0, 64)
	scanner.OnFrame(192, 64)

	scanner.Scan()
	*now = now.Add(15 * time.Millisecond)
	scanner.Scan()
	// 空洞仍在, 再等一个延迟周期后允许重发
	*now = now.Add(15 * time.Millisecond)
	scanner.Scan()

	if len(*naks) != 2 {
		t.Errorf("重发 NAK 数 = %d, want 2", len(*naks))
	}
}

func TestGapScannerGapFilled(t *testing.T) {
	scanner, now, naks := newTestScanner(10 * time.Millisecond)

	scanner.OnFrame(0, 64)
	scanner.OnFrame(192, 64)
	scanner.Scan()

	// 重传到达, 空洞补齐
	scanner.OnFrame(64, 128)
	*now = now.Add(20 * time.Millisecond)
	if n := scanner.Scan(); n != 0 {
		t.Errorf("空洞已补不应发 NAK: %d", n)
	}
	if len(*naks) != 0 {
		t.Errorf("不应有 NAK: %d", len(*naks))
	}
	if scanner.HighestContiguous() != 256 {
		t.Errorf("水位 = %d, want 256", scanner.HighestContiguous())
	}
}

func TestGapScannerNewGapRestartsTimer(t *testing.T) {
	scanner, now, naks := newTestScanner(10 * time.Millisecond)

	scanner.OnFrame(0, 64)
	scanner.OnFrame(192, 64)
	scanner.Scan()
	*now = now.Add(6 * time.Millisecond)

	// 第一个空洞被补掉, 出现更靠后的新空洞 (256..320 缺, 320..384 在)
	scanner.OnFrame(64, 192) // 水位推到 256
	scanner.OnFrame(320, 64)

	// 新空洞需要重新计时
	if n := scanner.Scan(); n != 0 {
		t.Fatalf("新空洞登记扫描不应发 NAK: %d", n)
	}
	*now = now.Add(6 * time.Millisecond)
	if n := scanner.Scan(); n != 0 {
		t.Fatalf("新空洞延迟未到不应发 NAK: %d", n)
	}
	*now = now.Add(6 * time.Millisecond)
	if n := scanner.Scan(); n != 1 {
		t.Fatalf("新空洞延迟到后应发 NAK: %d", n)
	}

	got := (*naks)[0]
	if got.termOffset != 256 || got.length != 64 {
		t.Errorf("NAK 区间 = (%d, %d), want (256, 64)", got.termOffset, got.length)
	}
}

func TestGapScannerNoGapsNoNak(t *testing.T) {
	scanner, now, naks := newTestScanner(time.Millisecond)

	scanner.OnFrame(0, 64)
	scanner.OnFrame(64, 64)
	scanner.Scan()
	*now = now.Add(10 * time.Millisecond)
	scanner.Scan()

	if len(*naks) != 0 {
		t.Errorf("连续流不应发 NAK: %d", len(*naks))
	}
}
