// =============================================================================
// 文件: internal/receiver/loss_handler.go
// 描述: 丢包检测 - 扫描 term 缓冲区空洞, 延迟触发 NAK
// =============================================================================
package receiver

import (
	"sort"
	"time"
)

// NakEmitter 丢包检测器触发重传请求的出口
//
// 绑定时只注入 (会话句柄, 发送通道) 的闭包, 不暴露整个接收器。
type NakEmitter func(termID uint64, termOffset uint32, length uint32)

// LossHandler 丢包检测契约
//
// 由接收线程轮询; 观察 term 缓冲区内已写入的区间, 找到连续水位之后的第一个
// 空洞, 超过延迟策略后通过 NakEmitter 请求重传。同一空洞允许重复 NAK。
type LossHandler interface {
	// SetNakEmitter 绑定 NAK 出口
	SetNakEmitter(emit NakEmitter)

	// OnFrame 通知 [termOffset, termOffset+length) 已写入
	OnFrame(termOffset uint32, length uint32)

	// Scan 扫描一次, 返回本次发出的 NAK 数
	Scan() int

	// HighestContiguous 当前最高连续偏移
	HighestContiguous() uint32
}

// recvRange 已接收的乱序区间 [start, end)
type recvRange struct {
	start uint32
	end   uint32
}

// GapScanner 基于区间合并的丢包检测器
//
// 连续水位之前的字节全部就绪; 之后的乱序区间按起点排序保存。
// 第一个空洞保持不变且超过 nakDelay 后发出 NAK, 之后每隔 nakDelay 重发。
type GapScanner struct {
	termID   uint64
	capacity uint32
	nakDelay time.Duration

	contiguous uint32
	ranges     []recvRange

	gapStart uint32
	gapSeen  time.Time

	emit NakEmitter

	// 测试注入的时钟
	now func() time.Time
}

// NewGapScanner 创建丢包检测器
func NewGapScanner(termID uint64, capacity int, nakDelay time.Duration) *GapScanner {
	return &GapScanner{
		termID:   termID,
		capacity: uint32(capacity),
		nakDelay: nakDelay,
		now:      time.Now,
	}
}

// SetNakEmitter 绑定 NAK 出口
func (g *GapScanner) SetNakEmitter(emit NakEmitter) {
	g.emit = emit
}

// HighestContiguous 当前最高连续偏移
func (g *GapScanner) HighestContiguous() uint32 {
	return g.contiguous
}

// OnFrame 记录 [termOffset, termOffset+length) 已写入
//
// 重复写入同一区间是幂等的, 连续水位只增不减。
func (g *GapScanner) OnFrame(termOffset uint32, length uint32) {
	if length == 0 {
		return
	}
	end := termOffset + length
	if end > g.capacity {
		end = g.capacity
	}

	if termOffset <= g.contiguous {
		if end > g.contiguous {
			g.contiguous = end
		}
		g.drainRanges()
		return
	}

	g.insertRange(termOffset, end)
}

// insertRange 插入并合并乱序区间
func (g *GapScanner) insertRange(start, end uint32) {
	idx := sort.Search(len(g.ranges), func(i int) bool {
		return g.ranges[i].start >= start
	})
	g.ranges = append(g.ranges, recvRange{})
	copy(g.ranges[idx+1:], g.ranges[idx:])
	g.ranges[idx] = recvRange{start: start, end: end}

	// 合并重叠或相邻区间
	merged := g.ranges[:1]
	for _, r := range g.ranges[1:] {
		last := &merged[len(merged)-1]
		if r.start <= last.end {
			if r.end > last.end {
				last.end = r.end
			}
		} else {
			merged = append(merged, r)
		}
	}
	g.ranges = merged
}

// drainRanges 连续水位推进后吸收已衔接的乱序区间
func (g *GapScanner) drainRanges() {
	for len(g.ranges) > 0 && g.ranges[0].start <= g.contiguous {
		if g.ranges[0].end > g.contiguous {
			g.contiguous = g.ranges[0].end
		}
		g.ranges = g.ranges[1:]
	}
}

// Scan 检查第一个空洞, 超时则发 NAK
func (g *GapScanner) Scan() int {
	if len(g.ranges) == 0 {
		// 无空洞, 复位观察状态
		g.gapSeen = time.Time{}
		return 0
	}

	start := g.contiguous
	length := g.ranges[0].start - start

	if g.gapSeen.IsZero() || g.gapStart != start {
		// 新空洞, 开始计时
		g.gapStart = start
		g.gapSeen = g.now()
		return 0
	}

	if g.now().Sub(g.gapSeen) < g.nakDelay {
		return 0
	}

	if g.emit != nil {
		g.emit(g.termID, start, length)
	}
	// 重新计时, 空洞仍在时隔 nakDelay 重发
	g.gapSeen = g.now()
	return 1
}
