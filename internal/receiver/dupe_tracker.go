// =============================================================================
// 文件: internal/receiver/dupe_tracker.go
// 描述: 重复帧观测 - 布隆过滤器统计疑似重复的数据帧
// =============================================================================
package receiver

import (
	"encoding/binary"

	"github.com/bits-and-blooms/bloom/v3"
)

const (
	dupeExpectedItems = 100000
	dupeFalsePositive = 0.0001

	// 每代插入量达到预期规模后轮换, 当前代与上一代共同作答
	dupeRotateAfter = dupeExpectedItems
)

// DupeTracker 重复帧观测器
//
// 只用于统计, 不参与重组判定: 重组本身按偏移重写, 天然幂等。
// 布隆过滤器有误报, 计数是"疑似重复", 不是精确值。
type DupeTracker struct {
	current  *bloom.BloomFilter
	previous *bloom.BloomFilter
	inserts  uint
}

// NewDupeTracker 创建观测器
func NewDupeTracker() *DupeTracker {
	return &DupeTracker{
		current:  bloom.NewWithEstimates(dupeExpectedItems, dupeFalsePositive),
		previous: bloom.NewWithEstimates(dupeExpectedItems, dupeFalsePositive),
	}
}

// Observe 记录一个数据帧, 返回是否疑似重复
func (d *DupeTracker) Observe(sessionID, termID uint64, termOffset uint32) bool {
	var key [20]byte
	binary.LittleEndian.PutUint64(key[0:8], sessionID)
	binary.LittleEndian.PutUint64(key[8:16], termID)
	binary.LittleEndian.PutUint32(key[16:20], termOffset)

	seen := d.current.Test(key[:]) || d.previous.Test(key[:])

	d.current.Add(key[:])
	d.inserts++
	if d.inserts >= dupeRotateAfter {
		d.previous = d.current
		d.current = bloom.NewWithEstimates(dupeExpectedItems, dupeFalsePositive)
		d.inserts = 0
	}

	return seen
}
