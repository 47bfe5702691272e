// =============================================================================
// 文件: internal/metrics/collectors.go
// 描述: Prometheus 指标收集器定义
// =============================================================================
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// =============================================================================
// 接收路径收集器
// =============================================================================

// ReceiverStats 接收路径统计数据接口
type ReceiverStats interface {
	GetDatagramsReceived() uint64
	GetBytesReceived() uint64
	GetBytesSent() uint64
	GetDataFrames() uint64
	GetHeartbeats() uint64
	GetDupeFrames() uint64
	GetDropCounts() map[string]uint64
	GetSMsSent() uint64
	GetNaksSent() uint64
	GetCommandsProcessed() uint64
	GetBuffersBound() uint64
	GetDestinationCount() int
	GetChannelCount() int
	GetSessionCount() int
}

// ReceiverCollector 接收路径指标收集器
type ReceiverCollector struct {
	statsProvider ReceiverStats

	datagramsRecvDesc *prometheus.Desc
	bytesRecvDesc     *prometheus.Desc
	bytesSentDesc     *prometheus.Desc
	dataFramesDesc    *prometheus.Desc
	heartbeatsDesc    *prometheus.Desc
	dupeFramesDesc    *prometheus.Desc
	framesDroppedDesc *prometheus.Desc
	smsSentDesc       *prometheus.Desc
	naksSentDesc      *prometheus.Desc
	commandsDesc      *prometheus.Desc
	buffersBoundDesc  *prometheus.Desc
	destinationsDesc  *prometheus.Desc
	channelsDesc      *prometheus.Desc
	sessionsDesc      *prometheus.Desc
}

// NewReceiverCollector 创建接收路径收集器
func NewReceiverCollector(provider ReceiverStats) *ReceiverCollector {
	namespace := "aeron"
	subsystem := "receiver"

	return &ReceiverCollector{
		statsProvider: provider,

		datagramsRecvDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "datagrams_received_total"),
			"Total datagrams received on bound endpoints",
			nil, nil,
		),
		bytesRecvDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "bytes_received_total"),
			"Total bytes received on bound endpoints",
			nil, nil,
		),
		bytesSentDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "bytes_sent_total"),
			"Total bytes sent on bound endpoints",
			nil, nil,
		),
		dataFramesDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "data_frames_total"),
			"Total data frames processed",
			nil, nil,
		),
		heartbeatsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "heartbeats_total"),
			"Total heartbeat frames observed",
			nil, nil,
		),
		dupeFramesDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "duplicate_frames_total"),
			"Total frames observed as likely duplicates",
			nil, nil,
		),
		framesDroppedDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "frames_dropped_total"),
			"Total frames dropped by reason",
			[]string{"reason"}, nil,
		),
		smsSentDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "status_messages_sent_total"),
			"Total status messages sent",
			nil, nil,
		),
		naksSentDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "naks_sent_total"),
			"Total NAK frames sent",
			nil, nil,
		),
		commandsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "commands_processed_total"),
			"Total conductor commands processed",
			nil, nil,
		),
		buffersBoundDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "term_buffers_bound_total"),
			"Total term buffers bound to sessions",
			nil, nil,
		),
		destinationsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "destinations"),
			"Number of active destinations",
			nil, nil,
		),
		channelsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "channels"),
			"Number of subscribed channels",
			nil, nil,
		),
		sessionsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "sessions"),
			"Number of active sessions",
			nil, nil,
		),
	}
}

// Describe 实现 prometheus.Collector
func (c *ReceiverCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.datagramsRecvDesc
	ch <- c.bytesRecvDesc
	ch <- c.bytesSentDesc
	ch <- c.dataFramesDesc
	ch <- c.heartbeatsDesc
	ch <- c.dupeFramesDesc
	ch <- c.framesDroppedDesc
	ch <- c.smsSentDesc
	ch <- c.naksSentDesc
	ch <- c.commandsDesc
	ch <- c.buffersBoundDesc
	ch <- c.destinationsDesc
	ch <- c.channelsDesc
	ch <- c.sessionsDesc
}

// Collect 实现 prometheus.Collector
func (c *ReceiverCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.statsProvider

	ch <- prometheus.MustNewConstMetric(c.datagramsRecvDesc, prometheus.CounterValue, float64(s.GetDatagramsReceived()))
	ch <- prometheus.MustNewConstMetric(c.bytesRecvDesc, prometheus.CounterValue, float64(s.GetBytesReceived()))
	ch <- prometheus.MustNewConstMetric(c.bytesSentDesc, prometheus.CounterValue, float64(s.GetBytesSent()))
	ch <- prometheus.MustNewConstMetric(c.dataFramesDesc, prometheus.CounterValue, float64(s.GetDataFrames()))
	ch <- prometheus.MustNewConstMetric(c.heartbeatsDesc, prometheus.CounterValue, float64(s.GetHeartbeats()))
	ch <- prometheus.MustNewConstMetric(c.dupeFramesDesc, prometheus.CounterValue, float64(s.GetDupeFrames()))

	for reason, count := range s.GetDropCounts() {
		ch <- prometheus.MustNewConstMetric(c.framesDroppedDesc, prometheus.CounterValue, float64(count), reason)
	}

	ch <- prometheus.MustNewConstMetric(c.smsSentDesc, prometheus.CounterValue, float64(s.GetSMsSent()))
	ch <- prometheus.MustNewConstMetric(c.naksSentDesc, prometheus.CounterValue, float64(s.GetNaksSent()))
	ch <- prometheus.MustNewConstMetric(c.commandsDesc, prometheus.CounterValue, float64(s.GetCommandsProcessed()))
	ch <- prometheus.MustNewConstMetric(c.buffersBoundDesc, prometheus.CounterValue, float64(s.GetBuffersBound()))
	ch <- prometheus.MustNewConstMetric(c.destinationsDesc, prometheus.GaugeValue, float64(s.GetDestinationCount()))
	ch <- prometheus.MustNewConstMetric(c.channelsDesc, prometheus.GaugeValue, float64(s.GetChannelCount()))
	ch <- prometheus.MustNewConstMetric(c.sessionsDesc, prometheus.GaugeValue, float64(s.GetSessionCount()))
}

// NewFrameLatencyHistogram 帧处理延迟直方图 (接收线程在 OnDataFrame 周围观测)
func NewFrameLatencyHistogram() prometheus.Histogram {
	return prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "aeron",
		Subsystem: "receiver",
		Name:      "frame_latency_seconds",
		Help:      "Data frame processing latency",
		Buckets:   []float64{.000001, .000005, .00001, .00005, .0001, .0005, .001, .005, .01},
	})
}
