package metric

import (
	"context"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/wetrycode/tinyhttpd"
)

var metricLog = tinyhttpd.GetLogger("metric")

// MetricCollector 数据指标采集器
// 定时将统计数据写入influxdb
type MetricCollector struct {
	client        influxdb2.Client
	influxdbWrite api.WriteAPIBlocking
	statistic     tinyhttpd.StatisticInterface
	measurement   string
	interval      time.Duration
}

// CollectorOption 采集器的可选参数
type CollectorOption func(c *MetricCollector)

// CollectorWithMeasurement 写入的measurement名称
func CollectorWithMeasurement(measurement string) CollectorOption {
	return func(c *MetricCollector) {
		if measurement != "" {
			c.measurement = measurement
		}
	}
}

// CollectorWithInterval 采集间隔
func CollectorWithInterval(interval time.Duration) CollectorOption {
	return func(c *MetricCollector) {
		if interval > 0 {
			c.interval = interval
		}
	}
}

// NewInfluxdb 构建influxdb 客户端
func NewInfluxdb(serverURL string, token string, bucket string, org string) (influxdb2.Client, api.WriteAPIBlocking) {
	client := influxdb2.NewClientWithOptions(serverURL, token, influxdb2.DefaultOptions().SetUseGZip(true).SetMaxRetries(3))
	return client, client.WriteAPIBlocking(org, bucket)
}

// NewMetricCollector 构建采集器
func NewMetricCollector(serverURL string, token string, bucket string, org string, statistic tinyhttpd.StatisticInterface, opts ...CollectorOption) *MetricCollector {
	client, write := NewInfluxdb(serverURL, token, bucket, org)
	c := &MetricCollector{
		client:        client,
		influxdbWrite: write,
		statistic:     statistic,
		measurement:   "tinyhttpd",
		interval:      10 * time.Second,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Collect 采集一次全部指标
func (c *MetricCollector) Collect(ctx context.Context) error {
	defer func() {
		if p := recover(); p != nil {
			metricLog.Errorf("采集数据错误:%s", p)
		}
	}()
	stats := c.statistic.GetAllStats()
	if len(stats) == 0 {
		return nil
	}
	p := influxdb2.NewPointWithMeasurement(c.measurement).
		AddTag("process_id", tinyhttpd.ProcessId).
		SetTime(time.Now())
	for key, value := range stats {
		metricLog.Debugf("采集到数据指标:%s:%d", key, value)
		p.AddField(key, value)
	}
	return c.influxdbWrite.WritePoint(ctx, p)
}

// Start 启动搜集器，ctx结束时退出
func (c *MetricCollector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Collect(ctx); err != nil {
				metricLog.Errorf("写入数据指标失败:%s", err.Error())
			}
		}
	}
}

// Close 关闭influxdb客户端
func (c *MetricCollector) Close() {
	c.client.Close()
}
