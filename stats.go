// MIT License

// Copyright (c) 2023 wetrycode

// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:

// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.

// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package tinyhttpd

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// ConnectionStats 接收的连接总数
	ConnectionStats string = "connections"
	// ConnFailedStats 处理过程中出现异常的连接数
	ConnFailedStats string = "conn_failed"
	// ReadErrorStats 读取请求失败数
	ReadErrorStats string = "read_errors"
	// WriteErrorStats 写回响应失败数
	WriteErrorStats string = "write_errors"
	// AcceptErrorStats accept失败数
	AcceptErrorStats string = "accept_errors"
)

// StatusCodeStats 状态码对应的统计指标名
func StatusCodeStats(code int) string {
	return strconv.Itoa(code)
}

type RuntimeStatus struct {
	mu      sync.RWMutex
	StartAt int64
	StopAt  int64
	// StatusOn 当前服务的状态
	StatusOn StatusType
}

func NewRuntimeStatus() *RuntimeStatus {
	return &RuntimeStatus{
		StartAt:  0,
		StopAt:   0,
		StatusOn: ON_STOP,
	}
}

// SetStatus 设置服务状态
func (r *RuntimeStatus) SetStatus(status StatusType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.StatusOn = status
}

// GetStatusOn 获取服务的状态
func (r *RuntimeStatus) GetStatusOn() StatusType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.StatusOn
}

func (r *RuntimeStatus) SetStartAt(startAt int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.StartAt = startAt
}

// GetStartAt 获取服务启动的毫秒时间戳
func (r *RuntimeStatus) GetStartAt() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.StartAt
}

func (r *RuntimeStatus) SetStopAt(stopAt int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.StopAt = stopAt
}

// GetStopAt 服务停止的毫秒时间戳
func (r *RuntimeStatus) GetStopAt() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.StopAt
}

// GetDuration 服务运行时长，单位秒，保留两位小数
func (r *RuntimeStatus) GetDuration() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.StartAt == 0 {
		return 0
	}
	end := time.Now().UnixMilli()
	if r.StatusOn == ON_STOP && r.StopAt != 0 {
		end = r.StopAt
	}
	return decimal.New(end-r.StartAt, -3).Round(2).InexactFloat64()
}

// StatisticInterface 数据统计组件接口
type StatisticInterface interface {
	GetAllStats() map[string]uint64
	Incr(metric string)
	Get(metric string) uint64
}

// DefaultStatistic 进程内的数据统计
type DefaultStatistic struct {
	metrics sync.Map
}

// NewDefaultStatistic 默认统计数据组件构造函数
func NewDefaultStatistic() *DefaultStatistic {
	return &DefaultStatistic{}
}

// Incr 指标值加一
func (s *DefaultStatistic) Incr(metric string) {
	v, _ := s.metrics.LoadOrStore(metric, new(uint64))
	atomic.AddUint64(v.(*uint64), 1)
}

// Get 获取某个指标的数值
func (s *DefaultStatistic) Get(metric string) uint64 {
	v, ok := s.metrics.Load(metric)
	if !ok {
		return 0
	}
	return atomic.LoadUint64(v.(*uint64))
}

// GetAllStats 所有出现过的指标
func (s *DefaultStatistic) GetAllStats() map[string]uint64 {
	result := make(map[string]uint64)
	s.metrics.Range(func(key any, value any) bool {
		result[key.(string)] = atomic.LoadUint64(value.(*uint64))
		return true
	})
	return result
}
