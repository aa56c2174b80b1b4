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
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var rdbLog *logrus.Entry = GetLogger("rdb")

// NewRdbConfig redis连接配置
func NewRdbConfig(addr string) *redis.Options {
	return &redis.Options{
		Addr:         addr,
		PoolSize:     16,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second, //连接建立超时时间
		ReadTimeout:  3 * time.Second, //读超时
		WriteTimeout: 3 * time.Second, //写超时
		PoolTimeout:  4 * time.Second,

		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
	}
}

// NewRdbClient 创建redis客户端并检查连通性
func NewRdbClient(addr string) (*redis.Client, error) {
	rdb := redis.NewClient(NewRdbConfig(addr))
	err := rdb.Ping(context.TODO()).Err()
	if err != nil {
		rdb.Close()
		return nil, err
	}
	return rdb, nil
}

// RdbStatistic 基于redis hash的数据统计，多个进程可以共享同一组指标
type RdbStatistic struct {
	rdb redis.Cmdable
	key string
}

// NewRdbStatistic 构建redis统计组件
func NewRdbStatistic(rdb redis.Cmdable, key string) *RdbStatistic {
	return &RdbStatistic{
		rdb: rdb,
		key: key,
	}
}

// Incr 指标值加一
func (s *RdbStatistic) Incr(metric string) {
	err := s.rdb.HIncrBy(context.TODO(), s.key, metric, 1).Err()
	if err != nil {
		rdbLog.Errorf("incr %s metric error %s", metric, err.Error())
	}
}

// Get 获取某个指标的数值
func (s *RdbStatistic) Get(metric string) uint64 {
	val, err := s.rdb.HGet(context.TODO(), s.key, metric).Uint64()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			rdbLog.Errorf("get %s metric error %s", metric, err.Error())
		}
		return 0
	}
	return val
}

// GetAllStats 获取全部指标
func (s *RdbStatistic) GetAllStats() map[string]uint64 {
	result := make(map[string]uint64)
	values, err := s.rdb.HGetAll(context.TODO(), s.key).Result()
	if err != nil {
		rdbLog.Errorf("get all metrics error %s", err.Error())
		return result
	}
	for k, v := range values {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			continue
		}
		result[k] = n
	}
	return result
}
