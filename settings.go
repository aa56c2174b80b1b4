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
	"os"
	"path"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type Settings interface {
	// GetValue 获取指定的参数值
	GetValue(key string) (interface{}, error)
}

type Configuration struct {
	*viper.Viper
}

// ServerSettings 连接服务的配置项，对应配置文件中的server节点
type ServerSettings struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	BufferSize      int           `mapstructure:"buffer_size"`
	MaxConnections  int           `mapstructure:"max_connections"`
	AcceptRate      int           `mapstructure:"accept_rate"`
	Name            string        `mapstructure:"name"`
	StrictFraming   bool          `mapstructure:"strict_framing"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AdminSettings 管理接口配置
type AdminSettings struct {
	Enable bool   `mapstructure:"enable"`
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
}

// GRPCSettings 健康检查服务配置
type GRPCSettings struct {
	Enable bool   `mapstructure:"enable"`
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
}

// InfluxdbSettings 指标上报配置，url为空时不启用
type InfluxdbSettings struct {
	URL         string        `mapstructure:"url"`
	Token       string        `mapstructure:"token"`
	Org         string        `mapstructure:"org"`
	Bucket      string        `mapstructure:"bucket"`
	Measurement string        `mapstructure:"measurement"`
	Interval    time.Duration `mapstructure:"interval"`
}

var onceConfig sync.Once
var Config *Configuration = nil

// NewConfiguration 构建带默认值的配置对象
func NewConfiguration() *Configuration {
	c := &Configuration{
		viper.New(),
	}
	c.SetDefault("server.host", "127.0.0.1")
	c.SetDefault("server.port", 4221)
	c.SetDefault("server.buffer_size", DefaultBufferSize)
	c.SetDefault("server.max_connections", 0)
	c.SetDefault("server.accept_rate", 0)
	c.SetDefault("server.name", "")
	c.SetDefault("server.strict_framing", false)
	c.SetDefault("server.shutdown_timeout", "5s")
	c.SetDefault("admin.enable", false)
	c.SetDefault("admin.host", "127.0.0.1")
	c.SetDefault("admin.port", 12138)
	c.SetDefault("grpc.enable", false)
	c.SetDefault("grpc.host", "127.0.0.1")
	c.SetDefault("grpc.port", 12139)
	c.SetDefault("metric.influxdb.measurement", "tinyhttpd")
	c.SetDefault("metric.influxdb.interval", "10s")
	c.SetDefault("stats.redis.key", "tinyhttpd:v1:stats")
	c.SetDefault("log.level", "info")
	return c
}

func newTinyHTTPConfig() {
	onceConfig.Do(func() {
		Config = NewConfiguration()
	})
}

func (c *Configuration) GetValue(key string) (interface{}, error) {
	value := c.Get(key)
	return value, nil
}

func (c *Configuration) load(dir string) bool {
	c.AddConfigPath(dir)
	c.SetConfigName("settings")
	c.SetConfigType("yaml")
	readErr := c.ReadInConfig()
	return readErr == nil
}

// unmarshalKey 将key下的所有叶子节点合并默认值后解码到rawVal
func (c *Configuration) unmarshalKey(key string, rawVal interface{}) error {
	prefix := key + "."
	input := map[string]interface{}{}
	for _, k := range c.AllKeys() {
		if strings.HasPrefix(k, prefix) {
			input[strings.TrimPrefix(k, prefix)] = c.Get(k)
		}
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		Result:           rawVal,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

// GetServerSettings 解析server节点
func (c *Configuration) GetServerSettings() (*ServerSettings, error) {
	s := &ServerSettings{}
	if err := c.unmarshalKey("server", s); err != nil {
		return nil, err
	}
	if s.BufferSize <= 0 {
		return nil, ErrInvalidBufferSize
	}
	return s, nil
}

// GetAdminSettings 解析admin节点
func (c *Configuration) GetAdminSettings() (*AdminSettings, error) {
	s := &AdminSettings{}
	err := c.unmarshalKey("admin", s)
	return s, err
}

// GetGRPCSettings 解析grpc节点
func (c *Configuration) GetGRPCSettings() (*GRPCSettings, error) {
	s := &GRPCSettings{}
	err := c.unmarshalKey("grpc", s)
	return s, err
}

// GetInfluxdbSettings 解析metric.influxdb节点
func (c *Configuration) GetInfluxdbSettings() (*InfluxdbSettings, error) {
	s := &InfluxdbSettings{}
	err := c.unmarshalKey("metric.influxdb", s)
	return s, err
}

func initSettings() {
	newTinyHTTPConfig()
	wd, _ := os.Getwd()
	var abPath string

	_, filename, _, ok := runtime.Caller(0)
	if ok {
		abPath = path.Dir(filename)

	}
	Config.load(wd)
	Config.load(abPath)
}
