// Copyright (c) 2023 wetrycode
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package tinyhttpd

// StatusType 当前服务的状态
type StatusType uint

const (
	// ON_START 运行状态
	ON_START StatusType = iota
	// ON_STOP 停止状态
	ON_STOP
)

// GetTypeName 获取服务状态的字符串形式
func (p StatusType) GetTypeName() string {
	switch p {
	case ON_START:
		return "running"
	case ON_STOP:
		return "stop"
	}
	return "unknown"
}

// ConnState 单个连接的生命周期状态
// Accepted -> Reading -> Handled -> Closed
// Reading 和 Handled 阶段出现任何异常都会进入 Failed
type ConnState uint

const (
	// StateAccepted 连接已经建立
	StateAccepted ConnState = iota
	// StateReading 正在读取请求
	StateReading
	// StateHandled 请求已经处理完成，准备写回响应
	StateHandled
	// StateClosed 响应已写回并关闭连接
	StateClosed
	// StateFailed 连接处理失败
	StateFailed
)

// GetTypeName 获取连接状态的字符串形式
func (s ConnState) GetTypeName() string {
	switch s {
	case StateAccepted:
		return "accepted"
	case StateReading:
		return "reading"
	case StateHandled:
		return "handled"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

const (
	// CRLF 回车换行
	CRLF = "\r\n"
	// HTTPVersionPrefix 请求行中版本号的固定前缀
	HTTPVersionPrefix = "HTTP/"
	// DefaultBufferSize 单次读取请求的缓冲区大小
	DefaultBufferSize = 1024
)
