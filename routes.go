// Copyright (c) 2023 wetrycode
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package tinyhttpd

const (
	// GreetingBody /hello 的响应体
	GreetingBody = "Hello World!"
	// ClockLayout /time 的时间格式 DD/MM/YYYY HH:MM:SS
	ClockLayout = "02/01/2006 15:04:05"
)

func GreetingHandler(_ *Request) string {
	return GreetingBody
}

// NewClockHandler 返回本地时间的处理函数
func NewClockHandler(clock Clock) HandlerFunc {
	return func(_ *Request) string {
		return clock.Now().Local().Format(ClockLayout)
	}
}

// EchoHandler 原样返回路径中捕获的内容
func EchoHandler(req *Request) string {
	return req.Capture
}
