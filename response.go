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
	"net/http"
	"strconv"
)

const (
	HeaderContentType   = "Content-Type"
	HeaderContentLength = "Content-Length"
	HeaderConnection    = "Connection"
	HeaderDate          = "Date"
	HeaderServer        = "Server"

	// HTTPDateFormat RFC 1123 格式的HTTP-date，时区固定为GMT
	HTTPDateFormat = http.TimeFormat
)

// Header 响应头，key区分大小写
type Header map[string]string

// Get 获取响应头
func (h Header) Get(key string) (string, bool) {
	v, ok := h[key]
	return v, ok
}

// Set 设置响应头
func (h Header) Set(key string, value string) {
	h[key] = value
}

// Clone 复制一份响应头
func (h Header) Clone() Header {
	c := make(Header, len(h))
	for k, v := range h {
		c[k] = v
	}
	return c
}

// Response 一次请求的响应数据
// 每个请求单独构建，只被格式化一次，不在请求之间共享
type Response struct {
	StatusCode int    // StatusCode 响应状态码
	StatusText string // StatusText 状态码对应的描述
	Headers    Header // Headers 响应头
	Body       string // Body 响应体
}

// FactoryOption 响应构造器的可选参数
type FactoryOption func(f *ResponseFactory)

// ResponseFactory 响应构造器
// 所有响应都必须通过它构建，保证Content-Length和Date总是存在
type ResponseFactory struct {
	clock      Clock
	serverName string
}

// FactoryWithClock 设置时间源
func FactoryWithClock(clock Clock) FactoryOption {
	return func(f *ResponseFactory) {
		f.clock = clock
	}
}

// FactoryWithServerName 非空时在响应中附加Server头
func FactoryWithServerName(name string) FactoryOption {
	return func(f *ResponseFactory) {
		f.serverName = name
	}
}

// NewResponseFactory 构建响应构造器，默认使用系统时钟
func NewResponseFactory(opts ...FactoryOption) *ResponseFactory {
	f := &ResponseFactory{
		clock: SystemClock{},
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// GetHTTPDate 当前UTC时间的HTTP-date字符串
func (f *ResponseFactory) GetHTTPDate() string {
	return f.clock.Now().UTC().Format(HTTPDateFormat)
}

// NewTextResponse 构建200 OK的纯文本响应
func (f *ResponseFactory) NewTextResponse(body string) *Response {
	return f.build(http.StatusOK, "OK", body)
}

// NewErrorResponse 构建指定状态码的错误响应
func (f *ResponseFactory) NewErrorResponse(statusCode int, statusText string, body string) *Response {
	return f.build(statusCode, statusText, body)
}

func (f *ResponseFactory) build(statusCode int, statusText string, body string) *Response {
	headers := Header{
		HeaderContentType:   "text/plain",
		HeaderContentLength: strconv.Itoa(len(body)),
		HeaderConnection:    "close",
		HeaderDate:          f.GetHTTPDate(),
	}
	if f.serverName != "" {
		headers[HeaderServer] = f.serverName
	}
	return &Response{
		StatusCode: statusCode,
		StatusText: statusText,
		Headers:    headers,
		Body:       body,
	}
}

var defaultFactory = NewResponseFactory()

// CreateTextResponse 使用默认构造器构建200 OK响应
func CreateTextResponse(body string) *Response {
	return defaultFactory.NewTextResponse(body)
}

// CreateErrorResponse 使用默认构造器构建错误响应
func CreateErrorResponse(statusCode int, statusText string, body string) *Response {
	return defaultFactory.NewErrorResponse(statusCode, statusText, body)
}
