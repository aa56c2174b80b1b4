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
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const (
	InvalidRequestLineBody = "Invalid HTTP request line format. Expected: METHOD PATH HTTP/VERSION."
	InvalidHTTPVersionBody = "The request is not a valid \"HTTP\" request."
)

// HandlerOption RequestHandler的可选参数
type HandlerOption func(h *RequestHandler)

// RequestHandler 解析请求行，交给路由器处理并序列化响应
type RequestHandler struct {
	router    *Router
	factory   *ResponseFactory
	formatter *Formatter
}

// HandlerWithFactory 设置构建错误响应的构造器
func HandlerWithFactory(factory *ResponseFactory) HandlerOption {
	return func(h *RequestHandler) {
		h.factory = factory
	}
}

// HandlerWithFormatter 设置响应序列化器
func HandlerWithFormatter(formatter *Formatter) HandlerOption {
	return func(h *RequestHandler) {
		h.formatter = formatter
	}
}

// NewRequestHandler 构建请求处理器
func NewRequestHandler(router *Router, opts ...HandlerOption) *RequestHandler {
	h := &RequestHandler{
		router:    router,
		factory:   router.factory,
		formatter: defaultFormatter,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// NewDefaultRequestHandler 使用系统时钟和内置路由构建请求处理器
func NewDefaultRequestHandler() *RequestHandler {
	factory := NewResponseFactory()
	return NewRequestHandler(NewDefaultRouter(factory, SystemClock{}))
}

// ParseRequestLine 解析原始请求的第一行
// 只接受 METHOD PATH HTTP/VERSION 三段格式
func ParseRequestLine(raw string) (*Request, error) {
	line := raw
	if i := strings.IndexByte(raw, '\n'); i >= 0 {
		line = raw[:i]
	}
	tokens := strings.Fields(line)
	if len(tokens) != 3 {
		return nil, fmt.Errorf("%w: got %d tokens", ErrInvalidRequestLine, len(tokens))
	}
	if !strings.HasPrefix(tokens[2], HTTPVersionPrefix) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidHTTPVersion, tokens[2])
	}
	return &Request{
		Method:  tokens[0],
		Path:    tokens[1],
		Version: tokens[2],
	}, nil
}

// Handle 处理原始请求并返回结构化的响应
// 协议层错误都会转换为400响应
func (h *RequestHandler) Handle(raw string) *Response {
	req, err := ParseRequestLine(raw)
	if err != nil {
		if errors.Is(err, ErrInvalidHTTPVersion) {
			return h.factory.NewErrorResponse(http.StatusBadRequest, "Bad Request", InvalidHTTPVersionBody)
		}
		return h.factory.NewErrorResponse(http.StatusBadRequest, "Bad Request", InvalidRequestLineBody)
	}
	return h.router.Dispatch(req)
}

// Format 序列化响应
func (h *RequestHandler) Format(response *Response) string {
	return h.formatter.Format(response)
}

// HandleRequest 处理原始请求并返回可以直接写回连接的报文
func (h *RequestHandler) HandleRequest(raw string) string {
	return h.Format(h.Handle(raw))
}
