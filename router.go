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
	"strings"
)

const (
	// NotFoundBody 未匹配到路由时的响应体
	NotFoundBody = "The entered path doesn't exist."
)

// Request 解析后的请求行
type Request struct {
	Method  string // Method 请求方法
	Path    string // Path 请求路径，原样保留
	Version string // Version 协议版本
	Capture string // Capture 前缀路由匹配后剩余的路径
}

// HandlerFunc 路由处理函数，只返回响应体
type HandlerFunc func(req *Request) string

// Matcher 路径匹配器
type Matcher interface {
	// Match 匹配成功时返回捕获的路径
	Match(path string) (string, bool)
}

// ExactPath 精确匹配
type ExactPath string

func (p ExactPath) Match(path string) (string, bool) {
	return "", path == string(p)
}

// PrefixPath 前缀匹配，捕获前缀之后的全部内容
type PrefixPath string

func (p PrefixPath) Match(path string) (string, bool) {
	if !strings.HasPrefix(path, string(p)) {
		return "", false
	}
	return path[len(p):], true
}

// Route 一条路由规则
type Route struct {
	Method  string
	Matcher Matcher
	Handler HandlerFunc
}

// Router 按注册顺序匹配路由，先匹配方法再匹配路径
// 注册完成之后只读，可以被多个连接并发使用
type Router struct {
	routes  []*Route
	factory *ResponseFactory
}

// NewRouter 构建一个空的路由器
func NewRouter(factory *ResponseFactory) *Router {
	if factory == nil {
		factory = defaultFactory
	}
	return &Router{
		routes:  make([]*Route, 0),
		factory: factory,
	}
}

// Handle 注册路由
func (r *Router) Handle(method string, matcher Matcher, handler HandlerFunc) *Router {
	if method == "" {
		panic(ErrEmptyRouteMethod)
	}
	if handler == nil {
		panic(ErrNilRouteHandler)
	}
	r.routes = append(r.routes, &Route{
		Method:  method,
		Matcher: matcher,
		Handler: handler,
	})
	return r
}

// GET 注册GET路由
func (r *Router) GET(matcher Matcher, handler HandlerFunc) *Router {
	return r.Handle(http.MethodGet, matcher, handler)
}

// GetRoutes 已经注册的路由
func (r *Router) GetRoutes() []*Route {
	return r.routes
}

// Route 根据请求方法和路径生成响应
func (r *Router) Route(method string, path string) *Response {
	return r.Dispatch(&Request{
		Method: method,
		Path:   path,
	})
}

// Dispatch 分发请求到第一个匹配的路由
func (r *Router) Dispatch(req *Request) *Response {
	for _, route := range r.routes {
		if route.Method != req.Method {
			continue
		}
		capture, ok := route.Matcher.Match(req.Path)
		if !ok {
			continue
		}
		matched := *req
		matched.Capture = capture
		return r.factory.NewTextResponse(route.Handler(&matched))
	}
	return r.factory.NewErrorResponse(http.StatusNotFound, "Not Found", NotFoundBody)
}

// NewDefaultRouter 注册内置路由
// GET /hello, GET /time, GET /echo/{text}
func NewDefaultRouter(factory *ResponseFactory, clock Clock) *Router {
	if clock == nil {
		clock = SystemClock{}
	}
	return NewRouter(factory).
		GET(ExactPath("/hello"), GreetingHandler).
		GET(ExactPath("/time"), NewClockHandler(clock)).
		GET(PrefixPath("/echo/"), EchoHandler)
}
