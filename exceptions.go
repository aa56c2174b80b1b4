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
)

var (
	ErrInvalidRequestLine  error = errors.New("invalid http request line")
	ErrInvalidHTTPVersion  error = errors.New("invalid http version token")
	ErrServerClosed        error = errors.New("tinyhttpd: server closed")
	ErrBind                error = errors.New("bind listener error")
	ErrInvalidBufferSize   error = errors.New("read buffer size must be greater than zero")
	ErrEmptyRouteMethod    error = errors.New("register a route with empty method error")
	ErrNilRouteHandler     error = errors.New("register a route with nil handler error")
)

// ConnError 单个连接上的读写错误
type ConnError struct {
	ConnID string
	Op     string
	Err    error
}

func (e *ConnError) Error() string {
	return fmt.Sprintf("connection %s %s error: %s", e.ConnID, e.Op, e.Err.Error())
}

func (e *ConnError) Unwrap() error {
	return e.Err
}
