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
	"bytes"
	"sort"
	"strconv"
	"sync"
)

// responseTrailer 响应体之后追加的空行
const responseTrailer = CRLF + CRLF + CRLF

// priorityHeaders 优先输出的响应头，按顺序输出
var priorityHeaders = []string{
	HeaderContentType,
	HeaderContentLength,
	HeaderConnection,
	HeaderDate,
	HeaderServer,
}

var isPriorityHeader = func() map[string]bool {
	m := make(map[string]bool, len(priorityHeaders))
	for _, h := range priorityHeaders {
		m[h] = true
	}
	return m
}()

// bufferPool 格式化响应使用的buffer池
var bufferPool *sync.Pool = &sync.Pool{
	New: func() interface{} {
		return new(bytes.Buffer)
	},
}

// Formatter 将Response序列化为HTTP/1.1报文
type Formatter struct {
	// OmitTrailer 为true时响应体之后不再追加空行
	OmitTrailer bool
}

var defaultFormatter = &Formatter{}

// FormatResponse 使用默认的Formatter序列化响应
func FormatResponse(response *Response) string {
	return defaultFormatter.Format(response)
}

// Format 序列化响应
// 优先响应头按固定顺序输出，其余响应头按名称排序后输出
func (f *Formatter) Format(response *Response) string {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufferPool.Put(buf)

	buf.WriteString("HTTP/1.1 ")
	buf.WriteString(strconv.Itoa(response.StatusCode))
	buf.WriteByte(' ')
	buf.WriteString(response.StatusText)
	buf.WriteString(CRLF)

	for _, name := range priorityHeaders {
		if value, ok := response.Headers[name]; ok {
			writeHeader(buf, name, value)
		}
	}
	rest := make([]string, 0, len(response.Headers))
	for name := range response.Headers {
		if !isPriorityHeader[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		writeHeader(buf, name, response.Headers[name])
	}

	buf.WriteString(CRLF)
	buf.WriteString(response.Body)
	if !f.OmitTrailer {
		buf.WriteString(responseTrailer)
	}
	return buf.String()
}

func writeHeader(buf *bytes.Buffer, name string, value string) {
	buf.WriteString(name)
	buf.WriteString(": ")
	buf.WriteString(value)
	buf.WriteString(CRLF)
}
