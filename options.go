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

// ServerOption 服务构造过程中的可选参数
type ServerOption func(s *Server)

// ServerWithBufferSize 单次读取请求的缓冲区大小
func ServerWithBufferSize(size int) ServerOption {
	return func(s *Server) {
		if size > 0 {
			s.bufferSize = size
		}
	}
}

// ServerWithMaxConnections 同时处理的最大连接数，小于等于0不限制
func ServerWithMaxConnections(max int) ServerOption {
	return func(s *Server) {
		s.maxConnections = max
	}
}

// ServerWithLimiter accept限速器
func ServerWithLimiter(limiter LimitInterface) ServerOption {
	return func(s *Server) {
		s.limiter = limiter
	}
}

// ServerWithStatistic 数据统计组件
func ServerWithStatistic(statistic StatisticInterface) ServerOption {
	return func(s *Server) {
		s.statistic = statistic
	}
}

// ServerWithConnStateHook 连接状态变化的回调
func ServerWithConnStateHook(hook ConnStateHook) ServerOption {
	return func(s *Server) {
		s.connStateHook = hook
	}
}
