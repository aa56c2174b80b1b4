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
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"golang.org/x/net/netutil"
)

var serverLog *logrus.Entry = GetLogger("server")

// ConnStateHook 连接状态变化时的回调
type ConnStateHook func(connID string, state ConnState)

// Server 连接监听与分发
// 每个连接由独立的goroutine处理，单个连接的异常不会影响其他连接和accept循环
type Server struct {
	// Addr 监听地址 host:port
	Addr string

	handler *RequestHandler
	// bufferSize 单次读取请求的字节数
	// 超出部分会被截断
	bufferSize     int
	maxConnections int
	limiter        LimitInterface
	statistic      StatisticInterface
	status         *RuntimeStatus
	connStateHook  ConnStateHook

	mu       sync.Mutex
	listener net.Listener
	closed   atomic.Bool
	// serving accept循环
	serving sync.WaitGroup
	// conns 正在处理的连接
	conns conc.WaitGroup
}

// NewServer 构建连接服务
func NewServer(addr string, handler *RequestHandler, opts ...ServerOption) *Server {
	s := &Server{
		Addr:       addr,
		handler:    handler,
		bufferSize: DefaultBufferSize,
		limiter:    NewDefaultLimiter(0),
		statistic:  NewDefaultStatistic(),
		status:     NewRuntimeStatus(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// NewServerFromSettings 根据配置构建连接服务及其路由
func NewServerFromSettings(settings *ServerSettings, opts ...ServerOption) *Server {
	factory := NewResponseFactory(FactoryWithServerName(settings.Name))
	router := NewDefaultRouter(factory, SystemClock{})
	handler := NewRequestHandler(router, HandlerWithFormatter(&Formatter{OmitTrailer: settings.StrictFraming}))
	options := []ServerOption{
		ServerWithBufferSize(settings.BufferSize),
		ServerWithMaxConnections(settings.MaxConnections),
		ServerWithLimiter(NewDefaultLimiter(settings.AcceptRate)),
	}
	options = append(options, opts...)
	addr := net.JoinHostPort(settings.Host, strconv.Itoa(settings.Port))
	return NewServer(addr, handler, options...)
}

// GetStatistic 数据统计组件
func (s *Server) GetStatistic() StatisticInterface {
	return s.statistic
}

// GetRuntimeStatus 运行状态
func (s *Server) GetRuntimeStatus() *RuntimeStatus {
	return s.status
}

// ListenerAddr 实际监听的地址，未启动时返回nil
func (s *Server) ListenerAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ListenAndServe 绑定地址并进入accept循环
// 绑定失败直接返回错误
func (s *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("%w %s: %s", ErrBind, s.Addr, err.Error())
	}
	return s.Serve(l)
}

// Serve 在给定的listener上循环accept，直到服务关闭
func (s *Server) Serve(l net.Listener) error {
	s.serving.Add(1)
	defer s.serving.Done()
	if s.maxConnections > 0 {
		l = netutil.LimitListener(l, s.maxConnections)
	}
	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		l.Close()
		return ErrServerClosed
	}
	s.listener = l
	s.status.SetStartAt(time.Now().UnixMilli())
	s.status.SetStatus(ON_START)
	s.mu.Unlock()

	serverLog.Infof("Server listen on %s", l.Addr().String())

	var tempDelay time.Duration
	for {
		if err := s.limiter.CheckAndWaitLimiterPass(); err != nil {
			serverLog.Warnf("accept limiter error %s", err.Error())
		}
		rwc, err := l.Accept()
		if err != nil {
			if s.closed.Load() {
				return ErrServerClosed
			}
			if errors.Is(err, net.ErrClosed) {
				s.markStopped()
				return err
			}
			s.statistic.Incr(AcceptErrorStats)
			if tempDelay == 0 {
				tempDelay = 5 * time.Millisecond
			} else {
				tempDelay *= 2
			}
			if maxDelay := 1 * time.Second; tempDelay > maxDelay {
				tempDelay = maxDelay
			}
			serverLog.Errorf("accept error: %s; retrying in %v", err.Error(), tempDelay)
			time.Sleep(tempDelay)
			continue
		}
		tempDelay = 0
		s.statistic.Incr(ConnectionStats)
		s.conns.Go(s.newConn(rwc).serve)
	}
}

func (s *Server) markStopped() {
	s.status.SetStatus(ON_STOP)
	s.status.SetStopAt(time.Now().UnixMilli())
}

// Close 关闭listener，停止accept新连接
// 已经建立的连接会继续处理直到结束
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Swap(true) {
		return nil
	}
	s.markStopped()
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

// Shutdown 关闭服务并等待所有连接处理结束
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.Close()
	done := make(chan struct{})
	go func() {
		s.serving.Wait()
		s.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// conn 一个客户端连接
type conn struct {
	id     string
	rwc    net.Conn
	server *Server
	log    *logrus.Entry
}

// newConn 在accept循环中执行，只保存连接
// 连接id和日志字段在serve中生成
func (s *Server) newConn(rwc net.Conn) *conn {
	return &conn{
		rwc:    rwc,
		server: s,
		log:    serverLog,
	}
}

func (c *conn) init() {
	c.id = GetUUID()
	fields := logrus.Fields{"conn_id": c.id}
	if addr := c.rwc.RemoteAddr(); addr != nil {
		fields["remote"] = addr.String()
	}
	c.log = serverLog.WithFields(fields)
}

func (c *conn) setState(state ConnState) {
	c.log.Debugf("connection state %s", state.GetTypeName())
	hook := c.server.connStateHook
	if hook == nil {
		return
	}
	var pc panics.Catcher
	pc.Try(func() {
		hook(c.id, state)
	})
	if r := pc.Recovered(); r != nil {
		c.log.Errorf("connection state hook panic: %v", r.Value)
	}
}

// serve 连接的处理入口，所有panic都在这里被捕获
func (c *conn) serve() {
	var err error
	var pc panics.Catcher
	pc.Try(func() {
		c.init()
		c.setState(StateAccepted)
		err = c.handle()
	})
	if closeErr := c.rwc.Close(); closeErr != nil && err == nil {
		c.log.Debugf("close connection error %s", closeErr.Error())
	}
	if r := pc.Recovered(); r != nil {
		c.server.statistic.Incr(ConnFailedStats)
		c.log.Errorf("handle connection panic: %v\n%s", r.Value, r.Stack)
		c.setState(StateFailed)
		return
	}
	if err != nil {
		c.server.statistic.Incr(ConnFailedStats)
		c.log.Errorf("handle connection error %s", err.Error())
		c.setState(StateFailed)
		return
	}
	c.setState(StateClosed)
}

func (c *conn) handle() error {
	c.setState(StateReading)
	raw, err := c.read()
	if err != nil {
		c.server.statistic.Incr(ReadErrorStats)
		return err
	}
	response := c.server.handler.Handle(raw)
	c.server.statistic.Incr(StatusCodeStats(response.StatusCode))
	c.log.Infof("%q %d", firstLine(raw), response.StatusCode)
	c.setState(StateHandled)
	if err := c.write(c.server.handler.Format(response)); err != nil {
		c.server.statistic.Incr(WriteErrorStats)
		return err
	}
	return nil
}

// read 只读取一次，超过缓冲区的部分被截断
func (c *conn) read() (string, error) {
	buf := make([]byte, c.server.bufferSize)
	n, err := c.rwc.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", &ConnError{ConnID: c.id, Op: "read", Err: err}
	}
	return DecodeRequest(buf[:n]), nil
}

func (c *conn) write(text string) error {
	_, err := io.WriteString(c.rwc, text)
	if err != nil {
		return &ConnError{ConnID: c.id, Op: "write", Err: err}
	}
	return nil
}

func firstLine(raw string) string {
	for i := 0; i < len(raw); i++ {
		if raw[i] == '\n' || raw[i] == '\r' {
			return raw[:i]
		}
	}
	return raw
}
