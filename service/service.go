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

package service

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/wetrycode/tinyhttpd"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

var logger = tinyhttpd.GetLogger("service")

// ServiceName 健康检查中连接服务的名称
const ServiceName = "tinyhttpd"

// Server gRPC健康检查服务
// 同一个端口上非gRPC请求交给otherHandler处理
type Server struct {
	Host string
	Port int

	grpc         *grpc.Server
	health       *health.Server
	otherHandler http.Handler

	mu         sync.Mutex
	httpServer *http.Server
	stopped    bool
}

func NewServer(host string, port int, otherHandler http.Handler) *Server {
	g := grpc.NewServer()
	h := health.NewServer()
	healthpb.RegisterHealthServer(g, h)
	if otherHandler == nil {
		otherHandler = http.NotFoundHandler()
	}
	s := &Server{
		Host:         host,
		Port:         port,
		grpc:         g,
		health:       h,
		otherHandler: otherHandler,
	}
	s.SetServing(false)
	return s
}

// SetServing 设置连接服务的健康状态
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
	s.health.SetServingStatus("", status)
	logger.Debugf("set %s health status %s", ServiceName, status.String())
}

// Watch 按interval同步连接服务的运行状态，ctx结束时退出
func (s *Server) Watch(ctx context.Context, status *tinyhttpd.RuntimeStatus, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	last := status.GetStatusOn()
	s.SetServing(last == tinyhttpd.ON_START)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			current := status.GetStatusOn()
			if current != last {
				s.SetServing(current == tinyhttpd.ON_START)
				last = current
			}
		}
	}
}

// Serve 在给定的listener上提供服务
func (s *Server) Serve(lis net.Listener) error {
	srv := &http.Server{
		Handler: s.grpcHandlerFunc(s.grpc, s.otherHandler),
	}
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return lis.Close()
	}
	s.httpServer = srv
	s.mu.Unlock()
	logger.Infof("Server listen on:http://%s", lis.Addr().String())
	err := srv.Serve(lis)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Start 监听Host:Port并提供服务
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.Host, s.Port))
	if err != nil {
		return err
	}
	return s.Serve(lis)
}

// Stop 停止服务
func (s *Server) Stop() error {
	s.health.Shutdown()
	s.grpc.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Close()
}

func (s *Server) grpcHandlerFunc(grpcServer *grpc.Server, otherHandler http.Handler) http.Handler {
	return h2c.NewHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ProtoMajor == 2 && strings.Contains(r.Header.Get("Content-Type"), "application/grpc") {
			grpcServer.ServeHTTP(w, r)
		} else {
			otherHandler.ServeHTTP(w, r)
		}
	}), &http2.Server{})
}
