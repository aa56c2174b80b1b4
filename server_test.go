package tinyhttpd

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"
)

type stateRecorder struct {
	mu     sync.Mutex
	states map[string][]ConnState
	ch     chan ConnState
}

func newStateRecorder() *stateRecorder {
	return &stateRecorder{
		states: make(map[string][]ConnState),
		ch:     make(chan ConnState, 128),
	}
}

func (r *stateRecorder) hook(connID string, state ConnState) {
	r.mu.Lock()
	r.states[connID] = append(r.states[connID], state)
	r.mu.Unlock()
	if state == StateClosed || state == StateFailed {
		r.ch <- state
	}
}

func (r *stateRecorder) waitDone(t *testing.T) ConnState {
	select {
	case s := <-r.ch:
		return s
	case <-time.After(5 * time.Second):
		t.Fatalf("wait connection done timeout")
	}
	return StateFailed
}

func newTestServer(t *testing.T, handler *RequestHandler, opts ...ServerOption) (*Server, string, chan error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error %s", err.Error())
	}
	if handler == nil {
		handler = NewDefaultRequestHandler()
	}
	s := NewServer(l.Addr().String(), handler, opts...)
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Serve(l)
	}()
	return s, l.Addr().String(), errCh
}

// flakyListener 前acceptErrs次accept返回错误，之后的连接交给wrapConn包装
type flakyListener struct {
	net.Listener
	acceptErrs int32
	wrapConn   func(net.Conn) net.Conn
}

func (l *flakyListener) Accept() (net.Conn, error) {
	if atomic.AddInt32(&l.acceptErrs, -1) >= 0 {
		return nil, errors.New("accept: resource temporarily unavailable")
	}
	c, err := l.Listener.Accept()
	if err != nil || l.wrapConn == nil {
		return c, err
	}
	return l.wrapConn(c), nil
}

type nilAddrConn struct {
	net.Conn
}

func (c *nilAddrConn) RemoteAddr() net.Addr {
	return nil
}

type panicAddrConn struct {
	net.Conn
}

func (c *panicAddrConn) RemoteAddr() net.Addr {
	panic("remote addr boom")
}

// wrapFirstConn 只包装第一个连接
func wrapFirstConn(wrap func(net.Conn) net.Conn) func(net.Conn) net.Conn {
	var n int32
	return func(c net.Conn) net.Conn {
		if atomic.AddInt32(&n, 1) == 1 {
			return wrap(c)
		}
		return c
	}
}

func serveFlaky(t *testing.T, l *flakyListener, opts ...ServerOption) (*Server, string, chan error) {
	inner, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error %s", err.Error())
	}
	l.Listener = inner
	s := NewServer(inner.Addr().String(), NewDefaultRequestHandler(), opts...)
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Serve(l)
	}()
	return s, inner.Addr().String(), errCh
}

type errLimiter struct {
	calls int32
}

func (l *errLimiter) CheckAndWaitLimiterPass() error {
	if atomic.AddInt32(&l.calls, 1) == 1 {
		return errors.New("limiter unavailable")
	}
	return nil
}

func doRequest(addr string, raw string) (string, error) {
	c, err := net.Dial("tcp", addr)
	if err != nil {
		return "", err
	}
	defer c.Close()
	_ = c.SetDeadline(time.Now().Add(5 * time.Second))
	if _, err := c.Write([]byte(raw)); err != nil {
		return "", err
	}
	b, err := io.ReadAll(c)
	return string(b), err
}

func TestServerServe(t *testing.T) {
	convey.Convey("test serve echo request", t, func() {
		recorder := newStateRecorder()
		s, addr, _ := newTestServer(t, nil, ServerWithConnStateHook(recorder.hook))
		defer s.Close()

		text, err := doRequest(addr, "GET /echo/hi HTTP/1.1\r\nHost: localhost\r\n\r\n")
		convey.So(err, convey.ShouldBeNil)
		convey.So(text, convey.ShouldStartWith, "HTTP/1.1 200 OK\r\n")
		convey.So(text, convey.ShouldContainSubstring, "Content-Length: 2\r\n")
		convey.So(text, convey.ShouldEndWith, "\r\n\r\nhi\r\n\r\n\r\n")

		convey.So(recorder.waitDone(t), convey.ShouldEqual, StateClosed)
		recorder.mu.Lock()
		defer recorder.mu.Unlock()
		convey.So(len(recorder.states), convey.ShouldEqual, 1)
		for _, states := range recorder.states {
			convey.So(states, convey.ShouldResemble, []ConnState{StateAccepted, StateReading, StateHandled, StateClosed})
		}
		convey.So(s.GetStatistic().Get(ConnectionStats), convey.ShouldEqual, 1)
		convey.So(s.GetStatistic().Get("200"), convey.ShouldEqual, 1)
	})
	convey.Convey("test protocol errors are answered", t, func() {
		s, addr, _ := newTestServer(t, nil)
		defer s.Close()
		text, err := doRequest(addr, "brokenone")
		convey.So(err, convey.ShouldBeNil)
		convey.So(text, convey.ShouldContainSubstring, "400 Bad Request")
		text, err = doRequest(addr, "\x00\x00GET /nothing HTTP/1.1\x00\x00")
		convey.So(err, convey.ShouldBeNil)
		convey.So(text, convey.ShouldContainSubstring, "404 Not Found")
		convey.So(text, convey.ShouldContainSubstring, NotFoundBody)
	})
	convey.Convey("test concurrent connections", t, func() {
		s, addr, _ := newTestServer(t, nil)
		defer s.Close()
		wg := &sync.WaitGroup{}
		results := make(chan string, 32)
		for i := 0; i < 32; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				text, err := doRequest(addr, "GET /echo/"+itoa(i)+" HTTP/1.1")
				if err != nil {
					results <- err.Error()
					return
				}
				results <- text
			}(i)
		}
		wg.Wait()
		close(results)
		count := 0
		for text := range results {
			convey.So(text, convey.ShouldStartWith, "HTTP/1.1 200 OK")
			count++
		}
		convey.So(count, convey.ShouldEqual, 32)
	})
	convey.Convey("test a stalled client does not block others", t, func() {
		s, addr, _ := newTestServer(t, nil)
		defer s.Close()
		idle, err := net.Dial("tcp", addr)
		convey.So(err, convey.ShouldBeNil)
		defer idle.Close()
		text, err := doRequest(addr, "GET /hello HTTP/1.1")
		convey.So(err, convey.ShouldBeNil)
		convey.So(text, convey.ShouldContainSubstring, GreetingBody)
	})
}

func TestServerFailureIsolation(t *testing.T) {
	convey.Convey("test panic in handler is isolated", t, func() {
		router := NewDefaultRouter(nil, nil).GET(ExactPath("/panic"), func(_ *Request) string {
			panic("handler boom")
		})
		recorder := newStateRecorder()
		s, addr, _ := newTestServer(t, NewRequestHandler(router), ServerWithConnStateHook(recorder.hook))
		defer s.Close()

		text, err := doRequest(addr, "GET /panic HTTP/1.1")
		convey.So(err, convey.ShouldBeNil)
		convey.So(text, convey.ShouldEqual, "")
		convey.So(recorder.waitDone(t), convey.ShouldEqual, StateFailed)
		convey.So(s.GetStatistic().Get(ConnFailedStats), convey.ShouldEqual, 1)

		text, err = doRequest(addr, "GET /hello HTTP/1.1")
		convey.So(err, convey.ShouldBeNil)
		convey.So(text, convey.ShouldContainSubstring, "200 OK")
		convey.So(recorder.waitDone(t), convey.ShouldEqual, StateClosed)
	})
	convey.Convey("test panic in state hook is isolated", t, func() {
		s, addr, _ := newTestServer(t, nil, ServerWithConnStateHook(func(_ string, _ ConnState) {
			panic("hook boom")
		}))
		defer s.Close()
		text, err := doRequest(addr, "GET /hello HTTP/1.1")
		convey.So(err, convey.ShouldBeNil)
		convey.So(text, convey.ShouldContainSubstring, "200 OK")
	})
}

func TestServerConnSetup(t *testing.T) {
	convey.Convey("test conn without remote addr is served", t, func() {
		recorder := newStateRecorder()
		l := &flakyListener{wrapConn: wrapFirstConn(func(c net.Conn) net.Conn {
			return &nilAddrConn{c}
		})}
		s, addr, _ := serveFlaky(t, l, ServerWithConnStateHook(recorder.hook))
		defer s.Close()

		text, err := doRequest(addr, "GET /hello HTTP/1.1")
		convey.So(err, convey.ShouldBeNil)
		convey.So(text, convey.ShouldContainSubstring, "200 OK")
		convey.So(recorder.waitDone(t), convey.ShouldEqual, StateClosed)

		text, err = doRequest(addr, "GET /echo/next HTTP/1.1")
		convey.So(err, convey.ShouldBeNil)
		convey.So(text, convey.ShouldContainSubstring, "next")
	})
	convey.Convey("test panic while setting up conn is isolated", t, func() {
		recorder := newStateRecorder()
		l := &flakyListener{wrapConn: wrapFirstConn(func(c net.Conn) net.Conn {
			return &panicAddrConn{c}
		})}
		s, addr, _ := serveFlaky(t, l, ServerWithConnStateHook(recorder.hook))
		defer s.Close()

		// 连接在读取之前被关闭，客户端可能收到RST
		text, _ := doRequest(addr, "GET /hello HTTP/1.1")
		convey.So(text, convey.ShouldEqual, "")
		convey.So(recorder.waitDone(t), convey.ShouldEqual, StateFailed)
		convey.So(s.GetStatistic().Get(ConnFailedStats), convey.ShouldEqual, 1)

		text, err := doRequest(addr, "GET /hello HTTP/1.1")
		convey.So(err, convey.ShouldBeNil)
		convey.So(text, convey.ShouldContainSubstring, "200 OK")
		convey.So(recorder.waitDone(t), convey.ShouldEqual, StateClosed)
	})
}

func TestServerAcceptError(t *testing.T) {
	convey.Convey("test accept error is retried", t, func() {
		s, addr, _ := serveFlaky(t, &flakyListener{acceptErrs: 1})
		defer s.Close()

		text, err := doRequest(addr, "GET /hello HTTP/1.1")
		convey.So(err, convey.ShouldBeNil)
		convey.So(text, convey.ShouldStartWith, "HTTP/1.1 200 OK\r\n")
		convey.So(s.GetStatistic().Get(AcceptErrorStats), convey.ShouldEqual, 1)
		convey.So(s.GetStatistic().Get(ConnectionStats), convey.ShouldEqual, 1)
	})
	convey.Convey("test limiter error does not stop accepting", t, func() {
		limiter := &errLimiter{}
		s, addr, _ := newTestServer(t, nil, ServerWithLimiter(limiter))
		defer s.Close()

		text, err := doRequest(addr, "GET /hello HTTP/1.1")
		convey.So(err, convey.ShouldBeNil)
		convey.So(text, convey.ShouldContainSubstring, "200 OK")
		convey.So(atomic.LoadInt32(&limiter.calls), convey.ShouldBeGreaterThanOrEqualTo, 1)
	})
}

func TestServerRead(t *testing.T) {
	convey.Convey("test read is bounded to the buffer size", t, func() {
		s := NewServer("", NewDefaultRequestHandler(), ServerWithBufferSize(16))
		server, client := net.Pipe()
		defer client.Close()
		defer server.Close()
		go func() {
			_, _ = client.Write([]byte("GET /echo/aaaaaaaaaaaaaaaaaaaa HTTP/1.1"))
		}()
		c := s.newConn(server)
		raw, err := c.read()
		convey.So(err, convey.ShouldBeNil)
		convey.So(raw, convey.ShouldEqual, "GET /echo/aaaaaa")
		convey.So(s.handler.Handle(raw).StatusCode, convey.ShouldEqual, 400)
	})
	convey.Convey("test read error is wrapped", t, func() {
		s := NewServer("", NewDefaultRequestHandler())
		server, client := net.Pipe()
		client.Close()
		server.Close()
		c := s.newConn(server)
		_, err := c.read()
		var connErr *ConnError
		convey.So(errors.As(err, &connErr), convey.ShouldBeTrue)
		convey.So(connErr.Op, convey.ShouldEqual, "read")
		convey.So(errors.Is(err, io.ErrClosedPipe), convey.ShouldBeTrue)
	})
	convey.Convey("test empty read is handled as empty request", t, func() {
		s := NewServer("", NewDefaultRequestHandler())
		server, client := net.Pipe()
		defer server.Close()
		client.Close()
		c := s.newConn(server)
		raw, err := c.read()
		convey.So(err, convey.ShouldBeNil)
		convey.So(raw, convey.ShouldEqual, "")
	})
}

func TestServerLifecycle(t *testing.T) {
	convey.Convey("test shutdown stops accepting", t, func() {
		s, addr, errCh := newTestServer(t, nil)
		text, err := doRequest(addr, "GET /hello HTTP/1.1")
		convey.So(err, convey.ShouldBeNil)
		convey.So(text, convey.ShouldContainSubstring, "200 OK")
		convey.So(s.GetRuntimeStatus().GetStatusOn(), convey.ShouldEqual, ON_START)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		convey.So(s.Shutdown(ctx), convey.ShouldBeNil)
		convey.So(<-errCh, convey.ShouldEqual, ErrServerClosed)
		convey.So(s.GetRuntimeStatus().GetStatusOn(), convey.ShouldEqual, ON_STOP)
		convey.So(s.Close(), convey.ShouldBeNil)

		_, err = net.DialTimeout("tcp", addr, time.Second)
		convey.So(err, convey.ShouldNotBeNil)
	})
	convey.Convey("test status is stop when close races serve", t, func() {
		for i := 0; i < 50; i++ {
			s := NewServer("127.0.0.1:0", NewDefaultRequestHandler())
			l, err := net.Listen("tcp", "127.0.0.1:0")
			convey.So(err, convey.ShouldBeNil)
			errCh := make(chan error, 1)
			go func() {
				errCh <- s.Serve(l)
			}()
			convey.So(s.Close(), convey.ShouldBeNil)
			convey.So(<-errCh, convey.ShouldEqual, ErrServerClosed)
			convey.So(s.GetRuntimeStatus().GetStatusOn(), convey.ShouldEqual, ON_STOP)
		}
	})
	convey.Convey("test serve after close", t, func() {
		s := NewServer("127.0.0.1:0", NewDefaultRequestHandler())
		convey.So(s.Close(), convey.ShouldBeNil)
		l, err := net.Listen("tcp", "127.0.0.1:0")
		convey.So(err, convey.ShouldBeNil)
		convey.So(s.Serve(l), convey.ShouldEqual, ErrServerClosed)
	})
	convey.Convey("test bind failure", t, func() {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		convey.So(err, convey.ShouldBeNil)
		defer l.Close()
		s := NewServer(l.Addr().String(), NewDefaultRequestHandler())
		err = s.ListenAndServe()
		convey.So(errors.Is(err, ErrBind), convey.ShouldBeTrue)
	})
	convey.Convey("test listen and serve", t, func() {
		s := NewServer("127.0.0.1:0", NewDefaultRequestHandler(), ServerWithMaxConnections(2))
		errCh := make(chan error, 1)
		go func() {
			errCh <- s.ListenAndServe()
		}()
		var addr net.Addr
		for i := 0; i < 100 && addr == nil; i++ {
			addr = s.ListenerAddr()
			time.Sleep(10 * time.Millisecond)
		}
		convey.So(addr, convey.ShouldNotBeNil)
		text, err := doRequest(addr.String(), "GET /echo/limit HTTP/1.1")
		convey.So(err, convey.ShouldBeNil)
		convey.So(text, convey.ShouldContainSubstring, "limit")
		convey.So(s.Close(), convey.ShouldBeNil)
		convey.So(<-errCh, convey.ShouldEqual, ErrServerClosed)
		convey.So(s.GetRuntimeStatus().GetDuration(), convey.ShouldBeGreaterThanOrEqualTo, 0)
	})
	convey.Convey("test server from settings", t, func() {
		settings := &ServerSettings{
			Host:          "127.0.0.1",
			Port:          0,
			BufferSize:    512,
			Name:          "tinyhttpd",
			StrictFraming: true,
			AcceptRate:    100,
		}
		s := NewServerFromSettings(settings)
		convey.So(s.Addr, convey.ShouldEqual, "127.0.0.1:0")
		convey.So(s.bufferSize, convey.ShouldEqual, 512)
		text := s.handler.HandleRequest("GET /hello HTTP/1.1")
		convey.So(text, convey.ShouldContainSubstring, "Server: tinyhttpd\r\n")
		convey.So(strings.HasSuffix(text, GreetingBody), convey.ShouldBeTrue)
	})
}
