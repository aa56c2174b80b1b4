package tinyhttpd

import (
	"errors"
	"strings"
	"testing"

	"github.com/smartystreets/goconvey/convey"
)

func TestHandleRequest(t *testing.T) {
	handler := NewDefaultRequestHandler()
	convey.Convey("test valid time request", t, func() {
		text := handler.HandleRequest("GET /time HTTP/1.1")
		convey.So(text, convey.ShouldContainSubstring, "200 OK")
		parts := strings.SplitN(text, "\r\n\r\n", 2)
		convey.So(len(parts), convey.ShouldEqual, 2)
		body := strings.TrimSuffix(parts[1], "\r\n\r\n\r\n")
		convey.So(clockPattern.MatchString(body), convey.ShouldBeTrue)
	})
	convey.Convey("test single token request", t, func() {
		text := handler.HandleRequest("brokenone")
		convey.So(text, convey.ShouldStartWith, "HTTP/1.1 400 Bad Request\r\n")
		convey.So(text, convey.ShouldContainSubstring, InvalidRequestLineBody)
	})
	convey.Convey("test malformed version token", t, func() {
		text := handler.HandleRequest("GET /time HTTP1.1")
		convey.So(text, convey.ShouldContainSubstring, "400 Bad Request")
		convey.So(text, convey.ShouldContainSubstring, InvalidHTTPVersionBody)
	})
	convey.Convey("test wrong token counts", t, func() {
		for _, raw := range []string{"", "GET /hello", "GET /hello HTTP/1.1 extra", "\r\nGET /hello HTTP/1.1"} {
			resp := handler.Handle(raw)
			convey.So(resp.StatusCode, convey.ShouldEqual, 400)
			convey.So(resp.Body, convey.ShouldEqual, InvalidRequestLineBody)
		}
	})
	convey.Convey("test only the request line is interpreted", t, func() {
		resp := handler.Handle("GET /echo/abc HTTP/1.1\r\nHost: localhost\r\nUser-Agent: test\r\n\r\nbody")
		convey.So(resp.StatusCode, convey.ShouldEqual, 200)
		convey.So(resp.Body, convey.ShouldEqual, "abc")
	})
	convey.Convey("test tokens split on any whitespace", t, func() {
		resp := handler.Handle("GET\t/hello  HTTP/1.0")
		convey.So(resp.StatusCode, convey.ShouldEqual, 200)
		convey.So(resp.Body, convey.ShouldEqual, GreetingBody)
	})
	convey.Convey("test unknown route through handler", t, func() {
		convey.So(handler.HandleRequest("POST /hello HTTP/1.1"), convey.ShouldContainSubstring, "404 Not Found")
	})
	convey.Convey("test strict framing formatter", t, func() {
		strict := NewRequestHandler(NewDefaultRouter(nil, nil), HandlerWithFormatter(&Formatter{OmitTrailer: true}))
		convey.So(strict.HandleRequest("GET /echo/x HTTP/1.1"), convey.ShouldEndWith, "\r\n\r\nx")
	})
}

func TestParseRequestLine(t *testing.T) {
	convey.Convey("test parse request line", t, func() {
		req, err := ParseRequestLine("GET /echo/a HTTP/1.1\r\nHost: x")
		convey.So(err, convey.ShouldBeNil)
		convey.So(req, convey.ShouldResemble, &Request{Method: "GET", Path: "/echo/a", Version: "HTTP/1.1"})
	})
	convey.Convey("test parse errors", t, func() {
		_, err := ParseRequestLine("brokenone")
		convey.So(errors.Is(err, ErrInvalidRequestLine), convey.ShouldBeTrue)
		_, err = ParseRequestLine("GET / http/1.1")
		convey.So(errors.Is(err, ErrInvalidHTTPVersion), convey.ShouldBeTrue)
	})
}
