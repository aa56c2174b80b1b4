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

package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/wetrycode/tinyhttpd"
)

var apiLog *logrus.Entry = tinyhttpd.GetLogger("api")

// TinyHTTPAPI 管理接口，查询连接服务的运行状态和统计数据
type TinyHTTPAPI struct {
	G *gin.Engine
	S *tinyhttpd.Server
}

type statusResp struct {
	Status    string  `json:"status"`
	Addr      string  `json:"addr"`
	StartAt   string  `json:"start_at"`
	Duration  float64 `json:"duration"`
	ProcessId string  `json:"process_id"`
}

type statsResp struct {
	Metrics map[string]uint64 `json:"metrics"`
}

func (t *TinyHTTPAPI) status(ctx *gin.Context) {
	runtimeStatus := t.S.GetRuntimeStatus()
	startAt := ""
	if runtimeStatus.GetStartAt() != 0 {
		startAt = time.UnixMilli(runtimeStatus.GetStartAt()).Format("2006-01-02 15:04:05")
	}
	addr := t.S.Addr
	if listenAddr := t.S.ListenerAddr(); listenAddr != nil {
		addr = listenAddr.String()
	}
	rsp := statusResp{
		Status:    runtimeStatus.GetStatusOn().GetTypeName(),
		Addr:      addr,
		StartAt:   startAt,
		Duration:  runtimeStatus.GetDuration(),
		ProcessId: tinyhttpd.ProcessId,
	}
	appG := Gin{Ctx: ctx}
	appG.Response(http.StatusOK, SUCCESS, rsp)
}

func (t *TinyHTTPAPI) stats(ctx *gin.Context) {
	appG := Gin{Ctx: ctx}
	metric := ctx.Query("metric")
	if metric != "" {
		appG.Response(http.StatusOK, SUCCESS, statsResp{
			Metrics: map[string]uint64{metric: t.S.GetStatistic().Get(metric)},
		})
		return
	}
	appG.Response(http.StatusOK, SUCCESS, statsResp{Metrics: t.S.GetStatistic().GetAllStats()})
}

func (t *TinyHTTPAPI) health(ctx *gin.Context) {
	appG := Gin{Ctx: ctx}
	if t.S.GetRuntimeStatus().GetStatusOn() != tinyhttpd.ON_START {
		apiLog.Warnf("health check while server is %s", t.S.GetRuntimeStatus().GetStatusOn().GetTypeName())
		appG.Response(http.StatusServiceUnavailable, SERVER_NOT_RUNNING, nil)
		return
	}
	appG.Response(http.StatusOK, SUCCESS, nil)
}

// NewHTTPServer 管理接口的http服务
func (t *TinyHTTPAPI) NewHTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      t.G,
		ReadTimeout:  time.Duration(10 * time.Second),
		WriteTimeout: time.Duration(10 * time.Second),
	}
}

func NewAPI(server *tinyhttpd.Server) *TinyHTTPAPI {
	API := &TinyHTTPAPI{
		S: server,
	}
	g := SetUp()

	v1Router := g.Group("/api/v1")
	v1Router.GET("/status", API.status)
	v1Router.GET("/stats", API.stats)
	v1Router.GET("/health", API.health)
	g.NoRoute(func(ctx *gin.Context) {
		appG := Gin{Ctx: ctx}
		appG.Response(http.StatusNotFound, NOT_FOUND, nil)
	})
	API.G = g
	return API
}
