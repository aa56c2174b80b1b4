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

package command

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/wetrycode/tinyhttpd"
	"github.com/wetrycode/tinyhttpd/api"
	"github.com/wetrycode/tinyhttpd/metric"
	"github.com/wetrycode/tinyhttpd/service"
)

var logger = tinyhttpd.GetLogger("command")

// healthWatchInterval 健康检查状态同步间隔
const healthWatchInterval = 500 * time.Millisecond

// NewRootCmd 根命令
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tinyhttpd",
		Short: "tinyhttpd is a minimal http/1.1 server based on golang",
	}
	rootCmd.AddCommand(newServeCmd(tinyhttpd.Config))
	return rootCmd
}

func newServeCmd(config *tinyhttpd.Configuration) *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the http server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return Serve(ctx, config)
		},
	}
	flags := serveCmd.Flags()
	flags.String("host", "", "the host to listen on")
	flags.IntP("port", "p", 0, "the port to listen on")
	flags.Bool("admin", false, "start the admin api")
	flags.Bool("grpc", false, "start the grpc health service")
	bindFlags(config, flags)
	return serveCmd
}

// bindFlags 命令行参数覆盖配置文件
func bindFlags(config *tinyhttpd.Configuration, flags *pflag.FlagSet) {
	bindings := map[string]string{
		"server.host":  "host",
		"server.port":  "port",
		"admin.enable": "admin",
		"grpc.enable":  "grpc",
	}
	for key, name := range bindings {
		if err := config.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
}

// newStatistic 配置了stats.redis.addr时使用redis统计
func newStatistic(config *tinyhttpd.Configuration) (tinyhttpd.StatisticInterface, func(), error) {
	addr := config.GetString("stats.redis.addr")
	if addr == "" {
		return tinyhttpd.NewDefaultStatistic(), func() {}, nil
	}
	rdb, err := tinyhttpd.NewRdbClient(addr)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to redis %s error: %w", addr, err)
	}
	closer := func() {
		if err := rdb.Close(); err != nil {
			logger.Warnf("close redis client error %s", err.Error())
		}
	}
	return tinyhttpd.NewRdbStatistic(rdb, config.GetString("stats.redis.key")), closer, nil
}

// Serve 根据配置启动连接服务以及管理接口、健康检查和指标采集
// ctx结束时关闭所有服务并等待连接处理结束
func Serve(ctx context.Context, config *tinyhttpd.Configuration) error {
	settings, err := config.GetServerSettings()
	if err != nil {
		return err
	}
	adminSettings, err := config.GetAdminSettings()
	if err != nil {
		return err
	}
	grpcSettings, err := config.GetGRPCSettings()
	if err != nil {
		return err
	}
	influxdbSettings, err := config.GetInfluxdbSettings()
	if err != nil {
		return err
	}
	statistic, closeStatistic, err := newStatistic(config)
	if err != nil {
		return err
	}
	defer closeStatistic()

	server := tinyhttpd.NewServerFromSettings(settings, tinyhttpd.ServerWithStatistic(statistic))
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	auxCtx, cancelAux := context.WithCancel(ctx)
	var wg conc.WaitGroup
	defer func() {
		cancelAux()
		wg.Wait()
	}()

	var adminAPI *api.TinyHTTPAPI
	if adminSettings.Enable || grpcSettings.Enable {
		adminAPI = api.NewAPI(server)
	}
	if adminSettings.Enable {
		adminServer := adminAPI.NewHTTPServer(net.JoinHostPort(adminSettings.Host, strconv.Itoa(adminSettings.Port)))
		wg.Go(func() {
			logger.Infof("Admin api listen on %s", adminServer.Addr)
			if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorf("admin api error %s", err.Error())
			}
		})
		wg.Go(func() {
			<-auxCtx.Done()
			_ = adminServer.Close()
		})
	}
	if grpcSettings.Enable {
		grpcServer := service.NewServer(grpcSettings.Host, grpcSettings.Port, adminAPI.G)
		wg.Go(func() {
			if err := grpcServer.Start(); err != nil {
				logger.Errorf("grpc service error %s", err.Error())
			}
		})
		wg.Go(func() {
			grpcServer.Watch(auxCtx, server.GetRuntimeStatus(), healthWatchInterval)
			_ = grpcServer.Stop()
		})
	}
	if influxdbSettings.URL != "" {
		collector := metric.NewMetricCollector(influxdbSettings.URL, influxdbSettings.Token,
			influxdbSettings.Bucket, influxdbSettings.Org, statistic,
			metric.CollectorWithMeasurement(influxdbSettings.Measurement),
			metric.CollectorWithInterval(influxdbSettings.Interval))
		wg.Go(func() {
			collector.Start(auxCtx)
			if err := collector.Collect(context.Background()); err != nil {
				logger.Warnf("flush metrics error %s", err.Error())
			}
			collector.Close()
		})
	}

	select {
	case err := <-serveErr:
		if errors.Is(err, tinyhttpd.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	logger.Infof("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), settings.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("shutdown server error %s", err.Error())
	}
	if err := <-serveErr; err != nil && !errors.Is(err, tinyhttpd.ErrServerClosed) {
		logger.Warnf("server exited with %s", err.Error())
	}
	logger.Infof("Server stopped, stats: %s", tinyhttpd.Map2String(statistic.GetAllStats()))
	return nil
}

// ExecuteCmd 通过命令行启动服务
func ExecuteCmd() {
	err := NewRootCmd().Execute()
	if err != nil {
		logger.Fatalf("execute command error %s", err.Error())
	}
}
