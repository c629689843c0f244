package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lk2023060901/wsted-relay-go/application"
	"github.com/lk2023060901/wsted-relay-go/internal/filestore"
	"github.com/lk2023060901/wsted-relay-go/internal/relay"
	"github.com/lk2023060901/wsted-relay-go/pkg/log"
	"github.com/lk2023060901/wsted-relay-go/pkg/metrics"
)

const (
	defaultPort = 8044

	// 可用端口范围，超出范围的取值静默回退到默认端口。
	minPort = 1024
	maxPort = 49151
)

func main() {
	port, explicit, err := portFromArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "usage: %s [port]\n", os.Args[0])
		os.Exit(2)
	}

	app := application.New()
	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = log.Sync()
	}()

	if err := run(app, port, explicit); err != nil {
		log.Fatal("relay server exited", zap.Error(err))
	}
}

// portFromArgs 解析命令行中的端口参数。
//
// 规则：
//   - 无参数：使用默认端口；
//   - 一个参数：为 [minPort, maxPort] 内的数字时使用该端口，
//     否则静默回退到默认端口；
//   - 多个参数：返回用法错误。
func portFromArgs(args []string) (port int, explicit bool, err error) {
	switch len(args) {
	case 0:
		return defaultPort, false, nil
	case 1:
		p, convErr := strconv.Atoi(args[0])
		if convErr != nil || p < minPort || p > maxPort {
			return defaultPort, false, nil
		}
		return p, true, nil
	default:
		return 0, false, errors.New("too many arguments")
	}
}

func run(app *application.Application, port int, explicitPort bool) error {
	cfg := app.Config()

	var relayCfg relay.Config
	if err := cfg.UnmarshalKey("relay", &relayCfg); err != nil {
		return fmt.Errorf("invalid relay config: %w", err)
	}
	// 命令行端口优先于配置文件中的监听地址。
	if explicitPort || relayCfg.ListenAddr == "" {
		relayCfg.ListenAddr = fmt.Sprintf(":%d", port)
	}

	cfg.SetDefault("storage.in-memory", true)
	var storeOpts filestore.Options
	if err := cfg.UnmarshalKey("storage", &storeOpts); err != nil {
		return fmt.Errorf("invalid storage config: %w", err)
	}

	files, err := filestore.Open(storeOpts)
	if err != nil {
		return fmt.Errorf("open file store: %w", err)
	}
	defer func() {
		if err := files.Close(); err != nil {
			log.Warn("failed to close file store", zap.Error(err))
		}
	}()

	srv, err := relay.NewServer(relayCfg, files)
	if err != nil {
		return fmt.Errorf("create relay server: %w", err)
	}
	if err := srv.Listen(); err != nil {
		// 端口被占用等绑定失败属于致命错误，直接退出。
		return fmt.Errorf("bind %s: %w", relayCfg.ListenAddr, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(srv.Serve)

	if cfg.GetBool("metrics.enable") {
		metricsSrv, err := startMetricsServer(cfg.GetString("metrics.addr"))
		if err != nil {
			srv.Close()
			return err
		}
		group.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metricsSrv.Shutdown(shutdownCtx)
		})
	}

	group.Go(func() error {
		<-ctx.Done()
		log.Info("shutdown signal received")
		srv.Close()
		return nil
	})

	return group.Wait()
}

// startMetricsServer 在独立端口暴露 Prometheus 指标。
func startMetricsServer(addr string) (*http.Server, error) {
	if addr == "" {
		addr = ":9100"
	}

	registry := prometheus.NewRegistry()
	metrics.Register(registry)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("metrics server stopped", zap.Error(err))
		}
	}()

	log.Info("metrics exposed", zap.String("addr", addr))
	return srv, nil
}
