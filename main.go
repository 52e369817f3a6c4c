package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/assetcache/internal/cache"
	"github.com/any-hub/assetcache/internal/config"
	"github.com/any-hub/assetcache/internal/logging"
	"github.com/any-hub/assetcache/internal/proxy"
	"github.com/any-hub/assetcache/internal/server"
	"github.com/any-hub/assetcache/internal/server/routes"
	"github.com/any-hub/assetcache/internal/version"
)

const (
	configEnv       = "ASSETCACHE_CONFIG"
	shutdownTimeout = 10 * time.Second
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	pruneOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["apps"] = len(cfg.Apps)
		fields["generations"] = config.Generations(cfg.Apps)
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	registry, err := server.NewAppRegistry(cfg)
	if err != nil {
		fmt.Fprintf(stdErr, "构建 App 注册表失败: %v\n", err)
		return 1
	}

	// 启动顺序：配置 → AppRegistry → 缓存后端 → 控制器 → 激活 → Fiber server，
	// 所有 App 共享同一个缓存后端，按 App 名称划分命名空间。
	backend, err := cache.NewBackend(cfg.Global.StorageBackend, cfg.Global.StoragePath)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化缓存后端失败: %v\n", err)
		return 1
	}
	defer backend.Close()

	handler, err := proxy.NewHandler(proxy.Options{
		Registry:     registry,
		Backend:      backend,
		Client:       server.NewUpstreamClient(cfg),
		Logger:       logger,
		WriteTimeout: cfg.Global.CacheWriteTimeout.DurationValue(),
		MaxEntrySize: cfg.Global.MaxEntrySize,
	})
	if err != nil {
		fmt.Fprintf(stdErr, "初始化控制器失败: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.pruneOnly {
		return prune(ctx, handler, logger, opts.configPath)
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["apps"] = len(cfg.Apps)
	fields["generations"] = config.Generations(cfg.Apps)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["storage_backend"] = cfg.Global.StorageBackend
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	// 激活在后台进行，激活完成前的请求按未托管直接透传。
	go func() {
		if _, err := handler.Activate(ctx); err != nil {
			logger.WithError(err).WithField("action", "activate").Error("activation_failed")
		}
	}()

	if err := startHTTPServer(ctx, cfg, registry, handler, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	handler.Wait()
	return 0
}

// prune 执行一次激活（清理旧缓存代）后退出，不启动 HTTP 服务。
func prune(ctx context.Context, handler *proxy.Handler, logger *logrus.Logger, configPath string) int {
	reports, err := handler.Activate(ctx)
	for _, report := range reports {
		if report == nil {
			continue
		}
		fields := logging.BaseFields("prune", configPath)
		fields["app"] = report.App
		fields["generation"] = report.Generation
		fields["deleted"] = report.Deleted
		fields["failed"] = len(report.Failed)
		logger.WithFields(fields).Info("prune_complete")
	}
	if err != nil {
		fmt.Fprintf(stdErr, "清理缓存代失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("assetcache", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		pruneOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 "+configEnv+" 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&pruneOnly, "prune", false, "删除所有 App 的旧缓存代后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}
	if checkOnly && pruneOnly {
		return cliOptions{}, errors.New("--check-config 与 --prune 不能同时使用")
	}

	path := os.Getenv(configEnv)
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		pruneOnly:   pruneOnly,
		showVersion: showVer,
	}, nil
}

// startHTTPServer 阻塞运行 Fiber，ctx 结束时优雅关闭。
func startHTTPServer(ctx context.Context, cfg *config.Config, registry *server.AppRegistry, handler *proxy.Handler, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Registry:   registry,
		Proxy:      handler,
		ListenPort: port,
		Diagnostics: func(r fiber.Router) {
			routes.RegisterAppRoutes(r, registry, handler)
		},
	})
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		logger.WithField("action", "shutdown").Info("收到退出信号，停止接收新请求")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			logger.WithError(err).WithField("action", "shutdown").Warn("shutdown_incomplete")
		}
	}()

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port), fiber.ListenConfig{DisableStartupMessage: true})
}
