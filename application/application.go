package application

import (
	"fmt"
	"os"
	"strings"

	zlog "github.com/lk2023060901/wsted-relay-go/pkg/log"
	zviper "github.com/lk2023060901/wsted-relay-go/pkg/util/viper"
)

// Application 是中继服务的运行时容器，负责配置加载与日志初始化。
type Application struct {
	cfg     *zviper.Config
	loggers map[string]*zlog.MLogger
}

// New 创建一个 Application 实例。
func New() *Application {
	return &Application{}
}

// Run 完成启动前的准备工作。
//
// 配置文件路径优先级：
//  1. 默认：./config.yaml；
//  2. 环境变量：WSTED_CONFIG_FILE_PATH。
//
// 配置文件不存在不算错误，此时全部配置取默认值；
// 端口等命令行参数由 main 包单独处理，不经过配置层。
func (a *Application) Run() error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	a.cfg = cfg

	return a.initLogging()
}

// Config 返回已加载的配置，可能为 nil。
func (a *Application) Config() *zviper.Config {
	return a.cfg
}

// Logger 返回配置中声明的命名日志器，名字未知时回退到全局日志器。
func (a *Application) Logger(name string) *zlog.MLogger {
	if a.loggers == nil {
		return &zlog.MLogger{Logger: zlog.L()}
	}
	if lg, ok := a.loggers[name]; ok && lg != nil {
		return lg
	}
	return &zlog.MLogger{Logger: zlog.L()}
}

// loadConfig 解析配置文件路径并加载。
func (a *Application) loadConfig() (*zviper.Config, error) {
	configPath := "./config.yaml"

	if envPath := os.Getenv("WSTED_CONFIG_FILE_PATH"); envPath != "" {
		configPath = envPath
	}

	cfg := zviper.New()
	if err := cfg.LoadFile(configPath); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to load config file %q: %w", configPath, err)
	}

	return cfg, nil
}

// initLogging 初始化全局日志器与配置中的命名日志器。
func (a *Application) initLogging() error {
	if err := a.initGlobalLoggerFromEnv(); err != nil {
		return err
	}
	return a.initModuleLoggersFromConfig()
}

// initGlobalLoggerFromEnv 依据 WSTED_LOG_* 环境变量配置进程级日志器。
//
// 支持的变量：
//   - WSTED_LOG_ENABLE: 是否启用日志输出，默认启用。
//   - WSTED_LOG_LEVEL: 日志级别，默认 "info"。
//   - WSTED_LOG_STDOUT: 是否输出到标准输出，默认 true。
//   - WSTED_LOG_FILE_DIR: 日志文件目录。
//   - WSTED_LOG_FILE: 日志文件名，留空表示不写文件。
//   - WSTED_LOG_FORMAT: 日志格式，"text" 或 "json"，默认 "text"。
func (a *Application) initGlobalLoggerFromEnv() error {
	enabled := getenvBool("WSTED_LOG_ENABLE", true)

	cfg := &zlog.Config{
		Level:            getenvDefault("WSTED_LOG_LEVEL", "info"),
		Format:           getenvDefault("WSTED_LOG_FORMAT", "text"),
		DisableTimestamp: false,
		Stdout:           getenvBool("WSTED_LOG_STDOUT", true),
		File: zlog.FileLogConfig{
			RootPath: getenvDefault("WSTED_LOG_FILE_DIR", ""),
			Filename: getenvDefault("WSTED_LOG_FILE", ""),
		},
	}

	if !enabled {
		cfg.Stdout = false
		cfg.File.Filename = ""
	}

	logger, props, err := zlog.InitLogger(cfg)
	if err != nil {
		return fmt.Errorf("init global logger from env: %w", err)
	}
	zlog.ReplaceGlobals(logger, props)
	return nil
}

// initModuleLoggersFromConfig 从配置的 "logging" 段创建命名日志器。
//
// 示例：
//
//	logging:
//	  relay:
//	    level: debug
//	    stdout: true
//	    file:
//	      rootpath: ./logs
//	      filename: relay.log
func (a *Application) initModuleLoggersFromConfig() error {
	if a.cfg == nil {
		return nil
	}

	raw := make(map[string]zlog.Config)
	if err := a.cfg.UnmarshalKey("logging", &raw); err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}

	a.loggers = make(map[string]*zlog.MLogger, len(raw))
	for name, lc := range raw {
		cfgCopy := lc
		logger, _, err := zlog.InitLogger(&cfgCopy)
		if err != nil {
			return fmt.Errorf("init module logger %q: %w", name, err)
		}
		a.loggers[name] = &zlog.MLogger{Logger: logger}
	}

	return nil
}

func getenvDefault(key, def string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	return val
}

func getenvBool(key string, def bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
