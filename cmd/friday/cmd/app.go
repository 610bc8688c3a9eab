package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"Friday_1.0/internal/cache"
	"Friday_1.0/internal/cache/store"
	"Friday_1.0/internal/config"
	"Friday_1.0/internal/coordinator"
	"Friday_1.0/internal/runtime"
	"Friday_1.0/internal/scheduler"
	"Friday_1.0/internal/security"
	"Friday_1.0/pkg/logger"
)

// app 聚合一次命令执行所需的全部组件，供各个子命令复用。
type app struct {
	cfg       *config.AppConfig
	log       *logger.Logger
	gate      *security.Gate
	cache     *cache.Cache
	history   *cache.History
	coord     *coordinator.Coordinator
	scheduler *scheduler.Scheduler
	sweeper   *cache.Sweeper
}

// newApp 按配置组装组件栈。调用方在命令结束时必须调用 close。
func newApp() (*app, error) {
	// 1. 加载配置
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	// 2. 初始化 Logger
	level, err := logrus.ParseLevel(cfg.Logger.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.Init(level)
	log := logger.New("CLI", "")

	// 3. 初始化安全检查；未配置允许目录时只允许当前工作目录
	if len(cfg.Security.AllowedDirs) == 0 {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
		cfg.Security.AllowedDirs = []string{wd}
	}
	gate, err := security.NewGate(cfg.Security)
	if err != nil {
		return nil, fmt.Errorf("initialize security gate: %w", err)
	}

	// 4. 初始化缓存持久层和上下文缓存
	slow, err := store.New(cfg.Cache.Store)
	if err != nil {
		return nil, fmt.Errorf("initialize cache store: %w", err)
	}
	contentCache, err := cache.New(cfg.Cache, slow)
	if err != nil {
		return nil, fmt.Errorf("initialize cache: %w", err)
	}

	// 5. 初始化执行历史
	history, err := cache.NewHistory(cfg.History)
	if err != nil {
		return nil, fmt.Errorf("initialize history: %w", err)
	}

	// 6. 初始化 Agent 运行时
	rt, err := runtime.New(cfg.Runtime)
	if err != nil {
		return nil, fmt.Errorf("initialize agent runtime: %w", err)
	}

	// 7. 初始化协调器和调度器
	coord, err := coordinator.NewCoordinator(cfg.Coordinator, rt, gate, contentCache, history)
	if err != nil {
		return nil, fmt.Errorf("initialize coordinator: %w", err)
	}
	sched := scheduler.NewScheduler(coord)

	// 8. 启动周期清理
	interval, _ := time.ParseDuration(cfg.Cache.SweepInterval)
	sweeper := cache.NewSweeper(contentCache, history, interval)
	sweeper.Start()

	return &app{
		cfg:       cfg,
		log:       log,
		gate:      gate,
		cache:     contentCache,
		history:   history,
		coord:     coord,
		scheduler: sched,
		sweeper:   sweeper,
	}, nil
}

// close 停止后台清理并释放持久层连接。
func (a *app) close() {
	a.sweeper.Stop()
	if err := a.cache.Close(); err != nil {
		a.log.WithError(err).Warn("Failed to close cache cleanly")
	}
}

// loadConfig 读取配置文件。显式指定的配置文件必须存在；
// 默认路径缺失时回退到内置默认配置。
func loadConfig() (*config.AppConfig, error) {
	if _, err := os.Stat(cfgFile); err != nil {
		if os.IsNotExist(err) && !rootCmd.PersistentFlags().Changed("config") {
			return config.Default(), nil
		}
		return nil, fmt.Errorf("config file %s: %w", cfgFile, err)
	}
	return config.LoadConfig(cfgFile)
}
