package cli

import (
	"errors"
	"sync"

	"parley/internal/config"
	"parley/internal/storage"
	"parley/pkg/logger"

	"github.com/rs/zerolog"
)

// CLIContext CLI 上下文
type CLIContext struct {
	Config     *config.Config
	ConfigPath string
	Logger     *zerolog.Logger
	Verbose    bool
	Quiet      bool

	historyPath string
	storageOnce sync.Once
	storage     *storage.DB
	storageErr  error
}

// NewCLIContext 创建 CLI 上下文
func NewCLIContext(cfg *config.Config, configPath string, log *zerolog.Logger, historyPath string, verbose, quiet bool) *CLIContext {
	return &CLIContext{
		Config:      cfg,
		ConfigPath:  configPath,
		Logger:      log,
		Verbose:     verbose,
		Quiet:       quiet,
		historyPath: historyPath,
	}
}

// HistoryPath 返回历史数据库路径
func (c *CLIContext) HistoryPath() string {
	return c.historyPath
}

// GetStorage 获取历史数据库连接（懒加载）
func (c *CLIContext) GetStorage() (*storage.DB, error) {
	c.storageOnce.Do(func() {
		c.storage, c.storageErr = storage.Open(c.historyPath)
	})
	return c.storage, c.storageErr
}

// Close 关闭数据库和日志文件
func (c *CLIContext) Close() error {
	var errs []error
	if c.storage != nil {
		errs = append(errs, c.storage.Close())
	}
	errs = append(errs, logger.Close())
	return errors.Join(errs...)
}

// Log 获取 Logger
func (c *CLIContext) Log() *zerolog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logger.Get()
}
