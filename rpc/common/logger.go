package common

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/lni/dragonboat/v4/logger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// --------------------------------------------------------------------------
// Custom Logger (implements dragonboats logger.ILogger)
// --------------------------------------------------------------------------

// base is the zap logger every named logger writes to. It is swapped by InitLoggers,
// loggers created earlier pick up the new backend on their next call.
var base atomic.Pointer[zap.Logger]

func init() {
	l, _ := newZapLogger("console")
	base.Store(l)
}

// dCacheLogger implements the ILogger interface on top of zap
type dCacheLogger struct {
	name  string
	level atomic.Int32
}

func (l *dCacheLogger) SetLevel(level logger.LogLevel) {
	l.level.Store(int32(level))
}

func (l *dCacheLogger) enabled(level logger.LogLevel) bool {
	return logger.LogLevel(l.level.Load()) >= level
}

func (l *dCacheLogger) sugar() *zap.SugaredLogger {
	return base.Load().Named(l.name).Sugar()
}

func (l *dCacheLogger) Debugf(format string, args ...interface{}) {
	if l.enabled(logger.DEBUG) {
		l.sugar().Debugf(format, args...)
	}
}

func (l *dCacheLogger) Infof(format string, args ...interface{}) {
	if l.enabled(logger.INFO) {
		l.sugar().Infof(format, args...)
	}
}

func (l *dCacheLogger) Warningf(format string, args ...interface{}) {
	if l.enabled(logger.WARNING) {
		l.sugar().Warnf(format, args...)
	}
}

func (l *dCacheLogger) Errorf(format string, args ...interface{}) {
	if l.enabled(logger.ERROR) {
		l.sugar().Errorf(format, args...)
	}
}

func (l *dCacheLogger) Panicf(format string, args ...interface{}) {
	l.sugar().Errorf(format, args...)
	panic(fmt.Sprintf(format, args...))
}

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

// CreateLogger implements the logger.Factory interface
func CreateLogger(pkgName string) logger.ILogger {
	l := &dCacheLogger{name: pkgName}
	l.SetLevel(logger.INFO)
	return l
}

// newZapLogger builds the shared zap backend. format is either "console" or "json".
// Level filtering happens per named logger, so zap itself logs everything from debug upwards.
func newZapLogger(format string) (*zap.Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(format) {
	case "", "console":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		cfg.DisableStacktrace = true
	case "json":
		cfg = zap.NewProductionConfig()
		cfg.Sampling = nil
	default:
		return nil, fmt.Errorf("invalid log format: %s. must be one of console, json", format)
	}
	cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	cfg.OutputPaths = []string{"stdout"}
	cfg.DisableCaller = true
	return cfg.Build()
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// parseLogLevel converts a string level to logger.LogLevel
func parseLogLevel(level string) (logger.LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG, nil
	case "", "info":
		return logger.INFO, nil
	case "warning", "warn":
		return logger.WARNING, nil
	case "error":
		return logger.ERROR, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error", level)
	}
}

// --------------------------------------------------------------------------
// Logger initialization
// --------------------------------------------------------------------------

var installFactory sync.Once

// LoggerNames lists the named loggers used across dCache
var LoggerNames = []string{"rpc", "transport/rpc", "rest", "registry"}

// InitLoggers installs the zap backed logger factory and applies the configured level and format
func InitLoggers(config ServerConfig) error {
	level, err := parseLogLevel(config.LogLevel)
	if err != nil {
		return err
	}
	zl, err := newZapLogger(config.LogFormat)
	if err != nil {
		return err
	}
	if old := base.Swap(zl); old != nil {
		_ = old.Sync()
	}

	installFactory.Do(func() {
		logger.SetLoggerFactory(CreateLogger)
	})

	for _, name := range LoggerNames {
		logger.GetLogger(name).SetLevel(level)
	}
	return nil
}
