package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	mu     sync.RWMutex
	logger *logrus.Logger
)

// ParseLevel 把 DEBUG/INFO/WARN/ERROR 映射到 logrus 级别，未知值回退到 INFO
func ParseLevel(s string) logrus.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return logrus.DebugLevel
	case "INFO":
		return logrus.InfoLevel
	case "WARN", "WARNING":
		return logrus.WarnLevel
	case "ERROR":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Initialize 配置全局 logger。file 为空时输出到 stderr，否则追加写入文件并记录调用位置
func Initialize(level, file string) error {
	l := logrus.New()
	l.SetLevel(ParseLevel(level))

	if file == "" {
		l.SetOutput(os.Stderr)
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	} else {
		if dir := filepath.Dir(file); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create log dir: %w", err)
			}
		}
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		l.SetOutput(f)
		l.SetReportCaller(true)
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
			DisableColors:   true,
		})
	}

	mu.Lock()
	logger = l
	mu.Unlock()

	l.WithFields(logrus.Fields{
		"log_level": l.GetLevel().String(),
		"log_file":  file,
	}).Debug("Logging system initialized")
	return nil
}

// SetOutput 测试用：把日志重定向到 w
func SetOutput(w io.Writer) {
	GetLogger().SetOutput(w)
}

// GetLogger 返回全局 logger，未初始化时使用 INFO 级别的 stderr logger
func GetLogger() *logrus.Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	}
	return logger
}

// WithComponent 带组件名的 entry
func WithComponent(component string) *logrus.Entry {
	return GetLogger().WithField("component", component)
}

// WithAnalysis 一次评审流程的上下文
func WithAnalysis(runID, repoURL string) *logrus.Entry {
	return GetLogger().WithFields(logrus.Fields{
		"component": "analysis_service",
		"run_id":    runID,
		"repo_url":  repoURL,
	})
}

// WithError creates a logger with error context
func WithError(err error, component string) *logrus.Entry {
	l := GetLogger()
	fields := logrus.Fields{
		"error":     err.Error(),
		"component": component,
	}
	if l.GetLevel() >= logrus.DebugLevel {
		fields["stack_trace"] = stackTrace()
	}
	return l.WithFields(fields)
}

func stackTrace() string {
	var stack []string
	for i := 2; i < 10; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		fn := runtime.FuncForPC(pc)
		stack = append(stack, fmt.Sprintf("%s:%d %s", file, line, fn.Name()))
	}
	return strings.Join(stack, "\n")
}
