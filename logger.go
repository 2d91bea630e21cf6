package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// ========================================
// Structured Logger - 结构化日志系统
// ========================================

// Logger 全局日志实例
var Logger zerolog.Logger

// persistentLogger 持久化日志管理器
var persistentLogger *PersistentLogger

// LogLevel 日志级别
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

// ParseLogLevel maps "debug", "info", "warn" and "error" to a LogLevel
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug, nil
	case "", "info":
		return LogLevelInfo, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "error":
		return LogLevelError, nil
	}
	return LogLevelInfo, fmt.Errorf("unknown log level %q", s)
}

// LogConfig 日志配置
type LogConfig struct {
	Level      LogLevel
	Console    bool      // 是否输出到控制台
	ConsoleOut io.Writer // 控制台输出目标, 默认 stderr (stdout 留给报告和 MCP)
	File       bool      // 是否输出到文件
	FilePath   string    // 日志文件路径
	MaxSizeMB  int       // 单个日志文件最大大小 (MB)
	MaxAgeDays int       // 日志保留天数
	MaxBackups int       // 最大备份数量
	Compress   bool      // 是否压缩旧日志
	NoColor    bool
	JSON       bool // 控制台输出原始 JSON 而不是 ConsoleWriter
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:      LogLevelInfo,
		Console:    true,
		File:       false,
		MaxSizeMB:  10,
		MaxAgeDays: 7,
		MaxBackups: 5,
		Compress:   true,
	}
}

// PersistentLogConfig 返回持久化日志配置
func PersistentLogConfig(dataDir string) LogConfig {
	cfg := DefaultLogConfig()
	cfg.File = true
	cfg.FilePath = filepath.Join(dataDir, "logs", "fleetbench.log")
	return cfg
}

// ========================================
// PersistentLogger - 持久化日志管理器
// ========================================

// PersistentLogger 管理日志文件轮转和清理
type PersistentLogger struct {
	mu          sync.Mutex
	config      LogConfig
	currentFile *os.File
	currentSize int64
	logDir      string
	stop        chan struct{}
	closeOnce   sync.Once
}

// NewPersistentLogger 创建持久化日志管理器
func NewPersistentLogger(config LogConfig) (*PersistentLogger, error) {
	logDir := filepath.Dir(config.FilePath)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	pl := &PersistentLogger{
		config: config,
		logDir: logDir,
		stop:   make(chan struct{}),
	}

	if err := pl.openFile(); err != nil {
		return nil, err
	}

	// 启动清理协程
	go pl.cleanupRoutine()

	return pl, nil
}

// Write 实现 io.Writer 接口
func (pl *PersistentLogger) Write(p []byte) (n int, err error) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	// 检查是否需要轮转
	if pl.config.MaxSizeMB > 0 && pl.currentSize > 0 && pl.currentSize+int64(len(p)) > int64(pl.config.MaxSizeMB)*1024*1024 {
		if err := pl.rotate(); err != nil {
			return 0, err
		}
	}

	n, err = pl.currentFile.Write(p)
	pl.currentSize += int64(n)
	return n, err
}

// openFile 打开日志文件
func (pl *PersistentLogger) openFile() error {
	file, err := os.OpenFile(pl.config.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}

	pl.currentFile = file
	pl.currentSize = info.Size()
	return nil
}

// rotatedPrefix is the name prefix of rotated files
func (pl *PersistentLogger) rotatedPrefix() string {
	base := filepath.Base(pl.config.FilePath)
	return strings.TrimSuffix(base, filepath.Ext(base)) + "_"
}

// rotate 轮转日志文件
func (pl *PersistentLogger) rotate() error {
	if pl.currentFile != nil {
		pl.currentFile.Close()
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05.000")
	rotatedPath := filepath.Join(pl.logDir, pl.rotatedPrefix()+timestamp+".log")

	if err := os.Rename(pl.config.FilePath, rotatedPath); err != nil {
		// 如果重命名失败，尝试直接打开新文件
		return pl.openFile()
	}

	if pl.config.Compress {
		go pl.compressFile(rotatedPath)
	}

	return pl.openFile()
}

// compressFile 压缩日志文件, 成功后删除原文件
func (pl *PersistentLogger) compressFile(filePath string) error {
	src, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(filePath + ".gz")
	if err != nil {
		return err
	}

	gz := gzip.NewWriter(dst)
	_, err = io.Copy(gz, src)
	if cerr := gz.Close(); err == nil {
		err = cerr
	}
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(filePath + ".gz")
		return err
	}

	src.Close()
	return os.Remove(filePath)
}

// cleanupRoutine 定期清理旧日志
func (pl *PersistentLogger) cleanupRoutine() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	pl.cleanup()

	for {
		select {
		case <-pl.stop:
			return
		case <-ticker.C:
			pl.cleanup()
		}
	}
}

// cleanup 清理旧日志文件
func (pl *PersistentLogger) cleanup() {
	files, err := filepath.Glob(filepath.Join(pl.logDir, pl.rotatedPrefix()+"*.log*"))
	if err != nil {
		return
	}

	type fileInfo struct {
		path    string
		modTime time.Time
	}
	var fileInfos []fileInfo

	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			continue
		}
		fileInfos = append(fileInfos, fileInfo{path: f, modTime: info.ModTime()})
	}

	// 新的在前
	sort.Slice(fileInfos, func(i, j int) bool {
		return fileInfos[i].modTime.After(fileInfos[j].modTime)
	})

	now := time.Now()
	for i, fi := range fileInfos {
		if pl.config.MaxAgeDays > 0 && now.Sub(fi.modTime) > time.Duration(pl.config.MaxAgeDays)*24*time.Hour {
			os.Remove(fi.path)
			continue
		}
		if pl.config.MaxBackups > 0 && i >= pl.config.MaxBackups {
			os.Remove(fi.path)
		}
	}
}

// Close 关闭日志文件
func (pl *PersistentLogger) Close() error {
	pl.closeOnce.Do(func() { close(pl.stop) })

	pl.mu.Lock()
	defer pl.mu.Unlock()

	if pl.currentFile != nil {
		err := pl.currentFile.Close()
		pl.currentFile = nil
		return err
	}
	return nil
}

// ========================================
// 日志初始化
// ========================================

// InitLogger 初始化日志系统
func InitLogger(config LogConfig) error {
	var writers []io.Writer

	out := config.ConsoleOut
	if out == nil {
		out = os.Stderr
	}

	if config.Console {
		if config.JSON {
			writers = append(writers, out)
		} else {
			writers = append(writers, zerolog.ConsoleWriter{
				Out:        out,
				TimeFormat: "15:04:05",
				NoColor:    config.NoColor || !isTerminal(out),
			})
		}
	}

	if config.File && config.FilePath != "" {
		pl, err := NewPersistentLogger(config)
		if err != nil {
			return err
		}
		if persistentLogger != nil {
			persistentLogger.Close()
		}
		persistentLogger = pl
		writers = append(writers, pl)
	}

	// 如果没有配置任何输出，默认输出到控制台
	if len(writers) == 0 {
		writers = append(writers, zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"})
	}

	multi := zerolog.MultiLevelWriter(writers...)

	var level zerolog.Level
	switch config.Level {
	case LogLevelDebug:
		level = zerolog.DebugLevel
	case LogLevelWarn:
		level = zerolog.WarnLevel
	case LogLevelError:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}

	Logger = zerolog.New(multi).
		Level(level).
		With().
		Timestamp().
		Logger()

	return nil
}

// isTerminal 非终端输出(重定向到文件或管道)时不加颜色
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// CloseLogger 关闭日志系统
func CloseLogger() {
	if persistentLogger != nil {
		persistentLogger.Close()
		persistentLogger = nil
	}
}

// GetLogFilePath 获取日志文件路径
func GetLogFilePath() string {
	if persistentLogger != nil {
		return persistentLogger.config.FilePath
	}
	return ""
}

// ========================================
// 便捷日志函数
// ========================================

// LogDebug 输出 Debug 级别日志
func LogDebug(module string) *zerolog.Event {
	return Logger.Debug().Str("module", module)
}

// LogInfo 输出 Info 级别日志
func LogInfo(module string) *zerolog.Event {
	return Logger.Info().Str("module", module)
}

// LogWarn 输出 Warn 级别日志
func LogWarn(module string) *zerolog.Event {
	return Logger.Warn().Str("module", module)
}

// LogError 输出 Error 级别日志
func LogError(module string) *zerolog.Event {
	return Logger.Error().Str("module", module)
}

// DeviceLog 设备管理日志
func DeviceLog() *zerolog.Event {
	return Logger.Info().Str("module", "device")
}

// RunLog 实验运行日志
func RunLog() *zerolog.Event {
	return Logger.Info().Str("module", "run")
}

// ========================================
// 性能日志
// ========================================

// OperationTimer 操作计时器
type OperationTimer struct {
	module    string
	operation string
	startTime time.Time
	details   map[string]interface{}
}

// StartOperation 开始计时
func StartOperation(module, operation string) *OperationTimer {
	return &OperationTimer{
		module:    module,
		operation: operation,
		startTime: time.Now(),
		details:   make(map[string]interface{}),
	}
}

// AddDetail 添加详细信息
func (t *OperationTimer) AddDetail(key string, value interface{}) *OperationTimer {
	t.details[key] = value
	return t
}

// End 结束计时并记录日志
func (t *OperationTimer) End() {
	t.log(Logger.Info(), nil).Msg("Operation completed")
}

// EndWithError 结束计时并记录错误
func (t *OperationTimer) EndWithError(err error) {
	t.log(Logger.Error(), err).Msg("Operation failed")
}

func (t *OperationTimer) log(event *zerolog.Event, err error) *zerolog.Event {
	duration := time.Since(t.startTime)
	event = event.
		Str("module", t.module).
		Str("category", "performance").
		Str("operation", t.operation).
		Dur("duration", duration).
		Int64("duration_ms", duration.Milliseconds())
	if err != nil {
		event = event.Err(err)
	}

	for k, v := range t.details {
		switch val := v.(type) {
		case string:
			event.Str(k, val)
		case int:
			event.Int(k, val)
		case int64:
			event.Int64(k, val)
		case float64:
			event.Float64(k, val)
		case bool:
			event.Bool(k, val)
		default:
			event.Interface(k, val)
		}
	}
	return event
}

func init() {
	// 默认初始化 (控制台输出)
	_ = InitLogger(DefaultLogConfig())
}
