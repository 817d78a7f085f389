package logger

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Leveled logger shared by every package.
// - backed by zap; the printf helpers go through its SugaredLogger
// - provides Debug/Info/Warn/Error/Fatal variants and Init(level)
// - L() exposes the structured logger for request logs

var (
	mu     sync.RWMutex
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	format = "console"
	base   = build(format)
	sugar  = base.Sugar()
)

func build(f string) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if f == "json" {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}
	return zap.New(zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(os.Stdout)), level))
}

// Init sets the global log level (case-insensitive: debug, info, warn, error, fatal).
// Call early during startup. Default level is Info.
func Init(l string) {
	level.SetLevel(parseLevel(l))
}

// Configure sets the level and the output format ("json" or "console").
func Configure(l, f string) {
	Init(l)
	f = strings.ToLower(strings.TrimSpace(f))
	if f != "json" {
		f = "console"
	}
	mu.Lock()
	defer mu.Unlock()
	if f == format {
		return
	}
	format = f
	base = build(f)
	sugar = base.Sugar()
}

func parseLevel(l string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(l)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// SetCore replaces the output core, keeping the level filter. Tests use
// it with zaptest/observer. The returned func restores the previous logger.
func SetCore(core zapcore.Core) (restore func()) {
	mu.Lock()
	prev := base
	base = zap.New(&levelFilter{Core: core})
	sugar = base.Sugar()
	mu.Unlock()
	return func() {
		mu.Lock()
		base = prev
		sugar = prev.Sugar()
		mu.Unlock()
	}
}

type levelFilter struct{ zapcore.Core }

func (f *levelFilter) Enabled(l zapcore.Level) bool { return level.Enabled(l) && f.Core.Enabled(l) }

func (f *levelFilter) With(fields []zapcore.Field) zapcore.Core {
	return &levelFilter{Core: f.Core.With(fields)}
}

func (f *levelFilter) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !level.Enabled(e.Level) {
		return ce
	}
	return f.Core.Check(e, ce)
}

// L returns the structured logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

func s() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

func Debugf(format string, v ...interface{}) { s().Debugf(format, v...) }
func Infof(format string, v ...interface{})  { s().Infof(format, v...) }
func Warnf(format string, v ...interface{})  { s().Warnf(format, v...) }
func Errorf(format string, v ...interface{}) { s().Errorf(format, v...) }
func Fatalf(format string, v ...interface{}) { s().Fatalf(format, v...) }

// Println kept for brief messages (maps to Info)
func Println(v ...interface{}) { s().Infoln(v...) }

// Debug/Info/Warn/Error helpers that accept a single string
func Debug(v string) { Debugf("%s", v) }
func Info(v string)  { Infof("%s", v) }
func Warn(v string)  { Warnf("%s", v) }
func Error(v string) { Errorf("%s", v) }

// Sync flushes buffered entries; call before exit.
func Sync() { _ = L().Sync() }

// LevelString returns the current level as text.
func LevelString() string {
	return level.Level().String()
}
