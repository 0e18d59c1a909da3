package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const timeFormat = "2006/01/02 15:04:05.000"

var (
	levelColors = map[zapcore.Level]string{
		zapcore.DebugLevel: "\x1b[36m",
		zapcore.InfoLevel:  "\x1b[32m",
		zapcore.WarnLevel:  "\x1b[33m",
		zapcore.ErrorLevel: "\x1b[31m",
		zapcore.FatalLevel: "\x1b[35m",
	}

	levelNames = map[zapcore.Level]string{
		zapcore.DebugLevel: "DEBUG",
		zapcore.InfoLevel:  "INFO·",
		zapcore.WarnLevel:  "WARN·",
		zapcore.ErrorLevel: "ERROR",
		zapcore.FatalLevel: "FATAL",
	}
)

type Config struct {
	AppName    string
	Level      string
	Directory  string // 为空则只输出控制台
	FormatJson bool
	ErrorFile  bool
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

type Option func(*Config)

func WithAppName(name string) Option     { return func(c *Config) { c.AppName = name } }
func WithLevel(level string) Option      { return func(c *Config) { c.Level = level } }
func WithDirectory(dir string) Option    { return func(c *Config) { c.Directory = dir } }
func WithFormatJson(enabled bool) Option { return func(c *Config) { c.FormatJson = enabled } }
func WithErrorFile(enabled bool) Option  { return func(c *Config) { c.ErrorFile = enabled } }

func defaultConfig() *Config {
	return &Config{
		AppName:    "app",
		Level:      "debug",
		Directory:  "",
		FormatJson: false,
		ErrorFile:  false,
		MaxSizeMB:  100,
		MaxBackups: 7,
		MaxAgeDays: 7,
		Compress:   true,
	}
}

type zapWrap struct {
	log     *zap.Logger
	sugar   *zap.SugaredLogger
	level   zap.AtomicLevel
	closers []io.Closer
}

func (w *zapWrap) close() error {
	_ = w.log.Sync()
	for _, closer := range w.closers {
		_ = closer.Close()
	}
	return nil
}

func newZapWrap(c *Config) *zapWrap {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		panic(fmt.Errorf("invalid log level: %s", c.Level))
	}

	cores := []zapcore.Core{
		newConsoleCore(level),
	}
	if c.Directory != "" {
		cores = append(cores, newFileCores(c, level)...)
	}

	opts := []zap.Option{
		zap.AddCaller(),
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zap.PanicLevel),
	}

	l := zap.New(zapcore.NewTee(cores...), opts...)
	return &zapWrap{
		log:   l,
		sugar: l.Sugar(),
		level: level,
	}
}

func newConsoleCore(level zapcore.LevelEnabler) zapcore.Core {
	encoder := zapcore.NewConsoleEncoder(newEncoderConfig(false))
	return zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level)
}

func newFileCores(c *Config, level zap.AtomicLevel) []zapcore.Core {
	var cores []zapcore.Core

	fileCore := func(filename string, minLevel zapcore.LevelEnabler) zapcore.Core {
		writer := &lumberjack.Logger{
			Filename:   filepath.Join(c.Directory, filename),
			MaxSize:    c.MaxSizeMB,
			MaxBackups: c.MaxBackups,
			MaxAge:     c.MaxAgeDays,
			Compress:   c.Compress,
			LocalTime:  true,
		}

		encoder := zapcore.NewConsoleEncoder(newEncoderConfig(true))
		if c.FormatJson {
			encoder = zapcore.NewJSONEncoder(newEncoderConfig(true))
		}
		return zapcore.NewCore(encoder, zapcore.AddSync(writer), minLevel)
	}

	cores = append(cores, fileCore(c.AppName+".log", level))
	if c.ErrorFile {
		cores = append(cores, fileCore(c.AppName+"_error.log", zap.ErrorLevel))
	}
	return cores
}

func newEncoderConfig(file bool) zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = timeEncoder
	cfg.EncodeLevel = levelEncoder
	cfg.EncodeCaller = callerEncoder
	cfg.ConsoleSeparator = " "

	if !file {
		cfg.EncodeLevel = colorLevelEncoder
	}
	return cfg
}

func timeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(fmt.Sprintf("[%s]", t.Format(timeFormat)))
}

func callerEncoder(c zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(fmt.Sprintf("[%s]", c.TrimmedPath()))
}

func levelEncoder(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(fmt.Sprintf("[%s]", levelName(l)))
}

func colorLevelEncoder(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(fmt.Sprintf("[%s%s\x1b[0m]", levelColors[l], levelName(l)))
}

func levelName(l zapcore.Level) string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return l.CapitalString()
}
