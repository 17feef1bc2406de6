package log

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the process-wide sugared logger.
var Logger *zap.SugaredLogger

type LogConfig struct {
	Filename   string // empty means /dev/stderr
	MaxSize    int    // MB per file
	MaxBackups int
	MaxAge     int // days
	Compress   bool
	Level      zapcore.Level
	Console    bool
}

func DefaultLogConfig() LogConfig {
	return LogConfig{
		Filename:   "ferry.log",
		MaxSize:    10,
		MaxBackups: 10,
		MaxAge:     30,
		Compress:   true,
		Level:      zapcore.InfoLevel,
		Console:    true,
	}
}

func InitLogger(config LogConfig) {
	var writeSyncers []zapcore.WriteSyncer

	if config.Filename == "" {
		writeSyncers = append(writeSyncers, zapcore.AddSync(os.Stderr))
	} else {
		writeSyncers = append(writeSyncers, getLogWriter(config))
		// console tee only makes sense when the primary sink is a file
		if config.Console {
			writeSyncers = append(writeSyncers, zapcore.AddSync(os.Stdout))
		}
	}

	multiWriteSyncer := zapcore.NewMultiWriteSyncer(writeSyncers...)

	encoder := getEncoder()
	core := zapcore.NewCore(encoder, multiWriteSyncer, config.Level)
	logger := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	Logger = logger.Sugar()
}

// Init initializes the logger with the default config at the given level.
func Init(filename, level string) {
	config := DefaultLogConfig()
	config.Filename = filename
	l, err := zapcore.ParseLevel(level)
	if err != nil {
		panic(err)
	}
	config.Level = l
	InitLogger(config)
}

// Close flushes any buffered log entries.
func Close() {
	if Logger != nil {
		_ = Logger.Sync()
	}
}

func getEncoder() zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	return zapcore.NewConsoleEncoder(encoderConfig)
}

func getLogWriter(config LogConfig) zapcore.WriteSyncer {
	lumberJackLogger := &lumberjack.Logger{
		Filename:   config.Filename,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}
	return zapcore.AddSync(lumberJackLogger)
}
