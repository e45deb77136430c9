package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Log는 전역 로거 인스턴스
	Log *zap.Logger
	// fileWriter는 현재 파일 writer
	fileWriter *lumberjack.Logger
)

// LogConfig는 로거 설정
type LogConfig struct {
	Level      string
	Output     string // "console", "file", "both"
	FilePath   string
	MaxSize    int
	MaxBackups int
	MaxAge     int
}

// InitLogger는 zap 로거를 초기화합니다
func InitLogger(cfg LogConfig) error {
	// 로그 레벨 파싱
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	// 인코더 설정
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	consoleEncoder := zapcore.NewConsoleEncoder(encoderConfig)
	fileEncoder := zapcore.NewJSONEncoder(encoderConfig)

	var core zapcore.Core

	switch cfg.Output {
	case "file":
		w, err := newFileWriter(cfg)
		if err != nil {
			return err
		}
		fileWriter = w
		core = zapcore.NewCore(fileEncoder, zapcore.AddSync(fileWriter), level)
	case "both":
		w, err := newFileWriter(cfg)
		if err != nil {
			return err
		}
		fileWriter = w
		core = zapcore.NewTee(
			zapcore.NewCore(consoleEncoder, zapcore.AddSync(os.Stdout), level),
			zapcore.NewCore(fileEncoder, zapcore.AddSync(fileWriter), level),
		)
	default:
		core = zapcore.NewCore(consoleEncoder, zapcore.AddSync(os.Stdout), level)
	}

	Log = zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	return nil
}

// newFileWriter는 로테이션이 적용된 로그 파일 writer를 생성합니다
func newFileWriter(cfg LogConfig) (*lumberjack.Logger, error) {
	logDir := filepath.Dir(cfg.FilePath)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	return &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,    // MB
		MaxBackups: cfg.MaxBackups, // 보관할 최대 파일 개수
		MaxAge:     cfg.MaxAge,     // 일 단위
		LocalTime:  true,
		Compress:   true,
	}, nil
}

// Close는 로거를 종료하고 리소스를 정리합니다
func Close() {
	if Log != nil {
		_ = Log.Sync()
	}
	if fileWriter != nil {
		_ = fileWriter.Close()
	}
}

// Sync는 로거 버퍼를 플러시합니다
func Sync() {
	if Log != nil {
		_ = Log.Sync()
	}
}

// Info는 info 레벨 로그를 출력합니다
func Info(msg string, fields ...zap.Field) {
	if Log != nil {
		Log.Info(msg, fields...)
	}
}

// Debug는 debug 레벨 로그를 출력합니다
func Debug(msg string, fields ...zap.Field) {
	if Log != nil {
		Log.Debug(msg, fields...)
	}
}

// Warn는 warn 레벨 로그를 출력합니다
func Warn(msg string, fields ...zap.Field) {
	if Log != nil {
		Log.Warn(msg, fields...)
	}
}

// Error는 error 레벨 로그를 출력합니다
func Error(msg string, fields ...zap.Field) {
	if Log != nil {
		Log.Error(msg, fields...)
	}
}

// Fatal는 fatal 레벨 로그를 출력하고 프로그램을 종료합니다
func Fatal(msg string, fields ...zap.Field) {
	if Log != nil {
		Log.Fatal(msg, fields...)
	}
}
