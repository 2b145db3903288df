package service

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ken196502/strategy-simulator/conf"
)

// NewLogger 服务层结构化日志：stdout + lumberjack 滚动文件
func NewLogger() *zap.Logger {
	hertzConf := conf.GetConf().Hertz
	rotating := &lumberjack.Logger{
		Filename:   hertzConf.LogFileName,
		MaxSize:    hertzConf.LogMaxSize,
		MaxBackups: hertzConf.LogMaxBackups,
		MaxAge:     hertzConf.LogMaxAge,
	}

	level := zapcore.InfoLevel
	switch hertzConf.LogLevel {
	case "trace", "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	case "fatal":
		level = zapcore.FatalLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.NewMultiWriteSyncer(zapcore.AddSync(os.Stdout), zapcore.AddSync(rotating)),
		level,
	)
	return zap.New(core)
}
