package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"identity-api/config"
)

// Service wraps zap so callers never have to nil-check the logger.
type Service struct {
	logger *zap.Logger
}

func NewService(cfg config.LogConfig) (*Service, error) {
	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(parseLevel(cfg.Level))

	switch cfg.Format {
	case "console":
		zapConfig.Encoding = "console"
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		zapConfig.Encoding = "json"
	}

	if cfg.Output != "" && cfg.Output != "stdout" {
		zapConfig.OutputPaths = []string{cfg.Output}
	}

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}

	return &Service{logger: logger}, nil
}

// NewNop returns a no-op service for tests.
func NewNop() *Service {
	return &Service{logger: zap.NewNop()}
}

func (s *Service) Logger() *zap.Logger {
	if s != nil {
		return s.logger
	}
	return nil
}

func (s *Service) Debug(msg string, fields ...zap.Field) {
	if s != nil && s.logger != nil {
		s.logger.Debug(msg, fields...)
	}
}

func (s *Service) Info(msg string, fields ...zap.Field) {
	if s != nil && s.logger != nil {
		s.logger.Info(msg, fields...)
	}
}

func (s *Service) Warn(msg string, fields ...zap.Field) {
	if s != nil && s.logger != nil {
		s.logger.Warn(msg, fields...)
	}
}

func (s *Service) Error(msg string, fields ...zap.Field) {
	if s != nil && s.logger != nil {
		s.logger.Error(msg, fields...)
	}
}

func (s *Service) Fatal(msg string, fields ...zap.Field) {
	if s != nil && s.logger != nil {
		s.logger.Fatal(msg, fields...)
	}
}

func (s *Service) Sync() error {
	if s != nil && s.logger != nil {
		return s.logger.Sync()
	}
	return nil
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
