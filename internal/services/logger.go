package services

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type ServiceIdentifier interface {
	ID() string
}

type ServiceLogger struct {
	logger zerolog.Logger
}

func NewServiceLogger(svc ServiceIdentifier) *ServiceLogger {
	return NewNamedLogger(svc.ID())
}

// NewNamedLogger is for components that are not registered in the container.
func NewNamedLogger(name string) *ServiceLogger {
	return &ServiceLogger{
		logger: log.With().Str("service", name).Logger(),
	}
}

// With returns a child logger carrying an extra field, e.g. a correlation id.
func (l *ServiceLogger) With(key, value string) *ServiceLogger {
	return &ServiceLogger{
		logger: l.logger.With().Str(key, value).Logger(),
	}
}

func (l *ServiceLogger) Info() *zerolog.Event {
	return l.logger.Info()
}

func (l *ServiceLogger) Error() *zerolog.Event {
	return l.logger.Error()
}

func (l *ServiceLogger) Warn() *zerolog.Event {
	return l.logger.Warn()
}

func (l *ServiceLogger) Debug() *zerolog.Event {
	return l.logger.Debug()
}
