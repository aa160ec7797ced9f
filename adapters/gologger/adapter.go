// Package gologger resolves the glog logger shared by the webhook service and
// the go-job workers that run its jobs.
package gologger

import (
	"strings"

	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-webhooks/core"
)

// LoggerName is the logger every webhook component asks its provider for.
const LoggerName = "webhooks"

// Logging holds a resolved provider and root logger. The zero value logs
// nothing.
type Logging struct {
	Provider glog.LoggerProvider
	Logger   glog.Logger
}

// NewLogging resolves with glog precedence: provider, then logger, then nop.
func NewLogging(provider glog.LoggerProvider, logger glog.Logger) Logging {
	resolvedProvider, resolvedLogger := glog.Resolve(LoggerName, provider, logger)
	return Logging{Provider: resolvedProvider, Logger: resolvedLogger}
}

// Named returns the component logger "webhooks.<component>".
func (l Logging) Named(component string) glog.Logger {
	component = strings.TrimSpace(component)
	if l.Provider == nil {
		return l.root()
	}
	if component == "" {
		return l.Provider.GetLogger(LoggerName)
	}
	return l.Provider.GetLogger(LoggerName + "." + component)
}

func (l Logging) JobProvider() job.LoggerProvider {
	if l.Provider == nil {
		return nil
	}
	return job.GoLoggerProvider(l.Provider)
}

func (l Logging) JobLogger() job.Logger {
	return job.GoLogger(l.root())
}

// ServiceOptions carries the resolved pair into core.NewService.
func (l Logging) ServiceOptions() []core.Option {
	opts := []core.Option{core.WithLogger(l.root())}
	if l.Provider != nil {
		opts = append(opts, core.WithLoggerProvider(l.Provider))
	}
	return opts
}

func (l Logging) root() glog.Logger {
	if l.Logger == nil {
		return glog.Nop()
	}
	return l.Logger
}
