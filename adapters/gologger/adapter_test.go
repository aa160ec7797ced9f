package gologger

import (
	"context"
	"testing"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-webhooks/core"
)

func TestNewLogging_ProviderWinsOverLogger(t *testing.T) {
	fromProvider := &recordingLogger{name: "provider"}
	logging := NewLogging(&namedProvider{base: fromProvider}, &recordingLogger{name: "direct"})

	logging.Logger.Info("hello")
	if len(fromProvider.messages) != 1 {
		t.Fatalf("expected provider logger to be the root, got %d messages", len(fromProvider.messages))
	}

	direct := &recordingLogger{name: "direct"}
	logging = NewLogging(nil, direct)
	if logging.Provider == nil {
		t.Fatalf("expected provider wrapper around direct logger")
	}
	logging.Logger.Info("hello")
	if len(direct.messages) != 1 {
		t.Fatalf("expected direct logger when provider is nil")
	}
}

func TestLogging_NamedAsksProviderForComponent(t *testing.T) {
	provider := &namedProvider{base: &recordingLogger{}}
	logging := NewLogging(provider, nil)

	logging.Named("sweeper")
	logging.Named(" ")
	if got := provider.asked[len(provider.asked)-2]; got != "webhooks.sweeper" {
		t.Fatalf("expected component logger name, got %q", got)
	}
	if got := provider.asked[len(provider.asked)-1]; got != LoggerName {
		t.Fatalf("expected root logger name for blank component, got %q", got)
	}
}

func TestLogging_ZeroValueIsNop(t *testing.T) {
	var logging Logging
	logging.Named("x").Info("ignored")
	logging.JobLogger().Info("ignored")
	if logging.JobProvider() != nil {
		t.Fatalf("expected no job provider without a glog provider")
	}
}

func TestLogging_JobBridgeForwardsArgs(t *testing.T) {
	base := &recordingLogger{}
	logging := NewLogging(&namedProvider{base: base}, nil)

	logging.JobProvider().GetLogger(LoggerName).Info("job started", "job_id", core.JobIDRetry)
	if len(base.messages) != 1 || base.messages[0] != "job started" {
		t.Fatalf("expected bridged message, got %v", base.messages)
	}
	if base.args[0] != "job_id" || base.args[1] != core.JobIDRetry {
		t.Fatalf("expected bridged args, got %#v", base.args)
	}
}

func TestLogging_ServiceOptionsShareLogger(t *testing.T) {
	base := &recordingLogger{}
	logging := NewLogging(&namedProvider{base: base}, nil)

	svc, err := core.NewService(core.DefaultConfig(), logging.ServiceOptions()...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	svc.Dependencies().Logger.Info("probe")
	if len(base.messages) == 0 || base.messages[len(base.messages)-1] != "probe" {
		t.Fatalf("expected service logs to reach the shared logger, got %v", base.messages)
	}
}

type namedProvider struct {
	base  *recordingLogger
	asked []string
}

func (p *namedProvider) GetLogger(name string) glog.Logger {
	p.asked = append(p.asked, name)
	return p.base
}

type recordingLogger struct {
	name     string
	messages []string
	args     []any
}

func (l *recordingLogger) Trace(string, ...any) {}
func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Warn(string, ...any)  {}
func (l *recordingLogger) Error(string, ...any) {}
func (l *recordingLogger) Fatal(string, ...any) {}

func (l *recordingLogger) Info(msg string, args ...any) {
	l.messages = append(l.messages, msg)
	l.args = append([]any(nil), args...)
}

func (l *recordingLogger) WithContext(context.Context) glog.Logger {
	return l
}

var (
	_ glog.Logger         = (*recordingLogger)(nil)
	_ glog.LoggerProvider = (*namedProvider)(nil)
)
