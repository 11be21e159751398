package logger

import (
	"context"

	fcontext "github.com/finnctl/finnctl/pkg/context"
)

// WithContext returns a logger that adds the run id and command carried by ctx
func WithContext(ctx context.Context, log Logger) Logger {
	if ctx == nil || log == nil {
		return OrNop(log)
	}
	return &contextualLogger{ctx: ctx, logger: log}
}

type contextualLogger struct {
	ctx    context.Context
	logger Logger
}

func (cl *contextualLogger) fields(fields []Field) []Field {
	var extra []Field
	if id, ok := fcontext.RunID(cl.ctx); ok {
		extra = append(extra, WithField("run_id", id))
	}
	if cmd, ok := fcontext.Command(cl.ctx); ok {
		extra = append(extra, WithField("command", cmd))
	}
	return append(extra, fields...)
}

func (cl *contextualLogger) Info(message string, fields ...Field) {
	cl.logger.Info(message, cl.fields(fields)...)
}

func (cl *contextualLogger) Error(message string, fields ...Field) {
	cl.logger.Error(message, cl.fields(fields)...)
}

func (cl *contextualLogger) Warn(message string, fields ...Field) {
	cl.logger.Warn(message, cl.fields(fields)...)
}

func (cl *contextualLogger) Debug(message string, fields ...Field) {
	cl.logger.Debug(message, cl.fields(fields)...)
}

func (cl *contextualLogger) Success(message string, fields ...Field) {
	cl.logger.Success(message, cl.fields(fields)...)
}

func (cl *contextualLogger) WithProject(project string) Logger {
	return &contextualLogger{
		ctx:    cl.ctx,
		logger: cl.logger.WithProject(project),
	}
}
