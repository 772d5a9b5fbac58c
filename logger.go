package zkclient

import "go.uber.org/zap"

// Logger is the logging surface the client needs. *zap.SugaredLogger
// satisfies it as is.
type Logger interface {
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})
	Info(v ...interface{})
	Infof(format string, v ...interface{})
	Warn(v ...interface{})
	Warnf(format string, v ...interface{})
	Error(v ...interface{})
	Errorf(format string, v ...interface{})
}

// Log is used by clients created without WithLogger.
var Log Logger = zap.NewNop().Sugar()

// deviceLogger prefixes every line with the terminal address.
func deviceLogger(l Logger, ep Endpoint) Logger {
	if s, ok := l.(*zap.SugaredLogger); ok {
		return s.With("device", ep.String())
	}
	return &prefixLogger{l: l, prefix: "[" + ep.String() + "] "}
}

type prefixLogger struct {
	l      Logger
	prefix string
}

func (p *prefixLogger) Debug(v ...interface{}) { p.l.Debug(append([]interface{}{p.prefix}, v...)...) }
func (p *prefixLogger) Debugf(format string, v ...interface{}) {
	p.l.Debugf(p.prefix+format, v...)
}
func (p *prefixLogger) Info(v ...interface{}) { p.l.Info(append([]interface{}{p.prefix}, v...)...) }
func (p *prefixLogger) Infof(format string, v ...interface{}) {
	p.l.Infof(p.prefix+format, v...)
}
func (p *prefixLogger) Warn(v ...interface{}) { p.l.Warn(append([]interface{}{p.prefix}, v...)...) }
func (p *prefixLogger) Warnf(format string, v ...interface{}) {
	p.l.Warnf(p.prefix+format, v...)
}
func (p *prefixLogger) Error(v ...interface{}) { p.l.Error(append([]interface{}{p.prefix}, v...)...) }
func (p *prefixLogger) Errorf(format string, v ...interface{}) {
	p.l.Errorf(p.prefix+format, v...)
}
