package logger

import (
	"context"
	"errors"
	"time"

	gormlogger "gorm.io/gorm/logger"
)

// GormLogger routes gorm's statement and error logging into this package.
// SQL traces are emitted at DEBUG; statements slower than SlowThreshold at WARN.
type GormLogger struct {
	SlowThreshold time.Duration
	level         gormlogger.LogLevel
}

// NewGormLogger returns a gorm logger whose verbosity follows the global log level.
func NewGormLogger(slowThreshold time.Duration) gormlogger.Interface {
	lvl := gormlogger.Warn
	if Enabled(LevelDebug) {
		lvl = gormlogger.Info
	}
	return &GormLogger{SlowThreshold: slowThreshold, level: lvl}
}

func (g *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *g
	cp.level = level
	return &cp
}

func (g *GormLogger) Info(_ context.Context, msg string, data ...interface{}) {
	if g.level >= gormlogger.Info {
		Debugf("gorm: "+msg, data...)
	}
}

func (g *GormLogger) Warn(_ context.Context, msg string, data ...interface{}) {
	if g.level >= gormlogger.Warn {
		Warnf("gorm: "+msg, data...)
	}
}

func (g *GormLogger) Error(_ context.Context, msg string, data ...interface{}) {
	if g.level >= gormlogger.Error {
		Errorf("gorm: "+msg, data...)
	}
}

func (g *GormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound) && g.level >= gormlogger.Error:
		sql, rows := fc()
		Errorf("gorm: %v [%s] rows=%d %s", err, elapsed, rows, sql)
	case g.SlowThreshold > 0 && elapsed > g.SlowThreshold && g.level >= gormlogger.Warn:
		sql, rows := fc()
		Warnf("gorm: slow query (>%s) [%s] rows=%d %s", g.SlowThreshold, elapsed, rows, sql)
	case g.level >= gormlogger.Info:
		sql, rows := fc()
		Debugf("gorm: [%s] rows=%d %s", elapsed, rows, sql)
	}
}
