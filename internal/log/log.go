// Copyright 2026 The pod5 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package log is a small leveled logging facade, ported from the teacher
// module's own in-repo logger (saferwall/pe/log) rather than adopting a
// third-party logging library: the teacher itself never reaches for one,
// it rolls a minimal Logger/Helper/Filter trio, and that's the idiom this
// module follows for its own ambient logging.
package log

import (
	"fmt"
	"io"
	"log"
	"os"
)

// Level is a log severity.
type Level int8

// Severities, lowest to highest.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger is the minimal sink every Helper writes through.
type Logger interface {
	Log(level Level, msg string) error
}

// stdLogger writes leveled lines to an io.Writer via the standard library
// log package.
type stdLogger struct {
	l *log.Logger
}

// NewStdLogger returns a Logger that writes to w.
func NewStdLogger(w io.Writer) Logger {
	return &stdLogger{l: log.New(w, "", log.LstdFlags)}
}

func (s *stdLogger) Log(level Level, msg string) error {
	s.l.Printf("[%s] %s", level, msg)
	return nil
}

// filter wraps a Logger, dropping records below a minimum level.
type filter struct {
	next Logger
	min  Level
}

// NewFilter returns a Logger that forwards to next only records at or above
// the configured minimum level.
func NewFilter(next Logger, opts ...FilterOption) Logger {
	f := &filter{next: next, min: LevelInfo}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *filter) Log(level Level, msg string) error {
	if level < f.min {
		return nil
	}
	return f.next.Log(level, msg)
}

// FilterOption configures a filter built by NewFilter.
type FilterOption func(*filter)

// FilterLevel sets the minimum level a filter passes through.
func FilterLevel(min Level) FilterOption {
	return func(f *filter) { f.min = min }
}

// Helper is a convenience wrapper exposing Debugf/Infof/Warnf/Errorf over a
// Logger. Writer/Reader/Repacker/Dataset accept an optional Logger in their
// Options and wrap it in a Helper with NewHelper.
type Helper struct {
	logger Logger
}

// NewHelper wraps logger in a Helper. If logger is nil, a Helper writing
// WARN+ to os.Stderr is returned so callers never need a nil check.
func NewHelper(logger Logger) *Helper {
	if logger == nil {
		logger = NewFilter(NewStdLogger(os.Stderr), FilterLevel(LevelWarn))
	}
	return &Helper{logger: logger}
}

func (h *Helper) log(level Level, format string, args ...interface{}) {
	if h == nil || h.logger == nil {
		return
	}
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	_ = h.logger.Log(level, msg)
}

// Debugf logs at DEBUG.
func (h *Helper) Debugf(format string, args ...interface{}) { h.log(LevelDebug, format, args...) }

// Infof logs at INFO.
func (h *Helper) Infof(format string, args ...interface{}) { h.log(LevelInfo, format, args...) }

// Warnf logs at WARN.
func (h *Helper) Warnf(format string, args ...interface{}) { h.log(LevelWarn, format, args...) }

// Errorf logs at ERROR.
func (h *Helper) Errorf(format string, args ...interface{}) { h.log(LevelError, format, args...) }
