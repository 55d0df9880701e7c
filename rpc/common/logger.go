package common

import (
	"fmt"
	"github.com/lni/dragonboat/v4/logger"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LoggerNames lists every logger created by rDBG packages
var LoggerNames = []string{"transport", "engine", "server", "cli"}

const logTimeFormat = "15:04:05.000000"

var (
	logMu      sync.Mutex
	logOut     io.Writer = os.Stderr
	factoryOne sync.Once
)

// levelTags maps a level to the single letter that starts each line
var levelTags = map[logger.LogLevel]byte{
	logger.DEBUG:    'D',
	logger.INFO:     'I',
	logger.WARNING:  'W',
	logger.ERROR:    'E',
	logger.CRITICAL: 'C',
}

// SetLogOutput redirects every rDBG logger to w, nil restores stderr.
// Stdout is left to the CLI output.
func SetLogOutput(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	logMu.Lock()
	logOut = w
	logMu.Unlock()
}

// --------------------------------------------------------------------------
// Line logger (implements dragonboats logger.ILogger)
// --------------------------------------------------------------------------

// lineLogger writes one line per message:
//
//	I 14:03:07.125730 engine    [1f0c9a2e] session started as server, peer id 1
//
// The bracketed session is only present for loggers returned by WithSession.
type lineLogger struct {
	pkg     string
	session string
	level   *atomic.Int32
}

func (l *lineLogger) SetLevel(level logger.LogLevel) { l.level.Store(int32(level)) }

func (l *lineLogger) Debugf(format string, args ...interface{}) {
	l.write(logger.DEBUG, format, args)
}

func (l *lineLogger) Infof(format string, args ...interface{}) {
	l.write(logger.INFO, format, args)
}

func (l *lineLogger) Warningf(format string, args ...interface{}) {
	l.write(logger.WARNING, format, args)
}

func (l *lineLogger) Errorf(format string, args ...interface{}) {
	l.write(logger.ERROR, format, args)
}

// Panicf logs the message at any level and panics with it
func (l *lineLogger) Panicf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.emit(logger.CRITICAL, msg)
	panic(msg)
}

func (l *lineLogger) write(level logger.LogLevel, format string, args []interface{}) {
	if int32(level) > l.level.Load() {
		return
	}
	l.emit(level, fmt.Sprintf(format, args...))
}

func (l *lineLogger) emit(level logger.LogLevel, msg string) {
	var b strings.Builder
	b.WriteByte(levelTags[level])
	b.WriteByte(' ')
	b.WriteString(time.Now().Format(logTimeFormat))
	fmt.Fprintf(&b, " %-9s ", l.pkg)
	if l.session != "" {
		b.WriteString("[" + l.session + "] ")
	}
	b.WriteString(strings.TrimRight(msg, "\n"))
	b.WriteByte('\n')

	logMu.Lock()
	defer logMu.Unlock()
	_, _ = io.WriteString(logOut, b.String())
}

// sessionLogger tags every message of a logger it does not own the format of
type sessionLogger struct {
	logger.ILogger
	session string
}

func (s sessionLogger) Debugf(format string, args ...interface{}) {
	s.ILogger.Debugf("[%s] "+format, s.tag(args)...)
}

func (s sessionLogger) Infof(format string, args ...interface{}) {
	s.ILogger.Infof("[%s] "+format, s.tag(args)...)
}

func (s sessionLogger) Warningf(format string, args ...interface{}) {
	s.ILogger.Warningf("[%s] "+format, s.tag(args)...)
}

func (s sessionLogger) Errorf(format string, args ...interface{}) {
	s.ILogger.Errorf("[%s] "+format, s.tag(args)...)
}

func (s sessionLogger) Panicf(format string, args ...interface{}) {
	s.ILogger.Panicf("[%s] "+format, s.tag(args)...)
}

func (s sessionLogger) tag(args []interface{}) []interface{} {
	return append([]interface{}{s.session}, args...)
}

// WithSession returns a view of base that marks every line with session.
// The view shares the level of base, SetLevel on either affects both.
func WithSession(base logger.ILogger, session string) logger.ILogger {
	if l, ok := base.(*lineLogger); ok {
		return &lineLogger{pkg: l.pkg, session: session, level: l.level}
	}
	return sessionLogger{ILogger: base, session: session}
}

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

// CreateLogger creates the logger of package pkgName at level INFO
func CreateLogger(pkgName string) logger.ILogger {
	level := &atomic.Int32{}
	level.Store(int32(logger.INFO))
	return &lineLogger{pkg: pkgName, level: level}
}

// ParseLogLevel converts a string level to logger.LogLevel
func ParseLogLevel(level string) (logger.LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG, nil
	case "info":
		return logger.INFO, nil
	case "warning", "warn":
		return logger.WARNING, nil
	case "error":
		return logger.ERROR, nil
	default:
		return logger.INFO, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error", level)
	}
}

// InitLoggers installs the line format and sets the level of all rDBG
// loggers. The format is installed once, later calls only change the level.
func InitLoggers(level string) error {
	lvl, err := ParseLogLevel(level)
	if err != nil {
		return err
	}

	factoryOne.Do(func() { logger.SetLoggerFactory(CreateLogger) })

	for _, name := range LoggerNames {
		logger.GetLogger(name).SetLevel(lvl)
	}
	return nil
}
