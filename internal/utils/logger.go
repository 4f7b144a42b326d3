package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"time"
)

// LogLevel is the severity of a record.
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

var levelNames = [...]string{DEBUG: "DEBUG", INFO: "INFO", WARN: "WARN", ERROR: "ERROR"}

func (l LogLevel) String() string {
	if l < DEBUG || l > ERROR {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLogLevel maps a config value to a LogLevel; unknown values mean INFO.
func ParseLogLevel(value string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	}
	return INFO
}

// RedactedPlaceholder replaces secrets found in log lines.
const RedactedPlaceholder = "[REDACTED]"

const defaultLogFileName = "chemagent-debug.log"

// LoggerOptions configures the process-wide file logger. Options applied
// after the first component logger was created are ignored.
type LoggerOptions struct {
	Level      LogLevel
	EnableFile bool
	FilePath   string
	Stdout     bool
}

var (
	rootOnce    sync.Once
	root        *sink
	rootLevel   LogLevel
	rootOptions = LoggerOptions{Level: INFO, EnableFile: true}
)

// ConfigureLogger sets the options used when the process logger is opened.
func ConfigureLogger(opts LoggerOptions) {
	rootOptions = opts
}

// Logger writes printf-style records as
// "2006-01-02 15:04:05 [LEVEL] [component] file.go:42 - message".
type Logger struct {
	out       *sink
	level     LogLevel
	component string
}

type sink struct {
	mu      sync.Mutex
	writers []io.Writer
}

func (s *sink) write(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.writers {
		_, _ = io.WriteString(w, line)
	}
}

// NewComponentLogger returns a logger on the shared process sink.
func NewComponentLogger(component string) *Logger {
	rootOnce.Do(func() {
		root = openSink(rootOptions)
		rootLevel = rootOptions.Level
	})
	return &Logger{out: root, level: rootLevel, component: component}
}

// NewWriterLogger returns a logger that writes only to w.
func NewWriterLogger(component string, w io.Writer, level LogLevel) *Logger {
	return &Logger{out: &sink{writers: []io.Writer{w}}, level: level, component: component}
}

func openSink(opts LoggerOptions) *sink {
	s := &sink{}
	if opts.Stdout {
		s.writers = append(s.writers, os.Stdout)
	}
	if !opts.EnableFile {
		return s
	}
	path := opts.FilePath
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			log.Printf("chemagent: no home directory for the log file: %v", err)
			return s
		}
		path = filepath.Join(home, defaultLogFileName)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Printf("chemagent: cannot open log file: %v", err)
		return s
	}
	s.writers = append(s.writers, file)
	return s
}

func (l *Logger) Debug(format string, args ...any) { l.log(DEBUG, format, args...) }
func (l *Logger) Info(format string, args ...any)  { l.log(INFO, format, args...) }
func (l *Logger) Warn(format string, args ...any)  { l.log(WARN, format, args...) }
func (l *Logger) Error(format string, args ...any) { l.log(ERROR, format, args...) }

func (l *Logger) log(level LogLevel, format string, args ...any) {
	if level < l.level || len(l.out.writers) == 0 {
		return
	}
	component := l.component
	if component == "" {
		component = "CHEMAGENT"
	}
	file, line := callerOutsideLogging()
	record := fmt.Sprintf("%s [%s] [%s] %s:%d - %s\n",
		time.Now().Format("2006-01-02 15:04:05"), level, component, file, line, fmt.Sprintf(format, args...))
	l.out.write(sanitizeLogLine(record))
}

// callerOutsideLogging finds the first frame that is not part of the logging
// plumbing, so records point at the code that logged even through fan-out
// wrappers.
func callerOutsideLogging() (string, int) {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !isLoggingFrame(frame.File) {
			return filepath.Base(frame.File), frame.Line
		}
		if !more {
			return "???", 0
		}
	}
}

func isLoggingFrame(file string) bool {
	return strings.HasSuffix(file, "internal/utils/logger.go") || strings.Contains(file, "internal/logging/")
}

var (
	authorizationBearerPattern = regexp.MustCompile(
		`(?i)((?:"|')?authorization(?:"|')?\s*(?:=|:)\s*)(bearer\s+)([^"'\s,;]+)`,
	)
	sensitiveKeyValuePattern = regexp.MustCompile(
		`(?i)((?:"|')?(?:api[_-]?key|x-api-key|access[_-]?token|token|secret|password)(?:"|')?\s*(?:=|:)\s*)(?:"|')?([^"'\s,;]+)((?:"|')?)`,
	)
	bearerTokenPattern      = regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9\-\._~+/]+=*)`)
	standaloneSecretPattern = regexp.MustCompile(`(sk-[A-Za-z0-9\-_]{16,}|tvly-[A-Za-z0-9]{16,})`)
)

// sanitizeLogLine masks bearer tokens, key=value secrets and bare provider
// keys (OpenAI sk-, Tavily tvly-).
func sanitizeLogLine(line string) string {
	line = authorizationBearerPattern.ReplaceAllString(line, "${1}${2}"+RedactedPlaceholder)
	line = sensitiveKeyValuePattern.ReplaceAllString(line, "${1}"+RedactedPlaceholder+"${3}")
	line = bearerTokenPattern.ReplaceAllString(line, "${1}"+RedactedPlaceholder)
	return standaloneSecretPattern.ReplaceAllString(line, RedactedPlaceholder)
}
