// Package logger is the category logger every binary uses: coloured lines on
// the terminal, JSON lines in a daily file.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

var levelNames = map[LogLevel]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
	FATAL: "FATAL",
}

var levelColors = map[LogLevel][2]*color.Color{
	DEBUG: {color.New(color.FgCyan), color.New(color.FgCyan, color.Bold)},
	INFO:  {color.New(color.FgGreen), color.New(color.FgGreen, color.Bold)},
	WARN:  {color.New(color.FgYellow), color.New(color.FgYellow, color.Bold)},
	ERROR: {color.New(color.FgRed), color.New(color.FgRed, color.Bold)},
	FATAL: {color.New(color.FgRed, color.Bold), color.New(color.FgRed, color.Bold)},
}

func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "INFO"
}

// ParseLevel reads LOG_LEVEL style names. Unknown names mean INFO.
func ParseLevel(s string) LogLevel {
	for level, name := range levelNames {
		if strings.EqualFold(s, name) {
			return level
		}
	}
	return INFO
}

type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Service   string `json:"service"`
	Category  string `json:"category"`
	Message   string `json:"message"`
	File      string `json:"file,omitempty"`
	Line      int    `json:"line,omitempty"`
}

type Logger struct {
	service string
	min     LogLevel
	out     io.Writer
	logFile *os.File
	mu      sync.Mutex
}

// NewLogger writes to stdout and to <LOG_DIR>/rallysphere-<service>-<date>.log.
// LOG_LEVEL drops anything below it.
func NewLogger(service string) *Logger {
	dir := os.Getenv("LOG_DIR")
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Fatal("Failed to create logs directory:", err)
	}

	logFileName := filepath.Join(dir, fmt.Sprintf("rallysphere-%s-%s.log", service, time.Now().Format("2006-01-02")))
	logFile, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		log.Fatal("Failed to create log file:", err)
	}

	l := &Logger{
		service: service,
		min:     ParseLevel(os.Getenv("LOG_LEVEL")),
		out:     os.Stdout,
		logFile: logFile,
	}
	l.Info("LOGGER", fmt.Sprintf("Logging to %s at level %s", logFileName, l.min))
	return l
}

// NewWithWriter logs terminal output to w only, at every level.
func NewWithWriter(service string, w io.Writer) *Logger {
	if w == nil {
		w = io.Discard
	}
	return &Logger{service: service, min: DEBUG, out: w}
}

// Nop discards everything.
func Nop() *Logger {
	return NewWithWriter("nop", io.Discard)
}

func (l *Logger) log(level LogLevel, category, message string) {
	if level < l.min {
		return
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
		Level:     level.String(),
		Service:   l.service,
		Category:  strings.ToUpper(category),
		Message:   message,
	}
	// Skip log and the exported wrapper.
	if _, file, line, ok := runtime.Caller(2); ok {
		entry.File, entry.Line = filepath.Base(file), line
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	fmt.Fprint(l.out, formatTerminal(level, entry))
	if l.logFile != nil {
		if b, err := json.Marshal(entry); err == nil {
			l.logFile.Write(append(b, '\n'))
		}
	}
}

func formatTerminal(level LogLevel, entry LogEntry) string {
	colors, ok := levelColors[level]
	if !ok {
		colors = levelColors[INFO]
	}

	var b strings.Builder
	b.WriteString(color.New(color.FgBlue).Sprint(entry.Timestamp[11:19]))
	b.WriteByte(' ')
	b.WriteString(colors[0].Sprintf("%-5s", entry.Level))
	b.WriteByte(' ')
	b.WriteString(colors[1].Sprintf("[%-10s]", entry.Category))
	b.WriteByte(' ')
	b.WriteString(entry.Message)
	if entry.File != "" && entry.Line > 0 {
		b.WriteString(color.New(color.FgMagenta).Sprintf(" (%s:%d)", entry.File, entry.Line))
	}
	b.WriteByte('\n')
	return b.String()
}

func (l *Logger) Debug(category, message string) {
	l.log(DEBUG, category, message)
}

func (l *Logger) Info(category, message string) {
	l.log(INFO, category, message)
}

func (l *Logger) Warn(category, message string) {
	l.log(WARN, category, message)
}

func (l *Logger) Error(category, message string) {
	l.log(ERROR, category, message)
}

func (l *Logger) Fatal(category, message string) {
	l.log(FATAL, category, message)
	os.Exit(1)
}

// Component helpers
func (l *Logger) LogEvent(action, eventID, message string) {
	l.log(INFO, "EVENT", fmt.Sprintf("[%s] %s - %s", action, eventID, message))
}

func (l *Logger) LogOrder(action, orderID, message string) {
	l.log(INFO, "ORDER", fmt.Sprintf("[%s] %s - %s", action, orderID, message))
}

func (l *Logger) LogAPI(method, path, status, duration string) {
	l.log(INFO, "API", fmt.Sprintf("%s %s - %s (%s)", method, path, status, duration))
}

func (l *Logger) LogKafka(action, topic, message string) {
	l.log(INFO, "KAFKA", fmt.Sprintf("[%s] %s - %s", action, topic, message))
}

func (l *Logger) LogSecurity(event, message string) {
	l.log(WARN, "SECURITY", fmt.Sprintf("[%s] %s", event, message))
}

func (l *Logger) Close() {
	if l.logFile != nil {
		l.Info("LOGGER", "Closing log file")
		l.logFile.Close()
	}
}
