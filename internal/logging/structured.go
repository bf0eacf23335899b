package logging

import (
	"encoding/json"
	"fmt"
	"log"
	"time"
)

// LogEntry represents a structured log entry
type LogEntry struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Component string                 `json:"component,omitempty"`
	Job       string                 `json:"job,omitempty"`
	Message   string                 `json:"msg"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// StructuredLogger wraps a standard logger with structured logging
type StructuredLogger struct {
	logger    *log.Logger
	component string
	job       string
	jsonMode  bool
}

// NewStructuredLogger creates a new structured logger
func NewStructuredLogger(logger *log.Logger, component string, jsonMode bool) *StructuredLogger {
	if logger == nil {
		logger = Logger
	}
	return &StructuredLogger{
		logger:    logger,
		component: component,
		jsonMode:  jsonMode,
	}
}

// WithJob returns a logger with job context
func (s *StructuredLogger) WithJob(job string) *StructuredLogger {
	return &StructuredLogger{
		logger:    s.logger,
		component: s.component,
		job:       job,
		jsonMode:  s.jsonMode,
	}
}

// WithComponent returns a logger with component context
func (s *StructuredLogger) WithComponent(component string) *StructuredLogger {
	return &StructuredLogger{
		logger:    s.logger,
		component: component,
		job:       s.job,
		jsonMode:  s.jsonMode,
	}
}

// log formats and writes the log entry
func (s *StructuredLogger) log(level string, msg string, fields map[string]interface{}) {
	entry := LogEntry{
		Timestamp: time.Now().Format(time.RFC3339),
		Level:     level,
		Component: s.component,
		Job:       s.job,
		Message:   msg,
		Fields:    fields,
	}

	if s.jsonMode {
		data, _ := json.Marshal(entry)
		s.logger.Println(string(data))
	} else {
		prefix := ""
		if s.component != "" {
			prefix = fmt.Sprintf("[%s] ", s.component)
		}
		if s.job != "" {
			prefix += fmt.Sprintf("[job:%s] ", s.job)
		}

		output := prefix + msg
		if len(fields) > 0 {
			output += " |"
			for k, v := range fields {
				output += fmt.Sprintf(" %s=%v", k, v)
			}
		}
		s.logger.Println(output)
	}
}

// Info logs an info message
func (s *StructuredLogger) Info(msg string, fields ...map[string]interface{}) {
	s.log("INFO", msg, mergeFields(fields...))
}

// Error logs an error message
func (s *StructuredLogger) Error(msg string, fields ...map[string]interface{}) {
	s.log("ERROR", msg, mergeFields(fields...))
}

// Debug logs a debug message
func (s *StructuredLogger) Debug(msg string, fields ...map[string]interface{}) {
	s.log("DEBUG", msg, mergeFields(fields...))
}

// Warn logs a warning message
func (s *StructuredLogger) Warn(msg string, fields ...map[string]interface{}) {
	s.log("WARN", msg, mergeFields(fields...))
}

// Printf provides compatibility with standard logger interface
func (s *StructuredLogger) Printf(format string, args ...interface{}) {
	s.Info(fmt.Sprintf(format, args...))
}

// mergeFields combines multiple field maps
func mergeFields(fields ...map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{})
	for _, m := range fields {
		for k, v := range m {
			result[k] = v
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
