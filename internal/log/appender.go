package log

import (
	"fmt"
	"io"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/natefinch/lumberjack.v2"
)

// MultiWriter fans writes out to every appender. A failing appender does not
// stop the others; the last error is returned.
type MultiWriter struct {
	writers []io.Writer
}

func (m *MultiWriter) Write(p []byte) (n int, err error) {
	for _, w := range m.writers {
		_, e := w.Write(p)
		if e != nil {
			err = e
		}
	}
	return len(p), err
}

func (m *MultiWriter) Add(writer io.Writer) *MultiWriter {
	m.writers = append(m.writers, writer)
	return m
}

func (m *MultiWriter) Len() int { return len(m.writers) }

func NewMultiWriter() *MultiWriter {
	return &MultiWriter{writers: make([]io.Writer, 0)}
}

func (m *MultiWriter) AddConsoleAppender(options ConsoleAppenderOpt) *MultiWriter {
	if options.Target == "stdout" {
		return m.Add(os.Stdout)
	}
	return m.Add(os.Stderr)
}

func (m *MultiWriter) AddFileAppender(options FileAppenderOpt) *MultiWriter {
	writer := &lumberjack.Logger{
		Filename:   options.Filename,
		MaxSize:    options.MaxSize, // megabytes
		MaxBackups: options.MaxBackups,
		MaxAge:     options.MaxAge, // days
		Compress:   options.Compress,
	}
	return m.Add(writer)
}

func (m *MultiWriter) addAppender(cfg AppenderConfig) error {
	switch cfg.Type {
	case "console", "":
		var opt ConsoleAppenderOpt
		if err := mapstructure.Decode(cfg.Options, &opt); err != nil {
			return fmt.Errorf("console appender options: %w", err)
		}
		m.AddConsoleAppender(opt)
	case "file":
		var opt FileAppenderOpt
		if err := mapstructure.Decode(cfg.Options, &opt); err != nil {
			return fmt.Errorf("file appender options: %w", err)
		}
		if opt.Filename == "" {
			return fmt.Errorf("file appender requires a filename")
		}
		m.AddFileAppender(opt)
	default:
		return fmt.Errorf("unknown appender type %q", cfg.Type)
	}
	return nil
}
