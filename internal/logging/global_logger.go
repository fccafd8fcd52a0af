package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	setupOnce  sync.Once
	outputMu   sync.Mutex
	fileWriter *lumberjack.Logger
)

// SetupBaseLogger installs the process-wide logrus formatter and writes to
// stdout until ConfigureLogOutput says otherwise.
func SetupBaseLogger() {
	setupOnce.Do(func() {
		log.SetOutput(os.Stdout)
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
			DisableQuote:    true,
		})
		log.SetLevel(log.InfoLevel)
	})
}

// SetLogLevel maps a configured level name onto logrus. Unknown names fall
// back to info.
func SetLogLevel(level string) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "verbose":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn", "warning":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	case "quiet", "silent":
		log.SetLevel(log.FatalLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
}

// ConfigureLogOutput switches between stdout and rotating files under dir.
// Calling it again with new settings closes the previous file writer.
func ConfigureLogOutput(toFile bool, dir string) error {
	outputMu.Lock()
	defer outputMu.Unlock()

	var previous io.Closer
	if fileWriter != nil {
		previous = fileWriter
		fileWriter = nil
	}

	if !toFile {
		log.SetOutput(os.Stdout)
	} else {
		if strings.TrimSpace(dir) == "" {
			dir = "logs"
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("logging: create log dir: %w", err)
		}
		fileWriter = &lumberjack.Logger{
			Filename:   filepath.Join(dir, "chatproxy.log"),
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     14,
			Compress:   true,
		}
		log.SetOutput(fileWriter)
	}

	if previous != nil {
		if err := previous.Close(); err != nil {
			log.Warnf("logging: failed to close previous log file: %v", err)
		}
	}
	return nil
}
