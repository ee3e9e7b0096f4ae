package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"kvconsole/internal/constants"
)

type Config struct {
	Level  string
	Format string // json or console
	// File is a log file name or path. Relative names go under the per-user log dir.
	File string
}

// New builds the root logger. The returned closer releases the log file, if any.
func New(cfg Config, stdout io.Writer) (zerolog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), nopCloser{}, err
	}

	var out io.Writer = stdout
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: stdout, TimeFormat: time.TimeOnly}
	}

	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		path, err := ResolvePath(cfg.File)
		if err != nil {
			return zerolog.Nop(), nopCloser{}, err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return zerolog.Nop(), nopCloser{}, fmt.Errorf("failed to create log directory: %w", err)
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return zerolog.Nop(), nopCloser{}, fmt.Errorf("failed to open log file: %w", err)
		}
		out = zerolog.MultiLevelWriter(out, file)
		closer = file
	}

	log := zerolog.New(out).Level(level).With().Timestamp().Str("app", constants.AppName).Logger()
	return log, closer, nil
}

func ParseLevel(s string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return zerolog.InfoLevel, nil
	case "debug":
		return zerolog.DebugLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("invalid log level %q: must be debug, info, warn, or error", s)
	}
}

// ResolvePath places relative file names under LogDir.
func ResolvePath(file string) (string, error) {
	if filepath.IsAbs(file) || strings.ContainsRune(file, os.PathSeparator) {
		return file, nil
	}
	dir, err := LogDir()
	if err != nil {
		return "", fmt.Errorf("failed to get log directory: %w", err)
	}
	return filepath.Join(dir, file), nil
}

// LogDir returns the per-user directory log and audit files default to.
func LogDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(homeDir, "AppData", "Local", constants.AppName, "logs"), nil
	case "darwin":
		return filepath.Join(homeDir, "Library", "Logs", constants.AppName), nil
	default:
		if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
			return filepath.Join(xdgData, constants.AppName, "logs"), nil
		}
		return filepath.Join(homeDir, ".local", "share", constants.AppName, "logs"), nil
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
