// Package jitlog provides the structured-logging facade used across
// tensorjit: a single logrus.Logger, configurable once at process
// start, plus the debug hex/bin word formatters used by compilation
// diagnostics and by persisted kernel dumps.
package jitlog

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu     sync.RWMutex
	once   sync.Once
	logger *logrus.Logger
)

func initDefault() {
	logger = logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.InfoLevel)
}

// Logger returns the process-wide structured logger, lazily
// initialized to stderr at Info level. Call SetLogger before first use
// to override either.
func Logger() *logrus.Logger {
	once.Do(initDefault)
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// SetLogger replaces the process-wide logger. Intended for embedders
// that want JSON output or a different level.
func SetLogger(l *logrus.Logger) {
	once.Do(func() {})
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

// HexWord formats an instruction word as "0x" followed by eight
// lowercase hex digits, zero-padded — the debug format named in the
// external-interfaces section.
func HexWord(w uint32) string {
	const digits = "0123456789abcdef"
	buf := make([]byte, 10)
	buf[0], buf[1] = '0', 'x'
	for i := 0; i < 8; i++ {
		shift := uint(28 - i*4)
		buf[2+i] = digits[(w>>shift)&0xf]
	}
	return string(buf)
}

// BinWord formats an instruction word as 32 '0'/'1' characters,
// most-significant bit first.
func BinWord(w uint32) string {
	buf := make([]byte, 32)
	for i := 0; i < 32; i++ {
		bit := (w >> uint(31-i)) & 1
		if bit == 1 {
			buf[i] = '1'
		} else {
			buf[i] = '0'
		}
	}
	return string(buf)
}
