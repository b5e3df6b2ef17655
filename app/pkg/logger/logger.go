package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"
)

var (
	InfoLogger  *log.Logger
	ErrorLogger *log.Logger
)

// Init points both loggers at stdout plus a dated file under logDir. Before
// Init (or if it fails) everything degrades to the stdlib default logger.
func Init(logDir string) error {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return err
	}

	logFile := filepath.Join(logDir, fmt.Sprintf("buddy_%s.log", time.Now().Format("2006-01-02")))
	f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	multiWriter := io.MultiWriter(os.Stdout, f)

	InfoLogger = log.New(multiWriter, "[INFO] ", log.Ldate|log.Ltime)
	ErrorLogger = log.New(multiWriter, "[ERROR] ", log.Ldate|log.Ltime|log.Lshortfile)

	return nil
}

func Info(format string, v ...interface{}) {
	write(InfoLogger, "[INFO] ", format, v...)
}

func Error(format string, v ...interface{}) {
	write(ErrorLogger, "[ERROR] ", format, v...)
}

// Scoped tags every line with a component name so interleaved background
// jobs (sweep, dispatch, agenda) stay attributable in one shared log.
type Scoped struct {
	name string
}

func Scope(name string) Scoped {
	return Scoped{name: name}
}

func (s Scoped) Info(format string, v ...interface{}) {
	write(InfoLogger, "[INFO] ", "["+s.name+"] "+format, v...)
}

func (s Scoped) Error(format string, v ...interface{}) {
	write(ErrorLogger, "[ERROR] ", "["+s.name+"] "+format, v...)
}

func write(l *log.Logger, fallbackPrefix, format string, v ...interface{}) {
	if l != nil {
		l.Output(3, fmt.Sprintf(format, v...))
		return
	}
	log.Printf(fallbackPrefix+format, v...)
}
