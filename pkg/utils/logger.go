package utils

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync" // For thread-safe initialization

	"github.com/google/uuid"
	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"
)

// DefaultLogFile is where the workspace log rotates.
const DefaultLogFile = ".xmlagent/workspace.log"

// Logger writes structured records to the rotating workspace log and, when
// verbose, mirrors them to stderr. User-facing lines go to the console
// writer.
type Logger struct {
	slog                   *slog.Logger
	file                   *lumberjack.Logger
	level                  *slog.LevelVar
	out                    io.Writer
	in                     *bufio.Reader
	userInteractionEnabled bool
	verbose                bool
	correlationID          string
	mu                     sync.Mutex
}

var (
	globalLogger *Logger
	once         sync.Once
)

// GetLogger returns the process-wide logger, creating it on first use.
// skipPrompts only takes effect on that first call; use SetInteractive to
// change it afterwards.
func GetLogger(skipPrompts bool) *Logger {
	once.Do(func() {
		path := os.Getenv("XMLAGENT_LOG_FILE")
		if path == "" {
			path = DefaultLogFile
		}
		cid := os.Getenv("XMLAGENT_CORRELATION_ID")
		if cid == "" {
			cid = uuid.NewString()
		}
		globalLogger = newLogger(path, cid, os.Getenv("XMLAGENT_VERBOSE") == "1")
		globalLogger.userInteractionEnabled = !skipPrompts
	})
	return globalLogger
}

func newLogger(path, cid string, verbose bool) *Logger {
	file := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    15, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	level := new(slog.LevelVar)
	level.Set(slog.LevelDebug)
	l := &Logger{
		file:          file,
		level:         level,
		out:           os.Stdout,
		in:            bufio.NewReader(os.Stdin),
		verbose:       verbose,
		correlationID: cid,
	}
	l.rebuild()
	return l
}

func (w *Logger) rebuild() {
	handlers := []slog.Handler{
		slog.NewJSONHandler(w.file, &slog.HandlerOptions{Level: w.level}),
	}
	if w.verbose {
		handlers = append(handlers, slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	w.slog = slog.New(slogmulti.Fanout(handlers...)).With("cid", w.correlationID)
}

// SetVerbose toggles mirroring of log records to stderr.
func (w *Logger) SetVerbose(verbose bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.verbose == verbose {
		return
	}
	w.verbose = verbose
	w.rebuild()
}

// SetOutput redirects user-facing output, mainly for tests.
func (w *Logger) SetOutput(out io.Writer) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.out = out
}

// SetInput replaces the reader used for confirmations.
func (w *Logger) SetInput(in io.Reader) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.in = bufio.NewReader(in)
}

// SetInteractive turns confirmation prompts on or off.
func (w *Logger) SetInteractive(enabled bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.userInteractionEnabled = enabled
}

// Interactive reports whether confirmations prompt the user.
func (w *Logger) Interactive() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.userInteractionEnabled
}

// CorrelationID identifies this process in the log file.
func (w *Logger) CorrelationID() string {
	return w.correlationID
}

// Slog exposes the underlying structured logger.
func (w *Logger) Slog() *slog.Logger {
	return w.slog
}

// Close flushes and closes the log file.
func (w *Logger) Close() error {
	return w.file.Close()
}

// Log logs a general message only to the log file.
func (w *Logger) Log(message string) {
	w.slog.Info(message)
}

// Logf logs a formatted general message only to the log file.
func (w *Logger) Logf(format string, v ...any) {
	w.slog.Info(fmt.Sprintf(format, v...))
}

// Debugf logs at debug level.
func (w *Logger) Debugf(format string, v ...any) {
	w.slog.Debug(fmt.Sprintf(format, v...))
}

func (w *Logger) LogError(err error) {
	if err == nil {
		return
	}
	w.slog.Error("error", "error", err.Error())
}

// LogProcessStep records a step of a longer operation and shows it to the user.
func (w *Logger) LogProcessStep(step string) {
	w.slog.Info("process step", "step", step)
	w.print(step + "\n")
}

// LogUserInteraction records a message that is shown to the user.
func (w *Logger) LogUserInteraction(message string) {
	w.slog.Info("user interaction", "message", message)
	w.print(message)
}

func (w *Logger) print(s string) {
	w.mu.Lock()
	out := w.out
	w.mu.Unlock()
	fmt.Fprint(out, s)
}

// AskForConfirmation prompts with a yes/no question. An empty answer takes
// defaultResponse. When prompts are disabled the default is returned, unless
// required is set, in which case the answer is no.
func (w *Logger) AskForConfirmation(prompt string, defaultResponse bool, required bool) bool {
	if !w.Interactive() {
		if required {
			w.Logf("confirmation required but prompts are disabled: %q", prompt)
			return false
		}
		w.Logf("auto-confirmed: %s", prompt)
		return defaultResponse
	}
	return w.AskYesNo(prompt, defaultResponse)
}

// AskYesNo prompts regardless of the interaction setting.
func (w *Logger) AskYesNo(prompt string, defaultResponse bool) bool {
	w.mu.Lock()
	in := w.in
	w.mu.Unlock()

	hint := "[y/N]"
	if defaultResponse {
		hint = "[Y/n]"
	}
	for {
		w.LogUserInteraction(fmt.Sprintf("%s %s ", prompt, hint))
		response, err := in.ReadString('\n')
		response = strings.ToLower(strings.TrimSpace(response))
		if response == "" {
			if err != nil && err != io.EOF {
				w.LogError(err)
			}
			return defaultResponse
		}
		switch response {
		case "yes", "y":
			return true
		case "no", "n":
			return false
		default:
			if err != nil {
				return defaultResponse
			}
			w.LogUserInteraction("Invalid input. Please type 'yes' or 'no'.\n")
		}
	}
}

// ReadLine prompts and returns one trimmed line of input.
func (w *Logger) ReadLine(prompt string) (string, error) {
	w.mu.Lock()
	in := w.in
	w.mu.Unlock()
	if prompt != "" {
		w.print(prompt)
	}
	line, err := in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return strings.TrimSpace(line), err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
