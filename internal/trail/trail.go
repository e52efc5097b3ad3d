// Package trail writes the per-sample execution trail: one timestamped line
// per event, echoed to the console and appended to the sample's log file.
package trail

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TimeLayout is the timestamp format of every trail line.
const TimeLayout = "2006-01-02 15:04:05"

// Trail is an append-only, timestamped text log.
type Trail struct {
	logger *zap.Logger
	file   *os.File
	clock  zapcore.Clock
	path   string
}

type options struct {
	console io.Writer
	clock   zapcore.Clock
}

// Option configures a Trail.
type Option func(*options)

// WithConsole redirects the console copy of the trail (default os.Stdout).
func WithConsole(w io.Writer) Option {
	return func(o *options) { o.console = w }
}

// WithClock overrides the time source used for timestamps and step timers.
func WithClock(c zapcore.Clock) Option {
	return func(o *options) { o.clock = c }
}

// Open creates a trail that writes to the console and, when path is
// non-empty, appends to the file at path (creating parent directories).
func Open(path string, opts ...Option) (*Trail, error) {
	o := options{console: os.Stdout, clock: zapcore.DefaultClock}
	for _, opt := range opts {
		opt(&o)
	}

	enc := zapcore.NewConsoleEncoder(encoderConfig())
	cores := []zapcore.Core{
		zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(o.console)), zapcore.DebugLevel),
	}

	t := &Trail{clock: o.clock, path: path}
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		t.file = f
		cores = append(cores, zapcore.NewCore(enc.Clone(), zapcore.AddSync(f), zapcore.DebugLevel))
	}

	t.logger = zap.New(zapcore.NewTee(cores...), zap.WithClock(o.clock))
	return t, nil
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:    "ts",
		MessageKey: "msg",
		EncodeTime: func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString("[" + t.Format(TimeLayout) + "]")
		},
		ConsoleSeparator: " ",
		LineEnding:       zapcore.DefaultLineEnding,
	}
}

// Path returns the log file path, or "" for a console-only trail.
func (t *Trail) Path() string {
	return t.path
}

// Logf writes one trail line.
func (t *Trail) Logf(format string, args ...any) {
	t.logger.Info(fmt.Sprintf(format, args...))
}

// Warnf writes one trail line flagged as a warning. Warnings never abort a run.
func (t *Trail) Warnf(format string, args ...any) {
	t.logger.Warn("Warning: " + fmt.Sprintf(format, args...))
}

// Step starts timing a unit of work.
func (t *Trail) Step() *Timer {
	return &Timer{trail: t, start: t.clock.Now()}
}

// Close flushes and closes the log file.
func (t *Trail) Close() error {
	_ = t.logger.Sync()
	if t.file != nil {
		return t.file.Close()
	}
	return nil
}

// Timer measures elapsed time for a trail step.
type Timer struct {
	trail *Trail
	start time.Time
}

// Elapsed returns the time since the step started.
func (tm *Timer) Elapsed() time.Duration {
	return tm.trail.clock.Now().Sub(tm.start)
}

// Done logs msg followed by the elapsed seconds, e.g. "VCF filtered in 1.2 seconds".
func (tm *Timer) Done(format string, args ...any) {
	tm.trail.Logf("%s in %.1f seconds", fmt.Sprintf(format, args...), tm.Elapsed().Seconds())
}
