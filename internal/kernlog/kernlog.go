// Package kernlog is the ambient structured-logging and panic-banner
// layer (spec.md §7, §9's "variadic formatting / panic printing" design
// note), built on go.uber.org/zap the way the rest of the retrieval pack
// reaches for it for structured logging rather than hand-rolled printf.
//
// Two zap cores run side by side: a console core that stands in for the
// teacher's serial/UART prints, and a bounded ring-buffer core that keeps
// the last N rendered lines around so the panic banner can replay recent
// kernel log output the way a real serial console still would after a
// hang. spec.md §9 explicitly distrusts forwarding varargs across
// function boundaries during a panic ("avoid forwarding varargs across
// functions and should pre-format each line"); Fatal follows that
// discipline by accepting a plain message string plus zap.Field values,
// never a format string.
package kernlog

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const ringCapacity = 64

// ringBuffer holds the last ringCapacity encoded log lines.
type ringBuffer struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool
}

func newRingBuffer() *ringBuffer {
	return &ringBuffer{lines: make([]string, ringCapacity)}
}

func (r *ringBuffer) push(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines[r.next] = line
	r.next = (r.next + 1) % ringCapacity
	if r.next == 0 {
		r.full = true
	}
}

// recent returns the buffered lines in chronological order, oldest first.
func (r *ringBuffer) recent() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		out := make([]string, r.next)
		copy(out, r.lines[:r.next])
		return out
	}
	out := make([]string, 0, ringCapacity)
	out = append(out, r.lines[r.next:]...)
	out = append(out, r.lines[:r.next]...)
	return out
}

// ringCore is a zapcore.Core that renders entries through enc and stashes
// the rendered text in ring instead of writing it anywhere itself.
type ringCore struct {
	zapcore.LevelEnabler
	enc  zapcore.Encoder
	ring *ringBuffer
}

func newRingCore(enc zapcore.Encoder, enab zapcore.LevelEnabler, ring *ringBuffer) zapcore.Core {
	return &ringCore{LevelEnabler: enab, enc: enc, ring: ring}
}

func (c *ringCore) With(fields []zapcore.Field) zapcore.Core {
	clone := c.enc.Clone()
	for _, f := range fields {
		f.AddTo(clone)
	}
	return &ringCore{LevelEnabler: c.LevelEnabler, enc: clone, ring: c.ring}
}

func (c *ringCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *ringCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	buf, err := c.enc.EncodeEntry(ent, fields)
	if err != nil {
		return err
	}
	c.ring.push(strings.TrimRight(buf.String(), "\n"))
	buf.Free()
	return nil
}

func (c *ringCore) Sync() error { return nil }

// Stats is the system-state summary spec.md §7's panic path requires
// ("uptime, free/total memory"). A Logger has no subsystem handles of its
// own, so cmd/cupidos wires a StatsFunc in once internal/timer and
// internal/pmm exist.
type Stats struct {
	UptimeTicks uint64
	FreePages   uint32
	TotalPages  uint32
}

// StatsFunc produces a fresh Stats snapshot on demand.
type StatsFunc func() Stats

// Logger wraps a zap.Logger with the ring-buffer replay and fatal-banner
// machinery spec.md §7 describes.
type Logger struct {
	z     *zap.Logger
	ring  *ringBuffer
	halt  func(banner string)
	stats StatsFunc
}

// New builds a Logger. halt is invoked with the fully rendered panic
// banner once a Fatal call's diagnostics are assembled; it is expected to
// not return (cmd/cupidos wires os.Exit(1), tests record the call
// instead).
func New(halt func(banner string)) *Logger {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "" // uptime ticks are the kernel's clock, not wall time
	enc := zapcore.NewConsoleEncoder(cfg)

	ring := newRingBuffer()
	console := zapcore.NewCore(enc, zapcore.AddSync(os.Stdout), zap.DebugLevel)
	replay := newRingCore(enc, zap.DebugLevel, ring)

	return &Logger{
		z:    zap.New(zapcore.NewTee(console, replay)),
		ring: ring,
		halt: halt,
	}
}

// SetStats wires the system-state summary source in. Called once during
// boot, after internal/pmm and internal/timer exist.
func (l *Logger) SetStats(fn StatsFunc) { l.stats = fn }

func (l *Logger) Debug(msg string, fields ...zap.Field) { l.z.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...zap.Field)  { l.z.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.z.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.z.Error(msg, fields...) }

// Sync flushes the console core.
func (l *Logger) Sync() error { return l.z.Sync() }

// Fatal renders spec.md §7's panic banner — a banner line, the requesting
// message, the replayed recent log lines (standing in for "general
// purpose registers... a stack back-chain walk... a hex window of the
// current stack", none of which a hosted goroutine has a faithful
// equivalent of), and a system-state summary — then calls halt. kind
// names the fatal class (heap.Corruption, heap.DoubleFree,
// stackguard overflow, and so on); it is logged as a field, never
// interpolated into a format string, per spec.md §9's varargs warning.
func (l *Logger) Fatal(kind string, msg string, fields ...zap.Field) {
	l.z.Error(msg, append(fields, zap.String("kind", kind))...)

	var b strings.Builder
	fmt.Fprintf(&b, "=== KERNEL PANIC: %s ===\n", kind)
	fmt.Fprintf(&b, "%s\n", msg)
	for _, f := range fields {
		fmt.Fprintf(&b, "  %s = %v\n", f.Key, fieldValue(f))
	}
	b.WriteString("--- recent log ---\n")
	for _, line := range l.ring.recent() {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if l.stats != nil {
		s := l.stats()
		fmt.Fprintf(&b, "--- system state ---\nuptime_ticks=%d free_pages=%d/%d\n",
			s.UptimeTicks, s.FreePages, s.TotalPages)
	}
	b.WriteString("=== HALTED ===\n")
	banner := b.String()

	fmt.Fprint(os.Stderr, banner)
	if l.halt != nil {
		l.halt(banner)
	}
}

// fieldValue extracts a zap.Field's value for the pre-rendered banner
// without reaching for zap's own (allocation-heavy, reflection-based)
// ObjectMarshaler machinery — spec.md §9 asks the panic path to avoid
// exactly that kind of indirection.
func fieldValue(f zap.Field) any {
	switch f.Type {
	case zapcore.StringType:
		return f.String
	case zapcore.Int64Type, zapcore.Int32Type, zapcore.Uint64Type, zapcore.Uint32Type:
		return f.Integer
	case zapcore.BoolType:
		return f.Integer != 0
	default:
		return f.Interface
	}
}
