// Package uci drives an external chess engine speaking the Universal Chess
// Interface over stdin and stdout.
package uci

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/discochess/gambit/internal/engine"
	"github.com/discochess/gambit/internal/stats"
)

// Compile-time check that Engine implements engine.Searcher.
var _ engine.Searcher = (*Engine)(nil)

// ErrClosed is returned by operations on a closed engine.
var ErrClosed = errors.New("uci: engine closed")

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultStopGrace        = 2 * time.Second
	defaultQuitGrace        = time.Second
)

// Engine is a running UCI engine process. Searches are serialized.
type Engine struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	writer *bufio.Writer
	lines  chan string
	exited chan struct{}
	name   string

	opts   options
	logger *zap.Logger
	stats  stats.Collector

	mu     sync.Mutex
	closed atomic.Bool

	// owed is set when a stopped search's bestmove has not arrived yet.
	owed bool
}

type options struct {
	args             []string
	env              []string
	threads          int
	hashMB           int
	multiPV          int
	contempt         *int
	extra            map[string]string
	handshakeTimeout time.Duration
	stopGrace        time.Duration
	logger           *zap.Logger
	stats            stats.Collector
}

// Option configures an Engine.
type Option func(*options)

// WithArgs sets command line arguments for the engine binary.
func WithArgs(args ...string) Option {
	return func(o *options) { o.args = args }
}

// WithEnv appends environment variables for the engine process.
func WithEnv(env ...string) Option {
	return func(o *options) { o.env = append(o.env, env...) }
}

// WithThreads sets the Threads option.
func WithThreads(n int) Option {
	return func(o *options) { o.threads = n }
}

// WithHash sets the Hash option in megabytes.
func WithHash(mb int) Option {
	return func(o *options) { o.hashMB = mb }
}

// WithMultiPV sets how many principal variations the engine reports.
func WithMultiPV(n int) Option {
	return func(o *options) { o.multiPV = n }
}

// WithContempt sets the Contempt option.
func WithContempt(cp int) Option {
	return func(o *options) { o.contempt = &cp }
}

// WithOption sets an arbitrary engine option.
func WithOption(name, value string) Option {
	return func(o *options) {
		if o.extra == nil {
			o.extra = make(map[string]string)
		}
		o.extra[name] = value
	}
}

// WithStopGrace bounds how long a cancelled search waits for its bestmove.
func WithStopGrace(d time.Duration) Option {
	return func(o *options) { o.stopGrace = d }
}

// WithHandshakeTimeout bounds the uci and isready exchanges.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *options) { o.handshakeTimeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithStats sets the stats collector.
func WithStats(c stats.Collector) Option {
	return func(o *options) { o.stats = c }
}

// Start launches the engine at path and completes the UCI handshake.
// Failures wrap engine.ErrUnavailable.
func Start(ctx context.Context, path string, opts ...Option) (*Engine, error) {
	o := options{
		handshakeTimeout: defaultHandshakeTimeout,
		stopGrace:        defaultStopGrace,
		logger:           zap.NewNop(),
		stats:            stats.NewNoop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	cmd := exec.Command(path, o.args...)
	if len(o.env) > 0 {
		cmd.Env = append(os.Environ(), o.env...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdin pipe: %v", engine.ErrUnavailable, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %v", engine.ErrUnavailable, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: starting %s: %v", engine.ErrUnavailable, path, err)
	}

	e := &Engine{
		cmd:    cmd,
		stdin:  stdin,
		writer: bufio.NewWriter(stdin),
		lines:  make(chan string, 256),
		exited: make(chan struct{}),
		opts:   o,
		logger: o.logger.With(zap.String("engine", path)),
		stats:  o.stats,
	}
	go e.readLoop(stdout)

	if err := e.handshake(ctx); err != nil {
		e.kill()
		return nil, fmt.Errorf("%w: %v", engine.ErrUnavailable, err)
	}
	e.logger.Info("engine ready", zap.String("name", e.name))
	return e, nil
}

func (e *Engine) readLoop(r io.Reader) {
	defer close(e.exited)
	defer close(e.lines)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		e.lines <- scanner.Text()
	}
	if err := scanner.Err(); err != nil {
		e.logger.Warn("engine output", zap.Error(err))
	}
}

func (e *Engine) handshake(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, e.opts.handshakeTimeout)
	defer cancel()

	if err := e.send("uci"); err != nil {
		return err
	}
	for {
		line, err := e.next(ctx)
		if err != nil {
			return fmt.Errorf("waiting for uciok: %w", err)
		}
		if name, ok := strings.CutPrefix(line, "id name "); ok {
			e.name = name
		}
		if line == "uciok" {
			break
		}
	}

	for _, cmd := range e.setOptions() {
		if err := e.send(cmd); err != nil {
			return err
		}
	}
	return e.ready(ctx)
}

func (e *Engine) setOptions() []string {
	var cmds []string
	set := func(name, value string) {
		cmds = append(cmds, "setoption name "+name+" value "+value)
	}
	if e.opts.threads > 0 {
		set("Threads", strconv.Itoa(e.opts.threads))
	}
	if e.opts.hashMB > 0 {
		set("Hash", strconv.Itoa(e.opts.hashMB))
	}
	if e.opts.multiPV > 0 {
		set("MultiPV", strconv.Itoa(e.opts.multiPV))
	}
	if e.opts.contempt != nil {
		set("Contempt", strconv.Itoa(*e.opts.contempt))
	}
	names := make([]string, 0, len(e.opts.extra))
	for name := range e.opts.extra {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		set(name, e.opts.extra[name])
	}
	return cmds
}

func (e *Engine) ready(ctx context.Context) error {
	if err := e.send("isready"); err != nil {
		return err
	}
	for {
		line, err := e.next(ctx)
		if err != nil {
			return fmt.Errorf("waiting for readyok: %w", err)
		}
		if line == "readyok" {
			return nil
		}
	}
}

func (e *Engine) send(cmd string) error {
	e.logger.Debug("uci >", zap.String("cmd", cmd))
	if _, err := e.writer.WriteString(cmd + "\n"); err != nil {
		return fmt.Errorf("writing %q: %w", cmd, err)
	}
	if err := e.writer.Flush(); err != nil {
		return fmt.Errorf("writing %q: %w", cmd, err)
	}
	return nil
}

// next returns the next output line. A closed output means the process
// has exited.
func (e *Engine) next(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-e.lines:
		if !ok {
			return "", engine.ErrUnavailable
		}
		return line, nil
	}
}

// Name returns the engine name reported during the handshake.
func (e *Engine) Name() string {
	return e.name
}

// Search analyses the position until the engine reports a best move.
// Cancelling ctx sends stop; the partial result is discarded.
func (e *Engine) Search(ctx context.Context, fen string, limits engine.Limits) (*engine.Result, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.owed {
		if err := e.settle(ctx); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	if err := e.send("position fen " + fen); err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrUnavailable, err)
	}
	if err := e.send(goCommand(limits)); err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrUnavailable, err)
	}

	var acc accumulator
	for {
		line, err := e.next(ctx)
		if errors.Is(err, engine.ErrUnavailable) {
			return nil, err
		}
		if err != nil {
			e.stop()
			return nil, err
		}

		if strings.HasPrefix(line, "info ") {
			acc.info(line)
			continue
		}
		if best, ok := parseBestMove(line); ok {
			res := acc.result(best)
			res.Elapsed = time.Since(start)
			e.stats.IncCounter(stats.MetricEngineSearches, 1)
			e.stats.ObserveHistogram(stats.MetricEngineSearchSeconds, res.Elapsed.Seconds())
			e.logger.Debug("search done",
				zap.String("bestmove", best),
				zap.Int("depth", res.Depth),
				zap.Int("lines", len(res.Lines)),
				zap.Duration("elapsed", res.Elapsed),
			)
			if best == "" {
				return res, engine.ErrNoMove
			}
			return res, nil
		}
	}
}

// stop interrupts a running search and drains output up to its bestmove.
// A bestmove still missing after the grace period is owed to the next
// search.
func (e *Engine) stop() {
	if err := e.send("stop"); err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.opts.stopGrace)
	defer cancel()
	if err := e.skipToBestMove(ctx); err != nil {
		e.owed = true
		e.logger.Warn("engine did not acknowledge stop", zap.Error(err))
	}
}

// settle discards the output of a stopped search, waiting at most the
// handshake timeout for its bestmove.
func (e *Engine) settle(ctx context.Context) error {
	wait, cancel := context.WithTimeout(ctx, e.opts.handshakeTimeout)
	defer cancel()
	if err := e.skipToBestMove(wait); err != nil {
		if errors.Is(err, engine.ErrUnavailable) || ctx.Err() != nil {
			return err
		}
		return fmt.Errorf("%w: stopped search never finished: %v", engine.ErrUnavailable, err)
	}
	e.owed = false
	return nil
}

func (e *Engine) skipToBestMove(ctx context.Context) error {
	for {
		line, err := e.next(ctx)
		if err != nil {
			return err
		}
		if _, ok := parseBestMove(line); ok {
			return nil
		}
	}
}

// Close sends quit and waits briefly for the process to exit before
// killing it.
func (e *Engine) Close() error {
	if e.closed.Swap(true) {
		return ErrClosed
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	_ = e.send("quit")
	_ = e.stdin.Close()
	go func() {
		for range e.lines {
		}
	}()

	select {
	case <-e.exited:
	case <-time.After(defaultQuitGrace):
		e.logger.Warn("engine did not quit, killing")
		_ = e.cmd.Process.Kill()
	}

	err := e.cmd.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func (e *Engine) kill() {
	_ = e.stdin.Close()
	_ = e.cmd.Process.Kill()
	_ = e.cmd.Wait()
}

func goCommand(l engine.Limits) string {
	cmd := "go"
	if l.Depth > 0 {
		cmd += " depth " + strconv.Itoa(l.Depth)
	}
	if l.MoveTime > 0 {
		cmd += " movetime " + strconv.FormatInt(l.MoveTime.Milliseconds(), 10)
	}
	if l.Depth <= 0 && l.MoveTime <= 0 {
		cmd += " infinite"
	}
	return cmd
}

// parseBestMove reports whether line is a bestmove line and returns the
// move. Null moves are returned as "".
func parseBestMove(line string) (string, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 || fields[0] != "bestmove" {
		return "", false
	}
	if len(fields) < 2 || fields[1] == "(none)" || fields[1] == "0000" {
		return "", true
	}
	return fields[1], true
}
