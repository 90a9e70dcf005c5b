package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
)

// Config describes the interactive shell a Session keeps alive.
type Config struct {
	Path string
	Args []string
	Dir  string
	// Env is the process environment. Nil means CleanEnv().
	Env []string
	// Encoding is the IANA name of the shell's output charset, e.g. "gbk".
	// Empty means UTF-8.
	Encoding string
}

// DefaultConfig returns the platform shell: cmd.exe with echo off on
// Windows, /bin/sh elsewhere.
func DefaultConfig(goos string) Config {
	if goos == "windows" {
		return Config{Path: "cmd.exe", Args: []string{"/Q"}}
	}
	return Config{Path: "/bin/sh"}
}

// startupTimeout bounds the first round-trip with a freshly started shell.
const startupTimeout = 10 * time.Second

// proxyVars are stripped from the shell environment; adb talks to its
// local server over TCP and breaks when a proxy is forced on it.
var proxyVars = []string{"HTTP_PROXY", "HTTPS_PROXY", "ALL_PROXY", "NO_PROXY", "http_proxy", "https_proxy", "all_proxy", "no_proxy"}

// CleanEnv returns the current environment without proxy variables.
func CleanEnv() []string {
	env := os.Environ()
	clean := make([]string, 0, len(env))
	for _, e := range env {
		isProxy := false
		for _, v := range proxyVars {
			if strings.HasPrefix(e, v+"=") {
				isProxy = true
				break
			}
		}
		if !isProxy {
			clean = append(clean, e)
		}
	}
	return clean
}

// Result is the captured output of one command.
type Result struct {
	Output   string
	ExitCode int
	Duration time.Duration
}

type request struct {
	ctx     context.Context
	command string
	reply   chan response
}

type response struct {
	res Result
	err error
}

// Session runs commands one at a time against a single persistent shell
// process. Concurrent callers are served in arrival order. The process is
// started on first use and restarted transparently after it dies.
//
// Completion protocol: every command runs with stdin closed and is
// followed by
//
//	echo <marker> <exit status>
//
// where marker is unique per command. Everything the shell prints before
// the marker line is the command's output. The shell's own stdin carries
// only command text, so a child that reads stdin cannot swallow a marker.
type Session struct {
	cfg       Config
	goos      string
	enc       encoding.Encoding
	newMarker func() string
	log       zerolog.Logger

	requests  chan request
	done      chan struct{}
	closeOnce sync.Once
	stopped   chan struct{}

	mu   sync.Mutex
	proc *process
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithGOOS overrides the platform used to build marker commands.
func WithGOOS(goos string) Option {
	return func(s *Session) { s.goos = goos }
}

// New creates a session. The shell is not started until the first command.
func New(cfg Config, opts ...Option) (*Session, error) {
	if cfg.Path == "" {
		cfg = DefaultConfig(runtime.GOOS)
	}
	if cfg.Env == nil {
		cfg.Env = CleanEnv()
	}
	s := &Session{
		cfg:  cfg,
		goos: runtime.GOOS,
		newMarker: func() string {
			return "__yohub_done_" + strings.ReplaceAll(uuid.NewString(), "-", "")
		},
		log:      zerolog.Nop(),
		requests: make(chan request),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if cfg.Encoding != "" {
		enc, err := ianaindex.IANA.Encoding(cfg.Encoding)
		if err != nil {
			return nil, fmt.Errorf("shell encoding %q: %w", cfg.Encoding, err)
		}
		if enc == nil {
			return nil, fmt.Errorf("shell encoding %q is not supported", cfg.Encoding)
		}
		s.enc = enc
	}
	go s.loop()
	return s, nil
}

// Execute runs command and returns its combined stdout and stderr.
func (s *Session) Execute(ctx context.Context, command string) (string, error) {
	res, err := s.ExecuteStatus(ctx, command)
	return res.Output, err
}

// ExecuteStatus runs command and returns its output and exit status.
func (s *Session) ExecuteStatus(ctx context.Context, command string) (Result, error) {
	req := request{ctx: ctx, command: command, reply: make(chan response, 1)}
	select {
	case s.requests <- req:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-s.done:
		return Result{}, ErrClosed
	}
	r := <-req.reply
	return r.res, r.err
}

// IsAlive reports whether the shell process is currently running.
func (s *Session) IsAlive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proc != nil && s.proc.alive()
}

// Close stops the shell. Commands issued afterwards fail with ErrClosed.
func (s *Session) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	<-s.stopped
	return nil
}

func (s *Session) loop() {
	defer close(s.stopped)
	for {
		select {
		case req := <-s.requests:
			res, err := s.run(req)
			req.reply <- response{res: res, err: err}
		case <-s.done:
			s.discard()
			return
		}
	}
}

func (s *Session) run(req request) (Result, error) {
	select {
	case <-s.done:
		return Result{}, ErrClosed
	default:
	}
	if err := req.ctx.Err(); err != nil {
		return Result{}, err
	}
	p, err := s.ensure()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s: %v", ErrShellUnavailable, s.cfg.Path, err)
	}

	start := time.Now()
	marker := s.newMarker()
	script := s.commandLine(req.command) + "\n" + s.markerCommand(marker) + "\n"
	if _, err := io.WriteString(p.stdin, script); err != nil {
		s.discard()
		return Result{}, fmt.Errorf("%w: write command: %v", ErrShellTerminated, err)
	}

	var out []string
	for {
		select {
		case line, ok := <-p.lines:
			if !ok {
				reason := p.exitReason()
				s.discard()
				return Result{Output: strings.Join(out, "\n")}, fmt.Errorf("%w: %s", ErrShellTerminated, reason)
			}
			idx := strings.Index(line, marker)
			if idx < 0 {
				out = append(out, line)
				continue
			}
			if prefix := line[:idx]; prefix != "" {
				out = append(out, prefix)
			}
			res := Result{
				Output:   strings.Join(out, "\n"),
				ExitCode: parseStatus(line[idx+len(marker):]),
				Duration: time.Since(start),
			}
			s.log.Debug().
				Str("command", req.command).
				Int("exit", res.ExitCode).
				Dur("duration", res.Duration).
				Msg("shell command finished")
			return res, nil
		case <-p.exited:
			reason := p.exitReason()
			s.discard()
			return Result{Output: strings.Join(out, "\n")}, fmt.Errorf("%w: %s", ErrShellTerminated, reason)
		case <-req.ctx.Done():
			// The shell may still print this command's output; it cannot be
			// reused without corrupting the next command's framing.
			s.discard()
			return Result{Output: strings.Join(out, "\n")}, req.ctx.Err()
		case <-s.done:
			s.discard()
			return Result{}, ErrClosed
		}
	}
}

// commandLine groups command in the current shell with stdin redirected
// from the null device.
func (s *Session) commandLine(command string) string {
	if strings.TrimSpace(command) == "" {
		return ""
	}
	if s.goos == "windows" {
		return "(" + command + ") <NUL"
	}
	return "{ " + command + "\n} </dev/null"
}

func (s *Session) markerCommand(marker string) string {
	if s.goos == "windows" {
		return "echo " + marker + " %errorlevel%"
	}
	return `echo "` + marker + ` $?"`
}

func parseStatus(s string) int {
	code, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return -1
	}
	return code
}

// ensure returns the live process, spawning a new one if needed. A new
// shell gets one marker round-trip so its startup output is consumed
// before the first command.
func (s *Session) ensure() (*process, error) {
	s.mu.Lock()
	if s.proc != nil {
		if s.proc.alive() {
			p := s.proc
			s.mu.Unlock()
			return p, nil
		}
		s.proc.stop()
		s.proc = nil
	}
	p, err := startProcess(s.cfg, s.enc)
	if err != nil {
		s.mu.Unlock()
		s.log.Error().Err(err).Str("shell", s.cfg.Path).Msg("start shell")
		return nil, err
	}
	s.log.Debug().Str("shell", s.cfg.Path).Int("pid", p.cmd.Process.Pid).Msg("shell started")
	s.proc = p
	s.mu.Unlock()

	if err := s.flush(p); err != nil {
		s.discard()
		s.log.Error().Err(err).Str("shell", s.cfg.Path).Msg("shell did not answer")
		return nil, err
	}
	return p, nil
}

// flush discards everything p prints up to a marker line.
func (s *Session) flush(p *process) error {
	marker := s.newMarker()
	if _, err := io.WriteString(p.stdin, s.markerCommand(marker)+"\n"); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	timer := time.NewTimer(startupTimeout)
	defer timer.Stop()
	for {
		select {
		case line, ok := <-p.lines:
			if !ok {
				return errors.New(p.exitReason())
			}
			if strings.Contains(line, marker) {
				return nil
			}
			s.log.Trace().Str("line", line).Msg("startup output")
		case <-p.exited:
			return errors.New(p.exitReason())
		case <-timer.C:
			return fmt.Errorf("no answer within %s", startupTimeout)
		case <-s.done:
			return ErrClosed
		}
	}
}

func (s *Session) discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc == nil {
		return
	}
	s.proc.stop()
	s.proc = nil
}
