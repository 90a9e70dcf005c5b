package shell

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
)

// process is one running shell with stdout and stderr merged into a single
// line stream.
type process struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	out   *os.File

	lines  chan string
	exited chan struct{}
	quit   chan struct{}

	waitErr  error
	stopOnce sync.Once
}

func startProcess(cfg Config, enc encoding.Encoding) (*process, error) {
	cmd := exec.Command(cfg.Path, cfg.Args...)
	cmd.Dir = cfg.Dir
	cmd.Env = cfg.Env
	setProcessGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	pr, pw, err := os.Pipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("output pipe: %w", err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		stdin.Close()
		pr.Close()
		pw.Close()
		return nil, err
	}
	// The child owns the write end now.
	pw.Close()

	p := &process{
		cmd:    cmd,
		stdin:  stdin,
		out:    pr,
		lines:  make(chan string),
		exited: make(chan struct{}),
		quit:   make(chan struct{}),
	}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.exited)
	}()
	go p.readLines(enc)
	return p, nil
}

func (p *process) readLines(enc encoding.Encoding) {
	defer close(p.lines)
	var r io.Reader = p.out
	if enc != nil {
		r = transform.NewReader(r, enc.NewDecoder())
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		select {
		case p.lines <- strings.TrimRight(sc.Text(), "\r"):
		case <-p.quit:
			return
		}
	}
}

func (p *process) alive() bool {
	select {
	case <-p.exited:
		return false
	default:
		return true
	}
}

// exitReason describes why the process is gone, for error messages.
func (p *process) exitReason() string {
	select {
	case <-p.exited:
		if p.waitErr != nil {
			return p.waitErr.Error()
		}
		return "exit status 0"
	default:
		return "output closed"
	}
}

// stop kills the shell together with any command it is running and
// releases the pipes. Safe to call repeatedly.
func (p *process) stop() {
	p.stopOnce.Do(func() {
		close(p.quit)
		p.stdin.Close()
		if p.cmd.Process != nil {
			killProcessGroup(p.cmd.Process)
		}
		p.out.Close()
	})
}
