package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// WaitDelay bounds how long Wait keeps reading stderr after the process was killed.
const WaitDelay = time.Second

var ErrNotStarted = errors.New("engine process not started")

// Process is the external rules engine. It connects back to the manager and player sockets,
// whose paths are usually passed as arguments.
type Process struct {
	command string
	args    []string

	mu     sync.Mutex
	cmd    *exec.Cmd
	stderr *lineLogger
}

func NewProcess(command string, args ...string) *Process {
	return &Process{command: command, args: args}
}

// Start launches the process. It is killed when ctx is done. Every line it writes to stderr is
// logged.
func (p *Process) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil {
		return fmt.Errorf("engine process %s already started", p.command)
	}

	cmd := exec.CommandContext(ctx, p.command, p.args...)
	stderr := &lineLogger{name: p.command}
	cmd.Stderr = stderr
	cmd.WaitDelay = WaitDelay
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start engine %s: %w", p.command, err)
	}
	p.cmd = cmd
	p.stderr = stderr
	log.Info().Msgf("engine %s started with pid %d", p.command, cmd.Process.Pid)
	return nil
}

// Wait reaps the process.
func (p *Process) Wait() error {
	p.mu.Lock()
	cmd, stderr := p.cmd, p.stderr
	p.mu.Unlock()
	if cmd == nil {
		return ErrNotStarted
	}

	err := cmd.Wait()
	stderr.Flush()
	if err != nil {
		return fmt.Errorf("engine %s: %w", p.command, err)
	}
	log.Info().Msgf("engine %s exited", p.command)
	return nil
}

// Pid returns the process id, or 0 before Start.
func (p *Process) Pid() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// lineLogger logs every complete line written to it.
type lineLogger struct {
	name string
	mu   sync.Mutex
	buf  []byte
}

func (l *lineLogger) Write(b []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf = append(l.buf, b...)
	for {
		i := bytes.IndexByte(l.buf, '\n')
		if i < 0 {
			break
		}
		l.log(l.buf[:i])
		l.buf = l.buf[i+1:]
	}
	return len(b), nil
}

// Flush logs a trailing line without a newline.
func (l *lineLogger) Flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.buf) > 0 {
		l.log(l.buf)
		l.buf = nil
	}
}

func (l *lineLogger) log(line []byte) {
	line = bytes.TrimRight(line, "\r")
	if len(line) == 0 {
		return
	}
	log.Warn().Str("engine", l.name).Msg(string(line))
}
