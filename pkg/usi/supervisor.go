package usi

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/sekiba/kifuroom/pkg/kifuerr"
	"github.com/seekerror/logw"
	"github.com/seekerror/stdlib/pkg/util/iox"
	"go.uber.org/atomic"
)

const (
	defaultHandshakeTimeout = 5 * time.Second
	defaultStopTimeout      = 3 * time.Second
	stderrRingCapacity      = 50
)

// Supervisor owns at most one USI engine child process, following the
// state machine documented on State.
type Supervisor struct {
	ctx context.Context
	cfg Config

	mu          sync.Mutex
	state       State
	cmd         *exec.Cmd
	stdin       io.WriteCloser
	optionNames map[string]string // lowercased declared name -> declared name
	sub         *Subscription

	shuttingDown atomic.Bool

	stderr *ringBuffer
	exited iox.AsyncCloser
}

// New creates a Supervisor in the Idle state. ctx is retained only for
// log correlation, not for cancellation; Spawn/Analyze/Shutdown each take
// their own context.
func New(ctx context.Context, cfg Config) *Supervisor {
	return &Supervisor{
		ctx:    ctx,
		cfg:    cfg,
		state:  Idle,
		stderr: newRingBuffer(stderrRingCapacity),
		exited: iox.NewAsyncCloser(),
	}
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StderrTail returns the last stderrRingCapacity lines the child process
// wrote to stderr, for diagnostics alongside a failure.
func (s *Supervisor) StderrTail() []string {
	return s.stderr.snapshot()
}

// Exited closes when the child process has terminated, by any cause.
func (s *Supervisor) Exited() <-chan struct{} { return s.exited.Closed() }

// Reset transitions a Failed Supervisor back to Idle so Spawn can be
// retried against a fresh child process, per the state diagram's
// "Any -> crash/exit -> Failed -> reset() -> Idle".
func (s *Supervisor) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Failed {
		return kifuerr.New(kifuerr.ProtocolError, "reset called in state %v", s.state)
	}
	s.state = Idle
	s.cmd = nil
	s.stdin = nil
	s.optionNames = nil
	s.sub = nil
	s.shuttingDown.Store(false)
	s.exited = iox.NewAsyncCloser()
	return nil
}

// Spawn launches the engine binary and performs the usi/usiok,
// setoption/isready/readyok, usinewgame handshake. On success the
// Supervisor is Configured and ready for Analyze.
func (s *Supervisor) Spawn(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Idle {
		state := s.state
		s.mu.Unlock()
		return kifuerr.New(kifuerr.ProtocolError, "spawn called in state %v", state)
	}
	s.state = Handshaking
	s.mu.Unlock()

	cmd := exec.Command(s.cfg.Path, s.cfg.Args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return s.failSpawn(kifuerr.Wrap(kifuerr.SpawnFailed, err, "stdin pipe"))
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return s.failSpawn(kifuerr.Wrap(kifuerr.SpawnFailed, err, "stdout pipe"))
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return s.failSpawn(kifuerr.Wrap(kifuerr.SpawnFailed, err, "stderr pipe"))
	}
	if err := cmd.Start(); err != nil {
		return s.failSpawn(kifuerr.Wrap(kifuerr.SpawnFailed, err, "start %v", s.cfg.Path))
	}

	s.mu.Lock()
	s.cmd = cmd
	s.stdin = stdin
	s.optionNames = map[string]string{}
	s.mu.Unlock()

	go s.drainStderr(stderr)
	lines := readLines(s.ctx, stdout)

	if err := s.handshake(ctx, lines); err != nil {
		s.mu.Lock()
		s.state = Failed
		s.mu.Unlock()
		_ = cmd.Process.Kill()
		go func() { _ = cmd.Wait(); s.exited.Close() }()
		return err
	}

	go s.process(lines, cmd)
	return nil
}

func (s *Supervisor) failSpawn(err error) error {
	s.mu.Lock()
	s.state = Failed
	s.mu.Unlock()
	s.exited.Close()
	return err
}

func (s *Supervisor) handshake(ctx context.Context, lines <-chan string) error {
	timeout := defaultHandshakeTimeout
	if s.cfg.HandshakeTimeout > 0 {
		timeout = time.Duration(s.cfg.HandshakeTimeout) * time.Second
	}

	s.write("usi")
	if err := s.awaitToken(ctx, lines, "usiok", timeout, s.collectOptionDeclaration); err != nil {
		return err
	}
	s.mu.Lock()
	s.state = Ready
	s.mu.Unlock()

	if s.cfg.Threads > 0 {
		if name, ok := s.resolveOptionName("Threads"); ok {
			s.write(fmt.Sprintf("setoption name %v value %v", name, s.cfg.Threads))
		}
	}
	if s.cfg.HashMB > 0 {
		if name, ok := s.resolveOptionName("Hash", "USI_Hash"); ok {
			s.write(fmt.Sprintf("setoption name %v value %v", name, s.cfg.HashMB))
		}
	}
	if s.cfg.MultiPV > 0 {
		if name, ok := s.resolveOptionName("MultiPV"); ok {
			s.write(fmt.Sprintf("setoption name %v value %v", name, s.cfg.MultiPV))
		}
	}

	s.write("isready")
	if err := s.awaitToken(ctx, lines, "readyok", timeout, nil); err != nil {
		return err
	}

	s.write("usinewgame")

	s.mu.Lock()
	s.state = Configured
	s.mu.Unlock()
	return nil
}

// awaitToken blocks until a line equal to token arrives, the deadline
// elapses, or ctx is cancelled. Every other line seen along the way is
// passed to onLine, if non-nil, e.g. to collect declared options.
func (s *Supervisor) awaitToken(ctx context.Context, lines <-chan string, token string, timeout time.Duration, onLine func(line string)) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return kifuerr.New(kifuerr.EngineExited, "engine closed stdout during handshake")
			}
			if strings.TrimSpace(line) == token {
				return nil
			}
			if onLine != nil {
				onLine(line)
			}
		case <-deadline.C:
			return kifuerr.New(kifuerr.HandshakeTimeout, "timed out waiting for %q", token)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Supervisor) collectOptionDeclaration(line string) {
	if name, ok := parseOptionDeclaration(line); ok {
		s.mu.Lock()
		s.optionNames[strings.ToLower(name)] = name
		s.mu.Unlock()
	}
}

func (s *Supervisor) resolveOptionName(candidates ...string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range candidates {
		if name, ok := s.optionNames[strings.ToLower(c)]; ok {
			return name, true
		}
	}
	return "", false
}

// Analyze sends the position command followed by "go infinite" and returns
// a Subscription streaming consolidated PV snapshots. The Supervisor must
// be Configured; call Cancel on any prior subscription first.
func (s *Supervisor) Analyze(ctx context.Context, positionCmd string) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case Failed:
		return nil, kifuerr.New(kifuerr.EngineExited, "engine is not running")
	case Configured:
		// fallthrough to analyze
	default:
		return nil, kifuerr.New(kifuerr.ProtocolError, "analyze called in state %v", s.state)
	}

	s.write(positionCmd)
	s.write("go infinite")
	s.state = Searching

	sub := newSubscription(s)
	s.sub = sub
	return sub, nil
}

func (s *Supervisor) cancel(ctx context.Context, sub *Subscription) error {
	s.mu.Lock()
	if s.sub != sub {
		s.mu.Unlock()
		// Already superseded by a later Analyze call, or already completed.
		return nil
	}
	select {
	case <-sub.Done():
		s.mu.Unlock()
		return nil
	default:
	}
	s.write("stop")
	s.mu.Unlock()

	timeout := defaultStopTimeout
	if s.cfg.StopTimeout > 0 {
		timeout = time.Duration(s.cfg.StopTimeout) * time.Second
	}

	select {
	case <-sub.Done():
		return nil
	case <-time.After(timeout):
		_ = s.killLocked()
		<-sub.Done()
		return kifuerr.New(kifuerr.ProtocolError, "stop/bestmove timed out after %v", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Supervisor) killLocked() error {
	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

// Shutdown sends quit and waits (bounded) for the process to exit, killing
// it if the grace period elapses.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.state == Idle {
		s.mu.Unlock()
		return nil
	}
	s.shuttingDown.Store(true)
	proc := s.cmd.Process
	s.write("quit")
	s.mu.Unlock()

	select {
	case <-s.exited.Closed():
		return nil
	case <-time.After(2 * time.Second):
		_ = proc.Kill()
		<-s.exited.Closed()
		return nil
	case <-ctx.Done():
		_ = proc.Kill()
		<-s.exited.Closed()
		return ctx.Err()
	}
}

func (s *Supervisor) write(line string) {
	logw.Debugf(s.ctx, ">> %v", line)
	_, _ = fmt.Fprintln(s.stdin, line)
}

// process owns lines for the remainder of the child process's life,
// dispatching info/bestmove lines to the active subscription and detecting
// process exit. Mirrors the single-reader select loop pattern used for the
// handshake, but for the long-lived post-handshake phase.
func (s *Supervisor) process(lines <-chan string, cmd *exec.Cmd) {
	for line := range lines {
		s.handleLine(line)
	}
	s.onExit(cmd)
}

func (s *Supervisor) handleLine(line string) {
	switch {
	case strings.HasPrefix(line, "info "):
		pv, ok := parseInfoLine(line)
		if !ok {
			return
		}
		s.mu.Lock()
		sub := s.sub
		s.mu.Unlock()
		if sub != nil {
			sub.applyUpdate(pv)
		}

	case strings.HasPrefix(line, "bestmove"):
		s.mu.Lock()
		sub := s.sub
		if s.state == Searching {
			s.state = Configured
		}
		s.mu.Unlock()
		if sub != nil {
			sub.complete("cancelled")
		}

	default:
		// id/option/readyok/usiok lines arriving post-handshake (e.g. a
		// chatty engine re-announcing options) carry nothing we track.
	}
}

func (s *Supervisor) onExit(cmd *exec.Cmd) {
	_ = cmd.Wait()

	intentional := s.shuttingDown.Load()

	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	if intentional {
		s.state = Idle
	} else {
		s.state = Failed
	}
	s.mu.Unlock()

	if sub != nil {
		reason := "exited"
		if intentional {
			reason = "shutdown"
		}
		sub.complete(reason)
	}
	s.exited.Close()
}

func (s *Supervisor) drainStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		s.stderr.add(line)
		logw.Warningf(s.ctx, "engine stderr: %v", line)
	}
}

// readLines streams lines from r onto a channel, closing it when r is
// exhausted (process exited or stdout closed). Mirrors the teacher's
// stdin-reading idiom, generalized to an arbitrary pipe.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	ret := make(chan string, 16)
	go func() {
		defer close(ret)

		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			logw.Debugf(ctx, "<< %v", scanner.Text())
			ret <- scanner.Text()
		}
	}()
	return ret
}
