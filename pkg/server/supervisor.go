package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/devicelab-dev/appium-compat/pkg/core"
	"github.com/devicelab-dev/appium-compat/pkg/logger"
)

// Handle is one launched server process.
type Handle struct {
	Name        string
	Port        int
	LogFile     string
	RuntimeHome string
	Env         []string

	cfg        Config
	cmd        *exec.Cmd
	alive      atomic.Bool
	terminated atomic.Bool
	done       chan struct{}
	exitErr    error
}

// PID returns the process id, or 0 when the process never started.
func (h *Handle) PID() int {
	if h == nil || h.cmd == nil || h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// Alive reports whether the process is still running.
func (h *Handle) Alive() bool {
	return h != nil && h.alive.Load()
}

// Done is closed once the process has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Supervisor owns every server it launched. Each live handle holds a
// distinct port.
type Supervisor struct {
	Locator      RuntimeLocator
	Host         string
	HTTPClient   *http.Client
	PollInterval time.Duration

	mu      sync.Mutex
	handles map[int]*Handle
}

// NewSupervisor returns a supervisor that resolves runtimes with java_home.
func NewSupervisor() *Supervisor {
	return &Supervisor{
		Locator:      NewJavaHomeLocator(),
		Host:         "localhost",
		HTTPClient:   &http.Client{Timeout: 5 * time.Second},
		PollInterval: 500 * time.Millisecond,
		handles:      make(map[int]*Handle),
	}
}

// checkPort fails when a live handle holds port. Callers hold s.mu.
func (s *Supervisor) checkPort(port int) error {
	if s.handles == nil {
		s.handles = make(map[int]*Handle)
	}
	if existing, ok := s.handles[port]; ok && existing.Alive() {
		return core.ErrPortInUse.
			WithMessage(fmt.Sprintf("port %d already used by server %q", port, existing.Name)).
			WithDetails(map[string]interface{}{"port": port, "pid": existing.PID()})
	}
	return nil
}

// Launch starts a server and returns without waiting for it to come up.
// The runtime home, when requested, is set only in the child's
// environment.
func (s *Supervisor) Launch(ctx context.Context, cfg Config) (*Handle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, core.ErrLaunchFailure.WithMessage(err.Error())
	}

	// Fail fast before the runtime lookup, which may shell out.
	s.mu.Lock()
	err := s.checkPort(cfg.Port)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	binary := cfg.Binary
	if len(binary) == 0 {
		binary = DefaultBinary(os.Getenv(EnvMainJSPath))
	}

	env := os.Environ()
	for _, k := range sortedKeys(cfg.ExtraEnv) {
		env = append(env, k+"="+cfg.ExtraEnv[k])
	}
	var home string
	if cfg.RuntimeVersion != "" {
		locator := s.Locator
		if locator == nil {
			locator = NewJavaHomeLocator()
		}
		h, err := locator.Locate(ctx, cfg.RuntimeVersion)
		if err != nil {
			logger.Error("server %s: %v", cfg.Name, err)
			return nil, err
		}
		home = h
		env = append(env, "JAVA_HOME="+home)
	}

	// Another Launch may have claimed the port during the lookup.
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkPort(cfg.Port); err != nil {
		return nil, err
	}

	args := append(append([]string{}, binary[1:]...), cfg.Args()...)
	cmd := exec.Command(binary[0], args...)
	cmd.Env = env
	cmd.Stdout = logger.GetWriter()
	cmd.Stderr = logger.GetWriter()
	configureProcAttr(cmd)

	logger.Info("launch server %s: %s %s (JAVA_HOME=%s)", cfg.Name, binary[0], strings.Join(args, " "), home)
	if err := cmd.Start(); err != nil {
		logger.Error("server %s failed to start: %v", cfg.Name, err)
		return nil, core.ErrLaunchFailure.
			WithMessage(fmt.Sprintf("failed to start server %q", cfg.Name)).
			WithCause(err)
	}

	h := &Handle{
		Name:        cfg.Name,
		Port:        cfg.Port,
		LogFile:     cfg.LogPath(),
		RuntimeHome: home,
		Env:         env,
		cfg:         cfg,
		cmd:         cmd,
		done:        make(chan struct{}),
	}
	h.alive.Store(true)
	s.handles[cfg.Port] = h

	go func() {
		h.exitErr = cmd.Wait()
		h.alive.Store(false)
		close(h.done)
		logger.Info("server %s (pid %d) exited: %v", h.Name, cmd.Process.Pid, h.exitErr)
	}()

	return h, nil
}

// StatusURL is the health endpoint of the server behind h.
func (s *Supervisor) StatusURL(h *Handle) string {
	host := s.Host
	if host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%d/wd/hub/status", host, h.Port)
}

// AwaitReady polls the status endpoint when the handle's config has a
// ReadyTimeout, and otherwise sleeps its SettleDelay.
func (s *Supervisor) AwaitReady(ctx context.Context, h *Handle) error {
	if h == nil {
		return errors.New("nil server handle")
	}
	if h.cfg.ReadyTimeout > 0 {
		return s.poll(ctx, h, h.cfg.ReadyTimeout)
	}

	delay := h.cfg.SettleDelay
	if delay <= 0 {
		delay = DefaultSettleDelay
	}
	logger.Info("server %s: waiting %v to settle", h.Name, delay)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	}
	if exited(h) {
		return core.ErrLaunchFailure.WithMessage(fmt.Sprintf("server %q exited during startup: %v", h.Name, h.exitErr))
	}
	return nil
}

func (s *Supervisor) poll(ctx context.Context, h *Handle, timeout time.Duration) error {
	readyCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	interval := s.PollInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	client := s.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	url := s.StatusURL(h)

	for {
		err := s.checkStatus(readyCtx, client, url)
		if err == nil {
			logger.Info("server %s ready at %s", h.Name, url)
			return nil
		}
		logger.Debug("server %s not ready yet: %v", h.Name, err)

		select {
		case <-h.done:
			return core.ErrLaunchFailure.WithMessage(fmt.Sprintf("server %q exited before becoming ready: %v", h.Name, h.exitErr))
		case <-readyCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return core.ErrLaunchFailure.WithMessage(fmt.Sprintf("server %q not ready after %v", h.Name, timeout))
		case <-ticker.C:
		}
	}
}

func (s *Supervisor) checkStatus(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %s", resp.Status)
	}
	return nil
}

// Terminate signals the server's process group and returns without
// waiting for exit. A nil, already terminated or exited handle is a no-op.
func (s *Supervisor) Terminate(h *Handle) error {
	if h == nil {
		return nil
	}
	if !h.terminated.CompareAndSwap(false, true) {
		return nil
	}
	s.release(h)

	if !h.Alive() {
		return nil
	}
	logger.Info("kill server %s (pid %d)", h.Name, h.PID())
	if err := terminateGroup(h.PID()); err != nil {
		// The reaper may have won the race.
		if exited(h) {
			return nil
		}
		logger.Warn("server %s: %v", h.Name, err)
		return err
	}
	return nil
}

// TerminateAll terminates every handle still owned by the supervisor.
func (s *Supervisor) TerminateAll() error {
	s.mu.Lock()
	handles := make([]*Handle, 0, len(s.handles))
	for _, h := range s.handles {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	var errs []error
	for _, h := range handles {
		if err := s.Terminate(h); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Handles returns the live handles ordered by port.
func (s *Supervisor) Handles() []*Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Handle, 0, len(s.handles))
	for _, h := range s.handles {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Port < out[j].Port })
	return out
}

func (s *Supervisor) release(h *Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handles[h.Port] == h {
		delete(s.handles, h.Port)
	}
}

func exited(h *Handle) bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
