package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/devicelab-dev/appium-compat/pkg/core"
	"github.com/devicelab-dev/appium-compat/pkg/driver/appium"
	"github.com/devicelab-dev/appium-compat/pkg/logger"
	"github.com/devicelab-dev/appium-compat/pkg/verify"
)

// DefaultTimeout is the ceiling for a whole scenario, init to quit.
const DefaultTimeout = 60 * time.Minute

const quitTimeout = 2 * time.Minute

// Steps recorded in Result.FailedStep besides probe names.
const (
	StepInit     = "init"
	StepPreHook  = "before"
	StepPostHook = "after"
)

// Client is the session client the runner drives.
type Client interface {
	verify.Driver
	SetContext(ctx context.Context)
	Connect(capabilities map[string]interface{}) error
	Disconnect() error
	SessionID() string
}

// StepResult is the outcome of one probe or hook.
type StepResult struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Result is the outcome of one scenario.
type Result struct {
	Name        string
	Status      core.Status
	Err         error
	FailedStep  string
	SessionID   string
	Steps       []StepResult
	QuitErr     error
	Duration    time.Duration
	Screenshots [][]byte
	Sources     []string
	Output      map[string]interface{}
}

// Passed reports whether the scenario succeeded.
func (r *Result) Passed() bool {
	return r.Status.IsSuccess()
}

// Runner runs scenarios. The zero value is not usable; use NewRunner.
type Runner struct {
	Host      string
	Timeout   time.Duration
	NewClient func(serverURL string) Client
}

// NewRunner returns a runner talking to servers on localhost.
func NewRunner() *Runner {
	return &Runner{
		Host:    "localhost",
		Timeout: DefaultTimeout,
		NewClient: func(serverURL string) Client {
			return appium.NewClient(serverURL)
		},
	}
}

// ServerURL is the session base URL for a server on host:port.
func ServerURL(host string, port int) string {
	return fmt.Sprintf("http://%s:%d/wd/hub", host, port)
}

// Run executes init, pre-hook, probes, post-hook and quit in that order.
// The first probe failure skips the remaining probes but never the
// post-hook or quit. Quit is attempted exactly once; its error is logged
// and kept in Result.QuitErr, never in Result.Err.
func (r *Runner) Run(ctx context.Context, sc *Scenario) *Result {
	start := time.Now()
	result := &Result{Name: sc.Name, Status: core.StatusRunning}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := ServerURL(r.host(), sc.ServerPort)
	client := r.NewClient(url)
	client.SetContext(runCtx)

	// Recorded only when nothing failed earlier.
	fail := func(step string, err error) {
		if result.Err != nil || err == nil {
			return
		}
		result.Err = classify(runCtx, err)
		result.FailedStep = step
	}

	defer func() {
		result.QuitErr = r.quit(ctx, client, sc.Name)
		result.Duration = time.Since(start)
		result.Status = statusOf(result.Err)
		logger.Info("scenario %s %s in %v", sc.Name, result.Status, result.Duration)
	}()

	logger.Info("scenario %s: init session at %s", sc.Name, url)
	if err := client.Connect(sc.Capabilities.Map()); err != nil {
		logger.Error("scenario %s: init failed: %v", sc.Name, err)
		fail(StepInit, core.ErrSessionInit.WithCause(err))
		return result
	}
	result.SessionID = client.SessionID()

	env := &verify.Env{Driver: client, Artifacts: &verify.Artifacts{}}
	defer func() {
		result.Screenshots = env.Artifacts.Screenshots
		result.Sources = env.Artifacts.Sources
		result.Output = env.Artifacts.Output
	}()

	if sc.PreHook != nil {
		fail(StepPreHook, r.step(result, StepPreHook, func() error { return sc.PreHook(runCtx, env) }))
	}

	if result.Err == nil {
		for _, probe := range sc.Script {
			if err := runCtx.Err(); err != nil {
				fail(probe.Name, err)
				break
			}
			logger.Info("scenario %s: %s", sc.Name, probe.Name)
			p := probe
			if err := r.step(result, p.Name, func() error { return p.Run(runCtx, env) }); err != nil {
				logger.Error("scenario %s: %s failed: %v", sc.Name, p.Name, err)
				fail(p.Name, err)
				break
			}
		}
	}

	if sc.PostHook != nil {
		fail(StepPostHook, r.step(result, StepPostHook, func() error { return sc.PostHook(runCtx, env) }))
	}
	return result
}

func (r *Runner) host() string {
	if r.Host == "" {
		return "localhost"
	}
	return r.Host
}

func (r *Runner) step(result *Result, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	sr := StepResult{Name: name, Duration: time.Since(start)}
	if err != nil {
		sr.Error = err.Error()
	}
	result.Steps = append(result.Steps, sr)
	return err
}

// quit runs on its own deadline so a scenario that hit its ceiling still
// releases the session.
func (r *Runner) quit(parent context.Context, client Client, name string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), quitTimeout)
	defer cancel()
	client.SetContext(ctx)

	if err := client.Disconnect(); err != nil {
		logger.Warn("scenario %s: quit failed: %v", name, err)
		return core.ErrTeardown.WithCause(err)
	}
	return nil
}

func classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && core.CategoryOf(err) != core.ErrCategoryTimeout {
		return core.ErrScenarioTimeout.WithCause(err)
	}
	return err
}

func statusOf(err error) core.Status {
	if err == nil {
		return core.StatusPassed
	}
	switch core.CategoryOf(err) {
	case core.ErrCategoryLaunch, core.ErrCategoryDevice, core.ErrCategorySession, core.ErrCategoryConfig:
		return core.StatusErrored
	}
	return core.StatusFailed
}
