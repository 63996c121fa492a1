package scenario

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/devicelab-dev/appium-compat/pkg/capability"
	"github.com/devicelab-dev/appium-compat/pkg/core"
	"github.com/devicelab-dev/appium-compat/pkg/logger"
	"github.com/devicelab-dev/appium-compat/pkg/server"
	"github.com/devicelab-dev/appium-compat/pkg/session"
)

// StepCapabilities is the failed step of a scenario whose capabilities
// could not be built.
const StepCapabilities = "capabilities"

// Launcher starts and stops the servers a run needs.
type Launcher interface {
	Launch(ctx context.Context, cfg server.Config) (*server.Handle, error)
	AwaitReady(ctx context.Context, h *server.Handle) error
	TerminateAll() error
}

// SessionRunner runs one scenario to completion.
type SessionRunner interface {
	Run(ctx context.Context, sc *session.Scenario) *session.Result
}

// Entry pairs a planned scenario with its outcome.
type Entry struct {
	Plan   Planned
	Result *session.Result
}

// Outcome is the result of one run.
type Outcome struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration
	Entries   []Entry
}

// Counts tallies entries by status.
func (o *Outcome) Counts() map[core.Status]int {
	counts := make(map[core.Status]int)
	for _, e := range o.Entries {
		counts[e.Result.Status]++
	}
	return counts
}

// Failed reports whether any scenario failed or errored.
func (o *Outcome) Failed() bool {
	for _, e := range o.Entries {
		if e.Result.Status == core.StatusFailed || e.Result.Status == core.StatusErrored {
			return true
		}
	}
	return false
}

// Registry runs an expanded table.
type Registry struct {
	Table    *Table
	Builder  *capability.Builder
	Servers  Launcher
	Sessions SessionRunner
	Filter   Filter

	// ResetHost clears leftover simulator state before a group that asks
	// for it. Nil disables the reset.
	ResetHost func(ctx context.Context)
}

// Plan returns the scenarios the registry would run.
func (r *Registry) Plan() []Planned {
	return Select(r.Table.Expand(), r.Filter)
}

// Run launches the servers the selected scenarios need, waits for each to
// become ready, runs the plain scenarios one at a time and then every
// parallel group. A server that fails to launch aborts the run. Servers
// are terminated before Run returns.
func (r *Registry) Run(ctx context.Context) (*Outcome, error) {
	outcome := &Outcome{RunID: uuid.NewString(), StartedAt: time.Now()}
	defer func() { outcome.Duration = time.Since(outcome.StartedAt) }()

	plans := r.Plan()
	logger.Info("run %s: %d scenario(s) selected", outcome.RunID, len(plans))
	if len(plans) == 0 {
		return outcome, nil
	}

	defer func() {
		if err := r.Servers.TerminateAll(); err != nil {
			logger.Warn("terminate servers: %v", err)
		}
	}()
	ports, err := r.launchServers(ctx, plans)
	if err != nil {
		return outcome, err
	}

	resetGroups := make(map[string]bool)
	var i int
	for i < len(plans) {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}
		p := plans[i]
		if p.Parallel == "" {
			r.resetHost(ctx, p, resetGroups)
			outcome.Entries = append(outcome.Entries, r.runOne(ctx, p, ports[p.Server]))
			i++
			continue
		}

		j := i
		for j < len(plans) && plans[j].Parallel == p.Parallel {
			j++
		}
		r.resetHost(ctx, p, resetGroups)
		outcome.Entries = append(outcome.Entries, r.runParallel(ctx, plans[i:j], ports)...)
		i = j
	}
	return outcome, nil
}

// launchServers starts the referenced servers in table order and returns
// their ports by name.
func (r *Registry) launchServers(ctx context.Context, plans []Planned) (map[string]int, error) {
	needed := make(map[string]bool)
	for _, p := range plans {
		if p.Skip == "" {
			needed[p.Server] = true
		}
	}

	ports := make(map[string]int)
	for _, spec := range r.Table.Servers {
		ports[spec.Name] = spec.Port
		if !needed[spec.Name] {
			continue
		}
		h, err := r.Servers.Launch(ctx, spec.Config)
		if err != nil {
			return nil, fmt.Errorf("launch server %s: %w", spec.Name, err)
		}
		if err := r.Servers.AwaitReady(ctx, h); err != nil {
			return nil, fmt.Errorf("server %s not ready: %w", spec.Name, err)
		}
	}
	return ports, nil
}

func (r *Registry) resetHost(ctx context.Context, p Planned, done map[string]bool) {
	key := p.Group
	if p.Parallel != "" {
		key = p.Parallel
	}
	if !p.ResetHost || p.Skip != "" || r.ResetHost == nil || done[key] {
		return
	}
	done[key] = true
	r.ResetHost(ctx)
}

func (r *Registry) runOne(ctx context.Context, p Planned, port int) Entry {
	if p.Skip != "" {
		return skipped(p)
	}
	sc, err := p.Scenario(ctx, r.Builder, port)
	if err != nil {
		return buildFailed(p, err)
	}
	return Entry{Plan: p, Result: r.Sessions.Run(ctx, sc)}
}

// runParallel builds every member's capabilities in table order, prepares
// the derived-data directories, and then runs all members at once. One
// member failing does not cancel the others.
func (r *Registry) runParallel(ctx context.Context, members []Planned, ports map[string]int) []Entry {
	name := members[0].Parallel
	entries := make([]Entry, len(members))
	scenarios := make([]*session.Scenario, len(members))

	for i, p := range members {
		if p.Skip != "" {
			entries[i] = skipped(p)
			continue
		}
		if dir := p.Variant.DerivedDataPath; dir != "" {
			if err := resetDir(dir); err != nil {
				entries[i] = buildFailed(p, core.ErrInvalidConfig.
					WithMessage(fmt.Sprintf("prepare derived data %s", dir)).WithCause(err))
				continue
			}
		}
		sc, err := p.Scenario(ctx, r.Builder, ports[p.Server])
		if err != nil {
			entries[i] = buildFailed(p, err)
			continue
		}
		scenarios[i] = sc
	}

	logger.Info("parallel %s: starting %d session(s)", name, len(members))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for i, sc := range scenarios {
		if sc == nil {
			continue
		}
		g.Go(func() error {
			result := r.Sessions.Run(gctx, sc)
			mu.Lock()
			entries[i] = Entry{Plan: members[i], Result: result}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	logger.Info("parallel %s: done", name)
	return entries
}

// resetDir removes dir and creates it again, empty.
func resetDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

func skipped(p Planned) Entry {
	logger.Info("scenario %s skipped: %s", p.Name, p.Skip)
	return Entry{Plan: p, Result: &session.Result{Name: p.Name, Status: core.StatusSkipped}}
}

func buildFailed(p Planned, err error) Entry {
	logger.Error("scenario %s: %v", p.Name, err)
	if core.CategoryOf(err) == core.ErrCategoryNone {
		err = core.ErrInvalidConfig.WithCause(err)
	}
	return Entry{Plan: p, Result: &session.Result{
		Name:       p.Name,
		Status:     core.StatusErrored,
		Err:        err,
		FailedStep: StepCapabilities,
	}}
}
