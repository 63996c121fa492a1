// Package session runs one scenario against an automation server: it
// opens a session, runs the hooks and probes in order, and always quits.
package session

import (
	"context"

	"github.com/devicelab-dev/appium-compat/pkg/capability"
	"github.com/devicelab-dev/appium-compat/pkg/verify"
)

// Hook runs against the live session, right after init or right before
// quit. It shares the probes' Env, so it can record artifacts.
type Hook func(ctx context.Context, env *verify.Env) error

// Scenario describes one session run.
type Scenario struct {
	Name         string
	Capabilities capability.Set
	ServerPort   int
	Script       []verify.Probe
	PreHook      Hook
	PostHook     Hook
}

// NewScenario starts a scenario description.
func NewScenario(name string) *Scenario {
	return &Scenario{Name: name}
}

// WithCaps sets the capability record. The set is copied, so later changes
// by the caller do not reach the runner.
func (s *Scenario) WithCaps(caps capability.Set) *Scenario {
	s.Capabilities = caps.Clone()
	return s
}

// OnPort selects the automation server port.
func (s *Scenario) OnPort(port int) *Scenario {
	s.ServerPort = port
	return s
}

// Then appends probes to the script.
func (s *Scenario) Then(probes ...verify.Probe) *Scenario {
	s.Script = append(s.Script, probes...)
	return s
}

// Before sets the hook run right after init.
func (s *Scenario) Before(h Hook) *Scenario {
	s.PreHook = h
	return s
}

// After sets the hook run right before quit.
func (s *Scenario) After(h Hook) *Scenario {
	s.PostHook = h
	return s
}
