// Package scenario expands the YAML scenario table into runnable sessions
// and runs them against the servers the table declares.
package scenario

import (
	"time"

	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/appium-compat/pkg/capability"
	"github.com/devicelab-dev/appium-compat/pkg/driver/appium"
	"github.com/devicelab-dev/appium-compat/pkg/server"
	"github.com/devicelab-dev/appium-compat/pkg/verify"
)

// Table is a parsed scenarios.yaml.
type Table struct {
	Servers  []ServerSpec    `yaml:"servers"`
	Defaults Defaults        `yaml:"defaults"`
	Groups   []Group         `yaml:"groups"`
	Parallel []ParallelGroup `yaml:"parallel"`

	// SourcePath is the file the table was read from.
	SourcePath string `yaml:"-"`
}

// ServerSpec is a server entry. Fields left out of the YAML keep the
// values of server.DefaultConfig.
type ServerSpec struct {
	server.Config `yaml:",inline"`
}

// UnmarshalYAML decodes on top of the default server flags.
func (s *ServerSpec) UnmarshalYAML(node *yaml.Node) error {
	cfg := server.DefaultConfig("", 0)
	if err := node.Decode(&cfg); err != nil {
		return err
	}
	s.Config = cfg
	return nil
}

// Defaults apply to every group that does not set its own value.
type Defaults struct {
	MinDepth        int                 `yaml:"minDepth"`
	ScreenshotRetry *verify.RetryPolicy `yaml:"screenshotRetry"`
	SourceRetry     *verify.RetryPolicy `yaml:"sourceRetry"`
	Gesture         []appium.Point      `yaml:"gesture"`
	Hold            time.Duration       `yaml:"hold"`
	MaxSwipes       int                 `yaml:"maxSwipes"`
	BackgroundFor   time.Duration       `yaml:"backgroundFor"`
	DerivedDataRoot string              `yaml:"derivedDataRoot"`
}

// DefaultGesture is press at (50,50), move to (100,100), release.
var DefaultGesture = []appium.Point{{X: 50, Y: 50}, {X: 100, Y: 100}}

// DefaultProbes is the sequence run when a group lists none.
var DefaultProbes = []string{"screenshot", "source", "click", "gesture", "source", "screenshot"}

const (
	defaultMaxSwipes     = 5
	defaultBackgroundFor = 3 * time.Second
)

// Group is one axis and device variant run against a list of targets.
// Each target becomes one scenario.
type Group struct {
	Name    string                 `yaml:"name"`
	Axis    capability.Axis        `yaml:"axis"`
	Variant capability.Variant     `yaml:"variant"`
	Server  string                 `yaml:"server"`
	Flags   map[string]bool        `yaml:"flags"`
	Caps    map[string]interface{} `yaml:"caps"`
	Targets []Target               `yaml:"targets"`
	Probes  []string               `yaml:"probes"`
	Hooks   Hooks                  `yaml:"hooks"`

	// ResetOnce sets fullReset on the first scenario of an iOS group, or on
	// the first app target of an Android group.
	ResetOnce bool `yaml:"resetOnce"`
	// ResetHost kills leftover simulator processes before the group runs.
	ResetHost bool `yaml:"resetHost"`

	Locator       string         `yaml:"locator"`
	ExpectPackage string         `yaml:"expectPackage"`
	Gesture       []appium.Point `yaml:"gesture"`
	Hold          time.Duration  `yaml:"hold"`
	MaxSwipes     int            `yaml:"maxSwipes"`

	// Skip, when set, is the reason every scenario of the group is skipped.
	Skip string `yaml:"skip"`
}

// Target is the app under test, identified by one capability.
type Target struct {
	Key   string                 `yaml:"key"`
	Value string                 `yaml:"value"`
	Name  string                 `yaml:"name"`
	Caps  map[string]interface{} `yaml:"caps"`
}

// Hooks are JavaScript snippets run right after init and right before quit.
type Hooks struct {
	Before string `yaml:"before"`
	After  string `yaml:"after"`
}

// ParallelGroup runs its members concurrently, each against the server
// it names. Every member gets its own derived-data directory under
// DerivedDataRoot.
type ParallelGroup struct {
	Name            string  `yaml:"name"`
	DerivedDataRoot string  `yaml:"derivedDataRoot"`
	Members         []Group `yaml:"members"`
}

func (d Defaults) minDepth() int {
	if d.MinDepth > 0 {
		return d.MinDepth
	}
	return verify.DefaultMinDepth
}

func (d Defaults) screenshotRetry() verify.RetryPolicy {
	if d.ScreenshotRetry != nil {
		return *d.ScreenshotRetry
	}
	return verify.DefaultScreenshotPolicy
}

func (d Defaults) sourceRetry() verify.RetryPolicy {
	if d.SourceRetry != nil {
		return *d.SourceRetry
	}
	return verify.NoRetry
}

func (d Defaults) backgroundFor() time.Duration {
	if d.BackgroundFor > 0 {
		return d.BackgroundFor
	}
	return defaultBackgroundFor
}

func (g *Group) gesture(d Defaults) []appium.Point {
	switch {
	case len(g.Gesture) > 0:
		return g.Gesture
	case len(d.Gesture) > 0:
		return d.Gesture
	default:
		return DefaultGesture
	}
}

func (g *Group) hold(d Defaults) time.Duration {
	if g.Hold > 0 {
		return g.Hold
	}
	return d.Hold
}

func (g *Group) maxSwipes(d Defaults) int {
	if g.MaxSwipes > 0 {
		return g.MaxSwipes
	}
	if d.MaxSwipes > 0 {
		return d.MaxSwipes
	}
	return defaultMaxSwipes
}

func (g *Group) probes() []string {
	if len(g.Probes) > 0 {
		return g.Probes
	}
	return DefaultProbes
}

// Server returns the server spec with the given name.
func (t *Table) Server(name string) (server.Config, bool) {
	for _, s := range t.Servers {
		if s.Name == name {
			return s.Config, true
		}
	}
	return server.Config{}, false
}
