package scenario

import (
	"context"
	"path"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/google/uuid"

	"github.com/devicelab-dev/appium-compat/pkg/capability"
	"github.com/devicelab-dev/appium-compat/pkg/jsengine"
	"github.com/devicelab-dev/appium-compat/pkg/session"
	"github.com/devicelab-dev/appium-compat/pkg/verify"
)

// Planned is one scenario of an expanded table. Capabilities are built
// only when the scenario is about to run, so the one-shot flags follow
// execution order and a missing device fails only its own scenario.
type Planned struct {
	Name      string
	Group     string
	Axis      capability.Axis
	Label     string
	Server    string
	Parallel  string
	Skip      string
	ResetHost bool

	Variant   capability.Variant
	Overrides capability.Set

	group    *Group
	defaults Defaults
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_]+`)

// SafeName replaces every run of characters outside [a-zA-Z0-9_] with a
// single underscore.
func SafeName(s string) string {
	return unsafeChars.ReplaceAllString(s, "_")
}

// targetSuffix names a scenario after its target: the file name for app
// paths, the value otherwise.
func targetSuffix(t Target) string {
	if t.Name != "" {
		return SafeName(t.Name)
	}
	if t.Key == capability.KeyApp {
		return SafeName(filepath.Base(t.Value))
	}
	return SafeName(t.Value)
}

func (g *Group) scenarioNames() []string {
	if len(g.Targets) == 0 {
		return []string{g.Name}
	}
	names := make([]string, len(g.Targets))
	for i, t := range g.Targets {
		names[i] = g.Name + "_" + targetSuffix(t)
	}
	return names
}

func (p *ParallelGroup) memberName(m Group) string {
	return p.Name + "_" + SafeName(m.Name)
}

// Expand returns the scenarios of the table in run order: plain groups in
// table order, then every parallel group. Parallel members without an
// explicit derivedDataPath get a fresh directory under the group's root.
func (t *Table) Expand() []Planned {
	var out []Planned
	for i := range t.Groups {
		out = append(out, t.expandGroup(&t.Groups[i])...)
	}
	for i := range t.Parallel {
		p := &t.Parallel[i]
		root := firstNonEmpty(p.DerivedDataRoot, t.Defaults.DerivedDataRoot)
		for j := range p.Members {
			m := &p.Members[j]
			planned := t.expandGroup(m)
			if len(planned) == 0 {
				continue
			}
			pl := planned[0]
			pl.Name = p.memberName(*m)
			pl.Parallel = p.Name
			if pl.Variant.DerivedDataPath == "" && root != "" && m.Axis.IsIOS() {
				pl.Variant.DerivedDataPath = filepath.Join(root, uuid.NewString())
			}
			out = append(out, pl)
		}
	}
	return out
}

func (t *Table) expandGroup(g *Group) []Planned {
	base := capability.Set{}
	for _, name := range sortedFlags(g.Flags) {
		base[name] = g.Flags[name]
	}
	for k, v := range g.Caps {
		base[k] = v
	}

	plan := func(name string) Planned {
		return Planned{
			Name:      name,
			Group:     g.Name,
			Axis:      g.Axis,
			Label:     capability.AxisLabel(g.Axis, g.Variant.PlatformVersion),
			Server:    g.Server,
			Skip:      g.Skip,
			ResetHost: g.ResetHost,
			Variant:   g.Variant,
			group:     g,
			defaults:  t.Defaults,
		}
	}

	if len(g.Targets) == 0 {
		p := plan(g.Name)
		p.Overrides = base.Clone()
		return []Planned{p}
	}

	names := g.scenarioNames()
	out := make([]Planned, 0, len(g.Targets))
	resetDone := false
	for i, target := range g.Targets {
		p := plan(names[i])
		overrides := base.With(target.Key, target.Value)
		for k, v := range target.Caps {
			overrides[k] = v
		}
		// iOS groups reset their first scenario; Android groups their first app install.
		if g.ResetOnce && !resetDone && (g.Axis.IsIOS() || target.Key == capability.KeyApp) {
			overrides[capability.FlagFullReset] = true
			resetDone = true
		}
		p.Overrides = overrides
		out = append(out, p)
	}
	return out
}

func sortedFlags(flags map[string]bool) []string {
	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Scenario builds the capabilities and probes of p. Errors from the
// builder, such as a missing device, are returned as is.
func (p *Planned) Scenario(ctx context.Context, b *capability.Builder, port int) (*session.Scenario, error) {
	caps, err := b.Build(ctx, p.Axis, p.Variant, p.Overrides)
	if err != nil {
		return nil, err
	}

	probes := make([]verify.Probe, 0, len(p.group.probes()))
	for _, s := range p.group.probes() {
		spec, err := parseProbeSpec(s)
		if err != nil {
			return nil, err
		}
		probe, err := spec.build(p.group, p.defaults, caps)
		if err != nil {
			return nil, err
		}
		probes = append(probes, probe)
	}

	sc := session.NewScenario(p.Name).WithCaps(caps).OnPort(port).Then(probes...)

	vars := map[string]interface{}{
		"scenario": p.Name,
		"axis":     string(p.Axis),
		"caps":     caps.Map(),
	}
	if h := p.group.Hooks.Before; h != "" {
		sc.Before(jsengine.Hook(h, vars))
	}
	if h := p.group.Hooks.After; h != "" {
		sc.After(jsengine.Hook(h, vars))
	}
	return sc, nil
}

// Filter selects scenarios by name glob and axis. Empty fields match all.
type Filter struct {
	Only []string
	Axes []capability.Axis
}

// Match reports whether p passes the filter.
func (f Filter) Match(p Planned) bool {
	if len(f.Axes) > 0 {
		found := false
		for _, a := range f.Axes {
			if a == p.Axis {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(f.Only) == 0 {
		return true
	}
	for _, pattern := range f.Only {
		for _, name := range []string{p.Name, p.Group, p.Parallel} {
			if name == "" {
				continue
			}
			if ok, _ := path.Match(pattern, name); ok {
				return true
			}
		}
	}
	return false
}

// Select keeps the scenarios that pass f. A parallel group is kept whole
// when any of its members passes, since its members only make sense
// together.
func Select(plans []Planned, f Filter) []Planned {
	keepParallel := make(map[string]bool)
	for _, p := range plans {
		if p.Parallel != "" && f.Match(p) {
			keepParallel[p.Parallel] = true
		}
	}
	var out []Planned
	for _, p := range plans {
		if p.Parallel != "" {
			if keepParallel[p.Parallel] {
				out = append(out, p)
			}
			continue
		}
		if f.Match(p) {
			out = append(out, p)
		}
	}
	return out
}
