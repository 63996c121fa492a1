package scenario

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/appium-compat/pkg/capability"
	"github.com/devicelab-dev/appium-compat/pkg/core"
	"github.com/devicelab-dev/appium-compat/pkg/jsengine"
	"github.com/devicelab-dev/appium-compat/pkg/logger"
)

// DefaultFile is the table looked up when no path is given.
const DefaultFile = "scenarios.yaml"

// ValidationError is one problem found in a table.
type ValidationError struct {
	File    string
	Where   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Where != "" {
		return fmt.Sprintf("%s: %s: %s", e.File, e.Where, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

// Load reads and validates a table. A directory is searched for
// scenarios.yaml. ${NAME} references are expanded from the environment.
func Load(path string) (*Table, error) {
	return LoadWithVars(path, environ())
}

// LoadWithVars is Load with an explicit variable set for ${NAME} expansion.
func LoadWithVars(path string, vars map[string]string) (*Table, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, DefaultFile)
	}
	data, err := os.ReadFile(path) //#nosec G304 -- path is the user-provided scenario table
	if err != nil {
		return nil, core.ErrInvalidConfig.
			WithMessage(fmt.Sprintf("failed to read scenario table %s", path)).
			WithCause(err)
	}
	return Parse(data, path, vars)
}

// Parse decodes and validates table content. vars feeds ${NAME} expansion
// in target values, capabilities, variants and derived-data roots; a
// reference that does not resolve is left as written.
func Parse(data []byte, sourcePath string, vars map[string]string) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, core.ErrInvalidConfig.
			WithMessage(fmt.Sprintf("%s: invalid YAML", sourcePath)).
			WithCause(err)
	}
	t.SourcePath = sourcePath

	t.expandVariables(newExpander(vars))

	if errs := t.Validate(); len(errs) > 0 {
		for _, err := range errs {
			logger.Error("%v", err)
		}
		return nil, core.ErrInvalidConfig.
			WithMessage(fmt.Sprintf("%s: %d validation error(s)", sourcePath, len(errs))).
			WithCause(errors.Join(errs...))
	}
	logger.Info("loaded %s: %d server(s), %d group(s), %d parallel group(s)",
		sourcePath, len(t.Servers), len(t.Groups), len(t.Parallel))
	return &t, nil
}

func environ() map[string]string {
	vars := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			vars[k] = v
		}
	}
	return vars
}

type expander func(string) string

func newExpander(vars map[string]string) expander {
	if len(vars) == 0 {
		return func(s string) string { return s }
	}
	engine := jsengine.New()
	for k, v := range vars {
		engine.SetVariable(k, v)
	}
	return func(s string) string {
		if !strings.Contains(s, "${") {
			return s
		}
		return engine.ExpandVariables(s)
	}
}

func (t *Table) expandVariables(expand expander) {
	t.Defaults.DerivedDataRoot = expand(t.Defaults.DerivedDataRoot)
	for i := range t.Servers {
		s := &t.Servers[i]
		for k, v := range s.ExtraEnv {
			s.ExtraEnv[k] = expand(v)
		}
	}
	for i := range t.Groups {
		t.Groups[i].expandVariables(expand)
	}
	for i := range t.Parallel {
		p := &t.Parallel[i]
		p.DerivedDataRoot = expand(p.DerivedDataRoot)
		for j := range p.Members {
			p.Members[j].expandVariables(expand)
		}
	}
}

func (g *Group) expandVariables(expand expander) {
	g.Variant.UDID = expand(g.Variant.UDID)
	g.Variant.DerivedDataPath = expand(g.Variant.DerivedDataPath)
	expandCaps(g.Caps, expand)
	for i := range g.Targets {
		g.Targets[i].Value = expand(g.Targets[i].Value)
		expandCaps(g.Targets[i].Caps, expand)
	}
}

func expandCaps(caps map[string]interface{}, expand expander) {
	for k, v := range caps {
		if s, ok := v.(string); ok {
			caps[k] = expand(s)
		}
	}
}

// Validate returns every problem in the table. Names must be unique
// across groups, parallel groups and the scenarios they expand to.
func (t *Table) Validate() []error {
	var errs []error
	add := func(where, format string, args ...interface{}) {
		errs = append(errs, &ValidationError{File: t.SourcePath, Where: where, Message: fmt.Sprintf(format, args...)})
	}

	servers := make(map[string]bool)
	ports := make(map[int]string)
	for i, s := range t.Servers {
		where := fmt.Sprintf("servers[%d]", i)
		if s.Name == "" {
			add(where, "missing name")
		} else if servers[s.Name] {
			add(where, "duplicate server %q", s.Name)
		}
		servers[s.Name] = true
		if err := s.Validate(); err != nil {
			add(where, "%v", err)
		}
		if other, ok := ports[s.Port]; ok {
			add(where, "port %d already used by server %q", s.Port, other)
		}
		ports[s.Port] = s.Name
	}
	if t.Defaults.MinDepth < 0 {
		add("defaults", "minDepth must not be negative")
	}

	names := make(map[string]string)
	claim := func(where, name string) {
		if prev, ok := names[name]; ok {
			add(where, "name %q already used by %s", name, prev)
			return
		}
		names[name] = where
	}

	for i := range t.Groups {
		g := &t.Groups[i]
		where := fmt.Sprintf("groups[%d]", i)
		if g.Name != "" {
			where = fmt.Sprintf("group %q", g.Name)
		}
		for _, msg := range g.validate(servers) {
			add(where, "%s", msg)
		}
		for _, name := range g.scenarioNames() {
			claim(where, name)
		}
	}

	for i := range t.Parallel {
		p := &t.Parallel[i]
		where := fmt.Sprintf("parallel[%d]", i)
		if p.Name != "" {
			where = fmt.Sprintf("parallel %q", p.Name)
		}
		for _, msg := range p.validate(servers, t.Defaults.DerivedDataRoot) {
			add(where, "%s", msg)
		}
		for _, m := range p.Members {
			claim(where, p.memberName(m))
		}
	}
	return errs
}

func (g *Group) validate(servers map[string]bool) []string {
	var msgs []string
	addf := func(format string, args ...interface{}) {
		msgs = append(msgs, fmt.Sprintf(format, args...))
	}

	if g.Name == "" {
		addf("missing name")
	}
	axis, err := capability.ParseAxis(string(g.Axis))
	if err != nil {
		addf("unknown axis %q", g.Axis)
	} else {
		g.Axis = axis
	}
	if g.Server == "" {
		addf("missing server")
	} else if !servers[g.Server] {
		addf("unknown server %q", g.Server)
	}
	if g.Variant.PlatformVersion != "" {
		if _, err := capability.ParseVersion(g.Variant.PlatformVersion); err != nil {
			addf("invalid platformVersion %q", g.Variant.PlatformVersion)
		}
	}
	if g.Variant.WDALocalPort < 0 || g.Variant.WDALocalPort > 65535 {
		addf("invalid wdaLocalPort %d", g.Variant.WDALocalPort)
	}
	for name := range g.Flags {
		if !capability.IsFlag(name) {
			addf("unknown flag %q", name)
		}
	}
	if _, ok := g.Caps[capability.FlagUseNewWDA]; ok {
		addf("caps: %s cannot be set in a table", capability.FlagUseNewWDA)
	}
	for i, target := range g.Targets {
		if target.Key == "" {
			addf("targets[%d]: missing key", i)
		}
		if target.Key == capability.FlagUseNewWDA {
			addf("targets[%d]: %s cannot be set in a table", i, capability.FlagUseNewWDA)
		}
		if _, ok := target.Caps[capability.FlagUseNewWDA]; ok {
			addf("targets[%d].caps: %s cannot be set in a table", i, capability.FlagUseNewWDA)
		}
		if target.Value == "" {
			addf("targets[%d]: missing value", i)
		}
	}
	for _, spec := range g.probes() {
		p, err := parseProbeSpec(spec)
		if err != nil {
			addf("%v", err)
			continue
		}
		if axis != "" {
			if msg := p.checkAxis(axis); msg != "" {
				addf("%s", msg)
			}
		}
	}
	if g.Hooks.Before != "" {
		if err := jsengine.Check(g.Name+".before", g.Hooks.Before); err != nil {
			addf("%v", err)
		}
	}
	if g.Hooks.After != "" {
		if err := jsengine.Check(g.Name+".after", g.Hooks.After); err != nil {
			addf("%v", err)
		}
	}
	if g.MaxSwipes < 0 {
		addf("maxSwipes must not be negative")
	}
	return msgs
}

func (p *ParallelGroup) validate(servers map[string]bool, defaultRoot string) []string {
	var msgs []string
	addf := func(format string, args ...interface{}) {
		msgs = append(msgs, fmt.Sprintf(format, args...))
	}

	if p.Name == "" {
		addf("missing name")
	}
	if len(p.Members) < 2 {
		addf("needs at least two members, has %d", len(p.Members))
	}
	hasRoot := p.DerivedDataRoot != "" || defaultRoot != ""

	ports := make(map[int]string)
	var dirs []string
	dirOwner := make(map[string]string)
	for i := range p.Members {
		m := &p.Members[i]
		for _, msg := range m.validate(servers) {
			addf("member %q: %s", m.Name, msg)
		}
		if len(m.Targets) > 1 {
			addf("member %q: has %d targets, members take at most one", m.Name, len(m.Targets))
		}
		if m.Axis.IsIOS() {
			if m.Variant.DerivedDataPath == "" && !hasRoot {
				addf("member %q: no derivedDataPath and no derivedDataRoot", m.Name)
			}
			if m.Variant.WDALocalPort == 0 {
				addf("member %q: wdaLocalPort is required in a parallel group", m.Name)
			} else if other, ok := ports[m.Variant.WDALocalPort]; ok {
				addf("member %q: wdaLocalPort %d overlaps member %q", m.Name, m.Variant.WDALocalPort, other)
			} else {
				ports[m.Variant.WDALocalPort] = m.Name
			}
		}
		if dir := m.Variant.DerivedDataPath; dir != "" {
			clean := filepath.Clean(dir)
			for _, other := range dirs {
				if overlaps(clean, other) {
					addf("member %q: derivedDataPath %s overlaps member %q", m.Name, dir, dirOwner[other])
				}
			}
			dirs = append(dirs, clean)
			dirOwner[clean] = m.Name
		}
	}
	return msgs
}

// overlaps reports whether one directory is the other or contains it.
func overlaps(a, b string) bool {
	if a == b {
		return true
	}
	sep := string(filepath.Separator)
	return strings.HasPrefix(a, b+sep) || strings.HasPrefix(b, a+sep)
}
