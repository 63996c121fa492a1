package scenario

import (
	"fmt"
	"strings"
	"time"

	"github.com/devicelab-dev/appium-compat/pkg/capability"
	"github.com/devicelab-dev/appium-compat/pkg/driver/wda"
	"github.com/devicelab-dev/appium-compat/pkg/verify"
)

// Probe names accepted in a group's probes list. Some take an argument
// after a colon, for example "scroll://XCUIElementTypeCell[20]".
const (
	ProbeScreenshot  = "screenshot"
	ProbeSource      = "source"
	ProbeClick       = "click"
	ProbeGesture     = "gesture"
	ProbeScroll      = "scroll"
	ProbeSessionless = "sessionless"
	ProbeLock        = "lock"
	ProbeBackground  = "background"
	ProbeContains    = "contains"
	ProbeActivity    = "activity"
)

type probeSpec struct {
	Kind string
	Arg  string
}

func parseProbeSpec(s string) (probeSpec, error) {
	kind, arg, _ := strings.Cut(strings.TrimSpace(s), ":")
	p := probeSpec{Kind: strings.ToLower(kind), Arg: strings.TrimSpace(arg)}

	switch p.Kind {
	case ProbeScreenshot, ProbeSource, ProbeGesture, ProbeLock:
		if p.Arg != "" {
			return p, fmt.Errorf("probe %q takes no argument", p.Kind)
		}
	case ProbeClick, ProbeActivity:
	case ProbeScroll, ProbeContains:
		if p.Arg == "" {
			return p, fmt.Errorf("probe %q needs an argument", p.Kind)
		}
	case ProbeSessionless:
		if _, err := wda.ParseKind(p.Arg); err != nil {
			return p, err
		}
	case ProbeBackground:
		if p.Arg != "" {
			d, err := time.ParseDuration(p.Arg)
			if err != nil {
				return p, fmt.Errorf("probe background: %w", err)
			}
			if d <= 0 {
				return p, fmt.Errorf("probe background: duration must be positive, got %s", p.Arg)
			}
		}
	default:
		return p, fmt.Errorf("unknown probe %q", s)
	}
	return p, nil
}

// checkAxis returns a message when the probe cannot run on axis.
func (p probeSpec) checkAxis(axis capability.Axis) string {
	switch {
	case p.Kind == ProbeActivity && axis.IsIOS():
		return "probe activity is Android only"
	case p.Kind == ProbeSessionless && !axis.IsIOS():
		return "probe sessionless is iOS only"
	}
	return ""
}

// build turns the spec into a probe for a scenario whose capabilities are
// already known; the session-less probe reads its port from them.
func (p probeSpec) build(g *Group, d Defaults, caps capability.Set) (verify.Probe, error) {
	switch p.Kind {
	case ProbeScreenshot:
		return verify.ScreenshotNotEmpty(d.screenshotRetry()), nil
	case ProbeSource:
		return verify.SourceTreeMinDepth(d.minDepth(), d.sourceRetry()), nil
	case ProbeClick:
		return verify.ElementPresenceAndClick(firstNonEmpty(p.Arg, g.Locator)), nil
	case ProbeGesture:
		return verify.GestureSequence(g.gesture(d), g.hold(d)), nil
	case ProbeScroll:
		return verify.ScrollUntilClickable(p.Arg, g.gesture(d), g.maxSwipes(d)), nil
	case ProbeSessionless:
		port, ok := caps.Int(capability.KeyWDALocalPort)
		if !ok || port == 0 {
			return verify.Probe{}, fmt.Errorf("probe sessionless needs %s", capability.KeyWDALocalPort)
		}
		kind, err := wda.ParseKind(p.Arg)
		if err != nil {
			return verify.Probe{}, err
		}
		return verify.SessionlessCheck(wda.NewClient(port), kind), nil
	case ProbeLock:
		return verify.LockUnlock(), nil
	case ProbeBackground:
		dur := d.backgroundFor()
		if p.Arg != "" {
			parsed, err := time.ParseDuration(p.Arg)
			if err != nil {
				return verify.Probe{}, err
			}
			dur = parsed
		}
		return verify.BackgroundForeground(dur), nil
	case ProbeContains:
		return verify.ContainsText(p.Arg), nil
	case ProbeActivity:
		return verify.AndroidActivity(firstNonEmpty(p.Arg, g.ExpectPackage, caps.String(capability.KeyAppPackage))), nil
	}
	return verify.Probe{}, fmt.Errorf("unknown probe %q", p.Kind)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
