package verify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/devicelab-dev/appium-compat/pkg/core"
	"github.com/devicelab-dev/appium-compat/pkg/driver/appium"
	"github.com/devicelab-dev/appium-compat/pkg/driver/wda"
	"github.com/devicelab-dev/appium-compat/pkg/logger"
)

// Driver is the slice of the session client the probes use.
type Driver interface {
	Platform() string
	Screenshot() ([]byte, error)
	Source() (string, error)
	FindElementOrEmpty(strategy, value string) (string, error)
	IsElementDisplayed(elementID string) (bool, error)
	IsElementEnabled(elementID string) (bool, error)
	ClickElement(elementID string) error
	PerformGesture(points []appium.Point, hold time.Duration) error
	Lock(seconds int) error
	Unlock() error
	IsLocked() (bool, error)
	Background(d time.Duration) error
	AcceptAlert() error
	CurrentPackage() (string, error)
	CurrentActivity() (string, error)
	Execute(script string, args map[string]interface{}) (interface{}, error)
	ExecuteMobile(command string, args map[string]interface{}) (interface{}, error)
}

// Artifacts collects the payloads probes captured, for assertions only.
type Artifacts struct {
	mu          sync.Mutex
	Screenshots [][]byte
	Sources     []string
	Output      map[string]interface{} // Values hook scripts wrote to `output`
}

func (a *Artifacts) addScreenshot(b []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Screenshots = append(a.Screenshots, b)
}

func (a *Artifacts) addSource(s string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Sources = append(a.Sources, s)
}

// AddOutput merges values written by a hook script. Later hooks win.
func (a *Artifacts) AddOutput(values map[string]interface{}) {
	if len(values) == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Output == nil {
		a.Output = make(map[string]interface{}, len(values))
	}
	for k, v := range values {
		a.Output[k] = v
	}
}

// Counts returns the number of screenshots and sources captured.
func (a *Artifacts) Counts() (screenshots, sources int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.Screenshots), len(a.Sources)
}

// Env is what a probe runs against.
type Env struct {
	Driver    Driver
	Artifacts *Artifacts
}

// Probe is one named verification step.
type Probe struct {
	Name string
	Run  func(ctx context.Context, env *Env) error
}

// DefaultLocator is the first container element on each platform, a node
// every app's hierarchy is expected to have.
func DefaultLocator(platform string) string {
	if strings.EqualFold(platform, "ios") {
		return "//XCUIElementTypeOther[1]"
	}
	return "//android.widget.FrameLayout[1]"
}

// ScreenshotNotEmpty captures a screenshot, retrying per policy, and fails
// only when no non-empty image was obtained.
func ScreenshotNotEmpty(policy RetryPolicy) Probe {
	return Probe{
		Name: "screenshot",
		Run: func(ctx context.Context, env *Env) error {
			var image []byte
			err := policy.Do(ctx, "take screenshot", func() error {
				img, err := env.Driver.Screenshot()
				if err != nil {
					return err
				}
				if len(img) == 0 {
					return errors.New("empty screenshot")
				}
				image = img
				return nil
			})
			if err != nil {
				return core.ErrTransientCapture.WithCause(err)
			}
			env.Artifacts.addScreenshot(image)
			return nil
		},
	}
}

// SourceTreeMinDepth fetches the page source and asserts the first-child
// chain from the root is at least minDepth deep. Fetch errors are retried
// per policy; a payload that does not parse is logged verbatim and fails
// immediately.
func SourceTreeMinDepth(minDepth int, policy RetryPolicy) Probe {
	if minDepth < 1 {
		minDepth = DefaultMinDepth
	}
	return Probe{
		Name: "source",
		Run: func(ctx context.Context, env *Env) error {
			var src string
			err := policy.Do(ctx, "get page source", func() error {
				s, err := env.Driver.Source()
				if err != nil {
					return err
				}
				src = s
				return nil
			})
			if err != nil {
				return core.ErrTransientCapture.WithCause(err)
			}

			depth, err := TreeDepth(src)
			if err != nil {
				logger.Error("unparsable page source: %v\n%s", err, src)
				return core.ErrMalformedTree.WithCause(err)
			}
			if depth < minDepth {
				logger.Error("page source too shallow (depth %d < %d):\n%s", depth, minDepth, src)
				return core.ErrMalformedTree.WithMessage(
					fmt.Sprintf("page source depth %d below minimum %d", depth, minDepth))
			}
			env.Artifacts.addSource(src)
			return nil
		},
	}
}

// ElementPresenceAndClick looks up one element by xpath. A missing element
// is logged, not failed; a present one is clicked only when it is both
// displayed and enabled. An empty locator uses DefaultLocator.
func ElementPresenceAndClick(locator string) Probe {
	return Probe{
		Name: "click",
		Run: func(ctx context.Context, env *Env) error {
			expr := locator
			if expr == "" {
				expr = DefaultLocator(env.Driver.Platform())
			}
			id, err := env.Driver.FindElementOrEmpty("xpath", expr)
			if err != nil {
				return fmt.Errorf("find %s: %w", expr, err)
			}
			if id == "" {
				logger.Info("no element is found for %s", expr)
				return nil
			}
			clickable, err := isClickable(env.Driver, id)
			if err != nil {
				return err
			}
			if clickable {
				return env.Driver.ClickElement(id)
			}
			logger.Info("element %s is not clickable, skipping", expr)
			return nil
		},
	}
}

func isClickable(d Driver, id string) (bool, error) {
	displayed, err := d.IsElementDisplayed(id)
	if err != nil || !displayed {
		return false, err
	}
	return d.IsElementEnabled(id)
}

// GestureSequence submits press, optional hold, moves and release as one
// atomic action.
func GestureSequence(points []appium.Point, hold time.Duration) Probe {
	return Probe{
		Name: "gesture",
		Run: func(ctx context.Context, env *Env) error {
			return env.Driver.PerformGesture(points, hold)
		},
	}
}

// ScrollUntilClickable repeats the gesture until the element behind
// locator is displayed, then clicks it. It fails when the element is not
// reachable within maxSwipes gestures.
func ScrollUntilClickable(locator string, points []appium.Point, maxSwipes int) Probe {
	return Probe{
		Name: "scroll",
		Run: func(ctx context.Context, env *Env) error {
			for swipe := 0; ; swipe++ {
				id, err := env.Driver.FindElementOrEmpty("xpath", locator)
				if err != nil {
					return fmt.Errorf("find %s: %w", locator, err)
				}
				if id != "" {
					clickable, err := isClickable(env.Driver, id)
					if err != nil {
						return err
					}
					if clickable {
						logger.Info("%s reachable after %d swipe(s)", locator, swipe)
						return env.Driver.ClickElement(id)
					}
				}
				if swipe >= maxSwipes {
					break
				}
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := env.Driver.PerformGesture(points, 0); err != nil {
					return err
				}
			}
			return core.ErrAssertion.WithMessage(
				fmt.Sprintf("%s not clickable after %d swipes", locator, maxSwipes))
		},
	}
}

// SessionlessCheck fetches a screenshot or source straight from the
// backend's local port, outside any session, and expects a non-empty value.
func SessionlessCheck(client *wda.Client, kind wda.Kind) Probe {
	return Probe{
		Name: "sessionless-" + string(kind),
		Run: func(ctx context.Context, env *Env) error {
			payload, err := client.Fetch(ctx, kind)
			if err != nil {
				return fmt.Errorf("session-less %s: %w", kind, err)
			}
			if len(payload) == 0 {
				return core.ErrAssertion.WithMessage(fmt.Sprintf("session-less %s returned an empty value", kind))
			}
			return nil
		},
	}
}

// LockUnlock locks the screen, checks it reports locked, then unlocks it.
func LockUnlock() Probe {
	return Probe{
		Name: "lock",
		Run: func(ctx context.Context, env *Env) error {
			if err := env.Driver.Lock(0); err != nil {
				return fmt.Errorf("lock: %w", err)
			}
			locked, err := env.Driver.IsLocked()
			if err != nil {
				return fmt.Errorf("is locked: %w", err)
			}
			if !locked {
				return core.ErrAssertion.WithMessage("device did not report locked after lock")
			}
			if err := env.Driver.Unlock(); err != nil {
				return fmt.Errorf("unlock: %w", err)
			}
			locked, err = env.Driver.IsLocked()
			if err != nil {
				return fmt.Errorf("is locked: %w", err)
			}
			if locked {
				return core.ErrAssertion.WithMessage("device still locked after unlock")
			}
			return nil
		},
	}
}

// BackgroundForeground backgrounds the app for d and checks the source is
// still servable once it returns.
func BackgroundForeground(d time.Duration) Probe {
	return Probe{
		Name: "background",
		Run: func(ctx context.Context, env *Env) error {
			if err := env.Driver.Background(d); err != nil {
				return fmt.Errorf("background: %w", err)
			}
			src, err := env.Driver.Source()
			if err != nil {
				return fmt.Errorf("source after foreground: %w", err)
			}
			if strings.TrimSpace(src) == "" {
				return core.ErrAssertion.WithMessage("empty page source after returning to foreground")
			}
			return nil
		},
	}
}

// ContainsText asserts the page source contains substr.
func ContainsText(substr string) Probe {
	return Probe{
		Name: "contains",
		Run: func(ctx context.Context, env *Env) error {
			src, err := env.Driver.Source()
			if err != nil {
				return err
			}
			if !strings.Contains(src, substr) {
				return core.ErrAssertion.WithMessage(fmt.Sprintf("page source does not contain %q", substr))
			}
			return nil
		},
	}
}

// AndroidActivity checks the foreground package and activity are
// reported, and that the package matches expectPackage when it is set.
func AndroidActivity(expectPackage string) Probe {
	return Probe{
		Name: "activity",
		Run: func(ctx context.Context, env *Env) error {
			pkg, err := env.Driver.CurrentPackage()
			if err != nil {
				return fmt.Errorf("current package: %w", err)
			}
			activity, err := env.Driver.CurrentActivity()
			if err != nil {
				return fmt.Errorf("current activity: %w", err)
			}
			logger.Info("current package %s, activity %s", pkg, activity)
			if pkg == "" || activity == "" {
				return core.ErrAssertion.WithMessage("empty package or activity")
			}
			if expectPackage != "" && pkg != expectPackage {
				return core.ErrAssertion.WithMessage(fmt.Sprintf("package %q, want %q", pkg, expectPackage))
			}
			return nil
		},
	}
}

// QueryAppState logs the lifecycle state of an iOS app. Pre-hooks use it
// when debugging launch failures.
func QueryAppState(d Driver, bundleID string) (interface{}, error) {
	state, err := d.ExecuteMobile("queryAppState", map[string]interface{}{"bundleId": bundleID})
	if err != nil {
		return nil, err
	}
	logger.Info("Current iOS app state is %v", state)
	return state, nil
}
