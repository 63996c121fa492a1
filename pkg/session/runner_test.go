package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/devicelab-dev/appium-compat/pkg/capability"
	"github.com/devicelab-dev/appium-compat/pkg/core"
	"github.com/devicelab-dev/appium-compat/pkg/driver/appium"
	"github.com/devicelab-dev/appium-compat/pkg/verify"
)

const androidSource = `<?xml version="1.0" encoding="UTF-8"?><hierarchy rotation="0"><android.widget.FrameLayout><android.widget.LinearLayout><android.widget.TextView text="API Demos"/></android.widget.LinearLayout></android.widget.FrameLayout></hierarchy>`

// fakeAppium is a minimal automation server. Element lookups never match.
type fakeAppium struct {
	mu         sync.Mutex
	created    int
	quits      int
	quitFails  bool
	initFails  bool
	actions    int
	lastCaps   map[string]interface{}
	paths      []string
	screenshot string
}

func (f *fakeAppium) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.paths = append(f.paths, r.Method+" "+r.URL.Path)
		path := strings.TrimPrefix(r.URL.Path, "/wd/hub")

		switch {
		case r.Method == http.MethodPost && path == "/session":
			if f.initFails {
				w.WriteHeader(http.StatusInternalServerError)
				writeJSON(w, map[string]interface{}{"value": map[string]interface{}{
					"error": "session not created", "message": "Could not find a connected Android device",
				}})
				return
			}
			var body map[string]interface{}
			json.NewDecoder(r.Body).Decode(&body)
			f.lastCaps, _ = body["desiredCapabilities"].(map[string]interface{})
			f.created++
			writeJSON(w, map[string]interface{}{"value": map[string]interface{}{
				"sessionId":    "sess-" + strconv.Itoa(f.created),
				"capabilities": map[string]interface{}{"platformName": "Android"},
			}})
		case r.Method == http.MethodDelete && strings.HasPrefix(path, "/session/"):
			f.quits++
			if f.quitFails {
				w.WriteHeader(http.StatusInternalServerError)
				writeJSON(w, map[string]interface{}{"value": map[string]interface{}{
					"error": "unknown error", "message": "socket hang up",
				}})
				return
			}
			writeJSON(w, map[string]interface{}{"value": nil})
		case strings.HasSuffix(path, "/screenshot"):
			writeJSON(w, map[string]interface{}{"value": f.screenshot})
		case strings.HasSuffix(path, "/source"):
			writeJSON(w, map[string]interface{}{"value": androidSource})
		case strings.HasSuffix(path, "/element"):
			w.WriteHeader(http.StatusNotFound)
			writeJSON(w, map[string]interface{}{"value": map[string]interface{}{
				"error": "no such element", "message": "An element could not be located",
			}})
		case strings.HasSuffix(path, "/actions"):
			f.actions++
			writeJSON(w, map[string]interface{}{"value": nil})
		case strings.HasSuffix(path, "/alert/accept"):
			writeJSON(w, map[string]interface{}{"value": nil})
		default:
			w.WriteHeader(http.StatusNotFound)
			writeJSON(w, map[string]interface{}{"value": map[string]interface{}{
				"error": "unknown command", "message": path,
			}})
		}
	})
}

func (f *fakeAppium) quitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.quits
}

func (f *fakeAppium) actionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.actions
}

func (f *fakeAppium) sentCaps() map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastCaps
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func startFake(t *testing.T, f *fakeAppium) int {
	t.Helper()
	if f.screenshot == "" {
		f.screenshot = "iVBORw0KGgoAAAANSUhEUg=="
	}
	server := httptest.NewServer(f.handler())
	t.Cleanup(server.Close)

	u, err := url.Parse(server.URL)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatal(err)
	}
	return port
}

func testRunner() *Runner {
	r := NewRunner()
	r.Host = "127.0.0.1"
	return r
}

var fastPolicy = verify.RetryPolicy{MaxAttempts: 2, Backoff: time.Millisecond}

func standardScript() []verify.Probe {
	points := []appium.Point{{X: 50, Y: 50}, {X: 100, Y: 100}}
	return []verify.Probe{
		verify.ScreenshotNotEmpty(fastPolicy),
		verify.SourceTreeMinDepth(verify.DefaultMinDepth, fastPolicy),
		verify.ElementPresenceAndClick(""),
		verify.GestureSequence(points, 0),
		verify.ScreenshotNotEmpty(fastPolicy),
		verify.SourceTreeMinDepth(verify.DefaultMinDepth, fastPolicy),
	}
}

func TestRun_ApiDemosEndToEnd(t *testing.T) {
	fake := &fakeAppium{}
	port := startFake(t, fake)

	caps := capability.Set{
		"platformName":   "Android",
		"app":            "ApiDemos-debug.apk",
		"automationName": "uiautomator2",
	}
	sc := NewScenario("android-real_ApiDemos-debug.apk").WithCaps(caps).OnPort(port).Then(standardScript()...)

	result := testRunner().Run(context.Background(), sc)

	if !result.Passed() {
		t.Fatalf("scenario failed at %s: %v", result.FailedStep, result.Err)
	}
	if len(result.Screenshots) != 2 || len(result.Sources) != 2 {
		t.Errorf("captured %d screenshots, %d sources, want 2 and 2", len(result.Screenshots), len(result.Sources))
	}
	for i, shot := range result.Screenshots {
		if len(shot) == 0 {
			t.Errorf("screenshot %d is empty", i)
		}
	}
	if fake.quitCount() != 1 {
		t.Errorf("quit calls = %d, want 1", fake.quitCount())
	}
	if fake.actionCount() != 1 {
		t.Errorf("action calls = %d, want 1", fake.actionCount())
	}
	if fake.sentCaps()["app"] != "ApiDemos-debug.apk" {
		t.Errorf("server saw caps %v", fake.sentCaps())
	}
	if result.SessionID != "sess-1" {
		t.Errorf("session id = %q", result.SessionID)
	}
	if len(result.Steps) != 6 {
		t.Errorf("steps = %d, want 6", len(result.Steps))
	}
}

func TestRun_ProbeFailureStillQuitsOnce(t *testing.T) {
	fake := &fakeAppium{}
	port := startFake(t, fake)

	ran := false
	sc := NewScenario("failing").OnPort(port).
		Then(verify.ContainsText("Settings")).
		Then(verify.Probe{Name: "never", Run: func(context.Context, *verify.Env) error {
			ran = true
			return nil
		}})

	result := testRunner().Run(context.Background(), sc)

	if result.Status != core.StatusFailed {
		t.Errorf("status = %s, want failed", result.Status)
	}
	if result.FailedStep != "contains" {
		t.Errorf("failed step = %q, want contains", result.FailedStep)
	}
	if ran {
		t.Error("probes after a failure must not run")
	}
	if fake.quitCount() != 1 {
		t.Errorf("quit calls = %d, want 1", fake.quitCount())
	}
}

func TestRun_QuitErrorDoesNotMaskProbeError(t *testing.T) {
	fake := &fakeAppium{quitFails: true}
	port := startFake(t, fake)

	sc := NewScenario("masked").OnPort(port).Then(verify.ContainsText("nope"))
	result := testRunner().Run(context.Background(), sc)

	if !errors.Is(result.Err, core.ErrAssertion) {
		t.Errorf("err = %v, want the probe assertion", result.Err)
	}
	if !errors.Is(result.QuitErr, core.ErrTeardown) {
		t.Errorf("quit err = %v, want teardown failure", result.QuitErr)
	}
	if fake.quitCount() != 1 {
		t.Errorf("quit calls = %d, want 1", fake.quitCount())
	}
}

func TestRun_QuitErrorAloneStillPasses(t *testing.T) {
	fake := &fakeAppium{quitFails: true}
	port := startFake(t, fake)

	result := testRunner().Run(context.Background(), NewScenario("ok").OnPort(port))
	if !result.Passed() {
		t.Errorf("status = %s, err = %v; quit failure must not fail the scenario", result.Status, result.Err)
	}
	if result.QuitErr == nil {
		t.Error("QuitErr should be recorded")
	}
}

func TestRun_SessionInitFailure(t *testing.T) {
	fake := &fakeAppium{initFails: true}
	port := startFake(t, fake)

	hookRan := false
	sc := NewScenario("no-device").OnPort(port).
		Then(verify.ScreenshotNotEmpty(fastPolicy)).
		Before(func(context.Context, *verify.Env) error { hookRan = true; return nil })

	result := testRunner().Run(context.Background(), sc)

	if !errors.Is(result.Err, core.ErrSessionInit) {
		t.Fatalf("err = %v, want session init failure", result.Err)
	}
	if result.Status != core.StatusErrored {
		t.Errorf("status = %s, want errored", result.Status)
	}
	if result.FailedStep != StepInit {
		t.Errorf("failed step = %q", result.FailedStep)
	}
	if hookRan {
		t.Error("pre-hook must not run without a session")
	}
	// No session id, so quit is a no-op and sends nothing
	if fake.quitCount() != 0 {
		t.Errorf("quit calls = %d, want 0", fake.quitCount())
	}
	if result.QuitErr != nil {
		t.Errorf("quit err = %v", result.QuitErr)
	}
}

func TestRun_HookOrder(t *testing.T) {
	fake := &fakeAppium{}
	port := startFake(t, fake)

	var order []string
	mark := func(name string) verify.Probe {
		return verify.Probe{Name: name, Run: func(context.Context, *verify.Env) error {
			order = append(order, name)
			return nil
		}}
	}
	sc := NewScenario("hooks").OnPort(port).
		Before(func(ctx context.Context, env *verify.Env) error {
			order = append(order, "before")
			env.Artifacts.AddOutput(map[string]interface{}{"state": 4})
			return nil
		}).
		Then(mark("p1"), mark("p2")).
		After(func(ctx context.Context, env *verify.Env) error {
			order = append(order, "after")
			return env.Driver.AcceptAlert()
		})

	result := testRunner().Run(context.Background(), sc)
	if !result.Passed() {
		t.Fatalf("scenario failed: %v", result.Err)
	}
	if got := strings.Join(order, ","); got != "before,p1,p2,after" {
		t.Errorf("order = %s", got)
	}
	if result.Output["state"] != 4 {
		t.Errorf("Output = %v, want state from the pre-hook", result.Output)
	}
}

func TestRun_PostHookRunsAfterProbeFailure(t *testing.T) {
	fake := &fakeAppium{}
	port := startFake(t, fake)

	afterRan := false
	sc := NewScenario("post").OnPort(port).
		Then(verify.ContainsText("missing")).
		After(func(context.Context, *verify.Env) error {
			afterRan = true
			return errors.New("no alert open")
		})

	result := testRunner().Run(context.Background(), sc)
	if !afterRan {
		t.Error("post-hook must run after a probe failure")
	}
	if !errors.Is(result.Err, core.ErrAssertion) {
		t.Errorf("err = %v, want the earlier probe failure", result.Err)
	}
}

func TestRun_HookFailureRecordedWhenFirst(t *testing.T) {
	fake := &fakeAppium{}
	port := startFake(t, fake)

	probeRan := false
	hookErr := errors.New("app not running")
	sc := NewScenario("pre-fail").OnPort(port).
		Before(func(context.Context, *verify.Env) error { return hookErr }).
		Then(verify.Probe{Name: "p", Run: func(context.Context, *verify.Env) error {
			probeRan = true
			return nil
		}})

	result := testRunner().Run(context.Background(), sc)
	if !errors.Is(result.Err, hookErr) || result.FailedStep != StepPreHook {
		t.Errorf("err = %v at %q, want pre-hook error", result.Err, result.FailedStep)
	}
	if probeRan {
		t.Error("probes must not run after a pre-hook failure")
	}
	if fake.quitCount() != 1 {
		t.Errorf("quit calls = %d, want 1", fake.quitCount())
	}
}

func TestRun_TimeoutCeiling(t *testing.T) {
	fake := &fakeAppium{}
	port := startFake(t, fake)

	r := testRunner()
	r.Timeout = 200 * time.Millisecond
	sc := NewScenario("slow").OnPort(port).
		Then(verify.Probe{Name: "wait", Run: func(ctx context.Context, env *verify.Env) error {
			<-ctx.Done()
			return ctx.Err()
		}})

	result := r.Run(context.Background(), sc)
	if !errors.Is(result.Err, core.ErrScenarioTimeout) {
		t.Errorf("err = %v, want scenario timeout", result.Err)
	}
	if fake.quitCount() != 1 {
		t.Errorf("quit calls = %d, want 1 even after timeout", fake.quitCount())
	}
}

func TestWithCapsCopies(t *testing.T) {
	caps := capability.Set{"platformName": "iOS"}
	sc := NewScenario("x").WithCaps(caps)
	caps["app"] = "late"
	if _, ok := sc.Capabilities["app"]; ok {
		t.Error("scenario should hold its own copy of the capabilities")
	}
}

func TestServerURL(t *testing.T) {
	if got := ServerURL("localhost", 4723); got != "http://localhost:4723/wd/hub" {
		t.Errorf("ServerURL = %q", got)
	}
}
