// Package appium is a minimal W3C WebDriver client for the Appium server,
// covering the commands the regression probes issue.
package appium

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
)

// W3C WebDriver element identifier key (standard constant)
const w3cElementKey = "element-6066-11e4-a52e-4f735466cecf"

// WebDriverError is an error envelope returned by the server.
type WebDriverError struct {
	Code       string // W3C error code, e.g. "no such element"
	Message    string
	HTTPStatus int
}

func (e *WebDriverError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsNoSuchElement reports whether err is the server's "no such element" error.
func IsNoSuchElement(err error) bool {
	var wdErr *WebDriverError
	if errors.As(err, &wdErr) {
		return wdErr.Code == "no such element"
	}
	return false
}

// Client handles HTTP communication with Appium server.
type Client struct {
	serverURL string
	sessionID string
	client    *http.Client
	ctx       context.Context
	platform  string // ios, android
}

// NewClient creates a new Appium client. serverURL includes the base path,
// e.g. http://localhost:4723/wd/hub.
func NewClient(serverURL string) *Client {
	return &Client{
		serverURL: strings.TrimSuffix(serverURL, "/"),
		ctx:       context.Background(),
		client: &http.Client{
			Timeout: 5 * time.Minute, // Long timeout for install/screenshot
		},
	}
}

// SetContext binds every subsequent request to ctx, so a scenario-wide
// deadline also aborts in-flight calls.
func (c *Client) SetContext(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	c.ctx = ctx
}

// SessionID returns the active session id, empty when not connected.
func (c *Client) SessionID() string {
	return c.sessionID
}

// Platform returns the platform reported by the server (ios/android).
func (c *Client) Platform() string {
	return c.platform
}

// Connect creates a new session with the given capabilities.
// Capabilities are sent both as W3C alwaysMatch (appium: prefixed) and as
// legacy desiredCapabilities, which older servers still read.
func (c *Client) Connect(capabilities map[string]interface{}) error {
	body := map[string]interface{}{
		"capabilities": map[string]interface{}{
			"alwaysMatch": w3cCapabilities(capabilities),
		},
		"desiredCapabilities": capabilities,
	}

	resp, err := c.post("/session", body)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	// W3C: {"value": {"sessionId": ..., "capabilities": {...}}}
	// Legacy: {"sessionId": ..., "value": {...caps}}
	value, _ := resp["value"].(map[string]interface{})
	if value != nil {
		c.sessionID, _ = value["sessionId"].(string)
	}
	if c.sessionID == "" {
		c.sessionID, _ = resp["sessionId"].(string)
	}
	if c.sessionID == "" {
		return fmt.Errorf("no session ID in response")
	}

	caps := value
	if inner, ok := value["capabilities"].(map[string]interface{}); ok {
		caps = inner
	}
	if platform, ok := caps["platformName"].(string); ok {
		c.platform = strings.ToLower(platform)
	} else if platform, ok := capabilities["platformName"].(string); ok {
		c.platform = strings.ToLower(platform)
	}

	return nil
}

// w3cCapabilities prefixes vendor capabilities with "appium:".
func w3cCapabilities(caps map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(caps))
	for k, v := range caps {
		if k == "platformName" || k == "browserName" || strings.Contains(k, ":") {
			out[k] = v
			continue
		}
		out["appium:"+k] = v
	}
	return out
}

// Disconnect closes the session. It is a no-op without a session.
func (c *Client) Disconnect() error {
	if c.sessionID == "" {
		return nil
	}
	_, err := c.delete(c.sessionPath())
	c.sessionID = ""
	return err
}

// Element Operations

// FindElement finds a single element.
func (c *Client) FindElement(strategy, value string) (string, error) {
	body := map[string]interface{}{
		"using": strategy,
		"value": value,
	}

	resp, err := c.post(c.sessionPath()+"/element", body)
	if err != nil {
		return "", err
	}

	elemValue, ok := resp["value"].(map[string]interface{})
	if !ok {
		return "", &WebDriverError{Code: "no such element", Message: "empty element response"}
	}

	id := extractElementID(elemValue)
	if id == "" {
		return "", &WebDriverError{Code: "no such element", Message: "no element id in response"}
	}
	return id, nil
}

// FindElementOrEmpty is FindElement that maps "no such element" to an
// empty id and a nil error.
func (c *Client) FindElementOrEmpty(strategy, value string) (string, error) {
	id, err := c.FindElement(strategy, value)
	if IsNoSuchElement(err) {
		return "", nil
	}
	return id, err
}

// ClickElement clicks an element using WebDriver standard endpoint.
func (c *Client) ClickElement(elementID string) error {
	_, err := c.post(c.elementPath(elementID)+"/click", map[string]interface{}{})
	return err
}

// IsElementDisplayed checks if element is visible.
func (c *Client) IsElementDisplayed(elementID string) (bool, error) {
	resp, err := c.get(c.elementPath(elementID) + "/displayed")
	if err != nil {
		return false, err
	}
	displayed, _ := resp["value"].(bool)
	return displayed, nil
}

// IsElementEnabled checks if element is enabled.
func (c *Client) IsElementEnabled(elementID string) (bool, error) {
	resp, err := c.get(c.elementPath(elementID) + "/enabled")
	if err != nil {
		return false, err
	}
	enabled, _ := resp["value"].(bool)
	return enabled, nil
}

// Touch/Gesture Operations (W3C Actions)

// Point is a viewport coordinate.
type Point struct {
	X int `yaml:"x" json:"x"`
	Y int `yaml:"y" json:"y"`
}

func (c *Client) performTouchAction(actions []map[string]interface{}) error {
	payload := []map[string]interface{}{
		{
			"type":       "pointer",
			"id":         "finger1",
			"parameters": map[string]interface{}{"pointerType": "touch"},
			"actions":    actions,
		},
	}
	_, err := c.post(c.sessionPath()+"/actions", map[string]interface{}{"actions": payload})
	return err
}

// GestureActions encodes press at points[0], an optional hold, moves through
// the remaining points and a release as one W3C pointer sequence.
func GestureActions(points []Point, hold time.Duration) []map[string]interface{} {
	if len(points) == 0 {
		return nil
	}
	actions := []map[string]interface{}{
		{"type": "pointerMove", "duration": 0, "x": points[0].X, "y": points[0].Y, "origin": "viewport"},
		{"type": "pointerDown", "button": 0},
	}
	if hold > 0 {
		actions = append(actions, map[string]interface{}{"type": "pause", "duration": hold.Milliseconds()})
	}
	for _, p := range points[1:] {
		actions = append(actions, map[string]interface{}{
			"type": "pointerMove", "duration": 250, "x": p.X, "y": p.Y, "origin": "viewport",
		})
	}
	return append(actions, map[string]interface{}{"type": "pointerUp", "button": 0})
}

// PerformGesture submits a press/move/release gesture as one action request.
func (c *Client) PerformGesture(points []Point, hold time.Duration) error {
	if len(points) == 0 {
		return fmt.Errorf("gesture needs at least one point")
	}
	return c.performTouchAction(GestureActions(points, hold))
}

// Screen Operations

// Screenshot returns a screenshot as PNG bytes.
func (c *Client) Screenshot() ([]byte, error) {
	resp, err := c.get(c.sessionPath() + "/screenshot")
	if err != nil {
		return nil, err
	}
	encoded, ok := resp["value"].(string)
	if !ok {
		return nil, fmt.Errorf("invalid screenshot response")
	}
	return base64.StdEncoding.DecodeString(encoded)
}

// Source returns the page source (XML, or JSON with useJSONSource on
// some XCUITest versions).
func (c *Client) Source() (string, error) {
	resp, err := c.get(c.sessionPath() + "/source")
	if err != nil {
		return "", err
	}
	source, _ := resp["value"].(string)
	return source, nil
}

// Device state

// Lock locks the device screen. seconds > 0 unlocks automatically after
// that many seconds.
func (c *Client) Lock(seconds int) error {
	body := map[string]interface{}{}
	if seconds > 0 {
		body["seconds"] = seconds
	}
	_, err := c.post(c.sessionPath()+"/appium/device/lock", body)
	return err
}

// Unlock unlocks the device screen.
func (c *Client) Unlock() error {
	_, err := c.post(c.sessionPath()+"/appium/device/unlock", map[string]interface{}{})
	return err
}

// IsLocked reports whether the device screen is locked.
func (c *Client) IsLocked() (bool, error) {
	resp, err := c.post(c.sessionPath()+"/appium/device/is_locked", map[string]interface{}{})
	if err != nil {
		return false, err
	}
	locked, _ := resp["value"].(bool)
	return locked, nil
}

// Background sends the app under test to the background for the given
// duration, then the server restores it. The endpoint takes whole seconds,
// so d is rounded up.
func (c *Client) Background(d time.Duration) error {
	_, err := c.post(c.sessionPath()+"/appium/app/background", map[string]interface{}{
		"seconds": int(math.Ceil(d.Seconds())),
	})
	return err
}

// AcceptAlert accepts the currently displayed system alert.
func (c *Client) AcceptAlert() error {
	_, err := c.post(c.sessionPath()+"/alert/accept", map[string]interface{}{})
	return err
}

// CurrentPackage returns the Android package in the foreground.
func (c *Client) CurrentPackage() (string, error) {
	resp, err := c.get(c.sessionPath() + "/appium/device/current_package")
	if err != nil {
		return "", err
	}
	pkg, _ := resp["value"].(string)
	return pkg, nil
}

// CurrentActivity returns the Android activity in the foreground.
func (c *Client) CurrentActivity() (string, error) {
	resp, err := c.get(c.sessionPath() + "/appium/device/current_activity")
	if err != nil {
		return "", err
	}
	activity, _ := resp["value"].(string)
	return activity, nil
}

// Execute runs a script (usually a "mobile:" extension) with one argument map.
func (c *Client) Execute(script string, args map[string]interface{}) (interface{}, error) {
	if args == nil {
		args = map[string]interface{}{}
	}
	resp, err := c.post(c.sessionPath()+"/execute/sync", map[string]interface{}{
		"script": script,
		"args":   []interface{}{args},
	})
	if err != nil {
		return nil, err
	}
	return resp["value"], nil
}

// ExecuteMobile executes a mobile: command.
func (c *Client) ExecuteMobile(command string, args map[string]interface{}) (interface{}, error) {
	return c.Execute("mobile: "+command, args)
}

// HTTP Helpers

func (c *Client) sessionPath() string {
	return "/session/" + c.sessionID
}

func (c *Client) elementPath(elementID string) string {
	return c.sessionPath() + "/element/" + elementID
}

func (c *Client) get(path string) (map[string]interface{}, error) {
	return c.request("GET", path, nil)
}

func (c *Client) post(path string, body interface{}) (map[string]interface{}, error) {
	return c.request("POST", path, body)
}

func (c *Client) delete(path string) (map[string]interface{}, error) {
	return c.request("DELETE", path, nil)
}

func (c *Client) request(method, path string, body interface{}) (map[string]interface{}, error) {
	url := c.serverURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(c.ctx, method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var result map[string]interface{}
	if err := json.Unmarshal(respBody, &result); err != nil {
		if resp.StatusCode >= 400 {
			return nil, &WebDriverError{Code: "unknown error", Message: strings.TrimSpace(string(respBody)), HTTPStatus: resp.StatusCode}
		}
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	// Check for WebDriver error
	if errValue, ok := result["value"].(map[string]interface{}); ok {
		if errType, ok := errValue["error"].(string); ok {
			errMsg, _ := errValue["message"].(string)
			return result, &WebDriverError{Code: errType, Message: errMsg, HTTPStatus: resp.StatusCode}
		}
	}
	if resp.StatusCode >= 400 {
		return result, &WebDriverError{Code: "unknown error", Message: resp.Status, HTTPStatus: resp.StatusCode}
	}

	return result, nil
}

func extractElementID(value map[string]interface{}) string {
	// W3C format
	if id, ok := value[w3cElementKey].(string); ok {
		return id
	}
	// Legacy format
	if id, ok := value["ELEMENT"].(string); ok {
		return id
	}
	return ""
}
