package appium

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// writeJSON encodes data as JSON to the response writer.
func writeJSON(w http.ResponseWriter, data interface{}) {
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func TestClient_Connect(t *testing.T) {
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/wd/hub/session" && r.Method == "POST" {
			data, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(data, &gotBody)
			writeJSON(w, map[string]interface{}{
				"value": map[string]interface{}{
					"sessionId": "test-session-123",
					"capabilities": map[string]interface{}{
						"platformName": "Android",
					},
				},
			})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL + "/wd/hub/")
	err := client.Connect(map[string]interface{}{
		"platformName":   "Android",
		"automationName": "uiautomator2",
	})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if client.SessionID() != "test-session-123" {
		t.Errorf("Expected sessionID 'test-session-123', got '%s'", client.SessionID())
	}
	if client.Platform() != "android" {
		t.Errorf("Expected platform 'android', got '%s'", client.Platform())
	}

	caps := gotBody["capabilities"].(map[string]interface{})["alwaysMatch"].(map[string]interface{})
	if caps["appium:automationName"] != "uiautomator2" {
		t.Errorf("alwaysMatch missing prefixed automationName: %v", caps)
	}
	if caps["platformName"] != "Android" {
		t.Errorf("platformName should not be prefixed: %v", caps)
	}
	desired := gotBody["desiredCapabilities"].(map[string]interface{})
	if desired["automationName"] != "uiautomator2" {
		t.Errorf("desiredCapabilities not sent: %v", desired)
	}
}

func TestClient_ConnectLegacyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"sessionId": "legacy-1",
			"status":    0,
			"value":     map[string]interface{}{"platformName": "iOS"},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	if err := client.Connect(map[string]interface{}{"platformName": "iOS"}); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if client.SessionID() != "legacy-1" || client.Platform() != "ios" {
		t.Errorf("got session %q platform %q", client.SessionID(), client.Platform())
	}
}

func TestClient_ConnectError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		writeJSON(w, map[string]interface{}{
			"value": map[string]interface{}{
				"error":   "session not created",
				"message": "Could not find a connected Android device",
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	err := client.Connect(map[string]interface{}{"platformName": "Android"})
	if err == nil {
		t.Fatal("expected error")
	}
	if client.SessionID() != "" {
		t.Error("session id should stay empty on failure")
	}
}

func TestClient_Disconnect(t *testing.T) {
	deleteCalled := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/session/test-session" && r.Method == "DELETE" {
			deleteCalled++
			writeJSON(w, map[string]interface{}{"value": nil})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	client.sessionID = "test-session"

	if err := client.Disconnect(); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	if err := client.Disconnect(); err != nil {
		t.Fatalf("second Disconnect failed: %v", err)
	}
	if deleteCalled != 1 {
		t.Errorf("DELETE called %d times, want 1", deleteCalled)
	}
}

func TestClient_FindElement(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/session/test-session/element" && r.Method == "POST" {
			writeJSON(w, map[string]interface{}{
				"value": map[string]interface{}{
					"element-6066-11e4-a52e-4f735466cecf": "elem-123",
				},
			})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	client.sessionID = "test-session"

	elemID, err := client.FindElement("xpath", "//android.widget.FrameLayout[1]")
	if err != nil {
		t.Fatalf("FindElement failed: %v", err)
	}
	if elemID != "elem-123" {
		t.Errorf("Expected element ID 'elem-123', got '%s'", elemID)
	}
}

func TestClient_FindElementOrEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, map[string]interface{}{
			"value": map[string]interface{}{
				"error":   "no such element",
				"message": "An element could not be located",
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	client.sessionID = "s"

	_, err := client.FindElement("xpath", "//missing")
	if !IsNoSuchElement(err) {
		t.Fatalf("expected no such element, got %v", err)
	}

	id, err := client.FindElementOrEmpty("xpath", "//missing")
	if err != nil || id != "" {
		t.Errorf("FindElementOrEmpty = %q, %v; want empty, nil", id, err)
	}
}

func TestClient_ElementState(t *testing.T) {
	clicked := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/session/s/element/e1/displayed":
			writeJSON(w, map[string]interface{}{"value": true})
		case "/session/s/element/e1/enabled":
			writeJSON(w, map[string]interface{}{"value": false})
		case "/session/s/element/e1/click":
			clicked = true
			writeJSON(w, map[string]interface{}{"value": nil})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL)
	client.sessionID = "s"

	displayed, err := client.IsElementDisplayed("e1")
	if err != nil || !displayed {
		t.Errorf("IsElementDisplayed = %v, %v", displayed, err)
	}
	enabled, err := client.IsElementEnabled("e1")
	if err != nil || enabled {
		t.Errorf("IsElementEnabled = %v, %v", enabled, err)
	}
	if err := client.ClickElement("e1"); err != nil || !clicked {
		t.Errorf("ClickElement err=%v clicked=%v", err, clicked)
	}
}

func TestGestureActions(t *testing.T) {
	actions := GestureActions([]Point{{50, 50}, {100, 100}}, 500*time.Millisecond)

	wantTypes := []string{"pointerMove", "pointerDown", "pause", "pointerMove", "pointerUp"}
	if len(actions) != len(wantTypes) {
		t.Fatalf("got %d actions, want %d: %v", len(actions), len(wantTypes), actions)
	}
	for i, want := range wantTypes {
		if actions[i]["type"] != want {
			t.Errorf("action[%d] = %v, want %s", i, actions[i]["type"], want)
		}
	}
	if actions[2]["duration"] != int64(500) {
		t.Errorf("pause duration = %v", actions[2]["duration"])
	}

	noHold := GestureActions([]Point{{1, 2}, {3, 4}}, 0)
	if len(noHold) != 4 {
		t.Errorf("gesture without hold should have 4 actions, got %d", len(noHold))
	}
	if GestureActions(nil, 0) != nil {
		t.Error("empty gesture should encode to nil")
	}
}

func TestClient_PerformGesture(t *testing.T) {
	var payload map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/session/s/actions" && r.Method == "POST" {
			data, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(data, &payload)
			writeJSON(w, map[string]interface{}{"value": nil})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	client.sessionID = "s"

	if err := client.PerformGesture([]Point{{50, 50}, {100, 100}}, 0); err != nil {
		t.Fatalf("PerformGesture failed: %v", err)
	}
	seqs, _ := payload["actions"].([]interface{})
	if len(seqs) != 1 {
		t.Fatalf("expected one pointer sequence, got %v", payload)
	}
	seq := seqs[0].(map[string]interface{})
	if seq["type"] != "pointer" {
		t.Errorf("sequence type = %v", seq["type"])
	}

	if err := client.PerformGesture(nil, 0); err == nil {
		t.Error("expected error for empty gesture")
	}
}

func TestClient_Screenshot(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/session/s/screenshot" {
			writeJSON(w, map[string]interface{}{"value": base64.StdEncoding.EncodeToString(png)})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	client.sessionID = "s"

	data, err := client.Screenshot()
	if err != nil {
		t.Fatalf("Screenshot failed: %v", err)
	}
	if string(data) != string(png) {
		t.Errorf("Screenshot = %v, want %v", data, png)
	}
}

func TestClient_Source(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"value": "<hierarchy/>"})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	client.sessionID = "s"

	src, err := client.Source()
	if err != nil || src != "<hierarchy/>" {
		t.Errorf("Source = %q, %v", src, err)
	}
}

func TestClient_LockUnlock(t *testing.T) {
	locked := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/session/s/appium/device/lock":
			locked = true
			writeJSON(w, map[string]interface{}{"value": nil})
		case "/session/s/appium/device/unlock":
			locked = false
			writeJSON(w, map[string]interface{}{"value": nil})
		case "/session/s/appium/device/is_locked":
			writeJSON(w, map[string]interface{}{"value": locked})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL)
	client.sessionID = "s"

	if err := client.Lock(0); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	if got, _ := client.IsLocked(); !got {
		t.Error("expected locked")
	}
	if err := client.Unlock(); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	if got, _ := client.IsLocked(); got {
		t.Error("expected unlocked")
	}
}

func TestClient_AndroidIntrospection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/session/s/appium/device/current_package":
			writeJSON(w, map[string]interface{}{"value": "io.appium.android.apis"})
		case "/session/s/appium/device/current_activity":
			writeJSON(w, map[string]interface{}{"value": ".ApiDemos"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL)
	client.sessionID = "s"

	pkg, err := client.CurrentPackage()
	if err != nil || pkg != "io.appium.android.apis" {
		t.Errorf("CurrentPackage = %q, %v", pkg, err)
	}
	act, err := client.CurrentActivity()
	if err != nil || act != ".ApiDemos" {
		t.Errorf("CurrentActivity = %q, %v", act, err)
	}
}

func TestClient_ExecuteMobile(t *testing.T) {
	var body map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &body)
		writeJSON(w, map[string]interface{}{"value": 4})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	client.sessionID = "s"

	v, err := client.ExecuteMobile("queryAppState", map[string]interface{}{"bundleId": "com.apple.Maps"})
	if err != nil {
		t.Fatalf("ExecuteMobile failed: %v", err)
	}
	if v.(float64) != 4 {
		t.Errorf("value = %v", v)
	}
	if body["script"] != "mobile: queryAppState" {
		t.Errorf("script = %v", body["script"])
	}
}

func TestClient_BackgroundSeconds(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want float64
	}{
		{500 * time.Millisecond, 1},
		{time.Second, 1},
		{1500 * time.Millisecond, 2},
		{3 * time.Second, 3},
	}
	for _, tt := range tests {
		t.Run(tt.d.String(), func(t *testing.T) {
			var body map[string]interface{}
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/session/s/appium/app/background" || r.Method != "POST" {
					w.WriteHeader(http.StatusNotFound)
					return
				}
				data, _ := io.ReadAll(r.Body)
				_ = json.Unmarshal(data, &body)
				writeJSON(w, map[string]interface{}{"value": nil})
			}))
			defer server.Close()

			client := NewClient(server.URL)
			client.sessionID = "s"
			if err := client.Background(tt.d); err != nil {
				t.Fatalf("Background failed: %v", err)
			}
			if body["seconds"] != tt.want {
				t.Errorf("seconds = %v, want %v", body["seconds"], tt.want)
			}
		})
	}
}

func TestClient_NonJSONError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	client.sessionID = "s"

	_, err := client.Source()
	wdErr, ok := err.(*WebDriverError)
	if !ok {
		t.Fatalf("expected *WebDriverError, got %T %v", err, err)
	}
	if wdErr.HTTPStatus != http.StatusBadGateway {
		t.Errorf("HTTPStatus = %d", wdErr.HTTPStatus)
	}
}
