package jsengine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dop251/goja"

	"github.com/devicelab-dev/appium-compat/pkg/driver/wda"
)

// httpModule returns the http object with get and post, plus wda(port)
// for the backend's session-less endpoints.
func (e *Engine) httpModule() *goja.Object {
	obj := e.runtime.NewObject()

	// http.get(url, [options])
	obj.Set("get", func(call goja.FunctionCall) goja.Value {
		return e.doHTTPRequest(http.MethodGet, call)
	})

	// http.post(url, [options])
	obj.Set("post", func(call goja.FunctionCall) goja.Value {
		return e.doHTTPRequest(http.MethodPost, call)
	})

	// http.wda(port, kind) fetches /status, /screenshot or /source
	obj.Set("wda", func(call goja.FunctionCall) goja.Value {
		port := int(call.Argument(0).ToInteger())
		kind, err := wda.ParseKind(argString(call, 1))
		if err != nil {
			panic(e.runtime.NewTypeError(err.Error()))
		}
		payload, err := wda.NewClient(port).Fetch(e.ctx, kind)
		if err != nil {
			panic(e.runtime.NewGoError(err))
		}
		if kind == wda.KindScreenshot {
			return e.runtime.ToValue(len(payload))
		}
		return e.runtime.ToValue(string(payload))
	})

	return obj
}

// HTTPResponse is what http.get and http.post return to scripts.
type HTTPResponse struct {
	Status  int                    `json:"status"`
	Body    string                 `json:"body"`
	Headers map[string]string      `json:"headers"`
	Ok      bool                   `json:"ok"`
	JSON    map[string]interface{} `json:"json"`
}

func (e *Engine) doHTTPRequest(method string, call goja.FunctionCall) goja.Value {
	url := argString(call, 0)
	if url == "" {
		panic(e.runtime.NewTypeError(fmt.Sprintf("http.%s requires url", method)))
	}

	var body io.Reader
	headers := make(map[string]string)
	timeout := 30 * time.Second

	if opts := argMap(call, 1); opts != nil {
		switch v := opts["body"].(type) {
		case string:
			body = bytes.NewBufferString(v)
		case map[string]interface{}:
			jsonBytes, _ := json.Marshal(v)
			body = bytes.NewBuffer(jsonBytes)
			headers["Content-Type"] = "application/json"
		}
		if h, ok := opts["headers"].(map[string]interface{}); ok {
			for k, v := range h {
				headers[k] = fmt.Sprintf("%v", v)
			}
		}
		switch v := opts["timeout"].(type) {
		case int64:
			timeout = time.Duration(v) * time.Millisecond
		case float64:
			timeout = time.Duration(v) * time.Millisecond
		}
	}

	req, err := http.NewRequestWithContext(e.ctx, method, url, body)
	if err != nil {
		panic(e.runtime.NewTypeError(fmt.Sprintf("failed to create request: %v", err)))
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := (&http.Client{Timeout: timeout}).Do(req)
	if err != nil {
		panic(e.runtime.NewGoError(fmt.Errorf("HTTP request failed: %w", err)))
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		panic(e.runtime.NewGoError(fmt.Errorf("failed to read response: %w", err)))
	}

	response := &HTTPResponse{
		Status:  resp.StatusCode,
		Body:    string(bodyBytes),
		Headers: make(map[string]string),
		Ok:      resp.StatusCode >= 200 && resp.StatusCode < 300,
	}
	for k, v := range resp.Header {
		if len(v) > 0 {
			response.Headers[k] = v[0]
		}
	}
	var parsed map[string]interface{}
	if err := json.Unmarshal(bodyBytes, &parsed); err == nil {
		response.JSON = parsed
	}
	return e.runtime.ToValue(response)
}
