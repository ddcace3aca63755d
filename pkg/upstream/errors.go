package upstream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// APIError is a non-2xx answer from an upstream service.
type APIError struct {
	Method string
	Path   string
	Status int
	// Body is the response body when it was JSON, otherwise the body text
	// encoded as a JSON string, so it can be embedded in responses as-is.
	Body    json.RawMessage
	Message string
	RayID   string // Cloudflare ray, when the edge answered
}

func (e *APIError) Error() string {
	if e.Method == "" {
		return fmt.Sprintf("upstream status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("%s %s: upstream status %d: %s", e.Method, e.Path, e.Status, e.Message)
}

var (
	rayIDPatterns = []*regexp.Regexp{
		regexp.MustCompile(`Cloudflare Ray ID:\s*(?:<[^>]+>\s*)*([0-9a-fA-F]+)`),
		regexp.MustCompile(`Ray ID:\s*(?:<[^>]+>\s*)*([0-9a-fA-F]+)`),
	}
	tagPattern = regexp.MustCompile(`<[^>]*>`)
)

const maxMessage = 300

func newAPIError(method, path string, resp *http.Response, raw []byte) *APIError {
	e := &APIError{
		Method: method,
		Path:   path,
		Status: resp.StatusCode,
		RayID:  resp.Header.Get("Cf-Ray"),
	}

	trimmed := bytes.TrimSpace(raw)
	if json.Valid(trimmed) && len(trimmed) > 0 {
		e.Body = json.RawMessage(trimmed)
		e.Message = messageFromJSON(trimmed)
	} else {
		text := string(trimmed)
		e.Body, _ = json.Marshal(text)
		if e.RayID == "" {
			e.RayID = RayIDFromBody(text)
		}
		e.Message = summarizeText(text)
	}
	if e.Message == "" {
		e.Message = http.StatusText(resp.StatusCode)
	}
	return e
}

// RayIDFromBody extracts the ray id printed on Cloudflare block pages.
func RayIDFromBody(body string) string {
	for _, re := range rayIDPatterns {
		if m := re.FindStringSubmatch(body); m != nil {
			return m[1]
		}
	}
	return ""
}

func messageFromJSON(raw []byte) string {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return truncate(string(raw))
	}
	for _, key := range []string{"errorMsg", "error", "message"} {
		if s, ok := fields[key].(string); ok && s != "" {
			return s
		}
	}
	return truncate(string(raw))
}

func summarizeText(text string) string {
	text = tagPattern.ReplaceAllString(text, " ")
	text = strings.Join(strings.Fields(text), " ")
	return truncate(text)
}

func truncate(s string) string {
	if len(s) <= maxMessage {
		return s
	}
	return s[:maxMessage] + "..."
}
