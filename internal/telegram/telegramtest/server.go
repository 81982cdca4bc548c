// Package telegramtest provides an in-process fake of the Telegram Bot API
// for tests.
package telegramtest

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// Token is the bot token the fake server accepts.
const Token = "123456:TEST-token"

// Attempt is one sendMessage call received by the fake.
type Attempt struct {
	ChatID int64
	Text   string
	// JSON is true for raw JSON requests and false for the client's
	// multipart requests.
	JSON bool
	OK   bool
}

// File is a downloadable file known to the fake.
type File struct {
	Path string
	Body []byte
	// Status overrides the download status code when non-zero.
	Status int
}

// WebhookState mirrors what setWebhook stored.
type WebhookState struct {
	URL            string
	Pending        int
	SetCalls       int
	MaxConnections string
	AllowedUpdates string
	DropPending    string
	SecretToken    string
}

// Server is a fake Bot API.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	attempts  []Attempt
	files     map[string]File
	nextID    int
	failSend  func(Attempt) bool
	webhook   WebhookState
	downloads int
}

// NewServer starts a fake Bot API and closes it when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{files: make(map[string]File), nextID: 100}
	mux := http.NewServeMux()
	mux.HandleFunc("/bot"+Token+"/", s.handleMethod)
	mux.HandleFunc("/file/bot"+Token+"/", s.handleFile)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// AddFile registers a file id that getFile can resolve.
func (s *Server) AddFile(fileID string, f File) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[fileID] = f
}

// FailSend makes sendMessage fail for every attempt fn returns true for.
func (s *Server) FailSend(fn func(Attempt) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSend = fn
}

// FailMultipart fails every send made through the bot client.
func FailMultipart(a Attempt) bool { return !a.JSON }

// FailAll fails every send.
func FailAll(Attempt) bool { return true }

// SetWebhookState overrides the state reported by getWebhookInfo.
func (s *Server) SetWebhookState(w WebhookState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.webhook = w
}

// Webhook returns the current webhook state.
func (s *Server) Webhook() WebhookState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.webhook
}

// Attempts returns every sendMessage call in arrival order.
func (s *Server) Attempts() []Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Attempt(nil), s.attempts...)
}

// Sent returns the successful sendMessage calls.
func (s *Server) Sent() []Attempt {
	var sent []Attempt
	for _, a := range s.Attempts() {
		if a.OK {
			sent = append(sent, a)
		}
	}
	return sent
}

// Downloads returns how many file downloads were served.
func (s *Server) Downloads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.downloads
}

func (s *Server) handleMethod(w http.ResponseWriter, r *http.Request) {
	method := strings.TrimPrefix(r.URL.Path, "/bot"+Token+"/")
	params, isJSON := readParams(r)

	switch method {
	case "sendMessage":
		s.sendMessage(w, params, isJSON)
	case "getFile":
		s.getFile(w, params)
	case "getWebhookInfo":
		s.mu.Lock()
		state := s.webhook
		s.mu.Unlock()
		writeOK(w, map[string]any{"url": state.URL, "pending_update_count": state.Pending, "has_custom_certificate": false})
	case "setWebhook":
		s.mu.Lock()
		s.webhook.SetCalls++
		s.webhook.URL = params["url"]
		if params["drop_pending_updates"] == "true" {
			s.webhook.Pending = 0
		}
		s.webhook.MaxConnections = params["max_connections"]
		s.webhook.AllowedUpdates = params["allowed_updates"]
		s.webhook.DropPending = params["drop_pending_updates"]
		s.webhook.SecretToken = params["secret_token"]
		s.mu.Unlock()
		writeOK(w, true)
	default:
		writeError(w, http.StatusNotFound, "Not Found: method not found")
	}
}

func (s *Server) sendMessage(w http.ResponseWriter, params map[string]string, isJSON bool) {
	chatID, err := strconv.ParseInt(params["chat_id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request: chat not found")
		return
	}
	attempt := Attempt{ChatID: chatID, Text: params["text"], JSON: isJSON}

	s.mu.Lock()
	fail := s.failSend != nil && s.failSend(attempt)
	attempt.OK = !fail
	s.attempts = append(s.attempts, attempt)
	s.nextID++
	id := s.nextID
	s.mu.Unlock()

	if fail {
		writeError(w, http.StatusBadRequest, "Bad Request: simulated failure")
		return
	}
	writeOK(w, map[string]any{
		"message_id": id,
		"date":       1700000000,
		"chat":       map[string]any{"id": chatID, "type": "private"},
		"text":       attempt.Text,
	})
}

func (s *Server) getFile(w http.ResponseWriter, params map[string]string) {
	s.mu.Lock()
	f, ok := s.files[params["file_id"]]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusBadRequest, "Bad Request: invalid file_id")
		return
	}
	writeOK(w, map[string]any{
		"file_id":        params["file_id"],
		"file_unique_id": "u-" + params["file_id"],
		"file_size":      len(f.Body),
		"file_path":      f.Path,
	})
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/file/bot"+Token+"/")

	s.mu.Lock()
	var found *File
	for _, f := range s.files {
		if f.Path == path {
			found = &f
			break
		}
	}
	s.downloads++
	s.mu.Unlock()

	if found == nil {
		http.NotFound(w, r)
		return
	}
	if found.Status != 0 {
		w.WriteHeader(found.Status)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(found.Body)
}

// readParams flattens JSON, multipart and urlencoded bodies into strings.
func readParams(r *http.Request) (map[string]string, bool) {
	params := make(map[string]string)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "application/json":
		body, _ := io.ReadAll(r.Body)
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(body, &raw); err == nil {
			for k, v := range raw {
				var str string
				if json.Unmarshal(v, &str) == nil {
					params[k] = str
				} else {
					params[k] = string(v)
				}
			}
		}
		return params, true
	case "multipart/form-data":
		if err := r.ParseMultipartForm(1 << 20); err == nil {
			for k, v := range r.MultipartForm.Value {
				if len(v) > 0 {
					params[k] = v[0]
				}
			}
		}
	default:
		if err := r.ParseForm(); err == nil {
			for k := range r.Form {
				params[k] = r.Form.Get(k)
			}
		}
	}
	return params, false
}

func writeOK(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result})
}

func writeError(w http.ResponseWriter, status int, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error_code": status, "description": description})
}
