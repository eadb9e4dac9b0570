// Package gmailtest provides an in-memory fake of the Gmail API endpoints
// gmailvault uses, for tests.
package gmailtest

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"testing"

	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// Request is a recorded API request.
type Request struct {
	Method string
	Path   string
	Query  url.Values
}

// Server is a fake Gmail API backed by in-memory maps.
// Fields may be populated before the first request is made.
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	Messages    map[string]*gmail.Message
	Threads     map[string]*gmail.Thread
	Attachments map[string]*gmail.MessagePartBody
	Profile     *gmail.Profile
	failures    map[string]int
	requests    []Request
}

// NewServer starts a fake server that is closed when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		Messages:    map[string]*gmail.Message{},
		Threads:     map[string]*gmail.Thread{},
		Attachments: map[string]*gmail.MessagePartBody{},
		failures:    map[string]int{},
		Profile: &gmail.Profile{
			EmailAddress:  "owner@example.com",
			MessagesTotal: 1234,
			ThreadsTotal:  567,
			HistoryId:     42,
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /gmail/v1/users/me/messages", s.listMessages)
	mux.HandleFunc("GET /gmail/v1/users/me/messages/{id}", s.getMessage)
	mux.HandleFunc("GET /gmail/v1/users/me/messages/{id}/attachments/{att}", s.getAttachment)
	mux.HandleFunc("GET /gmail/v1/users/me/threads/{id}", s.getThread)
	mux.HandleFunc("GET /gmail/v1/users/me/profile", s.getProfile)

	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, Request{Method: r.Method, Path: r.URL.Path, Query: r.URL.Query()})
		status, failing := s.failures[r.URL.Path]
		s.mu.Unlock()

		if failing {
			writeError(w, status, "injected failure")
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

// ClientOptions point a Gmail service at the fake server.
func (s *Server) ClientOptions() []option.ClientOption {
	return []option.ClientOption{option.WithEndpoint(s.URL + "/")}
}

// AddMessage registers a message under its Id.
func (s *Server) AddMessage(msg *gmail.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages[msg.Id] = msg
}

// AddAttachment registers an attachment payload, base64url encoded as the
// real service returns it.
func (s *Server) AddAttachment(messageID, attachmentID string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Attachments[messageID+"/"+attachmentID] = &gmail.MessagePartBody{
		AttachmentId: attachmentID,
		Size:         int64(len(data)),
		Data:         base64.URLEncoding.EncodeToString(data),
	}
}

// SetAttachmentBody registers a raw attachment body.
func (s *Server) SetAttachmentBody(messageID, attachmentID string, body *gmail.MessagePartBody) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Attachments[messageID+"/"+attachmentID] = body
}

// FailAttachment makes fetching the attachment fail with status.
func (s *Server) FailAttachment(messageID, attachmentID string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[fmt.Sprintf("/gmail/v1/users/me/messages/%s/attachments/%s", messageID, attachmentID)] = status
}

// FailMessage makes fetching the message fail with status.
func (s *Server) FailMessage(messageID string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures["/gmail/v1/users/me/messages/"+messageID] = status
}

// Requests returns the requests received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.Messages))
	for id := range s.Messages {
		ids = append(ids, id)
	}
	threadOf := map[string]string{}
	for id, m := range s.Messages {
		threadOf[id] = m.ThreadId
	}
	s.mu.Unlock()
	sort.Strings(ids)

	limit := len(ids)
	if v := r.URL.Query().Get("maxResults"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n < limit {
			limit = n
		}
	}

	resp := &gmail.ListMessagesResponse{ResultSizeEstimate: int64(len(ids))}
	for _, id := range ids[:limit] {
		resp.Messages = append(resp.Messages, &gmail.Message{Id: id, ThreadId: threadOf[id]})
	}
	if limit < len(ids) {
		resp.NextPageToken = "next-" + ids[limit]
	}
	writeJSON(w, resp)
}

func (s *Server) getMessage(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	msg, ok := s.Messages[r.PathValue("id")]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "Requested entity was not found.")
		return
	}
	writeJSON(w, msg)
}

func (s *Server) getAttachment(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	body, ok := s.Attachments[r.PathValue("id")+"/"+r.PathValue("att")]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "Requested entity was not found.")
		return
	}
	writeJSON(w, body)
}

func (s *Server) getThread(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	thread, ok := s.Threads[r.PathValue("id")]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "Requested entity was not found.")
		return
	}
	writeJSON(w, thread)
}

func (s *Server) getProfile(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	profile := s.Profile
	s.mu.Unlock()
	writeJSON(w, profile)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"code":    status,
			"message": message,
		},
	})
}
