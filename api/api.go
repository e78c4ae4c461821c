// Package api exposes the HTTP surface of the service: job submission
// and job polling.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/panrelay/panrelay/jobstore"
	"github.com/panrelay/panrelay/processor"
)

// API serves job submissions and poll requests.
type API struct {
	Server *http.Server
	Store  *jobstore.Store
	Proc   *processor.Processor

	// Default session cookies applied when a submission does not carry
	// its own.
	QuarkCookie string
	BaiduCookie string
}

// New returns an API listening on host:port, backed by the given store
// and processor.
func New(s *jobstore.Store, p *processor.Processor, host string, port int) *API {
	as := &API{Store: s, Proc: p}
	mux := http.NewServeMux()
	mux.HandleFunc("/jobs", as.createJob)
	mux.HandleFunc("/jobs/", as.getJob)
	as.Server = &http.Server{Handler: mux, Addr: host + ":" + strconv.Itoa(port)}
	return as
}

// submission is the POST /jobs request body.
type submission struct {
	Text string `json:"text"`

	// Optional per-request cookie overrides.
	QuarkCookie string `json:"quark_cookie"`
	BaiduCookie string `json:"baidu_cookie"`
}

// createJob accepts a transfer request, registers a job and launches a
// worker for it. The job id is returned immediately.
func (as *API) createJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()

	var sub submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		http.Error(w, "Error parsing request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(sub.Text) == "" {
		http.Error(w, "text must not be empty", http.StatusBadRequest)
		return
	}

	creds := processor.Credentials{
		QuarkCookie: sub.QuarkCookie,
		BaiduCookie: sub.BaiduCookie,
	}
	if creds.QuarkCookie == "" {
		creds.QuarkCookie = as.QuarkCookie
	}
	if creds.BaiduCookie == "" {
		creds.BaiduCookie = as.BaiduCookie
	}

	id := as.Store.Create()

	// The worker outlives the request; it must not inherit the request
	// context.
	go as.Proc.Run(context.Background(), id, sub.Text, creds)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"id": id})
}

// getJob serves a point-in-time snapshot of a job.
func (as *API) getJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/jobs/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	j, err := as.Store.Get(id)
	if err != nil {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(j)
}
