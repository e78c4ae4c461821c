package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/panrelay/panrelay/job"
	"github.com/panrelay/panrelay/jobstore"
	"github.com/panrelay/panrelay/processor"
	"github.com/panrelay/panrelay/provider"
	"github.com/panrelay/panrelay/provider/baidu"
)

func init() {
	processor.DelayMin = 0
	processor.DelayMax = 0
}

type stubQuark struct{}

func (stubQuark) CheckLogin(ctx context.Context) (string, error) { return "tester", nil }
func (stubQuark) EnsurePath(ctx context.Context, path string) (string, error) {
	return "root-fid", nil
}
func (stubQuark) ProcessURL(ctx context.Context, rawURL, targetFid string, isInject bool) provider.Result {
	return provider.OK("https://pan.quark.cn/s/rewritten", "fid-1")
}
func (stubQuark) Close() {}

type stubBaidu struct{}

func (stubBaidu) InitToken(ctx context.Context) error              { return nil }
func (stubBaidu) CheckDir(ctx context.Context, path string) bool   { return true }
func (stubBaidu) CreateDir(ctx context.Context, path string)       {}
func (stubBaidu) Close()                                           {}
func (stubBaidu) ProcessURL(ctx context.Context, link baidu.Link, rootPath string, isInject bool) provider.Result {
	return provider.Fail(provider.KindTransfer, "nope")
}

func newTestAPI() (*API, *httptest.Server) {
	store := jobstore.New()
	proc := processor.New(store, nil)
	proc.QuarkSavePath = "save/here"
	proc.NewQuark = func(cookie string) processor.QuarkClient { return stubQuark{} }
	proc.NewBaidu = func(cookie string) processor.BaiduClient { return stubBaidu{} }

	as := New(store, proc, "127.0.0.1", 0)
	srv := httptest.NewServer(as.Server.Handler)
	return as, srv
}

func postJob(t *testing.T, srv *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+"/jobs", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestCreateAndPollJob(t *testing.T) {
	_, srv := newTestAPI()
	defer srv.Close()

	resp := postJob(t, srv, `{"text":"看 https://pan.quark.cn/s/old","quark_cookie":"c"}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", resp.StatusCode)
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}
	if len(created.ID) != 8 {
		t.Fatalf("Expected an 8-char job id, got %q", created.ID)
	}

	// The worker runs asynchronously; poll until it completes.
	deadline := time.Now().Add(5 * time.Second)
	var j job.Job
	for {
		res, err := http.Get(srv.URL + "/jobs/" + created.ID)
		if err != nil {
			t.Fatal(err)
		}
		err = json.NewDecoder(res.Body).Decode(&j)
		res.Body.Close()
		if err != nil {
			t.Fatal(err)
		}
		if j.Status == job.StatusDone {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Job never completed: %s", j)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if j.ResultText != "看 https://pan.quark.cn/s/rewritten" {
		t.Errorf("Unexpected result text: %q", j.ResultText)
	}
	if j.Summary.Success != 1 || j.Summary.Total != 1 {
		t.Errorf("Expected summary 1/1, got %d/%d", j.Summary.Success, j.Summary.Total)
	}
}

func TestCreateJobValidation(t *testing.T) {
	_, srv := newTestAPI()
	defer srv.Close()

	cases := []struct {
		body string
		want int
	}{
		{`{"text":""}`, http.StatusBadRequest},
		{`{"text":"   "}`, http.StatusBadRequest},
		{`not json`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		resp := postJob(t, srv, tc.body)
		resp.Body.Close()
		if resp.StatusCode != tc.want {
			t.Errorf("Expected %d for %q, got %d", tc.want, tc.body, resp.StatusCode)
		}
	}
}

func TestGetJobNotFound(t *testing.T) {
	_, srv := newTestAPI()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/jobs/deadbeef")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	_, srv := newTestAPI()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/jobs")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405 for GET /jobs, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest("DELETE", srv.URL+"/jobs/abc", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405 for DELETE, got %d", resp.StatusCode)
	}
}

func TestDefaultCookiesApplied(t *testing.T) {
	as, srv := newTestAPI()
	defer srv.Close()
	as.QuarkCookie = "server-cookie"

	// No cookie in the request: the server default is used and the
	// quark link is still processed.
	resp := postJob(t, srv, `{"text":"https://pan.quark.cn/s/old"}`)
	defer resp.Body.Close()

	var created struct {
		ID string `json:"id"`
	}
	json.NewDecoder(resp.Body).Decode(&created)

	deadline := time.Now().Add(5 * time.Second)
	for {
		j, err := as.Store.Get(created.ID)
		if err != nil {
			t.Fatal(err)
		}
		if j.Status == job.StatusDone {
			if j.Summary.Success != 1 {
				t.Errorf("Expected the default cookie to be applied, summary %d/%d",
					j.Summary.Success, j.Summary.Total)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("Job never completed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
