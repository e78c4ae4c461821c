// Package quark implements the transfer client for the Quark drive
// share API.
//
// The API is unofficial: endpoints were reverse-engineered from the web
// client and may change without notice. Every request carries the web
// client's anti-replay query parameters and the operator's session
// cookie. Transfers are asynchronous upstream; after submitting a copy
// the client polls a task endpoint and then locates the copy by name in
// the destination listing.
package quark

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/panrelay/panrelay/provider"
)

const (
	defaultPanBase   = "https://pan.quark.cn"
	defaultDriveBase = "https://drive-pc.quark.cn"
	defaultSaveBase  = "https://drive.quark.cn"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	listPageSize   = 50
	locatePageSize = 20
)

// ErrLoginFailed is returned by CheckLogin when the session cookie is
// rejected or no account info comes back.
var ErrLoginFailed = errors.New("login check failed: no account info returned")

var (
	// Wait tunables, package-level so tests can shrink them.
	TaskPollInterval = time.Second
	TaskPollAttempts = 8
	SettleDelay      = 1500 * time.Millisecond
	ShareTaskDelay   = 500 * time.Millisecond

	passcodeRe = regexp.MustCompile(`[?&]pwd=([a-zA-Z0-9]+)`)

	// Based on http.DefaultTransport
	//
	// See https://golang.org/pkg/net/http/#RoundTripper
	transport = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   4 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
)

// injectCache remembers one resolved secondary share per client
// lifetime, so repeated inject transfers skip the resolve round-trips.
// Never invalidated: the secondary resource is assumed stable for the
// duration of one orchestration run.
type injectCache struct {
	fids   []string
	tokens []string
	pwdID  string
	stoken string
}

// Client is a stateful transfer client bound to one operator account.
// It is owned by a single orchestration run and is not safe for
// concurrent use.
type Client struct {
	// Endpoint overrides, primarily for tests. Zero values select the
	// production hosts.
	PanBase   string
	DriveBase string
	SaveBase  string

	HTTP *http.Client

	cookie string
	rnd    *rand.Rand
	inject *injectCache
}

// New returns a Client authenticated by the given session cookie.
func New(cookie string) *Client {
	return &Client{
		PanBase:   defaultPanBase,
		DriveBase: defaultDriveBase,
		SaveBase:  defaultSaveBase,
		HTTP: &http.Client{
			Transport: transport,
			Timeout:   45 * time.Second,
		},
		cookie: cookie,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Close releases the client's idle connections.
func (c *Client) Close() {
	c.HTTP.CloseIdleConnections()
}

// params returns the anti-replay query parameters every request must
// carry.
func (c *Client) params() url.Values {
	v := url.Values{}
	v.Set("pr", "ucpro")
	v.Set("fr", "pc")
	v.Set("__dt", strconv.Itoa(100+c.rnd.Intn(9900)))
	v.Set("__t", strconv.FormatInt(time.Now().UnixNano()/int64(time.Millisecond), 10))
	return v
}

// statusCode tolerates the API's habit of signaling success as either
// the number 0 or the string "OK", depending on the endpoint.
type statusCode struct {
	raw interface{}
}

func (s *statusCode) UnmarshalJSON(b []byte) error {
	return json.Unmarshal(b, &s.raw)
}

// OK reports whether the code denotes success.
func (s statusCode) OK() bool {
	switch v := s.raw.(type) {
	case string:
		return v == "OK"
	case float64:
		return v == 0
	}
	return false
}

// envelope is the common response wrapper of all endpoints.
type envelope struct {
	Code    statusCode      `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type accountData struct {
	Nickname string `json:"nickname"`
}

type fileEntry struct {
	FID      string `json:"fid"`
	FileName string `json:"file_name"`
	Dir      bool   `json:"dir"`
}

type listData struct {
	List []fileEntry `json:"list"`
}

type mkdirData struct {
	FID string `json:"fid"`
}

type tokenData struct {
	Stoken string `json:"stoken"`
}

type shareEntry struct {
	FID           string `json:"fid"`
	ShareFidToken string `json:"share_fid_token"`
	FileName      string `json:"file_name"`
}

type detailData struct {
	List []shareEntry `json:"list"`
}

type taskData struct {
	TaskID  string `json:"task_id"`
	Status  int    `json:"status"`
	ShareID string `json:"share_id"`
}

type shareLinkData struct {
	ShareURL string `json:"share_url"`
}

// call issues a request and decodes the response envelope. When data is
// non-nil the envelope's data payload is decoded into it; missing or
// unexpected fields are tolerated and simply left at their zero values.
func (c *Client) call(ctx context.Context, method, rawurl string, q url.Values, body, data interface{}) (*envelope, error) {
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rdr = bytes.NewReader(b)
	}

	var req *http.Request
	var err error
	u := rawurl + "?" + q.Encode()
	if rdr != nil {
		req, err = http.NewRequestWithContext(ctx, method, u, rdr)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, u, nil)
	}
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Cookie", c.cookie)
	req.Header.Set("Origin", defaultPanBase)
	req.Header.Set("Referer", defaultPanBase+"/")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	env := new(envelope)
	if err := json.NewDecoder(resp.Body).Decode(env); err != nil {
		return nil, err
	}
	if data != nil && env.Data != nil {
		// Shape drift in the data payload is not fatal.
		json.Unmarshal(env.Data, data)
	}
	return env, nil
}

// CheckLogin verifies the session cookie and returns the account's
// nickname.
func (c *Client) CheckLogin(ctx context.Context) (string, error) {
	var acc accountData
	env, err := c.call(ctx, http.MethodGet, c.PanBase+"/account/info", c.params(), nil, &acc)
	if err != nil {
		return "", err
	}
	if !env.Code.OK() || acc.Nickname == "" {
		return "", ErrLoginFailed
	}
	return acc.Nickname, nil
}

// listDir fetches one page of a directory listing.
func (c *Client) listDir(ctx context.Context, pdirFid string, size int, sort string) ([]fileEntry, error) {
	q := c.params()
	q.Set("pdir_fid", pdirFid)
	q.Set("_page", "1")
	q.Set("_size", strconv.Itoa(size))
	q.Set("_fetch_total", "false")
	if sort != "" {
		q.Set("_sort", sort)
	}

	var list listData
	env, err := c.call(ctx, http.MethodGet, c.DriveBase+"/1/clouddrive/file/sort", q, nil, &list)
	if err != nil {
		return nil, err
	}
	if !env.Code.OK() {
		return nil, &apiError{op: "list", message: env.Message}
	}
	return list.List, nil
}

// apiError is a non-success response code from an endpoint.
type apiError struct {
	op      string
	message string
}

func (e *apiError) Error() string {
	if e.message == "" {
		return e.op + " request rejected"
	}
	return e.op + " request rejected: " + e.message
}

// mkdir creates a directory under pdirFid and returns its id.
func (c *Client) mkdir(ctx context.Context, name, pdirFid string) (string, error) {
	body := map[string]interface{}{
		"file_name":     name,
		"pdir_fid":      pdirFid,
		"dir_init_lock": false,
	}
	var data mkdirData
	env, err := c.call(ctx, http.MethodPost, c.DriveBase+"/1/clouddrive/file/mkdir", c.params(), body, &data)
	if err != nil {
		return "", err
	}
	if !env.Code.OK() || data.FID == "" {
		return "", &apiError{op: "mkdir", message: env.Message}
	}
	return data.FID, nil
}

// EnsurePath resolves the directory path (slash-separated, relative to
// the drive root) to its folder id, creating missing segments along the
// way.
func (c *Client) EnsurePath(ctx context.Context, path string) (string, error) {
	curr := "0"
	for _, part := range strings.Split(path, "/") {
		if part == "" {
			continue
		}

		found := ""
		entries, err := c.listDir(ctx, curr, listPageSize, "file_type:asc,updated_at:desc")
		if err == nil {
			for _, e := range entries {
				if e.FileName == part && e.Dir {
					found = e.FID
					break
				}
			}
		}
		if found == "" {
			found, err = c.mkdir(ctx, part, curr)
			if err != nil {
				return "", err
			}
		}
		curr = found
	}
	return curr, nil
}

// ProcessURL runs the full transfer protocol for one share URL: resolve
// the share, copy its contents into targetFid, wait for the server-side
// copy, locate the new file and re-share it.
//
// When isInject is true the call stops right after a successful copy
// (inject transfers are never re-shared), and the resolved share is
// cached so later inject calls skip the resolve steps entirely.
func (c *Client) ProcessURL(ctx context.Context, rawURL, targetFid string, isInject bool) provider.Result {
	var (
		fids      []string
		tokens    []string
		pwdID     string
		stoken    string
		firstName string
	)

	if isInject && c.inject != nil {
		fids = c.inject.fids
		tokens = c.inject.tokens
		pwdID = c.inject.pwdID
		stoken = c.inject.stoken
	} else {
		// Parse the share id out of the URL path.
		idx := strings.LastIndex(rawURL, "/s/")
		if idx == -1 {
			return provider.Fail(provider.KindFormat, "malformed share URL")
		}
		pwdID = rawURL[idx+3:]
		if i := strings.IndexAny(pwdID, "?#"); i >= 0 {
			pwdID = pwdID[:i]
		}
		passcode := ""
		if m := passcodeRe.FindStringSubmatch(rawURL); m != nil {
			passcode = m[1]
		}

		// Exchange (share id, access code) for a session token.
		var tok tokenData
		body := map[string]interface{}{"pwd_id": pwdID, "passcode": passcode}
		env, err := c.call(ctx, http.MethodPost, c.DriveBase+"/1/clouddrive/share/sharepage/token", c.params(), body, &tok)
		if err != nil {
			return provider.Fail(provider.Classify(err), "share token request failed")
		}
		if tok.Stoken == "" {
			msg := "access code invalid or expired"
			if env.Message != "" {
				msg += ": " + env.Message
			}
			return provider.Fail(provider.KindCodeInvalid, msg)
		}
		stoken = tok.Stoken

		// List the shared resource's root.
		q := c.params()
		q.Set("pwd_id", pwdID)
		q.Set("stoken", stoken)
		q.Set("pdir_fid", "0")
		q.Set("_page", "1")
		q.Set("_size", strconv.Itoa(listPageSize))

		var detail detailData
		if _, err := c.call(ctx, http.MethodGet, c.DriveBase+"/1/clouddrive/share/sharepage/detail", q, nil, &detail); err != nil {
			return provider.Fail(provider.Classify(err), "share listing failed")
		}
		if len(detail.List) == 0 {
			return provider.Fail(provider.KindEmptyShare, "share is empty")
		}
		for _, e := range detail.List {
			fids = append(fids, e.FID)
			tokens = append(tokens, e.ShareFidToken)
		}
		firstName = detail.List[0].FileName

		if isInject {
			c.inject = &injectCache{fids: fids, tokens: tokens, pwdID: pwdID, stoken: stoken}
		}
	}

	// Submit the batch copy.
	saveBody := map[string]interface{}{
		"fid_list":       fids,
		"fid_token_list": tokens,
		"to_pdir_fid":    targetFid,
		"pwd_id":         pwdID,
		"stoken":         stoken,
		"pdir_fid":       "0",
		"scene":          "link",
	}
	var task taskData
	env, err := c.call(ctx, http.MethodPost, c.SaveBase+"/1/clouddrive/share/sharepage/save", c.params(), saveBody, &task)
	if err != nil {
		return provider.Fail(provider.Classify(err), "save request failed")
	}
	if !env.Code.OK() {
		return provider.Fail(provider.KindTransfer, "save rejected: "+env.Message)
	}

	if isInject {
		return provider.Injected("")
	}

	// Best-effort wait for the asynchronous copy task, then a short
	// pause for listing consistency. Proceed regardless of outcome.
	for i := 0; i < TaskPollAttempts; i++ {
		time.Sleep(TaskPollInterval)
		q := c.params()
		q.Set("task_id", task.TaskID)
		var st taskData
		if _, err := c.call(ctx, http.MethodGet, c.DriveBase+"/1/clouddrive/task", q, nil, &st); err == nil && st.Status == 2 {
			break
		}
	}
	time.Sleep(SettleDelay)

	// Locate the copy by name in the destination, newest first.
	// Name+recency lookup can pick the wrong file when concurrent runs
	// target the same folder; the API offers no stronger identity.
	newFid := ""
	entries, err := c.listDir(ctx, targetFid, locatePageSize, "updated_at:desc")
	if err == nil {
		for _, e := range entries {
			if e.FileName == firstName {
				newFid = e.FID
				break
			}
		}
		if newFid == "" && len(entries) > 0 {
			newFid = entries[0].FID
		}
	}
	if newFid == "" {
		return provider.Saved("saved to drive, but could not identify the copied file; not shared")
	}

	// Request a new, non-expiring public share.
	shareBody := map[string]interface{}{
		"fid_list":     []string{newFid},
		"title":        firstName,
		"url_type":     1,
		"expired_type": 1,
	}
	var shareTask taskData
	env, err = c.call(ctx, http.MethodPost, c.DriveBase+"/1/clouddrive/share", c.params(), shareBody, &shareTask)
	if err != nil {
		return provider.Saved("saved to drive, but share creation failed")
	}
	if !env.Code.OK() {
		return provider.Saved("saved to drive, but sharing was blocked: " + env.Message)
	}

	// The share request is itself a task; poll it once for the share
	// id, then fetch the public link.
	time.Sleep(ShareTaskDelay)
	q := c.params()
	q.Set("task_id", shareTask.TaskID)
	q.Set("retry_index", "0")
	var st taskData
	if _, err := c.call(ctx, http.MethodGet, c.DriveBase+"/1/clouddrive/task", q, nil, &st); err != nil || st.ShareID == "" {
		return provider.Saved("saved to drive, but share creation failed")
	}

	var link shareLinkData
	if _, err := c.call(ctx, http.MethodPost, c.DriveBase+"/1/clouddrive/share/password", c.params(),
		map[string]interface{}{"share_id": st.ShareID}, &link); err != nil || link.ShareURL == "" {
		return provider.Saved("saved to drive, but share link retrieval failed")
	}

	return provider.OK(link.ShareURL, newFid)
}
