// Package baidu implements the transfer client for the Baidu netdisk
// share API.
//
// Unlike Quark, transfers here are synchronous and path-addressed: the
// share page is scraped for embedded identifiers, the contents are
// transferred into a freshly created subfolder, and the subfolder is
// re-shared with a generated access code. Errors come back as small
// numeric codes that need interpretation.
package baidu

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io/ioutil"
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
	defaultBase = "https://pan.baidu.com"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/114.0.0.0 Safari/537.36"

	// Provider error codes worth a specific message.
	errnoExists        = 12
	errnoCapacity      = -10
	errnoFileCountOver = -33

	tokenAttempts = 2
)

// TransferTimeout bounds the transfer call only; large transfers can
// stall well past the general client timeout.
var TransferTimeout = 20 * time.Second

var (
	surlRe    = regexp.MustCompile(`(?:surl=|/s/1|/s/)([\w\-]+)`)
	shareIDRe = regexp.MustCompile(`"shareid":(\d+?),`)
	ukRe      = regexp.MustCompile(`"share_uk":"(\d+?)",`)
	fsIDRe    = regexp.MustCompile(`"fs_id":(\d+?),`)

	// The upstream endpoints are served with certificates the web
	// client itself does not verify; we follow suit.
	transport = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: true},
		ExpectContinueTimeout: 1 * time.Second,
	}
)

// Link is one share URL to transfer, along with its extracted access
// code and the folder name inferred from the surrounding text.
type Link struct {
	URL      string
	Password string
	Name     string
}

// injectCache remembers one scraped secondary share per client
// lifetime; see the quark counterpart.
type injectCache struct {
	shareID  string
	uk       string
	fsidList string
}

// Client is a stateful transfer client bound to one operator account.
// It is owned by a single orchestration run and is not safe for
// concurrent use.
type Client struct {
	// Base overrides the production endpoint, primarily for tests.
	Base string

	HTTP *http.Client

	cookie   string
	bdstoken string
	codes    *provider.Codes
	inject   *injectCache
}

// New returns a Client authenticated by the given session cookie.
// Whitespace inside the cookie blob is stripped, as pasted cookies
// routinely contain line breaks.
func New(cookie string) *Client {
	return &Client{
		Base: defaultBase,
		HTTP: &http.Client{
			Transport: transport,
			Timeout:   45 * time.Second,
		},
		cookie: strings.Join(strings.Fields(cookie), ""),
		codes:  provider.NewCodes(4, rand.NewSource(time.Now().UnixNano())),
	}
}

// Close releases the client's idle connections.
func (c *Client) Close() {
	c.HTTP.CloseIdleConnections()
}

func (c *Client) do(ctx context.Context, method, rawurl string, q url.Values, form url.Values, out interface{}) error {
	u := rawurl
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var req *http.Request
	var err error
	if form != nil {
		req, err = http.NewRequestWithContext(ctx, method, u, strings.NewReader(form.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, method, u, nil)
	}
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", defaultBase)
	req.Header.Set("Cookie", c.cookie)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type templateResp struct {
	Errno  int `json:"errno"`
	Result struct {
		Bdstoken string `json:"bdstoken"`
	} `json:"result"`
}

type verifyResp struct {
	Errno  int    `json:"errno"`
	Randsk string `json:"randsk"`
}

type errnoResp struct {
	Errno int `json:"errno"`
}

type listEntry struct {
	ServerFilename string      `json:"server_filename"`
	FsID           json.Number `json:"fs_id"`
}

type listResp struct {
	Errno int         `json:"errno"`
	List  []listEntry `json:"list"`
}

type shareSetResp struct {
	Errno int    `json:"errno"`
	Link  string `json:"link"`
}

// InitToken bootstraps the CSRF-like bdstoken required by every other
// endpoint. It retries once on failure.
func (c *Client) InitToken(ctx context.Context) error {
	var lastErr error
	for i := 0; i < tokenAttempts; i++ {
		q := url.Values{}
		q.Set("fields", `["bdstoken","token","uk","isdocuser"]`)

		var resp templateResp
		err := c.do(ctx, http.MethodGet, c.Base+"/api/gettemplatevariable", q, nil, &resp)
		if err == nil && resp.Errno == 0 && resp.Result.Bdstoken != "" {
			c.bdstoken = resp.Result.Bdstoken
			return nil
		}
		if err == nil {
			err = fmt.Errorf("gettemplatevariable returned errno %d", resp.Errno)
		}
		lastErr = err
	}
	return lastErr
}

// mergeBDCLND merges the session extension value returned by the
// password verify endpoint into the client's cookie.
func (c *Client) mergeBDCLND(randsk string) {
	pairs := strings.Split(c.cookie, ";")
	replaced := false
	for i, p := range pairs {
		if strings.HasPrefix(strings.TrimSpace(p), "BDCLND=") {
			pairs[i] = "BDCLND=" + randsk
			replaced = true
		}
	}
	if !replaced {
		pairs = append(pairs, "BDCLND="+randsk)
	}
	c.cookie = strings.Join(pairs, ";")
}

// CheckDir reports whether the directory path exists.
func (c *Client) CheckDir(ctx context.Context, path string) bool {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	q := url.Values{}
	q.Set("dir", path)
	q.Set("bdstoken", c.bdstoken)
	q.Set("start", "0")
	q.Set("limit", "1")

	var resp errnoResp
	if err := c.do(ctx, http.MethodGet, c.Base+"/api/list", q, nil, &resp); err != nil {
		return false
	}
	return resp.Errno == 0
}

// CreateDir creates the directory path. Creation failures (typically
// "already exists") are deliberately ignored.
func (c *Client) CreateDir(ctx context.Context, path string) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	q := url.Values{}
	q.Set("a", "commit")
	q.Set("bdstoken", c.bdstoken)

	form := url.Values{}
	form.Set("path", path)
	form.Set("isdir", "1")
	form.Set("block_list", "[]")

	c.do(ctx, http.MethodPost, c.Base+"/api/create", q, form, nil)
}

// ProcessURL runs the full transfer protocol for one share link:
// verify the access code, scrape the share page for its embedded
// identifiers, transfer the contents into a subfolder of rootPath and
// re-share that subfolder with a generated access code.
//
// When isInject is true the destination is rootPath itself, the call
// stops right after a successful transfer, and the scraped share is
// cached so later inject calls skip the scrape entirely.
func (c *Client) ProcessURL(ctx context.Context, link Link, rootPath string, isInject bool) provider.Result {
	var shareID, uk, fsidList string

	if isInject && c.inject != nil {
		shareID = c.inject.shareID
		uk = c.inject.uk
		fsidList = c.inject.fsidList
	} else {
		cleanURL := link.URL
		if i := strings.IndexByte(cleanURL, '?'); i >= 0 {
			cleanURL = cleanURL[:i]
		}

		// Verify the access code and pick up the session extension.
		if link.Password != "" {
			m := surlRe.FindStringSubmatch(cleanURL)
			if m == nil {
				return provider.Fail(provider.KindFormat, "malformed share URL")
			}
			q := url.Values{}
			q.Set("surl", m[1])
			q.Set("t", strconv.FormatInt(time.Now().UnixNano()/int64(time.Millisecond), 10))
			q.Set("bdstoken", c.bdstoken)
			q.Set("channel", "chunlei")
			q.Set("web", "1")
			q.Set("clienttype", "0")

			form := url.Values{}
			form.Set("pwd", link.Password)
			form.Set("vcode", "")
			form.Set("vcode_str", "")

			var resp verifyResp
			if err := c.do(ctx, http.MethodPost, c.Base+"/share/verify", q, form, &resp); err != nil {
				return provider.Fail(provider.Classify(err), "access code verification failed")
			}
			if resp.Errno != 0 {
				return provider.Fail(provider.KindCodeInvalid, "access code rejected")
			}
			c.mergeBDCLND(resp.Randsk)
		}

		// Scrape the share page for the embedded identifiers.
		content, err := c.fetchPage(ctx, cleanURL)
		if err != nil {
			return provider.Fail(provider.Classify(err), "share page fetch failed")
		}
		fsIDs := fsIDRe.FindAllStringSubmatch(content, -1)
		if len(fsIDs) == 0 {
			return provider.Fail(provider.KindEmptyShare, "share contains no files")
		}
		sid := shareIDRe.FindStringSubmatch(content)
		owner := ukRe.FindStringSubmatch(content)
		if sid == nil || owner == nil {
			return provider.Fail(provider.KindPageParse, "could not parse share page")
		}
		shareID, uk = sid[1], owner[1]

		ids := make([]string, len(fsIDs))
		for i, m := range fsIDs {
			ids[i] = m[1]
		}
		fsidList = "[" + strings.Join(ids, ",") + "]"

		if isInject {
			c.inject = &injectCache{shareID: shareID, uk: uk, fsidList: fsidList}
		}
	}

	// Destination: inject transfers reuse the root save path, primary
	// transfers get their own subfolder. The random suffix avoids name
	// collisions across runs.
	savePath := rootPath
	finalFolder := ""
	if !isInject {
		finalFolder = link.Name + "_" + c.codes.Rand()
		savePath = rootPath + "/" + finalFolder
		c.CreateDir(ctx, savePath)
	}

	// Transfer, with its own timeout: large transfers can stall.
	tctx, cancel := context.WithTimeout(ctx, TransferTimeout)
	defer cancel()

	q := url.Values{}
	q.Set("shareid", shareID)
	q.Set("from", uk)
	q.Set("bdstoken", c.bdstoken)

	form := url.Values{}
	form.Set("fsidlist", fsidList)
	form.Set("path", savePath)

	var resp errnoResp
	if err := c.do(tctx, http.MethodPost, c.Base+"/share/transfer", q, form, &resp); err != nil {
		if provider.Classify(err) == provider.KindTimeout {
			return provider.Fail(provider.KindTimeout, "transfer request timed out (resource may be too large)")
		}
		return provider.Fail(provider.KindUnknown, "transfer request failed")
	}

	switch {
	case resp.Errno == errnoExists && isInject:
		return provider.Injected(savePath)
	case resp.Errno == errnoExists:
		return provider.Fail(provider.KindTransfer, "transfer failed: already saved")
	case resp.Errno == errnoCapacity:
		return provider.Fail(provider.KindTransfer, "transfer failed: insufficient capacity or file count limit")
	case resp.Errno == errnoFileCountOver:
		return provider.Fail(provider.KindTransfer, "transfer failed: file count exceeds the non-member limit (500)")
	case resp.Errno != 0:
		return provider.Fail(provider.KindTransfer, fmt.Sprintf("transfer failed (%d)", resp.Errno))
	}

	if isInject {
		return provider.Injected(savePath)
	}

	// Locate the new subfolder in the parent listing.
	lq := url.Values{}
	lq.Set("dir", rootPath)
	lq.Set("bdstoken", c.bdstoken)

	var listing listResp
	if err := c.do(ctx, http.MethodGet, c.Base+"/api/list", lq, nil, &listing); err != nil {
		return provider.Saved("saved to drive, but could not list the destination; not shared")
	}
	targetFsID := ""
	for _, e := range listing.List {
		if e.ServerFilename == finalFolder {
			targetFsID = e.FsID.String()
			break
		}
	}
	if targetFsID == "" {
		return provider.Saved("saved to drive, but could not locate the new folder; not shared")
	}

	// Re-share the subfolder with a fresh access code.
	pwd := c.codes.Rand()

	sq := url.Values{}
	sq.Set("bdstoken", c.bdstoken)
	sq.Set("channel", "chunlei")
	sq.Set("clienttype", "0")
	sq.Set("web", "1")

	sform := url.Values{}
	sform.Set("period", "0")
	sform.Set("pwd", pwd)
	sform.Set("fid_list", "["+targetFsID+"]")
	sform.Set("schannel", "4")

	var share shareSetResp
	if err := c.do(ctx, http.MethodPost, c.Base+"/share/set", sq, sform, &share); err != nil || share.Errno != 0 || share.Link == "" {
		return provider.Saved("saved to drive, but share creation failed")
	}

	return provider.OK(share.Link+"?pwd="+pwd, savePath)
}

// fetchPage fetches the raw share page body.
func (c *Client) fetchPage(ctx context.Context, rawurl string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawurl, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", defaultBase)
	req.Header.Set("Cookie", c.cookie)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	b, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
