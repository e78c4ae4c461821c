// Package processor orchestrates the execution of a transfer job: it
// expands short links, scans the text for share links, drives the
// provider clients and records everything in the job store.
package processor

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/panrelay/panrelay/job"
	"github.com/panrelay/panrelay/jobstore"
	"github.com/panrelay/panrelay/provider"
	"github.com/panrelay/panrelay/provider/baidu"
	"github.com/panrelay/panrelay/provider/quark"
	"github.com/panrelay/panrelay/scanner"
	"github.com/panrelay/panrelay/shortlink"
)

// Inter-match pause bounds. Randomized to avoid a recognizable request
// cadence against the upstream APIs. Package-level so tests can shrink
// them.
var (
	DelayMin = 2 * time.Second
	DelayMax = 4 * time.Second
)

// QuarkClient is the part of the Quark transfer client the processor
// drives.
type QuarkClient interface {
	CheckLogin(ctx context.Context) (string, error)
	EnsurePath(ctx context.Context, path string) (string, error)
	ProcessURL(ctx context.Context, rawURL, targetFid string, isInject bool) provider.Result
	Close()
}

// BaiduClient is the part of the Baidu transfer client the processor
// drives.
type BaiduClient interface {
	InitToken(ctx context.Context) error
	CheckDir(ctx context.Context, path string) bool
	CreateDir(ctx context.Context, path string)
	ProcessURL(ctx context.Context, link baidu.Link, rootPath string, isInject bool) provider.Result
	Close()
}

// Notifier receives the end-of-job notification.
type Notifier interface {
	Notify(title, body string)
}

// Credentials are the per-job session cookies. Either may be empty, in
// which case that provider's links are skipped.
type Credentials struct {
	QuarkCookie string
	BaiduCookie string
}

// Processor runs transfer jobs. One Processor serves all jobs; each Run
// call owns its own provider clients.
type Processor struct {
	Store    *jobstore.Store
	Notifier Notifier
	Resolver *shortlink.Resolver

	QuarkSavePath string
	BaiduSavePath string

	// Optional secondary resources saved alongside every successful
	// transfer.
	QuarkInjectURL      string
	BaiduInjectURL      string
	BaiduInjectPassword string

	// Client factories, overridable in tests.
	NewQuark func(cookie string) QuarkClient
	NewBaidu func(cookie string) BaiduClient

	Log *log.Logger
}

// New returns a Processor wired to the production provider clients.
func New(store *jobstore.Store, notifier Notifier) *Processor {
	return &Processor{
		Store:    store,
		Notifier: notifier,
		Resolver: shortlink.New(),
		NewQuark: func(cookie string) QuarkClient { return quark.New(cookie) },
		NewBaidu: func(cookie string) BaiduClient { return baidu.New(cookie) },
		Log:      log.New(os.Stderr, "[processor] ", log.Ldate|log.Ltime),
	}
}

// Run executes one job to completion. It is designed to be launched as
// a goroutine; the job always reaches the done state, even if a
// provider client panics.
func (p *Processor) Run(ctx context.Context, jobID, text string, creds Credentials) {
	start := time.Now()
	out := text
	success, total := 0, 0

	defer func() {
		if r := recover(); r != nil {
			p.Log.Printf("job %s aborted: %v", jobID, r)
			p.Store.AppendLog(jobID, fmt.Sprintf("internal error: %v", r), job.CategoryError)
		}
		summary := job.Summary{
			Success:  success,
			Total:    total,
			Duration: fmt.Sprintf("%.1fs", time.Since(start).Seconds()),
		}
		p.Store.Complete(jobID, out, summary)

		title := "link transfer complete"
		if success == 0 {
			title = "link transfer finished (no links replaced)"
		}
		if p.Notifier != nil {
			p.Notifier.Notify(title, fmt.Sprintf("ok: %d/%d | took: %s", success, total, summary.Duration))
		}
		p.Log.Printf("job %s done: %d/%d in %s", jobID, success, total, summary.Duration)
	}()

	p.Store.AppendLog(jobID, "job started", job.CategoryInfo)

	expanded := p.Resolver.Expand(ctx, out)
	if expanded != out {
		p.Store.AppendLog(jobID, "expanded short links", job.CategoryInfo)
		out = expanded
	}

	matches := scanner.Scan(out)
	total = len(matches)
	p.Store.SetProgress(jobID, 0, total)
	if total == 0 {
		p.Store.AppendLog(jobID, "no share links found", job.CategoryInfo)
		return
	}
	p.Store.AppendLog(jobID, fmt.Sprintf("found %d share link(s)", total), job.CategoryInfo)

	var quarkMatches, baiduMatches []scanner.Match
	for _, m := range matches {
		if m.Provider == scanner.ProviderQuark {
			quarkMatches = append(quarkMatches, m)
		} else {
			baiduMatches = append(baiduMatches, m)
		}
	}

	// Progress index across both provider batches; skipped matches
	// still advance it so the final count always reaches the total.
	done := 0

	if len(quarkMatches) > 0 {
		done = p.runQuark(ctx, jobID, quarkMatches, creds.QuarkCookie, &out, &success, done, total)
	}
	if len(baiduMatches) > 0 {
		p.runBaidu(ctx, jobID, baiduMatches, creds.BaiduCookie, &out, &success, done, total)
	}
}

// skipBatch logs a skip reason once and advances progress past the
// whole batch.
func (p *Processor) skipBatch(jobID, reason string, n, done, total int) int {
	p.Store.AppendLog(jobID, reason, job.CategoryError)
	done += n
	p.Store.SetProgress(jobID, done, total)
	return done
}

func (p *Processor) runQuark(ctx context.Context, jobID string, matches []scanner.Match, cookie string, out *string, success *int, done, total int) int {
	n := len(matches)
	if cookie == "" {
		return p.skipBatch(jobID, fmt.Sprintf("quark credentials not configured; skipping %d link(s)", n), n, done, total)
	}

	client := p.NewQuark(cookie)
	defer client.Close()

	nickname, err := client.CheckLogin(ctx)
	if err != nil {
		p.Log.Printf("job %s: quark login failed: %v", jobID, err)
		return p.skipBatch(jobID, fmt.Sprintf("quark login failed; skipping %d link(s)", n), n, done, total)
	}
	p.Store.AppendLog(jobID, "quark login ok: "+nickname, job.CategoryQuark)

	rootFid, err := client.EnsurePath(ctx, p.QuarkSavePath)
	if err != nil {
		p.Log.Printf("job %s: quark save path: %v", jobID, err)
		return p.skipBatch(jobID, fmt.Sprintf("quark save folder unavailable; skipping %d link(s)", n), n, done, total)
	}

	for _, m := range matches {
		done++
		p.Store.AppendLog(jobID, fmt.Sprintf("[%d/%d] processing %s", done, total, m.RawURL), job.CategoryQuark)

		res := client.ProcessURL(ctx, m.RawURL, rootFid, false)
		p.record(ctx, jobID, m, res, out, success, done, total, func(injectURL, resourceID string) provider.Result {
			return client.ProcessURL(ctx, injectURL, resourceID, true)
		}, p.QuarkInjectURL)

		p.Store.SetProgress(jobID, done, total)
		if done < total {
			pause(ctx)
		}
	}
	return done
}

func (p *Processor) runBaidu(ctx context.Context, jobID string, matches []scanner.Match, cookie string, out *string, success *int, done, total int) int {
	n := len(matches)
	if cookie == "" {
		return p.skipBatch(jobID, fmt.Sprintf("baidu credentials not configured; skipping %d link(s)", n), n, done, total)
	}

	client := p.NewBaidu(cookie)
	defer client.Close()

	if err := client.InitToken(ctx); err != nil {
		p.Log.Printf("job %s: baidu login failed: %v", jobID, err)
		return p.skipBatch(jobID, fmt.Sprintf("baidu login failed; skipping %d link(s)", n), n, done, total)
	}
	p.Store.AppendLog(jobID, "baidu login ok", job.CategoryBaidu)

	if !client.CheckDir(ctx, p.BaiduSavePath) {
		client.CreateDir(ctx, p.BaiduSavePath)
	}

	for _, m := range matches {
		done++
		p.Store.AppendLog(jobID, fmt.Sprintf("[%d/%d] processing %s", done, total, m.RawURL), job.CategoryBaidu)

		name := m.FolderName
		if name == "" {
			name = fmt.Sprintf("Res_%d", time.Now().Unix())
		}
		res := client.ProcessURL(ctx, baidu.Link{URL: m.RawURL, Password: m.Password, Name: name}, p.BaiduSavePath, false)
		p.record(ctx, jobID, m, res, out, success, done, total, func(injectURL, resourceID string) provider.Result {
			return client.ProcessURL(ctx, baidu.Link{URL: injectURL, Password: p.BaiduInjectPassword}, resourceID, true)
		}, p.BaiduInjectURL)

		p.Store.SetProgress(jobID, done, total)
		if done < total {
			pause(ctx)
		}
	}
	return done
}

// record applies one transfer result: on success it rewrites the text,
// counts it and runs the optional inject follow-up; otherwise it logs
// the failure.
func (p *Processor) record(ctx context.Context, jobID string, m scanner.Match, res provider.Result, out *string, success *int, done, total int, inject func(injectURL, resourceID string) provider.Result, injectURL string) {
	switch {
	case res.Shared():
		*out = strings.ReplaceAll(*out, m.RawURL, res.ShareURL)
		*success++

		msg := fmt.Sprintf("[%d/%d] done: %s", done, total, res.ShareURL)
		if injectURL != "" {
			if ir := inject(injectURL, res.ResourceID); ir.Status != provider.StatusSuccess {
				msg += " (extra resource failed)"
			} else {
				msg += " (+extra resource)"
			}
		}
		p.Store.AppendLog(jobID, msg, job.CategorySuccess)

	case res.Status == provider.StatusSaved:
		p.Store.AppendLog(jobID, fmt.Sprintf("[%d/%d] %s", done, total, res.Message), job.CategoryError)

	default:
		p.Store.AppendLog(jobID, fmt.Sprintf("[%d/%d] failed: %s", done, total, res.Message), job.CategoryError)
	}
}

// pause sleeps for a random duration between DelayMin and DelayMax,
// returning early if ctx is cancelled.
func pause(ctx context.Context) {
	d := DelayMin
	if DelayMax > DelayMin {
		d += time.Duration(rand.Int63n(int64(DelayMax - DelayMin)))
	}
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}
