package feature

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"

	"github.com/sipeed/clawbot/pkg/command"
)

const githubDedupWindow = 5 * time.Minute

// ghMatcher is one detector in the ordered chain. The first matcher that
// recognizes the text wins; later ones are not consulted. The dedup key is
// computed from the match alone so duplicates are dropped before any API call.
type ghMatcher struct {
	pattern *regexp.Regexp
	key     func(m []string) string
	lookup  func(e *Engine, ctx context.Context, m []string) (string, error)
}

func ghIssueKey(m []string) string { return fmt.Sprintf("%s/%s#%s", m[1], m[2], m[3]) }

var ghMatchers = []ghMatcher{
	{
		// Full issue or pull request URL.
		pattern: regexp.MustCompile(`github\.com/([\w.-]+)/([\w.-]+)/(?:issues|pull)/(\d+)`),
		key:     ghIssueKey,
		lookup: func(e *Engine, ctx context.Context, m []string) (string, error) {
			return e.githubIssueSummary(ctx, m[1], m[2], m[3])
		},
	},
	{
		// owner/repo#123 shorthand.
		pattern: regexp.MustCompile(`(?:^|\s)([\w.-]+)/([\w.-]+)#(\d+)(?:\s|$)`),
		key:     ghIssueKey,
		lookup: func(e *Engine, ctx context.Context, m []string) (string, error) {
			return e.githubIssueSummary(ctx, m[1], m[2], m[3])
		},
	},
	{
		// Bare repository URL.
		pattern: regexp.MustCompile(`github\.com/([\w.-]+)/([\w.-]+)/?(?:\s|$)`),
		key:     func(m []string) string { return fmt.Sprintf("%s/%s", m[1], m[2]) },
		lookup: func(e *Engine, ctx context.Context, m []string) (string, error) {
			return e.githubRepoSummary(ctx, m[1], m[2])
		},
	},
}

func (e *Engine) setupGitHub() {
	e.Register(command.Descriptor{
		Feature:     "github",
		CatchAll:    true,
		Description: "Expand GitHub links and references",
		NoAck:       true,
		Handler:     e.handleGitHub,
	})
}

func (e *Engine) handleGitHub(c *command.Context) error {
	text := c.Msg.Content()
	if !strings.Contains(text, "github.com") && !strings.Contains(text, "#") {
		return nil
	}

	scope := c.Event.Raw.ScopeKey()
	for _, matcher := range ghMatchers {
		m := matcher.pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}

		// The same reference in the same chat is only expanded once per
		// window; duplicates never reach the API.
		if e.Recent.WasSeenRecently(scope, "gh:"+matcher.key(m), githubDedupWindow) {
			return nil
		}

		summary, err := matcher.lookup(e, c.Ctx, m)
		if err != nil {
			return fmt.Errorf("github lookup: %w", err)
		}
		if summary == "" {
			return nil
		}

		_, err = e.Msgs.Compose().Text(summary).Reply(c.Ctx, c.Msg)
		return err
	}
	return nil
}

func (e *Engine) githubClient(ctx context.Context) *http.Client {
	timeout := time.Duration(e.Cfg.Features.GitHub.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	if token := e.Cfg.Features.GitHub.Token; token != "" {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		client := oauth2.NewClient(ctx, src)
		client.Timeout = timeout
		return client
	}
	return &http.Client{Timeout: timeout}
}

func (e *Engine) githubAPIBase() string {
	if base := e.Cfg.Features.GitHub.APIBase; base != "" {
		return strings.TrimRight(base, "/")
	}
	return "https://api.github.com"
}

func (e *Engine) githubGet(ctx context.Context, path string) (gjson.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.githubAPIBase()+path, nil)
	if err != nil {
		return gjson.Result{}, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := e.githubClient(ctx).Do(req)
	if err != nil {
		return gjson.Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return gjson.Result{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return gjson.Result{}, fmt.Errorf("github api %s: status %d", path, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return gjson.Result{}, err
	}
	return gjson.ParseBytes(body), nil
}

// The issues endpoint also serves pull requests, so one summary covers both.
func (e *Engine) githubIssueSummary(ctx context.Context, owner, repo, number string) (string, error) {
	data, err := e.githubGet(ctx, fmt.Sprintf("/repos/%s/%s/issues/%s", owner, repo, number))
	if err != nil {
		return "", err
	}
	if !data.Exists() {
		return "", nil
	}

	kind := "Issue"
	if data.Get("pull_request").Exists() {
		kind = "PR"
	}
	return fmt.Sprintf("%s %s/%s#%s: %s [%s]",
		kind, owner, repo, number, data.Get("title").String(), data.Get("state").String()), nil
}

func (e *Engine) githubRepoSummary(ctx context.Context, owner, repo string) (string, error) {
	data, err := e.githubGet(ctx, fmt.Sprintf("/repos/%s/%s", owner, repo))
	if err != nil {
		return "", err
	}
	if !data.Exists() {
		return "", nil
	}

	summary := fmt.Sprintf("%s: %s (★%d)",
		data.Get("full_name").String(), data.Get("description").String(), data.Get("stargazers_count").Int())
	return strings.TrimSpace(summary), nil
}
