// Package alert renders pull request alerts as Slack mrkdwn.
package alert

import (
	"fmt"
	"strings"
	"time"

	"github.com/yakoovad/pr-daemon/internal/model"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const noReviewers = "_None assigned_"

type Formatter struct {
	baseURL string
	now     func() time.Time
	title   cases.Caser
}

func NewFormatter(baseURL string, now func() time.Time) *Formatter {
	if now == nil {
		now = time.Now
	}
	return &Formatter{
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     now,
		title:   cases.Title(language.English),
	}
}

// Format renders the alert of the given kind for pr.
func (f *Formatter) Format(kind model.AlertKind, pr *model.PullRequest) string {
	var b strings.Builder

	switch kind {
	case model.AlertKindStale:
		b.WriteString(":rotating_light: *Stale Pull Request Detected*\n")
		f.writeHeader(&b, pr)
		fmt.Fprintf(&b, "> *Opened:* %s\n", f.opened(pr))
		fmt.Fprintf(&b, "> *Reviewers:* %s", Reviewers(pr.Reviewers))
	case model.AlertKindUnreviewed:
		b.WriteString(":eyes: *PR Needs Review*\n")
		f.writeHeader(&b, pr)
		fmt.Fprintf(&b, "> *Opened:* %s\n", f.opened(pr))
		b.WriteString("> *Status:* Awaiting first review\n")
		fmt.Fprintf(&b, "> *Reviewers:* %s", Reviewers(pr.Reviewers))
	case model.AlertKindStalled:
		b.WriteString(":construction: *PR is Stalled*\n")
		f.writeHeader(&b, pr)
		fmt.Fprintf(&b, "> *Last activity:* %s\n", f.lastActivity(pr))
		fmt.Fprintf(&b, "> *Last commit:* %s\n", Since(pr.LastCommitAt, f.now()))
		b.WriteString("> *Action:* Author needs to address feedback.")
	default:
		fmt.Fprintf(&b, "*Pull request alert (%s)*\n", kind)
		f.writeHeader(&b, pr)
	}

	return strings.TrimRight(b.String(), "\n")
}

func (f *Formatter) writeHeader(b *strings.Builder, pr *model.PullRequest) {
	fmt.Fprintf(b, "*<%s|#%d - %s>*\n", f.Permalink(pr), pr.Number, escape(pr.Title))
	fmt.Fprintf(b, "> *Repo:* %s\n", escape(repoName(pr)))
}

// Permalink points at the pull request on the provider.
func (f *Formatter) Permalink(pr *model.PullRequest) string {
	return fmt.Sprintf("%s/%s/pull/%d", f.baseURL, repoFullName(pr), pr.Number)
}

func (f *Formatter) opened(pr *model.PullRequest) string {
	return fmt.Sprintf("%s (%s)", pr.OpenedAt.UTC().Format(time.DateOnly), Since(pr.OpenedAt, f.now()))
}

func (f *Formatter) lastActivity(pr *model.PullRequest) string {
	reviewer, ok := pr.LastReviewer()
	if !ok {
		if pr.LastReviewAt == nil {
			return "No one has reviewed this PR yet."
		}
		return "Reviewed " + Since(*pr.LastReviewAt, f.now())
	}

	state := f.title.String(strings.ReplaceAll(string(reviewer.State), "_", " "))
	if state == "" {
		state = "Reviewed"
	}
	return fmt.Sprintf("%s %s by *%s*", state, Since(*reviewer.SubmittedAt, f.now()), Mention(reviewer.Actor))
}

// Reviewers renders the reviewer list, individuals as mentions and groups by slug.
func Reviewers(reviewers []model.Reviewer) string {
	if len(reviewers) == 0 {
		return noReviewers
	}
	names := make([]string, 0, len(reviewers))
	for _, r := range reviewers {
		names = append(names, Mention(r.Actor))
	}
	return strings.Join(names, ", ")
}

func Mention(a model.Actor) string {
	switch actor := a.(type) {
	case model.Individual:
		return "@" + actor.Login
	case model.Group:
		return "team/" + actor.Slug
	}
	return "unknown"
}

// Since renders the elapsed time between t and now, e.g. "5m ago", "3h ago", "2d 4h ago".
func Since(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d/time.Minute))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d/time.Hour))
	}

	days := int(d / (24 * time.Hour))
	hours := int((d % (24 * time.Hour)) / time.Hour)
	if hours == 0 {
		return fmt.Sprintf("%dd ago", days)
	}
	return fmt.Sprintf("%dd %dh ago", days, hours)
}

func repoName(pr *model.PullRequest) string {
	if pr.Repository != nil && pr.Repository.Name != "" {
		return pr.Repository.Name
	}
	return fmt.Sprintf("repository %d", pr.RepoID)
}

func repoFullName(pr *model.PullRequest) string {
	if pr.Repository != nil && pr.Repository.FullName != "" {
		return pr.Repository.FullName
	}
	return repoName(pr)
}

var mrkdwnEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escape(s string) string {
	return mrkdwnEscaper.Replace(s)
}
