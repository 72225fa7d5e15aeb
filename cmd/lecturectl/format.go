package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lecturelink/backend/internal/models"
	"github.com/lecturelink/backend/internal/syncloop"
)

const barWidth = 20

func formatPages(pages []int) string {
	if len(pages) == 0 {
		return "none"
	}
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ", ")
}

func sortedPages(pages map[int]*models.PageThread) []int {
	out := make([]int, 0, len(pages))
	for p := range pages {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

func formatRemaining(d time.Duration) string {
	secs := int(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

// formatPoll renders a poll with numbered options and vote bars.
func formatPoll(p *models.Poll, now time.Time) string {
	var b strings.Builder
	status := p.Status(now)
	fmt.Fprintf(&b, "Poll %s [%s", p.ID, status)
	if status == models.PollActive {
		fmt.Fprintf(&b, ", %s left", formatRemaining(p.Remaining(now)))
	}
	fmt.Fprintf(&b, "]\n  %s\n", p.Question)
	total := p.TotalVotes()
	for i, o := range p.Options {
		filled := 0
		if total > 0 {
			filled = o.Votes * barWidth / total
		}
		fmt.Fprintf(&b, "  %d) %-24s %s%s %d\n", i+1, o.Text,
			strings.Repeat("#", filled), strings.Repeat(".", barWidth-filled), o.Votes)
	}
	return b.String()
}

// formatThread renders one page's questions and comments. Unacknowledged questions are starred.
func formatThread(page int, t *models.PageThread) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Page %d\n", page)
	if t == nil || (len(t.Questions) == 0 && len(t.Comments) == 0) {
		b.WriteString("  (nothing yet)\n")
		return b.String()
	}
	for _, q := range t.Questions {
		mark := "*"
		if q.Acknowledged {
			mark = " "
		}
		fmt.Fprintf(&b, " %s Q#%d %s\n", mark, q.ID, q.Text)
	}
	for _, c := range t.Comments {
		fmt.Fprintf(&b, "   C#%d %s\n", c.ID, c.Text)
	}
	return b.String()
}

func formatEvent(ev syncloop.Event, now time.Time) string {
	switch ev.Kind {
	case syncloop.EventPollPrompt:
		return "\nNew poll! Answer with 'vote <n>'.\n" + formatPoll(ev.Poll, now)
	case syncloop.EventPollDismissed:
		return "Poll closed.\n"
	case syncloop.EventVoted:
		return "Vote recorded.\n" + formatPoll(ev.Poll, now)
	case syncloop.EventCountdown:
		secs := int(ev.Remaining.Round(time.Second) / time.Second)
		if secs <= 0 || (secs > 5 && secs%10 != 0) {
			return ""
		}
		return fmt.Sprintf("Poll running: %s left, %d votes\n", formatRemaining(ev.Remaining), ev.Poll.TotalVotes())
	case syncloop.EventShowResults:
		return "\nResults\n" + formatPoll(ev.Poll, now)
	case syncloop.EventThread:
		return formatThread(ev.Page, ev.Thread)
	case syncloop.EventPages:
		return formatThread(ev.Page, ev.Pages[ev.Page]) +
			fmt.Sprintf("Unanswered pages: %s\n", formatPages(ev.Unanswered))
	}
	return ""
}
