package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/lexidrill/lexidrill/internal/drill"
	"github.com/lexidrill/lexidrill/internal/store"
	"github.com/lexidrill/lexidrill/internal/verify"
)

const (
	// shutdownGrace bounds the snapshot write when suspending on a
	// cancelled context.
	shutdownGrace = 5 * time.Second

	timeRounding = time.Second
)

// Run drives one interactive drill session over setID in the given mode. It
// blocks until the queue is drained, the user quits, or ctx is cancelled;
// the latter two suspend the session so it can be resumed later.
func (a *App) Run(ctx context.Context, setID string, mode store.Mode) error {
	sess, err := a.NewSession()
	if err != nil {
		return err
	}
	if err := sess.Start(ctx, setID, mode); err != nil {
		return fmt.Errorf("app: start session: %w", err)
	}

	if sess.State() == drill.StateComplete {
		stats := sess.Stats()
		if stats.TotalItems == 0 && stats.MasteredAtStart > 0 {
			fmt.Fprintf(a.out, "All %d words in %q are already mastered. Nothing to drill!\n",
				stats.MasteredAtStart, setID)
		}
		a.printStats(stats)
		return nil
	}

	// Line input runs on its own goroutine so a Ctrl+C can interrupt a
	// blocked read.
	lines := readLines(a.in)

	fmt.Fprintf(a.out, "Drilling %q in %s mode. Type /quit to suspend.\n\n", setID, mode)

	for sess.State() != drill.StateComplete {
		item, err := sess.Current(ctx)
		if err != nil {
			return fmt.Errorf("app: next item: %w", err)
		}

		fmt.Fprintf(a.out, "> %s", item.Prompt)
		if item.Hint != "" {
			fmt.Fprintf(a.out, "  (hint: %s)", item.Hint)
		}
		fmt.Fprintln(a.out)

		ans, quit, err := a.submit(ctx, sess, lines, mode)
		if err != nil {
			return err
		}
		if quit {
			return a.suspend(ctx, sess)
		}
		if !ans.Scored {
			// No verdict: nothing heard, or a different word. The item
			// stays current and the learner tries again.
			if ans.Heard != "" {
				fmt.Fprintf(a.out, "  heard %q, not what we're after. Try again.\n\n", ans.Heard)
			} else {
				fmt.Fprintf(a.out, "  didn't catch that. Try again.\n\n")
			}
			continue
		}
		a.printFeedback(ans)
	}

	a.printStats(sess.Stats())
	return nil
}

// submit collects one answer for the current item, dispatching by mode.
// Spoken mode falls back to typed input when no audio pipeline is available.
func (a *App) submit(ctx context.Context, sess *drill.Session, lines <-chan string, mode store.Mode) (drill.Answer, bool, error) {
	switch mode {
	case store.ModeChoice:
		choices, err := sess.Choices(a.choiceCount())
		if err != nil {
			return drill.Answer{}, false, err
		}
		for i, c := range choices {
			fmt.Fprintf(a.out, "  %d) %s\n", i+1, c)
		}
		text, quit, err := a.readAnswer(ctx, lines)
		if err != nil || quit {
			return drill.Answer{}, quit, err
		}
		if n, convErr := strconv.Atoi(text); convErr == nil && n >= 1 && n <= len(choices) {
			text = choices[n-1]
		}
		ans, err := sess.SubmitChoice(ctx, text)
		return ans, false, err

	case store.ModeSpoken:
		fmt.Fprintln(a.out, "  (speak now)")
		ans, err := sess.SubmitSpoken(ctx)
		switch {
		case errors.Is(err, verify.ErrNoAudio) || errors.Is(err, verify.ErrNotReady):
			a.log.Warn("spoken verification unavailable, falling back to typed", "err", err)
			fmt.Fprintln(a.out, "  microphone unavailable; type the word instead:")
			return a.submitTyped(ctx, sess, lines)
		case errors.Is(err, context.Canceled):
			return drill.Answer{}, true, nil
		}
		return ans, false, err

	default:
		return a.submitTyped(ctx, sess, lines)
	}
}

func (a *App) submitTyped(ctx context.Context, sess *drill.Session, lines <-chan string) (drill.Answer, bool, error) {
	text, quit, err := a.readAnswer(ctx, lines)
	if err != nil || quit {
		return drill.Answer{}, quit, err
	}
	ans, err := sess.SubmitTyped(ctx, text)
	return ans, false, err
}

// readAnswer waits for the next input line. Returns quit=true on /quit or
// end of input; ctx cancellation also counts as a quit so the session gets
// suspended rather than abandoned.
func (a *App) readAnswer(ctx context.Context, lines <-chan string) (string, bool, error) {
	select {
	case line, ok := <-lines:
		if !ok {
			return "", true, nil
		}
		line = strings.TrimSpace(line)
		if line == "/quit" || line == "/q" {
			return "", true, nil
		}
		return line, false, nil
	case <-ctx.Done():
		return "", true, nil
	}
}

// suspend writes the session snapshot and reports where the learner stopped.
func (a *App) suspend(ctx context.Context, sess *drill.Session) error {
	// The signal context may already be cancelled; the snapshot write gets
	// its own grace period.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
	defer cancel()

	stats, err := sess.Suspend(saveCtx)
	if err != nil {
		return fmt.Errorf("app: suspend: %w", err)
	}
	fmt.Fprintf(a.out, "\nSession suspended with %d words remaining. Run again to resume.\n", stats.Remaining)
	a.printStats(stats)
	return nil
}

func (a *App) printFeedback(ans drill.Answer) {
	switch {
	case ans.Correct:
		fmt.Fprintf(a.out, "  correct! (score %+d)\n", ans.Score)
	case ans.Almost:
		fmt.Fprintf(a.out, "  almost — it's %q. Counted as a miss. (score %+d)\n", ans.Word, ans.Score)
	default:
		fmt.Fprintf(a.out, "  wrong — it's %q. It will come back shortly. (score %+d)\n", ans.Word, ans.Score)
	}
	if ans.MasteredNow {
		fmt.Fprintf(a.out, "  ★ %q is now mastered.\n", ans.Word)
	}
	fmt.Fprintln(a.out)
}

func (a *App) printStats(stats drill.Stats) {
	fmt.Fprintf(a.out, "\n─── session summary ───\n")
	fmt.Fprintf(a.out, "  set          : %s (%s)\n", stats.SetID, stats.Mode)
	fmt.Fprintf(a.out, "  answers      : %d (%d wrong)\n", stats.Tries, stats.Wrongs)
	fmt.Fprintf(a.out, "  newly mastered: %d\n", stats.NewlyMastered)
	if stats.Remaining > 0 {
		fmt.Fprintf(a.out, "  remaining    : %d of %d\n", stats.Remaining, stats.TotalItems)
	}
	if len(stats.WrongItems) > 0 {
		fmt.Fprintf(a.out, "  review       : %s\n", strings.Join(stats.WrongItems, ", "))
	}
	fmt.Fprintf(a.out, "  elapsed      : %s\n", stats.Elapsed.Round(timeRounding))
}

func (a *App) choiceCount() int {
	if a.cfg.Drill.ChoiceCount > 0 {
		return a.cfg.Drill.ChoiceCount
	}
	return 4
}

// readLines pumps input lines into a channel so reads can be selected
// against context cancellation. The channel closes on end of input.
func readLines(r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			ch <- sc.Text()
		}
	}()
	return ch
}
