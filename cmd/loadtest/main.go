// Команда loadtest гоняет сценарии покупателя против HTTP API витрины
// и печатает сводку задержек и ошибок.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	exitOK      = 0
	exitFailed  = 1
	exitBadArgs = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseOptions(args, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "invalid config: %v\n", err)
		return exitBadArgs
	}

	rec := &recorder{}
	s := newSession(opts, uuid.NewString()[:8], rec)

	startedAt := time.Now()
	drive(ctx, opts, s)
	result := rec.summarize(startedAt, time.Since(startedAt))

	printSummary(stdout, result, opts)
	if opts.ReportPath != "" {
		if err := saveSummary(opts.ReportPath, result); err != nil {
			_, _ = fmt.Fprintf(stderr, "failed to write report: %v\n", err)
			return exitFailed
		}
	}
	if result.FailedScenarios > 0 {
		return exitFailed
	}
	return exitOK
}

// drive запускает сценарии не более чем в opts.Workers горутинах.
// Срок -duration останавливает только выдачу новых сценариев:
// начатые доигрываются с исходным ctx.
func drive(ctx context.Context, opts options, s *session) {
	dispatch := ctx
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		dispatch, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	var g errgroup.Group
	g.SetLimit(opts.Workers)
	for n := 0; !opts.bounded() || n < opts.Total; n++ {
		if dispatch.Err() != nil {
			break
		}
		g.Go(func() error {
			// Ошибка уже учтена в recorder; остальные сценарии продолжаются.
			_ = s.play(ctx, n)
			return nil
		})
	}
	_ = g.Wait()
}
