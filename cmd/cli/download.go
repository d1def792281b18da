package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"go.uber.org/zap"

	"github.com/yourusername/axolutly-go/internal/app"
	"github.com/yourusername/axolutly-go/internal/domain"
	"github.com/yourusername/axolutly-go/pkg/logger"
)

var downloadCmd = &cobra.Command{
	Use:   "download [url]",
	Short: "Download a video in this process",
	Long: `Download a YouTube, Twitch or TikTok video without a server. Sign-in and
replace questions are answered on the terminal.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := app.LoadConfig(configPath)
		if err != nil {
			return err
		}

		quality, _ := cmd.Flags().GetString("quality")
		if quality == "" {
			quality = config.Download.DefaultQuality
		}
		q, err := domain.ParseQuality(quality)
		if err != nil {
			return err
		}
		outputDir, _ := cmd.Flags().GetString("output")
		if outputDir == "" {
			outputDir = config.Download.OutputDir
		}
		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}

		req, err := domain.NewDownloadRequest(args[0], q, outputDir)
		if err != nil {
			return err
		}

		log := logger.NewCLI(verbose)
		defer log.Sync()

		rt, err := app.NewRuntime(config, log)
		if err != nil {
			return err
		}
		defer rt.Close()

		id, events, unsubscribe, err := rt.Sessions.StartAndSubscribe(req)
		if err != nil {
			return err
		}
		defer unsubscribe()

		interrupt := make(chan os.Signal, 1)
		signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(interrupt)
		go func() {
			for range interrupt {
				rt.Sessions.Cancel(id)
			}
		}()

		printHeader(os.Stdout, fmt.Sprintf("Downloading %s (%s, %s)", req.URL(), req.Platform(), q))
		p := newPresenter(rt.Sessions, id, os.Stdout, os.Stderr, readLines(os.Stdin), log)
		if !p.Run(events) {
			return errSilent
		}
		return nil
	},
}

// errSilent fails the command after the outcome was already printed
var errSilent = errors.New("")

func init() {
	downloadCmd.Flags().StringP("quality", "q", "", "Quality preset: best, audio, 1080p, 720p, ...")
	downloadCmd.Flags().StringP("output", "o", "", "Output directory")
}

// SessionController answers a running session's questions
type SessionController interface {
	Cancel(id string) error
	ResolveConfirmation(id string, yes bool) error
	NotifyAuthCompleted(id string) error
}

type prompt int

const (
	promptNone prompt = iota
	promptConfirm
	promptAuth
)

// presenter renders a session's events on a terminal and routes typed
// answers back to the session
type presenter struct {
	ctl    SessionController
	id     string
	out    io.Writer
	barOut io.Writer
	lines  <-chan string
	logger *zap.Logger

	pending  prompt
	progress *mpb.Progress
	bar      *mpb.Bar
}

func newPresenter(ctl SessionController, id string, out, barOut io.Writer, lines <-chan string, logger *zap.Logger) *presenter {
	return &presenter{
		ctl:    ctl,
		id:     id,
		out:    out,
		barOut: barOut,
		lines:  lines,
		logger: logger,
	}
}

// Run consumes events until the stream closes and reports whether the
// session ended without an alarming failure
func (p *presenter) Run(events <-chan domain.Event) bool {
	ok := true
	lines := p.lines
	for {
		select {
		case ev, open := <-events:
			if !open {
				p.stopBar(false)
				return ok
			}
			if !p.handle(ev) {
				ok = false
			}
		case line, open := <-lines:
			if !open {
				lines = nil
				continue
			}
			p.answer(line)
		}
	}
}

func (p *presenter) handle(ev domain.Event) bool {
	switch ev.Type {
	case domain.EventState:
		if ev.State == domain.StateFetching {
			p.startBar()
		} else {
			p.stopBar(false)
		}
		p.logger.Debug("Session state", zap.String("state", string(ev.State)))

	case domain.EventProgress:
		if p.bar == nil {
			p.startBar()
		}
		p.bar.SetCurrent(int64(ev.Percent * 10))

	case domain.EventAuthRequested:
		p.stopBar(false)
		p.pending = promptAuth
		printPending(p.out, "Sign in with %s at %s, then press Enter", ev.Browser, ev.SignInURL)

	case domain.EventAuthNotice:
		printWarning(p.out, "%s", ev.Message)

	case domain.EventConfirmationRequested:
		p.stopBar(false)
		p.pending = promptConfirm
		q := ev.Confirmation
		if q != nil && len(q.Duplicates) > 0 {
			printWarning(p.out, "Same content already saved as: %s", strings.Join(q.Duplicates, ", "))
		}
		file := ""
		if q != nil {
			file = q.File
		}
		printPending(p.out, "%s already exists. Replace it? [y/N]", file)

	case domain.EventConfirmationResolved:
		p.pending = promptNone
		if ev.Decision == domain.DecisionTimedOut {
			printNeutral(p.out, "No answer, keeping the existing file")
		}

	case domain.EventFinished:
		p.stopBar(true)
		printSuccess(p.out, "Saved %s", ev.Path)

	case domain.EventCancelled:
		p.stopBar(false)
		printNeutral(p.out, "%s", orDefault(ev.Message, "Download cancelled"))

	case domain.EventFailed:
		p.stopBar(false)
		if ev.Neutral {
			printNeutral(p.out, "%s", ev.Message)
			return true
		}
		printError(p.out, "%s", ev.Message)
		return false
	}
	return true
}

func (p *presenter) answer(line string) {
	var err error
	switch p.pending {
	case promptConfirm:
		yes := isYes(line)
		p.pending = promptNone
		err = p.ctl.ResolveConfirmation(p.id, yes)
		if errors.Is(err, app.ErrNoPendingConfirmation) {
			printNeutral(p.out, "The question already expired")
			return
		}
	case promptAuth:
		p.pending = promptNone
		err = p.ctl.NotifyAuthCompleted(p.id)
	default:
		return
	}
	if err != nil {
		printWarning(p.out, "Could not deliver answer: %v", err)
	}
}

func (p *presenter) startBar() {
	if p.bar != nil {
		return
	}
	p.progress = mpb.New(mpb.WithOutput(p.barOut), mpb.WithWidth(64))
	name := "download"
	// tenths of a percent
	p.bar = p.progress.New(1000,
		mpb.BarStyle().Lbound("╢").Filler("█").Tip("█").Padding("░").Rbound("╟"),
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DindentRight}),
			decor.OnComplete(decor.Percentage(decor.WC{W: 5}), "Complete"),
		),
	)
}

func (p *presenter) stopBar(complete bool) {
	if p.bar == nil {
		return
	}
	if complete {
		p.bar.SetTotal(-1, true)
	} else {
		p.bar.Abort(false)
	}
	p.progress.Wait()
	p.bar = nil
	p.progress = nil
}

// readLines streams stdin lines until EOF
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

func isYes(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes":
		return true
	}
	return false
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
