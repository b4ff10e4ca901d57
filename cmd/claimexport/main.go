package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"claimexport/internal/browser"
	"claimexport/internal/config"
	"claimexport/internal/harvest"
	"claimexport/internal/logging"
	"claimexport/internal/pipeline"
	"claimexport/internal/progress"
	"claimexport/internal/proxy"
	"claimexport/internal/transcode"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel)
	must(err)
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	switch cmd {
	case "export":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		out := fs.String("out", cfg.OutputDir, "output directory")
		wait := fs.Duration("wait", 30*time.Second, "how long to wait for the claims table")
		_ = fs.Parse(os.Args[2:])
		must(cfg.Require("TARGET_URL", cfg.TargetURL))
		runExport(ctx, cfg, logger, *out, *wait)
	case "run":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		input := fs.String("input", "", "saved page html")
		output := fs.String("output", cfg.OutputDir, "output directory")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*input) == "" {
			must(fmt.Errorf("--input is required"))
		}
		batch, err := pipeline.ExtractFromFile(ctx, *input, cfg.Selectors, logger)
		must(err)
		if len(batch.Rows) == 0 {
			must(pipeline.ErrNoRowsChecked)
		}
		wb, err := pipeline.BuildWorkbook(batch)
		must(err)
		defer wb.Close()
		path, err := pipeline.SaveWorkbook(wb, *output, time.Now())
		must(err)
		fmt.Printf("run done rows=%d output=%s\n", wb.Rows, path)
	case "transcode":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		input := fs.String("input", "", "image file")
		out := fs.String("out", "", "output jpeg path")
		_ = fs.Parse(os.Args[2:])
		if *input == "" || *out == "" {
			must(fmt.Errorf("--input and --out are required"))
		}
		blob, err := os.ReadFile(*input)
		must(err)
		res, err := transcode.TranscodeBytes(blob, thumbBox(cfg))
		must(err)
		must(os.MkdirAll(filepath.Dir(*out), 0o755))
		must(os.WriteFile(*out, res.Bytes, 0o644))
		fmt.Printf("transcoded %s (%s) to %dx%d jpeg: %s\n", *input, res.Format, res.Width, res.Height, *out)
	default:
		usage()
		os.Exit(1)
	}
}

func runExport(ctx context.Context, cfg config.Config, logger *zap.Logger, outDir string, wait time.Duration) {
	rep := progress.NewTerminal(os.Stdout)
	fail := func(err error) {
		if err == nil {
			return
		}
		rep.Failure(err)
		must(err)
	}

	sess, err := browser.Open(cfg, logger)
	fail(err)
	defer sess.Close()

	if info, err := sess.TargetInfo(ctx); err == nil {
		logger.Info("using tab", zap.String("title", info.Title), zap.String("url", info.URL))
	}

	if err := sess.WaitForTable(ctx, wait); err != nil {
		logger.Warn("claims table did not appear", zap.Duration("wait", wait), zap.Error(err))
	}

	h := harvest.New(sess, makeExchanger(ctx, cfg, sess, logger), harvest.Options{
		SettleTimeout: cfg.SettleTimeout,
		CloseSettle:   cfg.CloseSettle,
		PollInterval:  cfg.PollInterval,
		MaxImages:     cfg.MaxImages,
		Box:           thumbBox(cfg),
	}, logger)

	// A popup left open from manual browsing would swallow the first row's click.
	if report, err := h.ClosePopup(ctx); err != nil {
		fail(err)
	} else if len(report.Steps) > 0 {
		logger.Info("closed leftover popup", zap.Strings("steps", report.Steps))
	}

	svc := pipeline.NewProcessingService(sess, h, cfg.Selectors.Row, cfg.RowPacing, rep, logger)
	res, err := svc.Run(ctx)
	fail(err)
	if res.Eligible == 0 {
		fail(pipeline.ErrNoRowsChecked)
	}

	wb, err := pipeline.BuildWorkbook(res.Batch)
	fail(err)
	defer wb.Close()
	for _, w := range wb.Warnings {
		logger.Warn("image left out of workbook", zap.Error(w))
	}

	path, err := pipeline.SaveWorkbook(wb, outDir, time.Now())
	fail(err)
	rep.Success(fmt.Sprintf("exported %d rows, %d images (%d failed) to %s", wb.Rows, wb.Pictures, res.Failed+len(wb.Warnings), path))
}

func makeExchanger(ctx context.Context, cfg config.Config, sess *browser.Session, logger *zap.Logger) proxy.Exchanger {
	if relay := strings.TrimSpace(cfg.ProxyURL); relay != "" {
		logger.Info("using image relay", zap.String("url", relay))
		return proxy.NewRelayClient(relay, cfg.ProxyTimeout)
	}
	return proxy.NewFetcher(cfg.ProxyTimeout,
		proxy.WithCookies(sess),
		proxy.WithUserAgent(sess.UserAgent(ctx)),
		proxy.WithMaxBytes(cfg.ProxyMaxBytes),
		proxy.WithRateLimit(cfg.ProxyRateLimitRPS),
		proxy.WithLogger(logger),
	)
}

func thumbBox(cfg config.Config) transcode.Box {
	return transcode.Box{
		MaxWidth:  cfg.ThumbMaxWidth,
		MaxHeight: cfg.ThumbMaxHeight,
		Quality:   cfg.JPEGQuality,
	}
}

func usage() {
	fmt.Println("usage: claimexport <command>")
	fmt.Println("commands:")
	fmt.Println("  export [--out=./out] [--wait=30s]")
	fmt.Println("  run --input=page.html [--output=./out]")
	fmt.Println("  transcode --input=photo.png --out=thumb.jpg")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
