package main

import (
	"context"
	"fmt"
	"os"
	"time"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"
	yaml "gopkg.in/yaml.v3"

	"reader/counter"
	"reader/layout/cache"
	"reader/state"
	"reader/webview"
)

type countReport struct {
	Book     string      `yaml:"book"`
	Total    int         `yaml:"total"`
	Chapters []countLine `yaml:"chapters"`
}

type countLine struct {
	Chapter string `yaml:"chapter"`
	Pages   int    `yaml:"pages"`
}

func runCount(ctx context.Context, cmd *cli.Command) error {

	env := state.EnvFromContext(ctx)
	log := env.Log

	if cmd.Args().Len() == 0 {
		return fmt.Errorf("no book specified")
	}
	if cmd.Args().Len() > 1 {
		log.Warn("Malformed command line, too many books", zap.Strings("ignoring", cmd.Args().Slice()[1:]))
	}
	src := cmd.Args().Get(0)

	if err := prepareEnv(env, cmd, log); err != nil {
		return err
	}

	log.Info("Counting starting", zap.String("book", src))
	defer func(start time.Time) {
		log.Info("Counting completed", zap.Duration("elapsed", time.Since(start)))
	}(time.Now())

	book, err := openBook(ctx, env, src, log)
	if err != nil {
		return fmt.Errorf("unable to open book: %w", err)
	}

	opts := renderOptions(env)
	bridge := webview.NewBridge(webview.NewDOMSurface(opts), opts, log)

	spine := make(map[string]string, len(book.Sections))
	for _, sec := range book.Sections {
		spine[sec.SpineItemID] = sec.SpineItemID
	}
	bridge.SetSpine(spine)

	svc, err := cache.New(env.Cfg.Cache.Directory, log)
	if err != nil {
		return fmt.Errorf("unable to open layout cache: %w", err)
	}
	defer svc.Close()

	cnt := counter.New(bridge, svc, log)
	if err := cnt.Start(ctx, book); err != nil {
		return fmt.Errorf("unable to start counting: %w", err)
	}
	if err := cnt.Wait(ctx); err != nil {
		cnt.Cancel()
		return fmt.Errorf("counting interrupted: %w", err)
	}

	counts, ok := cnt.Result()
	if !ok {
		return fmt.Errorf("counting did not complete for book %s", book.ID)
	}

	report := countReport{Book: book.ID, Total: counts.TotalPages()}
	for i, n := range counts.SpinePageCounts {
		report.Chapters = append(report.Chapters, countLine{Chapter: book.Sections[i].SpineItemID, Pages: n})
	}

	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("unable to marshal page counts: %w", err)
	}
	if env.Rpt != nil {
		env.Rpt.StoreData("layout/counts.yaml", data)
	}

	if _, err := os.Stdout.Write(data); err != nil {
		return fmt.Errorf("unable to write page counts: %w", err)
	}
	return nil
}

func renderOptions(env *state.LocalEnv) webview.Options {
	p, r := env.Cfg.Pagination, env.Cfg.Rendering
	return webview.Options{
		ViewportWidth:   int(p.Viewport.Width),
		ViewportHeight:  int(p.Viewport.Height),
		FontScale:       p.FontScale,
		MarginSize:      p.MarginSize,
		ColumnGap:       r.ColumnGap,
		SettleDelay:     time.Duration(r.SettleDelayMs) * time.Millisecond,
		UsePublisherCSS: r.UsePublisherCSS,
	}
}
