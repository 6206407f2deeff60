package main

import (
	"context"
	"fmt"
	"time"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	yaml "gopkg.in/yaml.v3"

	"reader/content"
	"reader/content/text"
	"reader/layout"
	"reader/layout/cache"
	"reader/state"
)

// pageMap is the printable form of a chapter layout.
type pageMap struct {
	Chapter string     `yaml:"chapter"`
	Pages   int        `yaml:"pages"`
	Cached  bool       `yaml:"cached"`
	Map     []pageLine `yaml:"map"`
}

type pageLine struct {
	Page       int    `yaml:"page"`
	Location   int    `yaml:"location"`
	Length     int    `yaml:"length"`
	FirstBlock string `yaml:"first_block,omitempty"`
	LastBlock  string `yaml:"last_block,omitempty"`
	Image      string `yaml:"image,omitempty"`
}

func runPaginate(ctx context.Context, cmd *cli.Command) error {

	env := state.EnvFromContext(ctx)
	log := env.Log

	if cmd.Args().Len() == 0 {
		return fmt.Errorf("no book specified")
	}
	if cmd.Args().Len() > 2 {
		log.Warn("Malformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[2:]))
	}
	src, dst := cmd.Args().Get(0), cmd.Args().Get(1)

	if err := prepareEnv(env, cmd, log); err != nil {
		return err
	}

	log.Info("Pagination starting", zap.String("book", src))
	defer func(start time.Time) {
		log.Info("Pagination completed", zap.Duration("elapsed", time.Since(start)))
	}(time.Now())

	book, err := openBook(ctx, env, src, log)
	if err != nil {
		return fmt.Errorf("unable to open book: %w", err)
	}

	sections := book.Sections
	if chapter := cmd.String("chapter"); len(chapter) > 0 {
		idx := book.SpineIndexOf(chapter)
		if idx < 0 {
			return fmt.Errorf("chapter '%s' not found in book", chapter)
		}
		sections = book.Sections[idx : idx+1]
	}

	svc, err := cache.New(env.Cfg.Cache.Directory, log)
	if err != nil {
		return fmt.Errorf("unable to open layout cache: %w", err)
	}
	defer svc.Close()

	engine := layout.NewEngine(layout.NewTextMeasurer(), text.NewSplitter(language.English, log), log)
	config := layoutConfig(env)

	maps := make([]pageMap, 0, len(sections))
	for _, sec := range sections {
		l, cached := svc.GetLayout(book.ID, sec.SpineItemID, config)
		if !cached {
			stream := layout.StreamFromSections([]content.HTMLSection{sec})
			l, err = engine.Paginate(ctx, book.ID, sec.SpineItemID, stream, config)
			if err != nil {
				return fmt.Errorf("unable to paginate chapter %s: %w", sec.SpineItemID, err)
			}
			if err := svc.SaveLayout(l); err != nil {
				log.Warn("Unable to cache chapter layout", zap.String("chapter", sec.SpineItemID), zap.Error(err))
			}
		}
		maps = append(maps, printableMap(l, cached))
	}

	data, err := yaml.Marshal(maps)
	if err != nil {
		return fmt.Errorf("unable to marshal page maps: %w", err)
	}
	if env.Rpt != nil {
		env.Rpt.StoreData("layout/pagemaps.yaml", data)
	}

	out, done, err := createDestination(env, dst)
	if err != nil {
		return err
	}
	defer done()

	if _, err := out.Write(data); err != nil {
		return fmt.Errorf("unable to write page maps: %w", err)
	}
	return nil
}

func layoutConfig(env *state.LocalEnv) layout.LayoutConfig {
	p := env.Cfg.Pagination
	return layout.LayoutConfig{
		FontScale:         p.FontScale,
		PageWidth:         p.Viewport.Width,
		PageHeight:        p.Viewport.Height,
		HorizontalPadding: p.HorizontalPadding,
		VerticalPadding:   p.VerticalPadding,
	}
}

func printableMap(l layout.ChapterLayout, cached bool) pageMap {
	m := pageMap{
		Chapter: l.SpineItemID,
		Pages:   l.TotalPages(),
		Cached:  cached,
		Map:     make([]pageLine, 0, len(l.PageOffsets)),
	}
	for _, p := range l.PageOffsets {
		m.Map = append(m.Map, pageLine{
			Page:       p.PageIndex,
			Location:   p.Range.Location,
			Length:     p.Range.Length,
			FirstBlock: p.FirstBlockID,
			LastBlock:  p.LastBlockID,
			Image:      p.Image,
		})
	}
	return m
}
