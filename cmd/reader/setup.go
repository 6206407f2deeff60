package main

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/ianaindex"

	"reader/content"
	"reader/state"
)

//go:embed reader.css
var defaultStylesheet []byte

// prepareEnv applies flags shared by book processing commands to the
// environment: destination overwrite, forced zip name encoding and the house
// stylesheet.
func prepareEnv(env *state.LocalEnv, cmd *cli.Command, log *zap.Logger) error {
	env.Overwrite = cmd.Bool("overwrite")

	env.DefaultStyle = defaultStylesheet
	if env.Cfg.Rendering.StylesheetPath != "" {
		data, err := os.ReadFile(env.Cfg.Rendering.StylesheetPath)
		if err != nil {
			return fmt.Errorf("unable to read style css from %q: %w", env.Cfg.Rendering.StylesheetPath, err)
		}
		env.DefaultStyle = data
	}

	// Since zip "standard" does not define file name encoding we may need to
	// force archaic code page for old containers
	cp := cmd.String("force-zip-cp")
	if len(cp) > 0 {
		enc, err := ianaindex.IANA.Encoding(cp)
		if err != nil {
			log.Warn("Unknown character set specification. Ignoring...", zap.String("charset", cp), zap.Error(err))
		} else {
			env.CodePage = enc
			n, _ := ianaindex.IANA.Name(enc)
			log.Debug("Forcefully converting all non UTF-8 file names in containers", zap.String("charset", n))
		}
	}
	return nil
}

// openBook reads the container and attaches the house stylesheet ahead of
// whatever the publisher shipped.
func openBook(ctx context.Context, env *state.LocalEnv, path string, log *zap.Logger) (*content.Book, error) {
	var options []content.Option
	if env.CodePage != nil {
		options = append(options, content.WithNameEncoding(env.CodePage))
	}

	book, err := content.OpenContainer(ctx, path, nil, log, options...)
	if err != nil {
		return nil, err
	}

	if len(env.DefaultStyle) > 0 {
		for i := range book.Sections {
			sec := &book.Sections[i]
			if sec.Stylesheet == "" {
				sec.Stylesheet = string(env.DefaultStyle)
			} else {
				sec.Stylesheet = string(env.DefaultStyle) + "\n" + sec.Stylesheet
			}
		}
	}
	return book, nil
}

// createDestination opens the output file honoring the overwrite flag, or
// stdout when name is empty.
func createDestination(env *state.LocalEnv, name string) (*os.File, func(), error) {
	if len(name) == 0 {
		return os.Stdout, func() {}, nil
	}
	if !env.Overwrite {
		if _, err := os.Stat(name); err == nil {
			return nil, nil, fmt.Errorf("destination file '%s' already exists, use --overwrite to replace it", name)
		}
	}
	out, err := os.Create(name)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to create destination file '%s': %w", name, err)
	}
	return out, func() { out.Close() }, nil
}
