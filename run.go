package main

import (
	"context"
	"fmt"
	"html"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/markis/streammd/internal/args"
	"github.com/markis/streammd/internal/config"
	"github.com/markis/streammd/internal/render"
	"github.com/markis/streammd/internal/stream"
	"github.com/markis/streammd/internal/watch"
)

// app wires the command's inputs and outputs so it can run outside a terminal.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	// outFile is stdout when it is a real file, used to detect a terminal.
	outFile *os.File
	// cfg skips config discovery when set.
	cfg *config.Config
}

func (a *app) run(ctx context.Context, argv []string) error {
	cfg := a.cfg
	if cfg == nil {
		loaded, err := config.LoadConfig(ctx)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	opts, err := args.ParseArgs(ctx, *cfg, argv)
	if err != nil {
		return err
	}

	logger, err := newLogger(opts.LogLevel, a.stderr)
	if err != nil {
		return err
	}

	format := args.ResolveFormat(opts.Format, a.outFile)
	renderer, err := newRenderer(format, cfg.Render)
	if err != nil {
		return err
	}
	page := opts.Page && format == "html"

	if page {
		if err := writePageStart(a.stdout, renderer, opts.Input); err != nil {
			return err
		}
	}

	var writeErr error
	listener := stream.ListenerFunc(func(d stream.Delivery) {
		if d.Committed != "" && writeErr == nil {
			_, writeErr = io.WriteString(a.stdout, d.Committed)
		}
		if opts.Preview && d.Speculative != "" {
			fmt.Fprintf(a.stderr, "--- preview ---\n%s", d.Speculative)
		}
	})

	s := stream.New(renderer, listener, stream.Options{
		Speed:     opts.Speed,
		ChunkSize: opts.ChunkSize,
		Logger:    logger,
	})

	if opts.Watch {
		err := watch.New(logger).Run(ctx, opts.Input, s)
		s.Reset()
		return err
	}

	if err := a.feed(ctx, opts, s); err != nil {
		s.Reset()
		return err
	}

	s.Finish()
	select {
	case <-s.Done():
	case <-ctx.Done():
		s.Reset()
		return fmt.Errorf("interrupted: %w", ctx.Err())
	}
	if writeErr != nil {
		return fmt.Errorf("failed to write output: %w", writeErr)
	}

	if page {
		return writePageEnd(a.stdout)
	}
	return nil
}

// feed pushes the input into the stream as it is read.
func (a *app) feed(ctx context.Context, opts args.Arguments, s *stream.Streamer) error {
	var body io.ReadCloser
	if opts.Input == "" {
		body = io.NopCloser(a.stdin)
	} else {
		f, err := os.Open(opts.Input)
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		body = f
	}

	parser := stream.NewParser(ctx, opts.Framing)
	go parser.Process(body)

	var firstErr error
	for chunk := range parser.Chunks() {
		if chunk.Error != nil {
			if firstErr == nil {
				firstErr = chunk.Error
			}
			continue
		}
		s.Add(chunk.Content, false)
	}
	if firstErr != nil {
		return fmt.Errorf("stream error: %w", firstErr)
	}
	return nil
}

func newLogger(level string, w io.Writer) (*slog.Logger, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l})), nil
}

// pageRenderer is an HTML renderer that can supply its code stylesheet.
type pageRenderer interface {
	CSS(w io.Writer) error
}

func newRenderer(format string, cfg config.RenderConfig) (render.Renderer, error) {
	if format == "terminal" {
		return render.NewTerminal(render.TerminalOptions{Theme: cfg.Theme, Wrap: cfg.Wrap})
	}
	return render.NewHTML(render.Options{
		CodeStyle: cfg.CodeStyle,
		Macros:    cfg.Macros,
		Emoji:     cfg.Emoji,
		Sanitize:  cfg.Sanitize,
	}), nil
}

const katexVersion = "0.16.11"

func writePageStart(w io.Writer, r render.Renderer, input string) error {
	title := "streammd"
	if input != "" {
		title = filepath.Base(input)
	}

	if _, err := fmt.Fprintf(w, "<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n"+
		"<meta charset=\"UTF-8\">\n"+
		"<meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n"+
		"<title>%s</title>\n"+
		"<meta name=\"generator\" content=\"streammd\">\n"+
		"<link rel=\"stylesheet\" href=\"https://cdn.jsdelivr.net/npm/katex@%[2]s/dist/katex.min.css\">\n"+
		"<script defer src=\"https://cdn.jsdelivr.net/npm/katex@%[2]s/dist/katex.min.js\"></script>\n"+
		"<script defer src=\"https://cdn.jsdelivr.net/npm/katex@%[2]s/dist/contrib/auto-render.min.js\" "+
		"onload=\"renderMathInElement(document.body)\"></script>\n",
		html.EscapeString(title), katexVersion); err != nil {
		return fmt.Errorf("failed to write page: %w", err)
	}

	if pr, ok := r.(pageRenderer); ok {
		if _, err := io.WriteString(w, "<style>\n"); err != nil {
			return fmt.Errorf("failed to write page: %w", err)
		}
		if err := pr.CSS(w); err != nil {
			return err
		}
		if _, err := io.WriteString(w, "</style>\n"); err != nil {
			return fmt.Errorf("failed to write page: %w", err)
		}
	}

	if _, err := io.WriteString(w, "</head>\n<body>\n<main>\n"); err != nil {
		return fmt.Errorf("failed to write page: %w", err)
	}
	return nil
}

func writePageEnd(w io.Writer) error {
	if _, err := io.WriteString(w, "</main>\n</body>\n</html>\n"); err != nil {
		return fmt.Errorf("failed to write page: %w", err)
	}
	return nil
}
