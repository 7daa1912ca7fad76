package args

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/markis/streammd/internal/config"
	"github.com/markis/streammd/internal/stream"
)

// ErrHelp is returned when help or usage was printed instead of running.
var ErrHelp = errors.New("help requested")

// Arguments represents the command-line arguments structure.
type Arguments struct {
	// Input is the markdown file to render; empty reads stdin.
	Input     string
	Speed     time.Duration
	ChunkSize int
	Format    string
	Framing   stream.Framing
	Page      bool
	Watch     bool
	Preview   bool
	LogLevel  string
}

// ParseArgs parses command-line arguments on top of the loaded configuration.
// Flags that are not given keep the configured values.
func ParseArgs(ctx context.Context, cfg config.Config, argv []string) (Arguments, error) {
	args := Arguments{}
	var framing string
	ran := false

	rootCmd := &cobra.Command{
		Use:   "streammd [flags] [file]",
		Short: "Incrementally render streamed markdown and TeX to HTML or the terminal",
		Long: "streammd reads markdown as it arrives (from a file, stdin or a chat completion event stream)\n" +
			"and renders it a few characters at a time, committing output only at paragraph breaks\n" +
			"that do not fall inside a code fence or $$ math block.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			ran = true
			if len(cmdArgs) > 0 {
				args.Input = cmdArgs[0]
			}
			return nil
		},
		SilenceErrors: true, // We'll handle error reporting
		SilenceUsage:  true, // We'll handle usage display
	}

	flags := rootCmd.Flags()
	flags.DurationVar(&args.Speed, "speed", cfg.Stream.Speed, "Tick interval; 0 renders once per frame")
	flags.IntVar(&args.ChunkSize, "chunk-size", cfg.Stream.ChunkSize, "Characters consumed per tick")
	flags.StringVar(&args.Format, "format", cfg.Render.Format, "Output format: auto, html or terminal")
	flags.StringVar(&framing, "framing", "raw", "Input framing: raw or sse (chat completion events)")
	flags.BoolVar(&args.Page, "page", false, "Wrap HTML output in a standalone page")
	flags.BoolVar(&args.Watch, "watch", false, "Re-render the file whenever it changes")
	flags.BoolVar(&args.Preview, "preview", false, "Write the speculative render of pending text to stderr")
	flags.StringVar(&args.LogLevel, "log-level", cfg.Log.Level, "Log level: debug, info, warn or error")

	rootCmd.SetArgs(argv)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return Arguments{}, err
	}
	if !ran {
		return Arguments{}, ErrHelp
	}

	f, ok := stream.ParseFraming(framing)
	if !ok {
		return Arguments{}, fmt.Errorf("unknown framing %q", framing)
	}
	args.Framing = f

	if err := args.validate(); err != nil {
		return Arguments{}, err
	}
	return args, nil
}

func (a Arguments) validate() error {
	if a.Speed < 0 {
		return errors.New("--speed must not be negative")
	}
	if a.ChunkSize <= 0 {
		return errors.New("--chunk-size must be positive")
	}
	switch a.Format {
	case "auto", "html", "terminal":
	default:
		return fmt.Errorf("unknown format %q", a.Format)
	}
	if a.Watch && a.Input == "" {
		return errors.New("--watch needs a file")
	}
	if a.Watch && a.Framing != stream.FramingRaw {
		return errors.New("--watch only reads raw markdown")
	}
	return nil
}

// ResolveFormat turns "auto" into terminal or html depending on whether out
// is an interactive terminal.
func ResolveFormat(format string, out *os.File) string {
	if format != "auto" {
		return format
	}
	if out == nil {
		return "html"
	}

	// Check for NO_COLOR environment variable
	if _, exists := os.LookupEnv("NO_COLOR"); exists {
		return "html"
	}

	// Check for TERM=dumb
	if term := os.Getenv("TERM"); term == "dumb" {
		return "html"
	}

	if isatty.IsTerminal(out.Fd()) || isatty.IsCygwinTerminal(out.Fd()) {
		return "terminal"
	}
	return "html"
}
