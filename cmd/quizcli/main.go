package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/fatih/color"

	"omaope/internal/client"
	"omaope/internal/logger"
)

const usage = `Komennot:
  /kuvat <tiedosto>...  lähetä kuvat tai PDF:t ja saa kysymys
  /vastaus <teksti>     vastaa kysymykseen
  /seuraava             uusi kysymys
  /lopeta               lopeta
Muu teksti lähetetään chattiin.`

// cliConfig is read from the environment first; flags override it.
type cliConfig struct {
	Server   string        `env:"OMAOPE_URL" envDefault:"http://localhost:3000"`
	LogLevel string        `env:"LOG_LEVEL" envDefault:"warn"`
	Timeout  time.Duration `env:"OMAOPE_TIMEOUT" envDefault:"2m"`
	NoColor  bool
}

func loadConfig(args []string) (cliConfig, error) {
	var cfg cliConfig
	if err := env.Parse(&cfg); err != nil {
		return cliConfig{}, fmt.Errorf("parse env: %w", err)
	}
	fs := flag.NewFlagSet("quizcli", flag.ContinueOnError)
	fs.StringVar(&cfg.Server, "server", cfg.Server, "quiz server base URL")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "request timeout")
	fs.BoolVar(&cfg.NoColor, "no-color", false, "disable colours")
	if err := fs.Parse(args); err != nil {
		return cliConfig{}, err
	}
	return cfg, nil
}

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if cfg.NoColor {
		color.NoColor = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.New(cfg.LogLevel)
	jar, err := cookiejar.New(nil)
	if err != nil {
		log.Error("failed to create cookie jar", "err", err)
		os.Exit(1)
	}
	c, err := client.New(cfg.Server, client.NewTerminalRenderer(os.Stdout),
		client.WithHTTPClient(&http.Client{Jar: jar, Timeout: cfg.Timeout}),
		client.WithLogger(log),
	)
	if err != nil {
		log.Error("failed to create client", "err", err)
		os.Exit(1)
	}

	fmt.Println(usage)
	if err := run(ctx, c, os.Stdin, log); err != nil {
		log.Error("input failed", "err", err)
		os.Exit(1)
	}
}

// run reads commands from in until EOF, /lopeta or ctx ends. Request
// failures are already rendered by the client and do not stop the loop.
func run(ctx context.Context, c *client.Client, in io.Reader, log *slog.Logger) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := scanner.Text()
		cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")

		var err error
		switch cmd {
		case "/lopeta", "/quit":
			return nil
		case "/kuvat", "/images":
			err = c.SubmitImages(ctx, strings.Fields(arg))
		case "/vastaus", "/answer":
			err = c.SubmitAnswer(ctx, arg)
		case "/seuraava", "/next":
			err = c.FetchNextQuestion(ctx)
		default:
			err = c.SubmitChatMessage(ctx, line)
		}
		if err != nil {
			log.Debug("command failed", "cmd", cmd, "err", err)
		}
	}
	return scanner.Err()
}
