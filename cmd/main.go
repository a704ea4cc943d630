package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/pterm/pterm"
	"github.com/pterm/pterm/putils"

	"github.com/luca-patrignani/tair-protocol/config"
)

func main() {
	mode := "simulate"
	if len(os.Args) > 2 {
		fmt.Fprintf(os.Stderr, "usage: %s [simulate|oracle]\n", os.Args[0])
		os.Exit(1)
	}
	if len(os.Args) == 2 {
		mode = os.Args[1]
	}

	// A missing .env is fine, the environment is used as is.
	_ = godotenv.Load()
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}

	if cfg.Debug {
		pterm.DefaultLogger.Level = pterm.LogLevelDebug
	}
	handler := pterm.NewSlogHandler(&pterm.DefaultLogger)
	logger := slog.New(handler)
	logger.Debug("configuration", "config", cfg.DebugString())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch mode {
	case "simulate":
		banner()
		err = runSimulation(ctx, cfg, logger)
	case "oracle":
		err = runOracle(ctx, cfg, logger)
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q\n", mode)
		os.Exit(1)
	}
	if err != nil {
		logger.Error("stopped", "error", err)
		os.Exit(1)
	}
}

func banner() {
	pterm.DefaultBigText.WithLetters(
		putils.LettersFromStringWithStyle("T", pterm.FgRed.ToStyle()),
		putils.LettersFromStringWithStyle("air", pterm.FgDarkGray.ToStyle()),
	).Render()
}
