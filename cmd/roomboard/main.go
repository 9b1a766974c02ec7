package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/five82/roomboard/internal/app"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := pflag.String("config", "", "override config path (default ~/.config/roomboard/config.toml)")
	prefsPath := pflag.String("prefs", "", "override prefs path (default ~/.config/roomboard/prefs.toml)")
	view := pflag.String("view", "", "initial view: broker or operator (default from prefs)")
	apiBase := pflag.String("api", "", "room server base URL, overrides api_base")
	showVersion := pflag.Bool("version", false, "print version and exit")
	pflag.Parse()

	if *showVersion {
		fmt.Println("roomboard", version)
		return 0
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts := app.Options{
		ConfigPath: *configPath,
		PrefsPath:  *prefsPath,
		View:       *view,
		APIBase:    *apiBase,
	}
	if err := app.Run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "roomboard: %v\n", err)
		return 1
	}
	return 0
}
