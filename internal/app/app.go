package app

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/five82/roomboard/internal/config"
	"github.com/five82/roomboard/internal/logging"
	"github.com/five82/roomboard/internal/prefs"
	"github.com/five82/roomboard/internal/ui"
)

// Options configure the roomboard application.
type Options struct {
	ConfigPath string
	PrefsPath  string // empty uses default ~/.config/roomboard/prefs.toml
	View       string // broker or operator; empty uses the saved preference
	APIBase    string // overrides api_base and the derived stream url
}

// Run boots the roomboard TUI until the context is cancelled or the user
// quits.
func Run(ctx context.Context, opts Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if base := strings.TrimSpace(opts.APIBase); base != "" {
		cfg.APIBase = base
		cfg.StreamURL = ""
	}

	prefsPath := opts.PrefsPath
	if strings.TrimSpace(prefsPath) == "" {
		prefsPath = prefs.DefaultPath()
	}
	userPrefs, _ := prefs.Load(prefsPath)

	view, err := ui.ParseView(firstNonEmpty(opts.View, userPrefs.View))
	if err != nil {
		return err
	}

	log, err := logging.New("roomboard", cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer func() { _ = log.Sync() }()

	core, err := StartCore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer core.Close()

	uiOpts := ui.Options{
		Context:    ctx,
		Registry:   core.Registry,
		Controller: core,
		View:       view,
		ThemeName:  userPrefs.Theme,
		PrefsPath:  prefsPath,
		LogPath:    cfg.LogFile,
		APIBase:    cfg.APIBase,
	}
	if err := ui.Run(uiOpts); err != nil {
		log.Error("ui exited", zap.Error(err))
		return fmt.Errorf("run ui: %w", err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
