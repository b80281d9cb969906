package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wayfocus/wayfocus/internal/config"
	"github.com/wayfocus/wayfocus/internal/logger"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "wayfocus",
		Short: "WayFocus - focused-window tracker for wlroots compositors",
		Long: `WayFocus tracks which top-level window currently holds input focus.

On wlroots-based Wayland compositors it speaks the
zwlr_foreign_toplevel_management protocol directly; on X11 sessions it
falls back to the EWMH active-window property.

Features:
  • Event-driven focus tracking over the Wayland wire protocol
  • X11 fallback backend
  • Live focus stream on the terminal or over WebSocket
  • Optional PostgreSQL focus history`,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/wayfocus/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("backend", "", "focus backend (auto, wayland, x11)")
	rootCmd.PersistentFlags().String("socket", "", "wayland display socket override")

	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("backend", rootCmd.PersistentFlags().Lookup("backend"))
	viper.BindPFlag("socket", rootCmd.PersistentFlags().Lookup("socket"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// loadConfig merges the config file with any flag overrides and initializes
// logging.
func loadConfig() (*config.Manager, config.Config, error) {
	mgr, err := config.NewManager(cfgFile)
	if err != nil {
		return nil, config.Config{}, fmt.Errorf("failed to load config: %w", err)
	}

	mgr.Update(func(c *config.Config) {
		if v := viper.GetString("log_level"); v != "" {
			c.LogLevel = v
		}
		if v := viper.GetString("backend"); v != "" {
			c.Backend = v
		}
		if v := viper.GetString("socket"); v != "" {
			c.Socket = v
		}
		if viper.IsSet("server_port") && viper.GetInt("server_port") > 0 {
			c.ServerPort = viper.GetInt("server_port")
		}
		if v := viper.GetString("postgres_dsn"); v != "" {
			c.PostgresDSN = v
		}
	})

	cfg := mgr.Get()
	logger.Init(cfg.LogLevel, cfg.PrettyLogs)
	return mgr, cfg, nil
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
