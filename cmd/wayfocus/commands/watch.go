package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/wayfocus/wayfocus/internal/window"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream focus changes to the terminal",
	Long: `Connect to the display server and print a line for every focus
transition until interrupted.`,
	Example: `  # Watch with the automatically selected backend
  wayfocus watch

  # Force the Wayland backend on a specific display socket
  wayfocus watch --backend wayland --socket wayland-1`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}

	mgr, err := window.NewManager(cfg.Backend, cfg.Socket)
	if err != nil {
		return fmt.Errorf("failed to initialize focus backend: %w", err)
	}
	defer mgr.Stop()

	events := mgr.Subscribe()
	defer mgr.Unsubscribe(events)

	if err := mgr.Start(); err != nil {
		return fmt.Errorf("failed to start focus watch: %w", err)
	}

	appColor := color.New(color.FgCyan, color.Bold)
	titleColor := color.New(color.FgWhite)
	timeColor := color.New(color.FgHiBlack)

	fmt.Printf("Watching focus changes via %s backend (Ctrl-C to stop)\n", mgr.BackendName())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-sigChan:
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			app := ev.AppID
			if app == "" {
				app = "(no app id)"
			}
			fmt.Printf("%s  %s  %s\n",
				timeColor.Sprint(ev.Time.Format("15:04:05")),
				appColor.Sprint(app),
				titleColor.Sprint(ev.Title),
			)
		}
	}
}
