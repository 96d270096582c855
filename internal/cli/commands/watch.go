package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

// NewWatchCommand creates the watch command.
func NewWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Migrate on every project change",
		Long: `Watch the adapters and models directories and run migrate whenever a file
changes. Invalid intermediate states (parse errors, cycles) are reported and
the watcher keeps running. Stop with Ctrl+C.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx := cmd.Context()
			eng := cmdCtx.Engine
			r := cmdCtx.Renderer

			migrate := func() {
				res, err := eng.Migrate(ctx)
				if err != nil {
					r.Error(err.Error())
					return
				}
				if err := renderMigrate(r, res); err != nil {
					cmdCtx.Logger.Warn("failed to render result", slog.String("error", err.Error()))
				}
			}

			migrate()
			r.Muted(fmt.Sprintf("Watching %s for changes...", eng.ProjectDir()))

			return eng.Watcher(cmdCtx.Cfg.WatchDebounce).Watch(ctx, func(paths []string) {
				r.Muted(fmt.Sprintf("%d file(s) changed", len(paths)))
				migrate()
			})
		},
	}
}
