package main

import (
	"time"

	"property_lifecycle_engine/internal/app"
	"property_lifecycle_engine/internal/infra/scheduler"
	"property_lifecycle_engine/internal/infra/telegram"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the promotion and dispatch schedules and the admin bot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := newRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		channel, bot, err := rt.channel()
		if err != nil {
			return err
		}

		lifecycleScheduler := scheduler.NewLifecycleScheduler(rt.promoter, rt.dispatcher(channel), rt.clock, scheduler.Config{
			PromoteSpec:       cfg.CronSpecPromote,
			DispatchSpec:      cfg.CronSpecDispatch,
			DispatchBatchSize: cfg.DispatchBatchSize,
			MilestoneLookback: time.Duration(cfg.MilestoneLookbackDays) * 24 * time.Hour,
			Location:          rt.loc,
		}, rt.log)
		if err := lifecycleScheduler.Start(); err != nil {
			return err
		}
		defer lifecycleScheduler.Stop()

		if bot != nil {
			adminService := app.NewAdminService(rt.tasks, rt.replacements, rt.clock, cfg.AdminTelegramID)
			telegram.RegisterAdminHandlers(ctx, bot, adminService, cfg.AdminTelegramID, rt.loc, rt.log.WithField("component", "admin_bot"))
			telegram.RegisterBotCommands(bot, cfg.AdminTelegramID, rt.log)
			rt.log.Info("Admin command handlers registered.")
			// Start bot in a goroutine so it doesn't block graceful shutdown handling
			go bot.Start()
			defer bot.Stop()
		}

		rt.log.Info("Application setup complete. Waiting for shutdown signal...")
		<-ctx.Done()
		rt.log.Info("Shutting down application...")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
