package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print usage statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, store, err := bootstrap()
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer store.Close()

			svc := offlineAdmin(cfg, store, logger)
			st, err := svc.Stats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "users=%d history=%d reminders=%d notes=%d\n",
				st.Users, st.HistoryEntries, st.Reminders, st.Notes)
			return nil
		},
	}
}

func banCmd(ban bool) *cobra.Command {
	use, short := "unban USER_ID", "Unblock a user"
	if ban {
		use, short = "ban USER_ID", "Block a user"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Long:  short + ". A running bot picks the change up within schedule.ban_sync_interval.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user id %q", args[0])
			}
			cfg, logger, store, err := bootstrap()
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer store.Close()

			svc := offlineAdmin(cfg, store, logger)
			if ban {
				err = svc.Ban(cmd.Context(), id)
			} else {
				err = svc.Unban(cmd.Context(), id)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %s %d\n", cmd.Name(), id)
			return nil
		},
	}
}

func wipeCmd() *cobra.Command {
	var confirm string
	cmd := &cobra.Command{
		Use:   "wipe",
		Short: "Back up and delete all stored data",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, store, err := bootstrap()
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer store.Close()

			svc := offlineAdmin(cfg, store, logger)
			path, err := svc.Wipe(cmd.Context(), confirm)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wiped; backup at %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&confirm, "confirm", "", "Must be CONFIRM")
	_ = cmd.MarkFlagRequired("confirm")
	return cmd
}
