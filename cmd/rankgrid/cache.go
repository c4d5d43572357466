package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rendis/rankgrid/internal/engine/cache"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the redis oracle cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete every cached ranking",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getAppContext(cmd)
			if err != nil {
				return err
			}
			if app.Config.RedisAddr == "" {
				return errors.New("redis_addr is not configured")
			}

			client, err := cache.Dial(cmd.Context(), app.Config.RedisAddr)
			if err != nil {
				return err
			}
			rc := cache.NewRedis(client, cache.WithLogger(app.Logger))
			defer rc.Close()

			n, err := rc.Purge(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Purged %d cached rankings\n", n)
			return nil
		},
	})
	return cmd
}
