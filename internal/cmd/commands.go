package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/estoca-ai/estoca-worker/internal/cachestore"
	"github.com/estoca-ai/estoca-worker/internal/datastore"
	"github.com/estoca-ai/estoca-worker/internal/datastore/repository"
	"github.com/estoca-ai/estoca-worker/internal/logger"
	"github.com/estoca-ai/estoca-worker/internal/strategy"
	"github.com/estoca-ai/estoca-worker/internal/syncqueue"
)

func newVersionCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			version := a.build.Version
			if version == "" {
				version = "dev"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "estoca-worker %s", version)
			if a.build.BuildDate != "" {
				fmt.Fprintf(cmd.OutOrStdout(), " (built %s)", a.build.BuildDate)
			}
			fmt.Fprintln(cmd.OutOrStdout())
		},
	}
}

func newSyncCommand(a *app) *cobra.Command {
	var tag string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Replay queued sync tasks once against the upstream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := a.settings
			if tag == "" {
				tag = s.Sync.Tag
			}
			db, err := datastore.Open(s.Database, false, a.log)
			if err != nil {
				return err
			}
			defer func() { _ = datastore.Close(db) }()

			base, err := parseOrigin(s.Upstream.Origin)
			if err != nil {
				return err
			}
			endpoint, err := cachestore.NewKey(http.MethodPost, s.Sync.Endpoint, base)
			if err != nil {
				return err
			}
			queue := syncqueue.New(syncqueue.Config{
				Tag:           s.Sync.Tag,
				Endpoint:      endpoint,
				RatePerSecond: s.Sync.RatePerSecond,
			}, repository.NewSyncTaskRepository(db), strategy.NewHTTPFetcher(a.httpClient, s.Upstream.Timeout.Std()), nil, a.log)

			res := queue.Replay(cmd.Context(), tag)
			out, _ := json.Marshal(res)
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return res.Err
		},
	}
	cmd.Flags().StringVar(&tag, "tag", "", "sync tag to replay (default: sync.tag)")
	return cmd
}

func newPartitionsCommand(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "partitions",
		Short: "List the cache partitions in the persistent store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := datastore.Open(a.settings.Database, false, a.log)
			if err != nil {
				return err
			}
			defer func() { _ = datastore.Close(db) }()

			store := cachestore.New(a.settings, db, a.log)
			defer func() {
				if err := store.Close(); err != nil {
					a.log.Warn("failed to close cache store", logger.Error(err))
				}
			}()

			parts, err := store.Keys(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(parts)
			}

			current := a.settings.Worker.VersionToken()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tGENERATION\tCREATED\tCURRENT")
			for _, p := range parts {
				mark := ""
				if p.Generation == current {
					mark = "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Name, p.Generation, p.CreatedAt.Format(time.RFC3339), mark)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func newConfigCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := a.settings.Dump()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}
