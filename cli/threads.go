package cli

import (
	"fmt"
	"sort"
	"time"

	"github.com/cloaked-ai/cloak/engine/conversation"
	"github.com/cloaked-ai/cloak/engine/core"
	"github.com/cloaked-ai/cloak/engine/infra/cache"
	"github.com/cloaked-ai/cloak/engine/store"
	"github.com/cloaked-ai/cloak/pkg/config"
	"github.com/spf13/cobra"
)

func newThreadsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "threads",
		Short: "Inspect and manage stored threads",
	}
	cmd.AddCommand(newThreadsListCmd())
	cmd.AddCommand(newThreadsClearCmd())
	return cmd
}

// threadStores connects only what the operational commands need: the two
// Redis-backed stores, without a detector or model client.
func threadStores(cmd *cobra.Command) (*store.RedisStore, *conversation.RedisStore, *cache.Redis, error) {
	ctx, cfg, err := setupContext(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	cmd.SetContext(ctx)
	redis, err := buildRedis(cmd, cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	ttl := time.Duration(cfg.TTL.Seconds) * time.Second
	entities := store.NewRedisStore(redis.Client(),
		store.WithTTL(ttl),
		store.WithRefreshOnRead(cfg.TTL.RefreshOnRead),
	)
	conversations := conversation.NewRedisStore(redis.Client(),
		conversation.WithTTL(ttl),
		conversation.WithRefreshOnRead(cfg.TTL.RefreshOnRead),
	)
	return entities, conversations, redis, nil
}

func buildRedis(cmd *cobra.Command, cfg *config.Config) (*cache.Redis, error) {
	cacheCfg := cache.DefaultConfig()
	cacheCfg.URL = cfg.KV.URL
	if cfg.KV.Host != "" {
		cacheCfg.Host = cfg.KV.Host
	}
	if cfg.KV.Port != "" {
		cacheCfg.Port = cfg.KV.Port
	}
	cacheCfg.Password = cfg.KV.Password
	cacheCfg.DB = cfg.KV.DB
	return cache.NewRedis(cmd.Context(), cacheCfg)
}

func newThreadsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List threads with stored mappings or transcripts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			entities, conversations, redis, err := threadStores(cmd)
			if err != nil {
				return err
			}
			defer redis.Close()
			ctx := cmd.Context()

			mapped, err := entities.ListThreads(ctx)
			if err != nil {
				return err
			}
			stored, err := conversations.ListThreads(ctx)
			if err != nil {
				return err
			}
			seen := make(map[string]struct{}, len(mapped)+len(stored))
			for _, id := range append(mapped, stored...) {
				seen[id] = struct{}{}
			}
			ids := make([]string, 0, len(seen))
			for id := range seen {
				ids = append(ids, id)
			}
			sort.Strings(ids)

			out := cmd.OutOrStdout()
			for _, id := range ids {
				thread := core.ThreadFromKey(id)
				snapshot, err := entities.Snapshot(ctx, thread)
				if err != nil {
					return err
				}
				n, err := conversations.Len(ctx, thread)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s\tmappings=%d\tmessages=%d\n", id, len(snapshot), n)
			}

			stats, err := entities.CollectStats(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "total: %d threads, %d mappings\n", stats.Threads, stats.TotalEntries)
			return nil
		},
	}
}

func newThreadsClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear <thread-key>",
		Short: "Drop a thread's mappings and transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entities, conversations, redis, err := threadStores(cmd)
			if err != nil {
				return err
			}
			defer redis.Close()
			ctx := cmd.Context()

			thread := core.ThreadFromKey(args[0])
			if err := entities.Clear(ctx, thread); err != nil {
				return err
			}
			if err := conversations.Clear(ctx, thread); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared thread %s\n", thread.String())
			return nil
		},
	}
}
