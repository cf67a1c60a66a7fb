package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/nbd-wtf/go-nostr/nip19"
	"github.com/urfave/cli/v3"

	"github.com/sandwichfarm/pictofeed/internal/config"
	"github.com/sandwichfarm/pictofeed/internal/engagement"
	"github.com/sandwichfarm/pictofeed/internal/feed"
	"github.com/sandwichfarm/pictofeed/internal/ops"
	"github.com/sandwichfarm/pictofeed/internal/profile"
	"github.com/sandwichfarm/pictofeed/internal/relay"
	"github.com/sandwichfarm/pictofeed/internal/signer"
	"github.com/sandwichfarm/pictofeed/internal/thread"
)

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}

	logger := ops.NewLogger(&cfg.Logging)
	ops.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := relay.Connect(ctx, &cfg.Relay, logger.WithComponent("relay"))
	if err != nil {
		return err
	}
	defer client.Close()

	var sig signer.Signer
	if cfg.Identity.Nsec != "" {
		local, err := signer.FromNsec(cfg.Identity.Nsec)
		if err != nil {
			return fmt.Errorf("invalid signing key: %w", err)
		}
		sig = local
	}

	store := feed.NewStore()
	index := engagement.NewIndex(client, logger.WithComponent("engagement"), cfg.Engagement.DefaultZapSats)
	defer index.Close()
	profiles := profile.NewResolver(client, logger.WithComponent("profile"))
	threads := thread.NewLoader(client, client, profiles, sig, index, logger.WithComponent("thread"))

	onMerge := func(noteIDs []string) {
		index.Refresh(ctx, noteIDs)
	}

	defaultAuthor, err := decodeNpub(cfg.Identity.DefaultNpub)
	if err != nil {
		return err
	}

	var pager *feed.Pager
	if viewer := cmd.String("viewer"); viewer != "" {
		pubkey, err := decodeNpub(viewer)
		if err != nil {
			return err
		}
		pager = feed.ViewerFeed(store, client, logger.WithComponent("feed"), pubkey, defaultAuthor,
			cfg.Feed.PageSize, cfg.Feed.NearEndDebounceMs, onMerge)
	} else {
		pager = feed.DefaultFeed(store, client, logger.WithComponent("feed"), defaultAuthor,
			cfg.Feed.PageSize, cfg.Feed.NearEndDebounceMs, onMerge)
	}

	pages := int(cmd.Int("pages"))
	for i := 0; i < pages; i++ {
		added, err := pager.FetchPage(ctx)
		if err != nil {
			return err
		}
		if added == 0 {
			break
		}
	}

	// Give the aggregate subscriptions a moment to replay stored engagement
	// before printing.
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(2 * time.Second):
	}

	for _, ev := range store.Notes() {
		p, err := profiles.Resolve(ctx, ev.PubKey)
		if err != nil {
			logger.Warn("profile lookup failed", "pubkey", ev.PubKey, "error", err)
			p = &profile.Profile{DisplayName: ev.PubKey}
		}
		c := index.Counters(ev.ID)
		fmt.Printf("%s  %s\n", ev.CreatedAt.Time().Format(time.RFC3339), p.DisplayName)
		if ev.Content != "" {
			fmt.Printf("  %s\n", ev.Content)
		}
		fmt.Printf("  ❤ %d  ↻ %d  💬 %d  ⚡ %d sats\n\n",
			c.Reactions, c.Reposts, c.Comments, c.ZapTotal)
	}

	if noteID := cmd.String("thread"); noteID != "" {
		comments, err := threads.OpenThread(ctx, noteID)
		if err != nil {
			return err
		}
		for comment := range comments {
			fmt.Printf("%s: %s\n", comment.Profile.DisplayName, comment.Event.Content)
		}
	}

	return nil
}

func decodeNpub(npub string) (string, error) {
	prefix, data, err := nip19.Decode(npub)
	if err != nil {
		return "", fmt.Errorf("failed to decode npub: %w", err)
	}
	if prefix != "npub" {
		return "", fmt.Errorf("expected npub, got %s", prefix)
	}
	return data.(string), nil
}

func main() {
	cmd := &cli.Command{
		Name:   "pictofeed",
		Usage:  "Picture-note feed reader with live engagement counters",
		Action: run,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Sources: cli.EnvVars("PICTOFEED_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "viewer",
				Usage: "npub whose feed to browse instead of the default account",
			},
			&cli.IntFlag{
				Name:  "pages",
				Usage: "Number of feed pages to fetch",
				Value: 1,
			},
			&cli.StringFlag{
				Name:  "thread",
				Usage: "Note ID whose comment thread to print",
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
