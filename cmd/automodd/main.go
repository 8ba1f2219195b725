package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/swaffX/neuroviabot-website-sub003/automod/config"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "automodd",
		Usage:   "guild automod daemon (spam, link, and word filters with escalating punishments)",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn, info, debug)",
			Value:   "info",
			EnvVars: []string{"AUTOMOD_LOG_LEVEL", "LOG_LEVEL"},
		},
	}

	app.Commands = []*cli.Command{
		runCmd,
		checkConfigCmd,
	}

	return app.Run(args)
}

func configLogger(cctx *cli.Context, writer io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cctx.String("log-level")) {
	case "error":
		level = slog.LevelError
	case "warn":
		level = slog.LevelWarn
	case "debug":
		level = slog.LevelDebug
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(writer, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the service",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "discord-token",
			Usage:   "bot token for the Discord gateway and REST API",
			EnvVars: []string{"DISCORD_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "guild-config-file",
			Usage:   "JSON file mapping guild IDs to automod settings",
			EnvVars: []string{"AUTOMOD_GUILD_CONFIG_FILE"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis connection URL, for guild config and violation state",
			EnvVars: []string{"AUTOMOD_REDIS_URL", "REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "SQL database for violation state (sqlite:// or postgres://); takes priority over redis",
			EnvVars: []string{"AUTOMOD_DATABASE_URL", "DATABASE_URL"},
		},
		&cli.IntFlag{
			Name:    "max-db-connections",
			EnvVars: []string{"AUTOMOD_MAX_DB_CONNECTIONS"},
			Value:   20,
		},
		&cli.BoolFlag{
			Name:    "dry-run",
			Usage:   "log punishments instead of applying them",
			EnvVars: []string{"AUTOMOD_DRY_RUN"},
		},
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for admin HTTP APIs",
			Value:   ":3999",
			EnvVars: []string{"AUTOMOD_BIND"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":3998",
			EnvVars: []string{"AUTOMOD_METRICS_LISTEN"},
		},
		&cli.StringFlag{
			Name:    "admin-password",
			Usage:   "bearer token required for admin HTTP APIs; empty disables them",
			EnvVars: []string{"AUTOMOD_ADMIN_PASSWORD"},
		},
		&cli.StringFlag{
			Name:    "slack-webhook-url",
			Usage:   "full URL of slack webhook, for operator notifications",
			EnvVars: []string{"SLACK_WEBHOOK_URL"},
		},
		&cli.IntFlag{
			Name:    "workers",
			Usage:   "max messages evaluated concurrently",
			Value:   64,
			EnvVars: []string{"AUTOMOD_WORKERS"},
		},
		&cli.Float64Flag{
			Name:    "dispatch-rate-limit",
			Usage:   "max enforcement API requests per second to Discord",
			Value:   5,
			EnvVars: []string{"AUTOMOD_DISPATCH_RATE_LIMIT"},
		},
		&cli.IntFlag{
			Name:    "quota-kick-day",
			Usage:   "max automated kicks per day, across all guilds",
			Value:   500,
			EnvVars: []string{"AUTOMOD_QUOTA_KICK_DAY"},
		},
		&cli.IntFlag{
			Name:    "quota-ban-day",
			Usage:   "max automated bans per day, across all guilds",
			Value:   200,
			EnvVars: []string{"AUTOMOD_QUOTA_BAN_DAY"},
		},
		&cli.DurationFlag{
			Name:    "ledger-idle-ttl",
			Usage:   "how long an inactive user's violation record stays in memory",
			Value:   24 * time.Hour,
			EnvVars: []string{"AUTOMOD_LEDGER_IDLE_TTL"},
		},
		&cli.DurationFlag{
			Name:    "config-cache-ttl",
			Usage:   "how long guild config snapshots are cached in-process",
			Value:   time.Minute,
			EnvVars: []string{"AUTOMOD_CONFIG_CACHE_TTL"},
		},
		&cli.DurationFlag{
			Name:    "dispatch-timeout",
			Usage:   "max time to wait on one enforcement call",
			Value:   5 * time.Second,
			EnvVars: []string{"AUTOMOD_DISPATCH_TIMEOUT"},
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		logger := configLogger(cctx, os.Stdout)

		shutdownTracing := configOTEL("automodd")
		defer shutdownTracing()

		srv, err := NewServer(Config{
			Logger:           logger,
			DiscordToken:     cctx.String("discord-token"),
			GuildConfigFile:  cctx.String("guild-config-file"),
			RedisURL:         cctx.String("redis-url"),
			DatabaseURL:      cctx.String("database-url"),
			MaxDBConnections: cctx.Int("max-db-connections"),
			DryRun:           cctx.Bool("dry-run"),
			Bind:             cctx.String("bind"),
			MetricsListen:    cctx.String("metrics-listen"),
			AdminPassword:    cctx.String("admin-password"),
			SlackWebhookURL:  cctx.String("slack-webhook-url"),
			Workers:          cctx.Int("workers"),
			DispatchRate:     cctx.Float64("dispatch-rate-limit"),
			QuotaKickDay:     cctx.Int("quota-kick-day"),
			QuotaBanDay:      cctx.Int("quota-ban-day"),
			LedgerIdleTTL:    cctx.Duration("ledger-idle-ttl"),
			ConfigCacheTTL:   cctx.Duration("config-cache-ttl"),
			DispatchTimeout:  cctx.Duration("dispatch-timeout"),
		})
		if err != nil {
			return err
		}

		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("failed to run automod service: %w", err)
		}
		return nil
	},
}

var checkConfigCmd = &cli.Command{
	Name:      "check-config",
	Usage:     "validate a guild config JSON file",
	ArgsUsage: "<file>",
	Action: func(cctx *cli.Context) error {
		p := cctx.Args().First()
		if p == "" {
			return fmt.Errorf("need to provide config file path as an argument")
		}
		configs, err := config.LoadFileJSON(p)
		if err != nil {
			return err
		}
		bad := checkConfigs(cctx.App.Writer, configs)
		if bad > 0 {
			return fmt.Errorf("%d of %d guild configs have problems", bad, len(configs))
		}
		return nil
	},
}

// Prints every problem, one per line, and returns the number of guilds with at least one.
func checkConfigs(w io.Writer, configs map[string]*config.GuildAutomodConfig) int {
	bad := 0
	for _, id := range sortedKeys(configs) {
		problems := configs[id].Problems()
		if len(problems) == 0 {
			fmt.Fprintf(w, "%s\tok\n", id)
			continue
		}
		bad++
		for _, p := range problems {
			fmt.Fprintf(w, "%s\t%s\t%s\n", id, p.Filter, p.Reason)
		}
	}
	return bad
}

func sortedKeys(m map[string]*config.GuildAutomodConfig) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
