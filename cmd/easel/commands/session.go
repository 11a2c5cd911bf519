package commands

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/easelhq/easel/internal/config"
	"github.com/easelhq/easel/internal/printer"
	"github.com/easelhq/easel/pkg/canvas"
)

// openSession loads the configuration file and connects a canvas client to
// the configured session. Callers must Close() the returned client.
func openSession(ctx context.Context) (*config.SessionConfig, *canvas.Client, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, printer.Error("Invalid configuration",
			err.Error(),
			[]string{"Check the easel.yml file or pass --config with a valid path"})
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, printer.Error("Invalid redis_url",
			err.Error(),
			[]string{"Use a URL of the form redis://host:port"})
	}

	client, err := canvas.NewClient(redisOpts, cfg.Session)
	if err != nil {
		return nil, nil, printer.Error("Failed to create session client", err.Error(), nil)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		client.Close()
		return nil, nil, printer.Error("Cannot reach Redis",
			err.Error(),
			[]string{"Verify the server in redis_url is running and reachable"})
	}

	return cfg, client, nil
}

// shortID trims a UUID to its first 8 characters for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
