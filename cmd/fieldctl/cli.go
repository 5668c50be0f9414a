package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/welldanyogia/fieldguard/internal/config"
	"github.com/welldanyogia/fieldguard/internal/fieldcipher"
	"github.com/welldanyogia/fieldguard/internal/ratelimit"
)

// Exit codes
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// CLI runs fieldctl subcommands against the given streams
type CLI struct {
	Config *config.Config
	Logger *slog.Logger
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Run dispatches args[0] and returns the process exit code
func (c *CLI) Run(args []string) int {
	if len(args) < 1 {
		c.usage()
		return exitUsage
	}

	var err error
	switch args[0] {
	case "encrypt":
		err = c.encrypt(args[1:])
	case "decrypt":
		err = c.decrypt(args[1:])
	case "check":
		err = c.check(args[1:])
	case "help", "-h", "--help":
		c.usage()
		return exitOK
	default:
		fmt.Fprintf(c.Stderr, "unknown command %q\n\n", args[0])
		c.usage()
		return exitUsage
	}

	if err != nil {
		fmt.Fprintf(c.Stderr, "fieldctl %s: %v\n", args[0], err)
		return exitError
	}
	return exitOK
}

func (c *CLI) usage() {
	fmt.Fprintf(c.Stderr, "Usage: fieldctl <command> [options]\n\n")
	fmt.Fprintf(c.Stderr, "Commands:\n")
	fmt.Fprintf(c.Stderr, "  encrypt [JSON]   Encrypt a JSON value (argument or stdin) and print the blob\n")
	fmt.Fprintf(c.Stderr, "  decrypt [BLOB]   Decrypt a blob (argument or stdin) and print JSON, null if unreadable\n")
	fmt.Fprintf(c.Stderr, "  check            Simulate rate limit checks for a key\n")
	fmt.Fprintf(c.Stderr, "\nThe cipher secret is read from FIELD_CIPHER_SECRET.\n")
}

func (c *CLI) newCipher() (*fieldcipher.Cipher, error) {
	return fieldcipher.New(fieldcipher.Config{
		Secret:         c.Config.Cipher.Secret,
		Environment:    c.Config.Environment,
		AllowDevSecret: c.Config.Cipher.AllowDevSecret,
		Iterations:     c.Config.Cipher.Iterations,
	}, c.Logger)
}

// input returns the first positional argument, or all of stdin
func (c *CLI) input(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	data, err := io.ReadAll(c.Stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (c *CLI) encrypt(args []string) error {
	raw, err := c.input(args)
	if err != nil {
		return err
	}
	if !json.Valid([]byte(raw)) {
		return errors.New("input is not valid JSON")
	}

	fc, err := c.newCipher()
	if err != nil {
		return err
	}

	blob, err := fc.Encrypt(json.RawMessage(raw))
	if err != nil {
		return err
	}
	fmt.Fprintln(c.Stdout, blob)
	return nil
}

func (c *CLI) decrypt(args []string) error {
	blob, err := c.input(args)
	if err != nil {
		return err
	}

	fc, err := c.newCipher()
	if err != nil {
		return err
	}

	out, err := json.Marshal(fc.Decrypt(blob))
	if err != nil {
		return err
	}
	fmt.Fprintln(c.Stdout, string(out))
	return nil
}

// checkLine is one simulated decision printed as a JSON line
type checkLine struct {
	Attempt   int        `json:"attempt"`
	Allowed   bool       `json:"allowed"`
	Remaining int        `json:"remaining"`
	ResetAt   *time.Time `json:"reset_at,omitempty"`
}

func (c *CLI) check(args []string) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(c.Stderr)
	var (
		key      = fs.String("key", "", "Rate limit key (required)")
		maxTries = fs.Int("max", c.Config.RateLimit.MaxAttempts, "Max attempts per window")
		windowMs = fs.Int64("window-ms", c.Config.RateLimit.Window.Milliseconds(), "Window length in milliseconds")
		attempts = fs.Int("n", 1, "Number of attempts to simulate")
		interval = fs.Duration("interval", 0, "Pause between attempts")
		useRedis = fs.Bool("redis", false, "Use the Redis store at REDIS_ADDR instead of memory")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *key == "" {
		return errors.New("-key is required")
	}
	if *windowMs < 1 || *windowMs > ratelimit.MaxWindow.Milliseconds() {
		return fmt.Errorf("-window-ms must be between 1 and %d", ratelimit.MaxWindow.Milliseconds())
	}

	store, err := c.store(*useRedis)
	if err != nil {
		return err
	}
	limiter := ratelimit.New(store, ratelimit.WithName("fieldctl"), ratelimit.WithLogger(c.Logger))
	defer limiter.Close()

	rule := ratelimit.Rule{MaxAttempts: *maxTries, Window: time.Duration(*windowMs) * time.Millisecond}
	out := bufio.NewWriter(c.Stdout)
	defer out.Flush()
	enc := json.NewEncoder(out)

	ctx := context.Background()
	for i := 1; i <= *attempts; i++ {
		decision, err := limiter.Check(ctx, *key, rule)
		if err != nil {
			return err
		}

		line := checkLine{Attempt: i, Allowed: decision.Allowed, Remaining: decision.Remaining}
		if !decision.ResetAt.IsZero() {
			resetAt := decision.ResetAt.UTC()
			line.ResetAt = &resetAt
		}
		if err := enc.Encode(line); err != nil {
			return err
		}

		if *interval > 0 && i < *attempts {
			time.Sleep(*interval)
		}
	}
	return nil
}

func (c *CLI) store(useRedis bool) (ratelimit.Store, error) {
	if !useRedis {
		return ratelimit.NewMemoryStore(), nil
	}
	if c.Config.Redis.Addr == "" {
		return nil, errors.New("-redis requires REDIS_ADDR")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     c.Config.Redis.Addr,
		Password: c.Config.Redis.Password,
		DB:       c.Config.Redis.DB,
	})
	return ratelimit.NewRedisStore(client, c.Config.Redis.Prefix), nil
}
