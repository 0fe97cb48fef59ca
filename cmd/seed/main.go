// Command seed provisions users from a JSON file:
//
//	[{"sub": "auth0|abc", "role": "student"}, ...]
//
// Subjects already present are skipped, so the command can be rerun. With
// -issue and JWT_SECRET set it also prints a one-hour HS256 token per user,
// for local testing against a server running in HMAC mode.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/josquinlarsen/tarpaulin/internal/auth"
	"github.com/josquinlarsen/tarpaulin/internal/config"
	sqliteRepo "github.com/josquinlarsen/tarpaulin/internal/repository/sqlite"
)

func main() {
	file := flag.String("file", "users.json", "JSON file listing the users to provision")
	issue := flag.Bool("issue", false, "print a bearer token for every user (requires JWT_SECRET)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger := cfg.Logging.NewLogger(os.Stderr)

	if err := run(cfg, *file, *issue, logger); err != nil {
		logger.Error("seeding failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, file string, issue bool, logger *slog.Logger) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("opening %s: %w", file, err)
	}
	defer f.Close()

	entries, err := parseEntries(f)
	if err != nil {
		return fmt.Errorf("reading %s: %w", file, err)
	}

	var issuer *auth.TokenIssuer
	if issue {
		if !cfg.IdP.UsesHMAC() {
			return errors.New("-issue requires JWT_SECRET")
		}
		if issuer, err = auth.NewTokenIssuer(cfg.IdP.JWTSecret, cfg.IdP.Issuer, cfg.IdP.Audience); err != nil {
			return err
		}
	}

	db, err := sqliteRepo.New(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	res, err := seed(ctx, db, entries)
	if err != nil {
		return err
	}
	logger.Info("users provisioned",
		slog.Int("created", res.created),
		slog.Int("skipped", res.skipped),
	)

	if issuer != nil {
		for _, e := range entries {
			tok, err := issuer.Generate(e.Sub)
			if err != nil {
				return err
			}
			fmt.Printf("%s\t%s\t%s\n", e.Role, e.Sub, tok)
		}
	}
	return nil
}
