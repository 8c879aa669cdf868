package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/burger-ledger/internal/domain/account"
	"github.com/xenking/burger-ledger/internal/domain/auth"
	"github.com/xenking/burger-ledger/internal/handler"
	"github.com/xenking/burger-ledger/internal/storage/postgres"
)

// pairs collects repeated name=value flags.
type pairs map[string]string

func (p pairs) String() string { return fmt.Sprint(map[string]string(p)) }

func (p pairs) Set(v string) error {
	name, value, ok := strings.Cut(v, "=")
	if !ok || name == "" {
		return errors.Errorf("expected name=value, got %q", v)
	}
	p[name] = value
	return nil
}

type seed struct {
	merchant account.ID
	balances map[account.ID]decimal.Decimal
	keys     map[account.ID]string
	pepper   string
}

func main() {
	var (
		databaseURL  string
		merchant     string
		apiKeyPepper string
		balances     = pairs{}
		keys         = pairs{}
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&merchant, "merchant", "shop", "merchant account (or LEDGER_MERCHANT_ACCOUNT env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or LEDGER_API_KEY_PEPPER env)")
	flag.Var(balances, "account", "customer account as name=balance (repeatable; default alice=1000, bob=1000)")
	flag.Var(keys, "api-key", "API key as account=key (repeatable; generated when omitted)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if v := os.Getenv("LEDGER_MERCHANT_ACCOUNT"); v != "" && merchant == "shop" {
		merchant = v
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("LEDGER_API_KEY_PEPPER")
	}
	if len(balances) == 0 {
		balances["alice"] = "1000"
		balances["bob"] = "1000"
	}

	s, err := buildSeed(account.ID(merchant), balances, keys, apiKeyPepper)
	if err != nil {
		slog.Error("invalid flags", slog.String("error", err.Error()))
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, s); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

// buildSeed validates the flags. The merchant always gets an account with a
// zero balance and every account gets an API key.
func buildSeed(merchant account.ID, balances, keys pairs, pepper string) (*seed, error) {
	s := &seed{
		merchant: merchant,
		balances: map[account.ID]decimal.Decimal{merchant: decimal.Zero},
		keys:     make(map[account.ID]string),
		pepper:   pepper,
	}
	for name, raw := range balances {
		b, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "balance of %s", name)
		}
		if b.IsNegative() {
			return nil, errors.Errorf("balance of %s is negative", name)
		}
		s.balances[account.ID(name)] = b
	}
	for id := range s.balances {
		key, ok := keys[string(id)]
		if !ok {
			key = uuid.New().String()
		}
		s.keys[id] = key
	}
	for name := range keys {
		if _, ok := s.balances[account.ID(name)]; !ok {
			return nil, errors.Errorf("api key for unknown account %s", name)
		}
	}
	return s, nil
}

func run(ctx context.Context, databaseURL string, s *seed) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	accounts := postgres.NewAccountRepository(pool)
	for id, balance := range s.balances {
		if err := accounts.Upsert(ctx, id, balance); err != nil {
			return errors.Wrap(err, "seed accounts")
		}
		slog.Info("upserted account", slog.String("id", string(id)), slog.String("balance", balance.String()))
	}

	apikeys := postgres.NewAPIKeyRepository(pool)
	for id, key := range s.keys {
		scopes := []string{"customer"}
		if id == s.merchant {
			scopes = []string{"merchant"}
		}
		if err := apikeys.Upsert(ctx, auth.APIKeyInfo{
			ID:      "seed-" + string(id),
			KeyHash: handler.HashKey([]byte(s.pepper), key),
			Name:    "Seed key for " + string(id),
			Account: id,
			Scopes:  scopes,
		}); err != nil {
			return errors.Wrap(err, "seed api keys")
		}
		slog.Info("upserted API key", slog.String("account", string(id)))
		// Keys go to stdout only, never to the log stream.
		fmt.Printf("%s\t%s\n", id, key)
	}

	return nil
}
