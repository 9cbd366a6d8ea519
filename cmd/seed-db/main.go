package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/xenking/bistro/internal/domain/auth"
	"github.com/xenking/bistro/internal/domain/menu"
	"github.com/xenking/bistro/internal/storage"
)

type seedOptions struct {
	driver        string
	dsn           string
	menuFile      string
	adminEmail    string
	adminPassword string
	apiKey        string
	apiKeyPepper  string
}

func main() {
	_ = godotenv.Load()

	var opts seedOptions
	flag.StringVar(&opts.driver, "driver", storage.DriverPostgres, "storage driver: postgres or sqlite")
	flag.StringVar(&opts.dsn, "dsn", "", "PostgreSQL URL or SQLite path (or DATABASE_URL env)")
	flag.StringVar(&opts.menuFile, "menu-file", "db/seed/menu.json", "path to menu JSON file")
	flag.StringVar(&opts.adminEmail, "admin-email", "admin@bistro.local", "email of the seeded admin user")
	flag.StringVar(&opts.adminPassword, "admin-password", "", "admin password (or BISTRO_SEED_ADMIN_PASSWORD env)")
	flag.StringVar(&opts.apiKey, "api-key", "", "API key to seed (or BISTRO_SEED_API_KEY env)")
	flag.StringVar(&opts.apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or BISTRO_API_KEY_PEPPER env)")
	flag.Parse()

	envDefault(&opts.dsn, "DATABASE_URL")
	envDefault(&opts.adminPassword, "BISTRO_SEED_ADMIN_PASSWORD")
	envDefault(&opts.apiKey, "BISTRO_SEED_API_KEY")
	envDefault(&opts.apiKeyPepper, "BISTRO_API_KEY_PEPPER")

	if opts.dsn == "" {
		slog.Error("dsn is required: set --dsn or DATABASE_URL")
		os.Exit(1)
	}
	if opts.apiKey == "" {
		slog.Error("API key is required: set --api-key or BISTRO_SEED_API_KEY")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func envDefault(v *string, key string) {
	if *v == "" {
		*v = os.Getenv(key)
	}
}

func run(ctx context.Context, opts seedOptions) error {
	slog.Info("opening storage", slog.String("driver", opts.driver))

	store, err := storage.Open(ctx, opts.driver, opts.dsn)
	if err != nil {
		return errors.Wrap(err, "open storage")
	}
	defer store.Close()

	if err := seedMenu(ctx, store.Menu, opts.menuFile); err != nil {
		return errors.Wrap(err, "seed menu")
	}

	if opts.adminPassword != "" {
		if err := seedAdmin(ctx, store.Users, opts.adminEmail, opts.adminPassword); err != nil {
			return errors.Wrap(err, "seed admin")
		}
	} else {
		slog.Warn("no admin password given, skipping admin user")
	}

	if err := seedAPIKey(ctx, store.APIKeys, opts.apiKey, opts.apiKeyPepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

func seedMenu(ctx context.Context, repo menu.Repository, path string) error {
	slog.Info("reading menu file", slog.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read menu file")
	}

	items, err := parseMenu(data)
	if err != nil {
		return errors.Wrap(err, "parse menu JSON")
	}

	slog.Info("seeding menu items", slog.Int("count", len(items)))

	for _, item := range items {
		existing, err := repo.FindByName(ctx, item.Name)
		switch {
		case err == nil:
			slog.Info("menu item exists", slog.Int64("id", existing.ID), slog.String("name", existing.Name))
			continue
		case !errors.Is(err, menu.ErrNotFound):
			return errors.Wrapf(err, "find menu item %q", item.Name)
		}

		if err := repo.Create(ctx, &item); err != nil {
			return errors.Wrapf(err, "create menu item %q", item.Name)
		}
		slog.Info("created menu item", slog.Int64("id", item.ID), slog.String("name", item.Name))
	}

	return nil
}

// parseMenu decodes a JSON array of menu items. Prices may be numbers or strings.
func parseMenu(data []byte) ([]menu.Item, error) {
	var items []menu.Item
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		var item menu.Item
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "name":
				item.Name, err = d.Str()
			case "price":
				item.Price, err = decodePrice(d)
			case "description":
				item.Description, err = d.Str()
			case "image":
				item.Image, err = d.Str()
			default:
				err = d.Skip()
			}
			return err
		}); err != nil {
			return err
		}
		items = append(items, item)
		return nil
	})
	return items, err
}

func decodePrice(d *jx.Decoder) (decimal.Decimal, error) {
	if d.Next() == jx.String {
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(s)
	}
	n, err := d.Num()
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromString(string(n))
}

func seedAdmin(ctx context.Context, users auth.UserRepository, email, password string) error {
	slog.Info("seeding admin user", slog.String("email", email))

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	u := &auth.User{
		Username:     "admin",
		Email:        email,
		PasswordHash: hash,
		Role:         "admin",
	}
	if err := users.Create(ctx, u); err != nil {
		return errors.Wrap(err, "upsert admin user")
	}

	slog.Info("upserted admin user", slog.Int64("id", u.ID), slog.String("email", email))
	return nil
}

func seedAPIKey(ctx context.Context, keys auth.APIKeyRepository, apiKey, pepper string) error {
	slog.Info("seeding default API key")

	if err := keys.Upsert(ctx, auth.APIKeyInfo{
		ID:      "default",
		KeyHash: auth.HashAPIKey(apiKey, []byte(pepper)),
		Name:    "Default menu admin key",
		Scopes:  []string{"menu:write"},
	}); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	slog.Info("upserted API key", slog.String("id", "default"))
	return nil
}
