package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"vpn-shop-bot/internal/config"
	"vpn-shop-bot/internal/domain/model"
	pg "vpn-shop-bot/internal/infra/db/postgres"
	"vpn-shop-bot/internal/infra/logging"
	"vpn-shop-bot/internal/infra/security"
	"vpn-shop-bot/internal/usecase"

	"github.com/shopspring/decimal"
)

// seed creates one host from SEED_* environment variables and the standard plan ladder
// for it. Running it twice changes nothing.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.Global.Fatal().Err(err).Msg("load config")
	}
	log := logging.New(cfg.Log, true)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pg.Connect(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	if err := pg.Migrate(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}
	if err := pg.NewPostgresSettingRepo(pool).SeedDefaults(ctx, model.DefaultSettings); err != nil {
		log.Fatal().Err(err).Msg("seed settings")
	}

	var cipher pg.Cipher
	if cfg.Security.EncryptionKey != "" {
		enc, err := security.NewEncryptionService(cfg.Security.EncryptionKey)
		if err != nil {
			log.Fatal().Err(err).Msg("encryption")
		}
		cipher = enc
	}
	catalog := usecase.NewCatalogUseCase(pg.NewPostgresHostRepo(pool, cipher), pg.NewPostgresPlanRepo(pool), log)

	name := envOr("SEED_HOST_NAME", "Frankfurt 1")
	if _, err := catalog.GetHost(ctx, name); err == nil {
		plans, _ := catalog.ListPlans(ctx, name)
		fmt.Printf("host %q already present with %d plans. No changes.\n", name, len(plans))
		return
	}

	inbound, _ := strconv.Atoi(envOr("SEED_INBOUND_ID", "1"))
	host, err := model.NewHost(name, envOr("SEED_PANEL_URL", "https://panel.example.com:2053"), envOr("SEED_PANEL_USER", "admin"), os.Getenv("SEED_PANEL_PASSWORD"), inbound)
	if err != nil {
		log.Fatal().Err(err).Msg("host")
	}
	if err := catalog.SaveHost(ctx, host); err != nil {
		log.Fatal().Err(err).Msg("save host")
	}
	fmt.Printf("seeded host: %s -> %s (inbound %d)\n", host.Name, host.PanelURL, host.InboundID)

	ladder := []struct {
		name   string
		months int
		price  int64
	}{
		{"1 месяц", 1, 150},
		{"3 месяца", 3, 400},
		{"6 месяцев", 6, 750},
		{"12 месяцев", 12, 1400},
	}
	for _, l := range ladder {
		p, err := model.NewPlan(host.Name, l.name, l.months, decimal.NewFromInt(l.price))
		if err != nil {
			log.Fatal().Err(err).Str("plan", l.name).Msg("plan")
		}
		if err := catalog.SavePlan(ctx, p); err != nil {
			log.Fatal().Err(err).Str("plan", l.name).Msg("save plan")
		}
		fmt.Printf("seeded plan: %s (id=%d, months=%d, price=%s RUB)\n", p.Name, p.ID, p.Months, p.Price.StringFixed(2))
	}
	fmt.Println("Seeding complete.")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
