package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/auth"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/catalog"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/coupon"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/customer"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/discount"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/handler"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/storage/postgres"
)

type seedFile struct {
	Products []struct {
		ID          string   `json:"id"`
		Name        string   `json:"name"`
		Description string   `json:"description"`
		Category    string   `json:"category"`
		Images      []string `json:"images"`
		Options     []struct {
			ID          string          `json:"id"`
			Name        string          `json:"name"`
			Description string          `json:"description"`
			Price       decimal.Decimal `json:"price"`
			Stock       int             `json:"stock"`
		} `json:"options"`
	} `json:"products"`
	Discounts []struct {
		ID               string          `json:"id"`
		Name             string          `json:"name"`
		Description      string          `json:"description"`
		OptionIDs        []string        `json:"optionIds"`
		InitialQuantity  int             `json:"initialQuantity"`
		InitialAmount    decimal.Decimal `json:"initialAmount"`
		AdditionalAmount decimal.Decimal `json:"additionalAmount"`
		Active           bool            `json:"active"`
	} `json:"discounts"`
	Coupons []struct {
		ID          string          `json:"id"`
		Code        string          `json:"code"`
		Description string          `json:"description"`
		Limit       int             `json:"limit"`
		Type        string          `json:"type"`
		Value       decimal.Decimal `json:"value"`
		OptionID    string          `json:"optionId"`
		MaxUnits    int             `json:"maxUnits"`
	} `json:"coupons"`
	DeliveryAreas []struct {
		ID              string         `json:"id"`
		Description     string         `json:"description"`
		SameDayDelivery bool           `json:"sameDayDelivery"`
		SheetName       string         `json:"sheetName"`
		WhatsappNumber  string         `json:"whatsappNumber"`
		OrderCutOffHour int            `json:"orderCutOffHour"`
		SameDayDays     []time.Weekday `json:"sameDayDays"`
	} `json:"deliveryAreas"`
	Users []struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		Surname   string `json:"surname"`
		Email     string `json:"email"`
		Phone     string `json:"phone"`
		Addresses []struct {
			ID          string `json:"id"`
			Street      string `json:"street"`
			City        string `json:"city"`
			FloorNumber string `json:"floorNumber"`
			Reference   string `json:"reference"`
			Phone       string `json:"phone"`
		} `json:"addresses"`
	} `json:"users"`
}

func main() {
	var (
		databaseURL  string
		seedPath     string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedPath, "seed-file", "db/seed/catalog.json", "path to seed JSON file")
	flag.StringVar(&apiKey, "api-key", "", "admin API key to seed (or BARFER_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or BARFER_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("BARFER_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or BARFER_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("BARFER_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, seedPath, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, seedPath, apiKey, pepper string) error {
	slog.Info("reading seed file", slog.String("path", seedPath))

	data, err := os.ReadFile(seedPath)
	if err != nil {
		return errors.Wrap(err, "read seed file")
	}
	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return errors.Wrap(err, "parse seed JSON")
	}

	slog.Info("running migrations")
	if err := postgres.RunMigrations(databaseURL); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	slog.Info("connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := seedCatalog(ctx, postgres.NewCatalogRepository(pool), &seed); err != nil {
		return errors.Wrap(err, "seed catalog")
	}
	if err := seedDiscounts(ctx, postgres.NewDiscountRepository(pool), &seed); err != nil {
		return errors.Wrap(err, "seed discounts")
	}
	if err := seedCoupons(ctx, postgres.NewCouponRepository(pool), &seed); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	if err := seedCustomers(ctx, postgres.NewCustomerRepository(pool), &seed); err != nil {
		return errors.Wrap(err, "seed customers")
	}
	if err := seedAPIKey(ctx, postgres.NewAPIKeyRepository(pool), apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

func seedCatalog(ctx context.Context, repo *postgres.CatalogRepository, seed *seedFile) error {
	slog.Info("upserting products", slog.Int("count", len(seed.Products)))

	for _, p := range seed.Products {
		if err := repo.UpsertProduct(ctx, catalog.Product{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			Category:    p.Category,
			Images:      p.Images,
		}); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
		for _, o := range p.Options {
			if err := repo.UpsertOption(ctx, catalog.Option{
				ID:          o.ID,
				ProductID:   p.ID,
				Name:        o.Name,
				Description: o.Description,
				Price:       o.Price,
				Stock:       o.Stock,
			}); err != nil {
				return errors.Wrapf(err, "upsert option %s", o.ID)
			}
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.Int("options", len(p.Options)))
	}

	return nil
}

func seedDiscounts(ctx context.Context, repo *postgres.DiscountRepository, seed *seedFile) error {
	for _, d := range seed.Discounts {
		rule := &discount.Rule{
			ID:               d.ID,
			Name:             d.Name,
			Description:      d.Description,
			OptionIDs:        d.OptionIDs,
			InitialQuantity:  d.InitialQuantity,
			InitialAmount:    d.InitialAmount,
			AdditionalAmount: d.AdditionalAmount,
			Active:           d.Active,
		}

		err := repo.Update(ctx, rule)
		if errors.Is(err, discount.ErrNotFound) {
			err = repo.Create(ctx, rule)
		}
		if err != nil {
			return errors.Wrapf(err, "save discount %s", d.ID)
		}

		slog.Info("saved discount", slog.String("id", d.ID), slog.String("name", d.Name))
	}

	return nil
}

// seedCoupons creates missing coupons. Existing ones keep their usage.
func seedCoupons(ctx context.Context, repo *postgres.CouponRepository, seed *seedFile) error {
	for _, c := range seed.Coupons {
		err := repo.Create(ctx, &coupon.Coupon{
			ID:          c.ID,
			Code:        coupon.NormalizeCode(c.Code),
			Description: c.Description,
			Limit:       c.Limit,
			Type:        coupon.Type(c.Type),
			Value:       c.Value,
			OptionID:    c.OptionID,
			MaxUnits:    c.MaxUnits,
		})
		switch {
		case errors.Is(err, coupon.ErrCodeTaken):
			slog.Info("coupon exists, skipped", slog.String("code", c.Code))
		case err != nil:
			return errors.Wrapf(err, "create coupon %s", c.Code)
		default:
			slog.Info("created coupon", slog.String("code", c.Code))
		}
	}

	return nil
}

func seedCustomers(ctx context.Context, repo *postgres.CustomerRepository, seed *seedFile) error {
	for _, a := range seed.DeliveryAreas {
		if err := repo.UpsertDeliveryArea(ctx, customer.DeliveryArea{
			ID:              a.ID,
			Description:     a.Description,
			SameDayDelivery: a.SameDayDelivery,
			SheetName:       a.SheetName,
			WhatsappNumber:  a.WhatsappNumber,
			OrderCutOffHour: a.OrderCutOffHour,
			SameDayDays:     a.SameDayDays,
		}); err != nil {
			return errors.Wrapf(err, "upsert delivery area %s", a.ID)
		}
	}

	for _, u := range seed.Users {
		if err := repo.UpsertUser(ctx, customer.User{
			ID:      u.ID,
			Name:    u.Name,
			Surname: u.Surname,
			Email:   u.Email,
			Phone:   u.Phone,
		}); err != nil {
			return errors.Wrapf(err, "upsert user %s", u.ID)
		}
		for _, a := range u.Addresses {
			if err := repo.UpsertAddress(ctx, customer.Address{
				ID:          a.ID,
				UserID:      u.ID,
				Street:      a.Street,
				City:        a.City,
				FloorNumber: a.FloorNumber,
				Reference:   a.Reference,
				Phone:       a.Phone,
			}); err != nil {
				return errors.Wrapf(err, "upsert address %s", a.ID)
			}
		}
	}

	slog.Info("upserted customers",
		slog.Int("areas", len(seed.DeliveryAreas)),
		slog.Int("users", len(seed.Users)),
	)
	return nil
}

func seedAPIKey(ctx context.Context, repo *postgres.APIKeyRepository, apiKey, pepper string) error {
	slog.Info("seeding admin API key")

	if err := repo.UpsertAPIKey(ctx, auth.APIKeyInfo{
		ID:      "admin",
		KeyHash: handler.HashAPIKey([]byte(pepper), apiKey),
		Name:    "Default admin key",
		Scopes:  []string{auth.ScopeAdmin},
	}); err != nil {
		return errors.Wrap(err, "upsert admin API key")
	}

	slog.Info("upserted API key", slog.String("id", "admin"))
	return nil
}
