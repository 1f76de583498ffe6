// Package fixtures seeds the room catalog and owner commission tiers from a YAML file.
package fixtures

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"roomies/internal/app/uow"
	domaincommissions "roomies/internal/domain/commissions"
	domainrooms "roomies/internal/domain/rooms"
	"roomies/internal/domain/shared/money"
)

// File is the on-disk layout.
type File struct {
	// Currency applies to every rent in the file. Defaults to INR.
	Currency string `yaml:"currency,omitempty"`
	Rooms    []Room `yaml:"rooms"`
	Tiers    []Tier `yaml:"tiers,omitempty"`
}

type Room struct {
	ID            string `yaml:"id"`
	OwnerID       string `yaml:"owner_id"`
	Title         string `yaml:"title,omitempty"`
	MonthlyRent   string `yaml:"monthly_rent"`
	TotalSlots    int    `yaml:"total_slots"`
	OccupiedSlots int    `yaml:"occupied_slots,omitempty"`
}

// Tier rates are percentages, e.g. rate: 25 for a quarter of the first month.
type Tier struct {
	OwnerID      string  `yaml:"owner_id"`
	Name         string  `yaml:"name"`
	Rate         float64 `yaml:"rate"`
	DiscountRate float64 `yaml:"discount_rate,omitempty"`
}

// Catalog is a parsed, validated file.
type Catalog struct {
	Rooms []domainrooms.Room
	Tiers []domaincommissions.Tier
}

// TierWriter stores owner tiers.
type TierWriter interface {
	SetTier(ctx context.Context, tier domaincommissions.Tier) error
}

type TierWriterFunc func(ctx context.Context, tier domaincommissions.Tier) error

func (f TierWriterFunc) SetTier(ctx context.Context, tier domaincommissions.Tier) error {
	return f(ctx, tier)
}

// Load reads and parses a fixtures file.
func Load(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read fixtures file: %w", err)
	}
	return Parse(bytes.NewReader(data))
}

// Parse decodes a fixtures document, rejecting unknown fields.
func Parse(r io.Reader) (Catalog, error) {
	var file File
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return Catalog{}, fmt.Errorf("parse fixtures: %w", err)
	}
	return file.Catalog()
}

// Catalog converts the file into domain values.
func (f File) Catalog() (Catalog, error) {
	currency := f.Currency
	if currency == "" {
		currency = money.DefaultCurrency
	}

	var out Catalog
	seen := make(map[string]struct{}, len(f.Rooms))
	for i, r := range f.Rooms {
		if r.ID == "" {
			return Catalog{}, fmt.Errorf("rooms[%d]: id is required", i)
		}
		if _, dup := seen[r.ID]; dup {
			return Catalog{}, fmt.Errorf("rooms[%d]: duplicate room id %q", i, r.ID)
		}
		seen[r.ID] = struct{}{}

		rent, err := money.ParseMajor(r.MonthlyRent, currency)
		if err != nil {
			return Catalog{}, fmt.Errorf("rooms[%d]: monthly_rent: %w", i, err)
		}
		room := domainrooms.Room{
			ID:            domainrooms.RoomID(r.ID),
			OwnerID:       domainrooms.OwnerID(r.OwnerID),
			Title:         r.Title,
			MonthlyRent:   rent,
			TotalSlots:    r.TotalSlots,
			OccupiedSlots: r.OccupiedSlots,
		}
		if err := room.Validate(); err != nil {
			return Catalog{}, fmt.Errorf("rooms[%d]: %w", i, err)
		}
		out.Rooms = append(out.Rooms, room)
	}

	for i, t := range f.Tiers {
		if t.OwnerID == "" {
			return Catalog{}, fmt.Errorf("tiers[%d]: owner_id is required", i)
		}
		if t.Rate < 0 || t.Rate > 100 || t.DiscountRate < 0 || t.DiscountRate > 100 {
			return Catalog{}, fmt.Errorf("tiers[%d]: rates must be between 0 and 100", i)
		}
		name := t.Name
		if name == "" {
			name = "custom"
		}
		out.Tiers = append(out.Tiers, domaincommissions.Tier{
			OwnerID:      domainrooms.OwnerID(t.OwnerID),
			Name:         name,
			Rate:         t.Rate,
			DiscountRate: t.DiscountRate,
		})
	}
	return out, nil
}

// Seed saves every room inside one unit of work and then records the tiers.
func Seed(ctx context.Context, factory uow.UoWFactory, tiers TierWriter, c Catalog) error {
	if len(c.Rooms) > 0 {
		unit, err := factory.Begin(ctx, uow.TxOptions{})
		if err != nil {
			return err
		}
		txCtx := uow.Bind(ctx, unit)
		for i := range c.Rooms {
			if err := unit.Rooms().Save(txCtx, &c.Rooms[i]); err != nil {
				_ = unit.Rollback(txCtx)
				return fmt.Errorf("seed room %s: %w", c.Rooms[i].ID, err)
			}
		}
		if err := unit.Commit(txCtx); err != nil {
			return fmt.Errorf("seed rooms: %w", err)
		}
	}
	if tiers == nil {
		return nil
	}
	for _, t := range c.Tiers {
		if err := tiers.SetTier(ctx, t); err != nil {
			return fmt.Errorf("seed tier %s: %w", t.OwnerID, err)
		}
	}
	return nil
}
