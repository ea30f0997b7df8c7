package migration

import (
	"context"
	"fmt"

	"github.com/avstrong/staybook/internal/booking"
	"github.com/avstrong/staybook/internal/logger"
)

type storage interface {
	SaveRooms(ctx context.Context, rooms []*booking.Room) error
}

// Rooms is the catalogue seeded on start.
func Rooms() []*booking.Room {
	return []*booking.Room{
		{
			ID:           "standard-101",
			Name:         "Standard Double",
			RatePerNight: 15000, //nolint:gomnd
			MaxCapacity:  2,     //nolint:gomnd
		},
		{
			ID:           "deluxe-201",
			Name:         "Deluxe Garden View",
			RatePerNight: 25000, //nolint:gomnd
			MaxCapacity:  3,     //nolint:gomnd
		},
		{
			ID:           "family-301",
			Name:         "Family Suite",
			RatePerNight: 38000, //nolint:gomnd
			MaxCapacity:  5,     //nolint:gomnd
		},
	}
}

func Up(ctx context.Context, l *logger.Logger, storage storage) error {
	rooms := Rooms()

	if err := storage.SaveRooms(ctx, rooms); err != nil {
		return fmt.Errorf("save rooms to storage: %w", err)
	}

	l.LogInfo("Seeded %d rooms", len(rooms))

	return nil
}
