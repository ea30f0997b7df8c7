package pricing

import (
	"fmt"
	"math"

	"github.com/avstrong/staybook/internal/booking"
)

type Config struct {
	TaxRate           float64
	ServiceChargeRate float64
	// FoodPlanRates is the per-guest per-night rate of each flat plan.
	FoodPlanRates map[booking.FoodPlan]float64
}

func DefaultConfig() Config {
	return Config{
		TaxRate:           0.12, //nolint:gomnd
		ServiceChargeRate: 0.10, //nolint:gomnd
		FoodPlanRates: map[booking.FoodPlan]float64{
			booking.FoodPlanNone:      0,
			booking.FoodPlanBreakfast: 1500, //nolint:gomnd
			booking.FoodPlanHalfBoard: 3500, //nolint:gomnd
			booking.FoodPlanFullBoard: 5500, //nolint:gomnd
			booking.FoodPlanAlaCarte:  2500, //nolint:gomnd
		},
	}
}

// Calculator is a pure function of its configuration and the inputs to Compute.
type Calculator struct {
	taxRate     float64
	serviceRate float64
	planRates   map[booking.FoodPlan]float64
}

func New(conf Config) *Calculator {
	rates := make(map[booking.FoodPlan]float64, len(conf.FoodPlanRates))
	for plan, rate := range conf.FoodPlanRates {
		rates[plan] = nonNegative(rate)
	}

	return &Calculator{
		taxRate:     nonNegative(conf.TaxRate),
		serviceRate: nonNegative(conf.ServiceChargeRate),
		planRates:   rates,
	}
}

func (c *Calculator) Compute(stay booking.StayRequest, ratePerNight float64) booking.CostBreakdown {
	nights := stay.Nights()
	if nights <= 0 {
		return booking.CostBreakdown{LineItems: []booking.LineItem{}}
	}

	if nights > booking.MaxNights {
		nights = booking.MaxNights
	}

	roomCost := float64(nights) * ratePerNight

	items := []booking.LineItem{{
		Label:  fmt.Sprintf("Room (%d nights x %.2f)", nights, ratePerNight),
		Amount: roomCost,
	}}

	foodCost, foodItems := c.food(stay, nights)
	items = append(items, foodItems...)

	subtotal := roomCost + foodCost
	taxes := round2(subtotal * c.taxRate)
	service := round2(subtotal * c.serviceRate)

	items = append(items,
		booking.LineItem{Label: "Taxes", Amount: taxes},
		booking.LineItem{Label: "Service charge", Amount: service},
	)

	return booking.CostBreakdown{
		Nights:        nights,
		RoomCost:      roomCost,
		FoodCost:      foodCost,
		Subtotal:      subtotal,
		Taxes:         taxes,
		ServiceCharge: service,
		Total:         subtotal + taxes + service,
		LineItems:     items,
	}
}

func (c *Calculator) food(stay booking.StayRequest, nights int) (float64, []booking.LineItem) {
	switch food := stay.Food.(type) {
	case booking.Itemized:
		var (
			total float64
			items []booking.LineItem
		)

		for _, line := range food.Lines {
			if line.Quantity <= 0 || !(line.UnitPrice >= 0) {
				continue
			}

			amount := line.UnitPrice * float64(line.Quantity)
			total += amount

			items = append(items, booking.LineItem{
				Label:  fmt.Sprintf("Meal %s (%d x %.2f)", line.ItemID, line.Quantity, line.UnitPrice),
				Amount: amount,
			})
		}

		return total, items
	case booking.FlatPlan:
		return c.flat(food.Plan, nights, stay.Guests)
	default:
		return 0, nil
	}
}

func (c *Calculator) flat(plan booking.FoodPlan, nights, guests int) (float64, []booking.LineItem) {
	guests = max(guests, 0)

	amount := float64(nights) * float64(guests) * c.planRates[plan]
	if amount == 0 {
		return 0, nil
	}

	return amount, []booking.LineItem{{
		Label:  fmt.Sprintf("Food plan %s (%d nights x %d guests)", plan, nights, guests),
		Amount: amount,
	}}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100 //nolint:gomnd
}

func nonNegative(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}

	return v
}
