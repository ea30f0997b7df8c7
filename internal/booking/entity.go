package booking

import (
	"encoding/json"
	"fmt"
	"time"
)

// MaxNights is the longest stay a single booking may cover.
const MaxNights = 365

type FoodPlan string

const (
	FoodPlanNone      FoodPlan = "None"
	FoodPlanBreakfast FoodPlan = "Breakfast"
	FoodPlanHalfBoard FoodPlan = "HalfBoard"
	FoodPlanFullBoard FoodPlan = "FullBoard"
	FoodPlanAlaCarte  FoodPlan = "AlaCarte"
)

type PaymentMethod string

const (
	PaymentMethodCard PaymentMethod = "card"
	PaymentMethodBank PaymentMethod = "bank"
	PaymentMethodCash PaymentMethod = "cash"
)

func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCard, PaymentMethodBank, PaymentMethodCash:
		return true
	default:
		return false
	}
}

type MealLine struct {
	ItemID    string  `json:"item_id"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  int     `json:"quantity"`
}

// FoodSelection is either a FlatPlan or an Itemized list of meals.
type FoodSelection interface {
	foodSelection()
}

type FlatPlan struct {
	Plan FoodPlan
}

type Itemized struct {
	Lines []MealLine
}

func (FlatPlan) foodSelection() {}

func (Itemized) foodSelection() {}

type StayRequest struct {
	CheckIn         time.Time
	CheckOut        time.Time
	Guests          int
	RoomID          string
	Food            FoodSelection
	SpecialRequests string
}

// Nights returns the whole-day difference between check-out and check-in
// using calendar dates. The result may be negative or zero.
func (s StayRequest) Nights() int {
	if s.CheckIn.IsZero() || s.CheckOut.IsZero() {
		return 0
	}

	return int(CalendarDate(s.CheckOut).Sub(CalendarDate(s.CheckIn)).Hours() / 24) //nolint:gomnd
}

// CalendarDate drops the clock part of t, keeping the date as seen in t's location.
func CalendarDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

type stayJSON struct {
	CheckIn         *time.Time `json:"check_in,omitempty"`
	CheckOut        *time.Time `json:"check_out,omitempty"`
	Guests          int        `json:"guests"`
	RoomID          string     `json:"room_id"`
	Food            foodJSON   `json:"food"`
	SpecialRequests string     `json:"special_requests,omitempty"`
}

type foodJSON struct {
	Kind  string     `json:"kind"`
	Plan  FoodPlan   `json:"plan,omitempty"`
	Lines []MealLine `json:"lines,omitempty"`
}

const (
	foodKindFlat     = "flat"
	foodKindItemized = "itemized"
)

func (s StayRequest) MarshalJSON() ([]byte, error) {
	out := stayJSON{
		Guests:          s.Guests,
		RoomID:          s.RoomID,
		SpecialRequests: s.SpecialRequests,
	}

	if !s.CheckIn.IsZero() {
		out.CheckIn = &s.CheckIn
	}

	if !s.CheckOut.IsZero() {
		out.CheckOut = &s.CheckOut
	}

	switch food := s.Food.(type) {
	case Itemized:
		out.Food = foodJSON{Kind: foodKindItemized, Lines: food.Lines}
	case FlatPlan:
		out.Food = foodJSON{Kind: foodKindFlat, Plan: food.Plan}
	default:
		out.Food = foodJSON{Kind: foodKindFlat, Plan: FoodPlanNone}
	}

	return json.Marshal(out)
}

func (s *StayRequest) UnmarshalJSON(data []byte) error {
	var in stayJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("decode stay: %w", err)
	}

	*s = StayRequest{
		Guests:          in.Guests,
		RoomID:          in.RoomID,
		SpecialRequests: in.SpecialRequests,
	}

	if in.CheckIn != nil {
		s.CheckIn = *in.CheckIn
	}

	if in.CheckOut != nil {
		s.CheckOut = *in.CheckOut
	}

	switch in.Food.Kind {
	case foodKindItemized:
		s.Food = Itemized{Lines: in.Food.Lines}
	case foodKindFlat, "":
		plan := in.Food.Plan
		if plan == "" {
			plan = FoodPlanNone
		}

		s.Food = FlatPlan{Plan: plan}
	default:
		return fmt.Errorf("unknown food selection kind %q", in.Food.Kind)
	}

	return nil
}

type LineItem struct {
	Label  string  `json:"label"`
	Amount float64 `json:"amount"`
}

type CostBreakdown struct {
	Nights        int        `json:"nights"`
	RoomCost      float64    `json:"room_cost"`
	FoodCost      float64    `json:"food_cost"`
	Subtotal      float64    `json:"subtotal"`
	Taxes         float64    `json:"taxes"`
	ServiceCharge float64    `json:"service_charge"`
	Total         float64    `json:"total"`
	LineItems     []LineItem `json:"line_items"`
}

type Room struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	RatePerNight float64 `json:"rate_per_night"`
	MaxCapacity  int     `json:"max_capacity"`
}

type Booking struct {
	Number           string        `json:"booking_number"`
	RoomID           string        `json:"room_id"`
	GuestID          string        `json:"guest_id"`
	Stay             StayRequest   `json:"stay"`
	Cost             CostBreakdown `json:"cost_breakdown"`
	PaymentMethod    PaymentMethod `json:"payment_method"`
	Status           Status        `json:"status"`
	HoldUntil        *time.Time    `json:"hold_until"`
	PaymentReference string        `json:"payment_reference,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// Clone returns a deep copy so callers never share slices or pointers with storage.
func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}

	c := *b

	if b.HoldUntil != nil {
		h := *b.HoldUntil
		c.HoldUntil = &h
	}

	c.Cost.LineItems = append([]LineItem(nil), b.Cost.LineItems...)

	if items, ok := b.Stay.Food.(Itemized); ok {
		c.Stay.Food = Itemized{Lines: append([]MealLine(nil), items.Lines...)}
	}

	return &c
}

// StatusEvent is one accepted transition in a booking's history.
type StatusEvent struct {
	ID            int       `json:"id"`
	BookingNumber string    `json:"booking_number"`
	From          Status    `json:"from"`
	To            Status    `json:"to"`
	Event         Event     `json:"event"`
	Actor         string    `json:"actor"`
	Note          string    `json:"note,omitempty"`
	TraceID       string    `json:"trace_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// StatusChange is what storage needs to persist one transition.
type StatusChange struct {
	From             Status
	To               Status
	Event            Event
	HoldUntil        *time.Time
	PaymentReference string
	Actor            string
	Note             string
	TraceID          string
	At               time.Time
}

// ChangeContext carries who asked for a transition and any payment data attached to it.
type ChangeContext struct {
	Actor            string
	Note             string
	PaymentReference string
}

type CreateInput struct {
	Stay          StayRequest
	GuestID       string
	PaymentMethod PaymentMethod
}

// StatusRequest asks for a move to Target. Event is optional and is resolved
// from the current and target status when empty.
type StatusRequest struct {
	Target            Status
	Event             Event
	Actor             string
	Note              string
	PaymentReference  string
	TransferReference string
}

type PaymentRequest struct {
	Method            PaymentMethod
	TransferReference string
	Actor             string
}

type PaymentSession struct {
	ActionURL      string            `json:"action_url"`
	Params         map[string]string `json:"params"`
	OrderReference string            `json:"order_reference"`
}

type PaymentResult struct {
	Booking          *Booking        `json:"booking"`
	Session          *PaymentSession `json:"session,omitempty"`
	AwaitingApproval bool            `json:"awaiting_approval"`
}
