// internal/models/ground.go
package models

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/codr1/Pitchside/internal/bookingerr"
	"github.com/codr1/Pitchside/internal/schedule"
)

const maxGroundNameLength = 100

var ErrNotFound = errors.New("not found")

var groundNameRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 ()#'-]*$`)

type GroundStatus string

const (
	GroundStatusActive   GroundStatus = "active"
	GroundStatusArchived GroundStatus = "archived"
)

type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentCard   PaymentMethod = "card"
	PaymentOnline PaymentMethod = "online"
)

func ParsePaymentMethod(value string) (PaymentMethod, error) {
	switch method := PaymentMethod(strings.ToLower(strings.TrimSpace(value))); method {
	case PaymentCash, PaymentCard, PaymentOnline:
		return method, nil
	default:
		return "", fmt.Errorf("unsupported payment method %q", value)
	}
}

// CancellationPolicy refunds RefundPercentage when a booking is cancelled
// at least NoticeHours before it starts.
type CancellationPolicy struct {
	NoticeHours      int64 `json:"noticeHours"`
	RefundPercentage int64 `json:"refundPercentage"`
}

func (p CancellationPolicy) Validate() error {
	if p.NoticeHours < 0 {
		return fmt.Errorf("cancellation notice hours must be 0 or greater")
	}
	if p.RefundPercentage < 0 || p.RefundPercentage > 100 {
		return fmt.Errorf("refund percentage must be between 0 and 100")
	}
	return nil
}

// Ground is a single bookable pitch or court. Prices are in cents.
type Ground struct {
	ID                 int64              `json:"id"`
	PitchID            int64              `json:"pitchId"`
	Name               string             `json:"name"`
	Status             GroundStatus       `json:"status"`
	BasePrice          int64              `json:"basePrice"`
	DepositFee         int64              `json:"depositFee"`
	PeakSurcharge      int64              `json:"peakSurcharge"`
	DiscountAmount     int64              `json:"discountAmount"`
	PaymentMethods     []PaymentMethod    `json:"paymentMethods"`
	CancellationPolicy CancellationPolicy `json:"cancellationPolicy"`
	OperatingHours     schedule.Week      `json:"operatingHours"`
	PeakHours          schedule.Week      `json:"peakHours"`
	DiscountHours      schedule.Week      `json:"discountHours"`
}

func (g Ground) Bookable() bool {
	return g.Status == GroundStatusActive
}

// Validate checks user supplied fields. Mask invariants are checked by
// CheckMasks since a violation there is a data integrity failure.
func (g Ground) Validate() error {
	name := strings.TrimSpace(g.Name)
	if name == "" {
		return fmt.Errorf("name is required")
	}
	if name != g.Name {
		return fmt.Errorf("name must not have leading or trailing whitespace")
	}
	if len(name) > maxGroundNameLength {
		return fmt.Errorf("name must be %d characters or fewer", maxGroundNameLength)
	}
	if !groundNameRegex.MatchString(name) {
		return fmt.Errorf("name may only contain letters, numbers, spaces and ()#'-")
	}
	if g.PitchID <= 0 {
		return fmt.Errorf("pitch_id must be a positive integer")
	}

	priceFields := map[string]int64{
		"base_price":      g.BasePrice,
		"deposit_fee":     g.DepositFee,
		"peak_surcharge":  g.PeakSurcharge,
		"discount_amount": g.DiscountAmount,
	}
	for field, value := range priceFields {
		if value < 0 {
			return fmt.Errorf("%s must be 0 or greater", field)
		}
	}
	if g.BasePrice == 0 {
		return fmt.Errorf("base_price must be greater than 0")
	}
	if len(g.PaymentMethods) == 0 {
		return fmt.Errorf("at least one payment method is required")
	}
	for _, method := range g.PaymentMethods {
		if _, err := ParsePaymentMethod(string(method)); err != nil {
			return err
		}
	}
	if err := g.CancellationPolicy.Validate(); err != nil {
		return err
	}
	return g.CheckMasks()
}

// CheckMasks enforces, for every weekday, that peak and discount hours are
// disjoint and both fall inside operating hours.
func (g Ground) CheckMasks() error {
	subject := fmt.Sprintf("ground %d", g.ID)
	for day := time.Sunday; day <= time.Saturday; day++ {
		operating := g.OperatingHours[day]
		peak := g.PeakHours[day]
		discount := g.DiscountHours[day]

		if !operating.Valid() || !peak.Valid() || !discount.Valid() {
			return bookingerr.InvariantViolationError{
				Subject: subject,
				Detail:  fmt.Sprintf("%s mask uses bits above hour 23", day),
			}
		}
		if both := peak & discount; both != 0 {
			return bookingerr.InvariantViolationError{
				Subject: subject,
				Detail:  fmt.Sprintf("%s hours %v are both peak and discount", day, both.Hours()),
			}
		}
		if closed := (peak | discount) &^ operating; closed != 0 {
			return bookingerr.InvariantViolationError{
				Subject: subject,
				Detail:  fmt.Sprintf("%s hours %v are priced but closed", day, closed.Hours()),
			}
		}
	}
	return nil
}
