package commission

import (
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Tier is a contiguous amount range [Min, Max) in minor units. A nil Max is
// unbounded.
type Tier struct {
	Name        string
	Min         int64
	Max         *int64
	Rate        decimal.Decimal
	SenderShare decimal.Decimal
}

// Contains reports whether amount falls inside the tier.
func (t Tier) Contains(amount int64) bool {
	if amount < t.Min {
		return false
	}
	return t.Max == nil || amount < *t.Max
}

// Schedule is a versioned, closed set of tiers sorted by Min.
type Schedule struct {
	Version string
	Tiers   []Tier
}

var (
	one = decimal.NewFromInt(1)

	// ErrInvalidSchedule is returned for schedules that are unsorted, overlapping,
	// have gaps, or carry rates or shares outside [0, 1].
	ErrInvalidSchedule = errors.New("invalid commission schedule")
)

// Validate checks the schedule covers [0, ∞) without gaps or overlap.
func (s Schedule) Validate() error {
	if s.Version == "" {
		return fmt.Errorf("%w: version is required", ErrInvalidSchedule)
	}
	if len(s.Tiers) == 0 {
		return fmt.Errorf("%w: no tiers", ErrInvalidSchedule)
	}
	if s.Tiers[0].Min != 0 {
		return fmt.Errorf("%w: first tier must start at 0", ErrInvalidSchedule)
	}
	for i, t := range s.Tiers {
		if t.Rate.IsNegative() || t.Rate.GreaterThan(one) {
			return fmt.Errorf("%w: tier %s rate %s out of range", ErrInvalidSchedule, t.Name, t.Rate)
		}
		if t.SenderShare.IsNegative() || t.SenderShare.GreaterThan(one) {
			return fmt.Errorf("%w: tier %s sender share %s out of range", ErrInvalidSchedule, t.Name, t.SenderShare)
		}
		last := i == len(s.Tiers)-1
		if t.Max == nil {
			if !last {
				return fmt.Errorf("%w: only the last tier may be unbounded", ErrInvalidSchedule)
			}
			continue
		}
		if *t.Max <= t.Min {
			return fmt.Errorf("%w: tier %s is empty", ErrInvalidSchedule, t.Name)
		}
		if last {
			return fmt.Errorf("%w: last tier must be unbounded", ErrInvalidSchedule)
		}
		if s.Tiers[i+1].Min != *t.Max {
			return fmt.Errorf("%w: tier %s does not meet tier %s", ErrInvalidSchedule, t.Name, s.Tiers[i+1].Name)
		}
	}
	return nil
}

// Find returns the tier containing amount.
func (s Schedule) Find(amount int64) (Tier, bool) {
	for _, t := range s.Tiers {
		if t.Contains(amount) {
			return t, true
		}
	}
	return Tier{}, false
}

func bound(v int64) *int64 { return &v }

// DefaultSchedule is the built-in tier table, in XAF minor units.
func DefaultSchedule() Schedule {
	return Schedule{
		Version: "2024-06-default",
		Tiers: []Tier{
			{Name: "small", Min: 0, Max: bound(3_000), Rate: decimal.RequireFromString("0.10"), SenderShare: decimal.RequireFromString("0.70")},
			{Name: "medium", Min: 3_000, Max: bound(10_000), Rate: decimal.RequireFromString("0.09"), SenderShare: decimal.RequireFromString("0.70")},
			{Name: "large", Min: 10_000, Rate: decimal.RequireFromString("0.08"), SenderShare: decimal.RequireFromString("0.60")},
		},
	}
}

type scheduleFile struct {
	Version string     `yaml:"version"`
	Tiers   []tierFile `yaml:"tiers"`
}

type tierFile struct {
	Name        string `yaml:"name"`
	Min         int64  `yaml:"min"`
	Max         *int64 `yaml:"max"`
	Rate        string `yaml:"rate"`
	SenderShare string `yaml:"sender_share"`
}

// ParseSchedule decodes and validates a YAML tier table.
func ParseSchedule(data []byte) (Schedule, error) {
	var file scheduleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Schedule{}, fmt.Errorf("decode schedule: %w", err)
	}
	s := Schedule{Version: file.Version}
	for _, tf := range file.Tiers {
		rate, err := decimal.NewFromString(tf.Rate)
		if err != nil {
			return Schedule{}, fmt.Errorf("%w: tier %s rate: %v", ErrInvalidSchedule, tf.Name, err)
		}
		share, err := decimal.NewFromString(tf.SenderShare)
		if err != nil {
			return Schedule{}, fmt.Errorf("%w: tier %s sender share: %v", ErrInvalidSchedule, tf.Name, err)
		}
		s.Tiers = append(s.Tiers, Tier{Name: tf.Name, Min: tf.Min, Max: tf.Max, Rate: rate, SenderShare: share})
	}
	if err := s.Validate(); err != nil {
		return Schedule{}, err
	}
	return s, nil
}

// LoadSchedule reads a YAML schedule from path. An empty path yields the default.
func LoadSchedule(path string) (Schedule, error) {
	if path == "" {
		return DefaultSchedule(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Schedule{}, fmt.Errorf("read schedule %s: %w", path, err)
	}
	return ParseSchedule(data)
}
