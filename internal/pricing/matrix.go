package pricing

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownPlan       = errors.New("unknown plan duration")
	ErrUnknownDeviceTier = errors.New("unknown device tier")
)

// DevicePrice is one pre-negotiated bundle entry: an absolute price for a
// plan at a given simultaneous-device count, plus the catalog token the cart
// collaborator expects.
type DevicePrice struct {
	Price     Money  `json:"price"`
	ProductID string `json:"product_id"`
}

// PlanPricing maps device count to its fixed price for one plan duration.
// The table is a lookup, not a formula; there is no interpolation.
type PlanPricing struct {
	Duration string
	Devices  map[int]DevicePrice
}

// MinDevices and MaxDevices bound the valid device counts every plan must
// cover.
const (
	MinDevices = 1
	MaxDevices = 5
)

// PlanMatrix holds the validated device-count tables for all plan durations.
type PlanMatrix struct {
	plans map[string]PlanPricing
}

// NewPlanMatrix validates totality at load time: every plan must define a
// price for each device count in [MinDevices, MaxDevices], and no entry may
// fall outside that range. Misconfigured tables fail here, not at quote time.
func NewPlanMatrix(plans []PlanPricing) (*PlanMatrix, error) {
	m := &PlanMatrix{plans: make(map[string]PlanPricing, len(plans))}
	for _, p := range plans {
		if p.Duration == "" {
			return nil, errors.New("plan duration must not be empty")
		}
		if _, ok := m.plans[p.Duration]; ok {
			return nil, fmt.Errorf("duplicate plan duration %q", p.Duration)
		}
		for n := MinDevices; n <= MaxDevices; n++ {
			dp, ok := p.Devices[n]
			if !ok {
				return nil, fmt.Errorf("plan %q missing device tier %d", p.Duration, n)
			}
			if dp.Price < 0 {
				return nil, fmt.Errorf("plan %q device tier %d has negative price", p.Duration, n)
			}
		}
		for n := range p.Devices {
			if n < MinDevices || n > MaxDevices {
				return nil, fmt.Errorf("plan %q defines out-of-range device tier %d", p.Duration, n)
			}
		}
		m.plans[p.Duration] = p
	}
	return m, nil
}

// LookupDevicePrice returns the fixed price for a plan duration and device
// count. Missing keys are errors; substituting another tier's price would
// misquote the customer.
func (m *PlanMatrix) LookupDevicePrice(duration string, devices int) (DevicePrice, error) {
	p, ok := m.plans[duration]
	if !ok {
		return DevicePrice{}, ErrUnknownPlan
	}
	dp, ok := p.Devices[devices]
	if !ok {
		return DevicePrice{}, ErrUnknownDeviceTier
	}
	return dp, nil
}

// Durations lists the configured plan durations in unspecified order.
func (m *PlanMatrix) Durations() []string {
	out := make([]string, 0, len(m.plans))
	for d := range m.plans {
		out = append(out, d)
	}
	return out
}

// Plan returns the full table for one duration.
func (m *PlanMatrix) Plan(duration string) (PlanPricing, error) {
	p, ok := m.plans[duration]
	if !ok {
		return PlanPricing{}, ErrUnknownPlan
	}
	return p, nil
}
