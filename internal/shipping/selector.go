package shipping

import (
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/tournevent/courier/pkg/carrier"
)

// Scoring weights. Lower composite scores win.
const (
	priceWeight       = 0.5
	speedWeight       = 0.3
	reliabilityWeight = 0.2

	// pointsPerDay scales the delivery window midpoint; 5 days = 100 points.
	pointsPerDay = 20
	// defaultDeliveryDays is assumed when a rate has no readable window.
	defaultDeliveryDays = 5
	// defaultReliability applies to carrier types without a score.
	defaultReliability = 30
)

var reliabilityScores = map[carrier.CarrierType]float64{
	carrier.TypePushpak:   10,
	carrier.TypeDelhivery: 15,
	carrier.TypeShipmozo:  20,
	carrier.TypeDTDC:      25,
}

// CarrierPreference routes deliveries into a region to a preferred carrier.
type CarrierPreference struct {
	PincodePrefixes  []string            `json:"pincodePrefixes"`
	States           []string            `json:"states,omitempty"`
	PreferredCarrier carrier.CarrierType `json:"preferredCarrier"`
	Priority         int                 `json:"priority"` // lower wins
}

func (p CarrierPreference) matches(pincode string) bool {
	for _, prefix := range p.PincodePrefixes {
		if strings.HasPrefix(pincode, prefix) {
			return true
		}
	}
	return false
}

// SelectionCriteria describes the shipment a carrier is being chosen for.
type SelectionCriteria struct {
	PickupPincode   string
	DeliveryPincode string
	Weight          float64
	OrderValue      float64
}

// DefaultRegionalPreferences returns the built-in routing rules: Pushpak for
// Rajasthan and Delhivery for the Delhi NCR region.
func DefaultRegionalPreferences() []CarrierPreference {
	return []CarrierPreference{
		{
			PincodePrefixes:  []string{"30", "31", "32", "33", "34"},
			States:           []string{"Rajasthan"},
			PreferredCarrier: carrier.TypePushpak,
			Priority:         1,
		},
		{
			PincodePrefixes:  []string{"11", "12", "13", "14", "20", "21"},
			States:           []string{"Delhi", "Haryana", "Uttar Pradesh"},
			PreferredCarrier: carrier.TypeDelhivery,
			Priority:         2,
		},
	}
}

// ParseRegionalPreferences parses rules written as
// "prefix,prefix:carrier:priority;..." such as "30,31:pushpak:1;11:delhivery:2".
func ParseRegionalPreferences(s string) ([]CarrierPreference, error) {
	var prefs []CarrierPreference
	for _, rule := range strings.Split(s, ";") {
		rule = strings.TrimSpace(rule)
		if rule == "" {
			continue
		}
		parts := strings.Split(rule, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("regional preference %q: want prefixes:carrier:priority", rule)
		}

		var prefixes []string
		for _, p := range strings.Split(parts[0], ",") {
			if p = strings.TrimSpace(p); p != "" {
				prefixes = append(prefixes, p)
			}
		}
		if len(prefixes) == 0 {
			return nil, fmt.Errorf("regional preference %q: no pincode prefixes", rule)
		}

		ct := carrier.CarrierType(strings.ToLower(strings.TrimSpace(parts[1])))
		if !ct.Valid() {
			return nil, fmt.Errorf("regional preference %q: unknown carrier %q", rule, parts[1])
		}

		priority, err := strconv.Atoi(strings.TrimSpace(parts[2]))
		if err != nil {
			return nil, fmt.Errorf("regional preference %q: bad priority: %w", rule, err)
		}

		prefs = append(prefs, CarrierPreference{
			PincodePrefixes:  prefixes,
			PreferredCarrier: ct,
			Priority:         priority,
		})
	}
	return prefs, nil
}

// Selector picks one rate out of the aggregated quotes.
type Selector struct {
	logger *otelzap.Logger

	mu    sync.RWMutex
	prefs []CarrierPreference // sorted by priority
}

// NewSelector creates a Selector with the given regional rules.
func NewSelector(logger *otelzap.Logger, prefs []CarrierPreference) *Selector {
	if logger == nil {
		logger = otelzap.New(zap.NewNop())
	}
	s := &Selector{logger: logger}
	for _, p := range prefs {
		s.insert(p)
	}
	return s
}

// AddRegionalPreference adds a routing rule. Rules with equal priority keep
// the order they were added in.
func (s *Selector) AddRegionalPreference(p CarrierPreference) {
	s.mu.Lock()
	s.insert(p)
	s.mu.Unlock()

	s.logger.Info("Added regional preference",
		zap.String("carrier", string(p.PreferredCarrier)),
		zap.Strings("prefixes", p.PincodePrefixes),
		zap.Int("priority", p.Priority),
	)
}

func (s *Selector) insert(p CarrierPreference) {
	p.PincodePrefixes = slices.Clone(p.PincodePrefixes)
	p.States = slices.Clone(p.States)
	i := sort.Search(len(s.prefs), func(i int) bool {
		return s.prefs[i].Priority > p.Priority
	})
	s.prefs = slices.Insert(s.prefs, i, p)
}

// RegionalPreferences returns a copy of the rules in evaluation order.
func (s *Selector) RegionalPreferences() []CarrierPreference {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]CarrierPreference, len(s.prefs))
	for i, p := range s.prefs {
		p.PincodePrefixes = slices.Clone(p.PincodePrefixes)
		p.States = slices.Clone(p.States)
		out[i] = p
	}
	return out
}

// SelectBestCarrier chooses a rate. A single rate is returned as is. Otherwise
// the first regional rule matching the delivery pincode whose carrier quoted
// wins; failing that, the lowest ScoreRate wins, ties going to the earlier rate.
func (s *Selector) SelectBestCarrier(rates []carrier.CarrierRate, criteria SelectionCriteria) (carrier.CarrierRate, error) {
	if len(rates) == 0 {
		return carrier.CarrierRate{}, ErrNoRates
	}
	if len(rates) == 1 {
		return rates[0], nil
	}

	if rate, ok := s.regional(rates, criteria.DeliveryPincode); ok {
		s.logger.Info("Selected carrier by regional preference",
			zap.String("carrier", rate.CarrierName),
			zap.String("delivery_pincode", criteria.DeliveryPincode),
		)
		return rate, nil
	}

	best, bestScore := rates[0], ScoreRate(rates[0])
	for _, r := range rates[1:] {
		if score := ScoreRate(r); score < bestScore {
			best, bestScore = r, score
		}
	}

	s.logger.Info("Selected carrier by score",
		zap.String("carrier", best.CarrierName),
		zap.String("service", best.ServiceName),
		zap.Float64("score", bestScore),
	)
	return best, nil
}

func (s *Selector) regional(rates []carrier.CarrierRate, pincode string) (carrier.CarrierRate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.prefs {
		if !p.matches(pincode) {
			continue
		}
		for _, r := range rates {
			if r.CarrierType == p.PreferredCarrier {
				return r, true
			}
		}
	}
	return carrier.CarrierRate{}, false
}

// ScoreRate returns the weighted score of a rate; lower is better.
func ScoreRate(r carrier.CarrierRate) float64 {
	priceScore := r.Price
	speedScore := deliveryDays(r, defaultDeliveryDays) * pointsPerDay
	return priceScore*priceWeight + speedScore*speedWeight + ReliabilityScore(r.CarrierType)*reliabilityWeight
}

// ReliabilityScore returns the static reliability penalty for a carrier type.
func ReliabilityScore(t carrier.CarrierType) float64 {
	if s, ok := reliabilityScores[t]; ok {
		return s
	}
	return defaultReliability
}
