package shipping_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tournevent/courier/internal/shipping"
	"github.com/tournevent/courier/pkg/carrier"
)

func criteria(pincode string) shipping.SelectionCriteria {
	return shipping.SelectionCriteria{
		PickupPincode:   "302001",
		DeliveryPincode: pincode,
		Weight:          500,
		OrderValue:      1200,
	}
}

func TestSelectBestCarrier_Empty(t *testing.T) {
	s := shipping.NewSelector(nil, shipping.DefaultRegionalPreferences())
	_, err := s.SelectBestCarrier(nil, criteria(deliveryPincode))
	assert.ErrorIs(t, err, shipping.ErrNoRates)
}

func TestSelectBestCarrier_Singleton(t *testing.T) {
	s := shipping.NewSelector(nil, shipping.DefaultRegionalPreferences())
	only := quote(carrier.TypeDTDC, "9", 999, "unknown")

	got, err := s.SelectBestCarrier([]carrier.CarrierRate{only}, criteria("302001"))
	require.NoError(t, err)
	assert.Equal(t, only, got)
}

func TestSelectBestCarrier_WeightedScore(t *testing.T) {
	s := shipping.NewSelector(nil, shipping.DefaultRegionalPreferences())
	rates := []carrier.CarrierRate{
		quote(carrier.TypeShipmozo, "A", 100, "3-5"),
		quote(carrier.TypeShipmozo, "B", 90, "1-2"),
	}

	// A: 50 + 24 + 4 = 78, B: 45 + 9 + 4 = 58
	for range 10 {
		got, err := s.SelectBestCarrier(rates, criteria(deliveryPincode))
		require.NoError(t, err)
		assert.Equal(t, "B", got.CarrierID)
	}
}

func TestSelectBestCarrier_ReliabilityBreaksClosePrices(t *testing.T) {
	s := shipping.NewSelector(nil, nil)
	rates := []carrier.CarrierRate{
		quote(carrier.TypeDTDC, "dtdc", 100, "3 days"),
		quote(carrier.TypeDelhivery, "delhivery", 101, "3 days"),
	}

	// dtdc: 50 + 18 + 5 = 73, delhivery: 50.5 + 18 + 3 = 71.5
	got, err := s.SelectBestCarrier(rates, criteria(deliveryPincode))
	require.NoError(t, err)
	assert.Equal(t, "delhivery", got.CarrierID)
}

func TestSelectBestCarrier_TiesKeepInputOrder(t *testing.T) {
	s := shipping.NewSelector(nil, nil)
	rates := []carrier.CarrierRate{
		quote(carrier.TypeShipmozo, "first", 100, "2 days"),
		quote(carrier.TypeShipmozo, "second", 100, "2 days"),
	}

	got, err := s.SelectBestCarrier(rates, criteria(deliveryPincode))
	require.NoError(t, err)
	assert.Equal(t, "first", got.CarrierID)
}

func TestSelectBestCarrier_RegionalPreference(t *testing.T) {
	s := shipping.NewSelector(nil, []shipping.CarrierPreference{
		{PincodePrefixes: []string{"30"}, PreferredCarrier: carrier.TypeDTDC, Priority: 1},
	})
	rates := []carrier.CarrierRate{
		quote(carrier.TypeShipmozo, "cheap", 40, "1 days"),
		quote(carrier.TypeDTDC, "preferred", 400, "7-9 days"),
		quote(carrier.TypeDelhivery, "fast", 60, "1 days"),
	}

	got, err := s.SelectBestCarrier(rates, criteria("302001"))
	require.NoError(t, err)
	assert.Equal(t, "preferred", got.CarrierID)

	// Outside the region the score decides.
	got, err = s.SelectBestCarrier(rates, criteria(deliveryPincode))
	require.NoError(t, err)
	assert.Equal(t, "cheap", got.CarrierID)
}

func TestSelectBestCarrier_RegionalCarrierAbsent(t *testing.T) {
	s := shipping.NewSelector(nil, shipping.DefaultRegionalPreferences())
	rates := []carrier.CarrierRate{
		quote(carrier.TypeShipmozo, "1", 100, "3-5 days"),
		quote(carrier.TypeShipmozo, "2", 90, "1-2 days"),
	}

	// 302001 prefers pushpak, which did not quote.
	got, err := s.SelectBestCarrier(rates, criteria("302001"))
	require.NoError(t, err)
	assert.Equal(t, "2", got.CarrierID)
}

func TestSelectBestCarrier_RulePriority(t *testing.T) {
	s := shipping.NewSelector(nil, []shipping.CarrierPreference{
		{PincodePrefixes: []string{"11"}, PreferredCarrier: carrier.TypeShipmozo, Priority: 5},
		{PincodePrefixes: []string{"110"}, PreferredCarrier: carrier.TypeDelhivery, Priority: 2},
	})
	rates := []carrier.CarrierRate{
		quote(carrier.TypeShipmozo, "shipmozo", 50, "2 days"),
		quote(carrier.TypeDelhivery, "delhivery", 500, "9 days"),
	}

	got, err := s.SelectBestCarrier(rates, criteria("110001"))
	require.NoError(t, err)
	assert.Equal(t, "delhivery", got.CarrierID)
}

func TestAddRegionalPreference_Ordering(t *testing.T) {
	s := shipping.NewSelector(nil, nil)
	s.AddRegionalPreference(shipping.CarrierPreference{PincodePrefixes: []string{"40"}, PreferredCarrier: carrier.TypeDTDC, Priority: 3})
	s.AddRegionalPreference(shipping.CarrierPreference{PincodePrefixes: []string{"50"}, PreferredCarrier: carrier.TypeShipmozo, Priority: 1})
	s.AddRegionalPreference(shipping.CarrierPreference{PincodePrefixes: []string{"60"}, PreferredCarrier: carrier.TypeDelhivery, Priority: 3})

	prefs := s.RegionalPreferences()
	require.Len(t, prefs, 3)
	assert.Equal(t, "50", prefs[0].PincodePrefixes[0])
	assert.Equal(t, "40", prefs[1].PincodePrefixes[0])
	assert.Equal(t, "60", prefs[2].PincodePrefixes[0])
}

func TestRegionalPreferences_ReturnsCopy(t *testing.T) {
	s := shipping.NewSelector(nil, shipping.DefaultRegionalPreferences())

	prefs := s.RegionalPreferences()
	prefs[0].PreferredCarrier = carrier.TypeDTDC
	prefs[0].PincodePrefixes[0] = "99"

	again := s.RegionalPreferences()
	assert.Equal(t, carrier.TypePushpak, again[0].PreferredCarrier)
	assert.Equal(t, "30", again[0].PincodePrefixes[0])
}

func TestSelector_ConcurrentUse(t *testing.T) {
	s := shipping.NewSelector(nil, shipping.DefaultRegionalPreferences())
	rates := []carrier.CarrierRate{
		quote(carrier.TypeShipmozo, "1", 100, "3-5 days"),
		quote(carrier.TypeDelhivery, "2", 90, "1-2 days"),
	}

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.AddRegionalPreference(shipping.CarrierPreference{
				PincodePrefixes:  []string{fmt.Sprintf("9%d", i%10)},
				PreferredCarrier: carrier.TypeDTDC,
				Priority:         i,
			})
		}()
		go func() {
			defer wg.Done()
			_, err := s.SelectBestCarrier(rates, criteria("110001"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, s.RegionalPreferences(), 22)
}

func TestScoreRate(t *testing.T) {
	assert.InDelta(t, 78.0, shipping.ScoreRate(quote(carrier.TypeShipmozo, "1", 100, "3-5 days")), 1e-9)
	// Unreadable windows count as 5 days; unknown carriers get the worst reliability.
	assert.InDelta(t, 50.0+30.0+6.0, shipping.ScoreRate(quote("bluedart", "1", 100, "soon")), 1e-9)
}

func TestReliabilityScore(t *testing.T) {
	assert.Equal(t, 10.0, shipping.ReliabilityScore(carrier.TypePushpak))
	assert.Equal(t, 15.0, shipping.ReliabilityScore(carrier.TypeDelhivery))
	assert.Equal(t, 20.0, shipping.ReliabilityScore(carrier.TypeShipmozo))
	assert.Equal(t, 25.0, shipping.ReliabilityScore(carrier.TypeDTDC))
	assert.Equal(t, 30.0, shipping.ReliabilityScore("bluedart"))
}

func TestParseRegionalPreferences(t *testing.T) {
	prefs, err := shipping.ParseRegionalPreferences("30, 31:pushpak:1; 11:Delhivery:2;")
	require.NoError(t, err)
	require.Len(t, prefs, 2)
	assert.Equal(t, []string{"30", "31"}, prefs[0].PincodePrefixes)
	assert.Equal(t, carrier.TypePushpak, prefs[0].PreferredCarrier)
	assert.Equal(t, 1, prefs[0].Priority)
	assert.Equal(t, carrier.TypeDelhivery, prefs[1].PreferredCarrier)

	empty, err := shipping.ParseRegionalPreferences("")
	require.NoError(t, err)
	assert.Empty(t, empty)

	for _, bad := range []string{"30:pushpak", ":pushpak:1", "30:fedex:1", "30:dtdc:first"} {
		_, err := shipping.ParseRegionalPreferences(bad)
		assert.Error(t, err, bad)
	}
}
