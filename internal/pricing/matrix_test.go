package pricing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testPlans() []PlanPricing {
	return []PlanPricing{
		{
			Duration: "1-month",
			Devices: map[int]DevicePrice{
				1: {Price: 1500, ProductID: "iptv-1m-1d"},
				2: {Price: 2500, ProductID: "iptv-1m-2d"},
				3: {Price: 3500, ProductID: "iptv-1m-3d"},
				4: {Price: 4500, ProductID: "iptv-1m-4d"},
				5: {Price: 5500, ProductID: "iptv-1m-5d"},
			},
		},
		{
			Duration: "3-months",
			Devices: map[int]DevicePrice{
				1: {Price: 4000, ProductID: "iptv-3m-1d"},
				2: {Price: 7000, ProductID: "iptv-3m-2d"},
				3: {Price: 10000, ProductID: "iptv-3m-3d"},
				4: {Price: 13000, ProductID: "iptv-3m-4d"},
				5: {Price: 16000, ProductID: "iptv-3m-5d"},
			},
		},
	}
}

func TestLookupDevicePrice(t *testing.T) {
	m, err := NewPlanMatrix(testPlans())
	require.NoError(t, err)

	dp, err := m.LookupDevicePrice("1-month", 3)
	require.NoError(t, err)
	require.Equal(t, Money(3500), dp.Price)
	require.Equal(t, "iptv-1m-3d", dp.ProductID)

	dp, err = m.LookupDevicePrice("3-months", 5)
	require.NoError(t, err)
	require.Equal(t, Money(16000), dp.Price)
}

func TestLookupDevicePriceTotality(t *testing.T) {
	m, err := NewPlanMatrix(testPlans())
	require.NoError(t, err)

	for _, d := range []string{"1-month", "3-months"} {
		for n := MinDevices; n <= MaxDevices; n++ {
			_, err := m.LookupDevicePrice(d, n)
			require.NoError(t, err, "plan %s devices %d", d, n)
		}
		for _, n := range []int{0, 6, -1} {
			_, err := m.LookupDevicePrice(d, n)
			require.ErrorIs(t, err, ErrUnknownDeviceTier, "plan %s devices %d", d, n)
		}
	}
}

func TestLookupDevicePriceUnknownPlan(t *testing.T) {
	m, err := NewPlanMatrix(testPlans())
	require.NoError(t, err)

	_, err = m.LookupDevicePrice("12-months", 1)
	require.ErrorIs(t, err, ErrUnknownPlan)
}

func TestNewPlanMatrixRejectsIncompleteTable(t *testing.T) {
	plans := testPlans()
	delete(plans[0].Devices, 4)
	_, err := NewPlanMatrix(plans)
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing device tier 4")
}

func TestNewPlanMatrixRejectsOutOfRangeTier(t *testing.T) {
	plans := testPlans()
	plans[1].Devices[6] = DevicePrice{Price: 20000, ProductID: "iptv-3m-6d"}
	_, err := NewPlanMatrix(plans)
	require.Error(t, err)
	require.Contains(t, err.Error(), "out-of-range device tier 6")
}

func TestNewPlanMatrixRejectsDuplicates(t *testing.T) {
	plans := append(testPlans(), testPlans()[0])
	_, err := NewPlanMatrix(plans)
	require.Error(t, err)
	require.Contains(t, err.Error(), "duplicate plan duration")
}

func TestNewPlanMatrixRejectsNegativePrice(t *testing.T) {
	plans := testPlans()
	plans[0].Devices[2] = DevicePrice{Price: -1, ProductID: "bad"}
	_, err := NewPlanMatrix(plans)
	require.Error(t, err)
}
