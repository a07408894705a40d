package domain

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func enrichedSample(t *testing.T) []EnrichedRecord {
	t.Helper()
	e := NewEnricher(sampleDirectory(), newMockWeather(), 4, discardLogger())
	out, err := e.Enrich(context.Background(), sampleSales())
	require.NoError(t, err)
	return out.Records
}

func TestProject_EndToEndCounts(t *testing.T) {
	ents, issues, err := Project(context.Background(), enrichedSample(t))

	require.NoError(t, err)
	assert.Empty(t, issues)
	assert.Equal(t, map[string]int{
		TableCompanies: 3,
		TableCustomers: 3,
		TableProducts:  4,
		TableOrders:    4,
		TableWeather:   4,
	}, ents.Counts())
}

func TestProjectCustomers_FirstOccurrenceWins(t *testing.T) {
	first := chelsey()
	second := chelsey()
	second.Email = "changed@example.com"
	records := []EnrichedRecord{
		{Sales: sale(1, 5, 40, 1, "1", "2022-01-01"), Customer: &first},
		{Sales: sale(2, 5, 41, 1, "1", "2022-01-01"), Customer: &second},
	}

	got := ProjectCustomers(records)

	require.Len(t, got, 1)
	assert.Equal(t, "Lucio_Hettinger@annie.ca", got[0].Email)
	assert.Equal(t, "Keebler LLC", got[0].CompanyName)
	require.NotNil(t, got[0].GeoLat)
	assert.InDelta(t, -31.8129, *got[0].GeoLat, 1e-9)
	assert.InDelta(t, 62.5342, *got[0].GeoLng, 1e-9)
}

func TestProjectCustomers_AbsentSubObjects(t *testing.T) {
	p := CustomerPayload{ID: 12, Name: "No Address"}
	got := ProjectCustomers([]EnrichedRecord{
		{Sales: sale(1, 12, 40, 1, "1", "2022-01-01"), Customer: &p},
		{Sales: sale(2, 13, 40, 1, "1", "2022-01-01")},
	})

	want := []Customer{{CustomerID: 12, Name: "No Address"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("customers mismatch (-want +got):\n%s", diff)
	}
}

func TestProjectProducts_FirstSeenPriceWins(t *testing.T) {
	records := []EnrichedRecord{
		{Sales: sale(1, 5, 40, 3, "35.6", "2022-06-21")},
		{Sales: sale(2, 5, 40, 1, "99.9", "2022-06-22")},
		{Sales: sale(3, 5, 13, 1, "36.52", "2022-06-22")},
	}

	got := ProjectProducts(records)

	require.Len(t, got, 2)
	assert.Equal(t, int64(40), got[0].ProductID)
	assert.True(t, decimal.RequireFromString("35.6").Equal(got[0].Price))
	assert.Equal(t, int64(13), got[1].ProductID)
}

func TestProjectCompanies_FullTupleDedup(t *testing.T) {
	a := chelsey()
	b := chelsey()
	b.ID = 6
	b.Company = &CompanyInfo{Name: "Keebler LLC", CatchPhrase: "Another tagline", BS: "other"}
	c := chelsey()
	c.ID = 7

	got := ProjectCompanies([]EnrichedRecord{
		{Customer: &a}, {Customer: &b}, {Customer: &c}, {},
	})

	require.Len(t, got, 2)
	assert.Equal(t, "Keebler LLC", got[0].Name)
	assert.Equal(t, "Keebler LLC", got[1].Name)
	assert.NotEqual(t, got[0].CatchPhrase, got[1].CatchPhrase)
}

func TestProjectWeather_OnePerOrder(t *testing.T) {
	got := ProjectWeather(enrichedSample(t))

	require.Len(t, got, 4)
	ids := map[string]bool{}
	for _, w := range got {
		assert.True(t, strings.HasPrefix(w.WeatherID, "wx-"))
		ids[w.WeatherID] = true
	}
	assert.Len(t, ids, 4, "customer 5 gets two records, one per order")

	first := got[0]
	assert.Equal(t, int64(5), first.CustomerID)
	assert.Equal(t, "Clouds", first.Main)
	assert.Equal(t, "overcast clouds", first.Description)
	require.NotNil(t, first.Temperature)
	assert.InDelta(t, 293.22, *first.Temperature, 1e-9)
	require.NotNil(t, first.Humidity)
	assert.Equal(t, int64(62), *first.Humidity)
	assert.Equal(t, time.Date(2022, 6, 21, 0, 0, 0, 0, time.UTC), first.WeatherDate)
}

func TestProjectWeather_DeterministicIDs(t *testing.T) {
	a := ProjectWeather(enrichedSample(t))
	b := ProjectWeather(enrichedSample(t))

	require.Len(t, b, len(a))
	for i := range a {
		assert.Equal(t, a[i].WeatherID, b[i].WeatherID)
	}
}

func TestProjectWeather_MalformedPayloadFieldsAreNull(t *testing.T) {
	c := chelsey()
	w, err := DecodeWeather([]byte(`{"coord":"bad","weather":[],"main":{"temp":"hot","humidity":null}}`))
	require.NoError(t, err)

	got := ProjectWeather([]EnrichedRecord{{Sales: sale(1, 5, 40, 1, "1", "2022-01-01"), Customer: &c, Weather: &w}})

	require.Len(t, got, 1)
	assert.Nil(t, got[0].Latitude)
	assert.Nil(t, got[0].Longitude)
	assert.Nil(t, got[0].Temperature)
	assert.Nil(t, got[0].Humidity)
	assert.Empty(t, got[0].Main)
}

func TestProjectWeather_AbsentPayloadProducesNoRow(t *testing.T) {
	c := chelsey()
	got := ProjectWeather([]EnrichedRecord{
		{Sales: sale(1, 5, 40, 1, "1", "2022-01-01"), Customer: &c},
		{Sales: sale(2, 404, 40, 1, "1", "2022-01-01")},
	})
	assert.Empty(t, got)
}

func TestProject_ConflictingOrdersAreDropped(t *testing.T) {
	records := enrichedSample(t)
	conflict := records[0]
	conflict.Sales.Quantity = 99
	records = append(records, conflict)

	ents, issues, err := Project(context.Background(), records)

	require.NoError(t, err)
	assert.True(t, ents.OrdersDropped)
	assert.Empty(t, ents.Orders)
	assert.Len(t, ents.Customers, 3)
	assert.Len(t, ents.Products, 4)
	require.Len(t, issues, 1)
	assert.Equal(t, KindDataIntegrity, issues[0].Kind)
	assert.Equal(t, SeverityError, issues[0].Severity())
	assert.Equal(t, "2334", issues[0].Key)
}

func TestProject_InputIsNotModified(t *testing.T) {
	records := enrichedSample(t)
	before := make([]EnrichedRecord, len(records))
	copy(before, records)

	_, _, err := Project(context.Background(), records)

	require.NoError(t, err)
	if diff := cmp.Diff(before, records, cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })); diff != "" {
		t.Errorf("records modified (-before +after):\n%s", diff)
	}
}
