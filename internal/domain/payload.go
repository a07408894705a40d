package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Coordinate is a latitude or longitude kept in the textual form the source
// sent. JSON strings and JSON numbers are both accepted.
type Coordinate string

func (c *Coordinate) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*c = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = Coordinate(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		// Not a string or number: treated as absent.
		*c = ""
		return nil
	}
	*c = Coordinate(n.String())
	return nil
}

// Float parses the coordinate, returning nil when it is empty or not numeric.
func (c Coordinate) Float() *float64 {
	if c == "" {
		return nil
	}
	v, err := strconv.ParseFloat(string(c), 64)
	if err != nil {
		return nil
	}
	return &v
}

// OptionalFloat is a numeric field that decodes to "absent" instead of
// failing when the value is null, missing, or not a number.
type OptionalFloat struct {
	Value float64
	Valid bool
}

func (o *OptionalFloat) UnmarshalJSON(b []byte) error {
	*o = OptionalFloat{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	raw := string(b)
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		raw = strings.TrimSpace(s)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	*o = OptionalFloat{Value: v, Valid: true}
	return nil
}

func (o OptionalFloat) MarshalJSON() ([]byte, error) {
	if !o.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// Ptr returns the value or nil when absent.
func (o OptionalFloat) Ptr() *float64 {
	if !o.Valid {
		return nil
	}
	v := o.Value
	return &v
}

// GeoKey identifies a location for weather lookups. Equality is textual.
type GeoKey struct {
	Lat string
	Lng string
}

func (k GeoKey) String() string {
	return k.Lat + "," + k.Lng
}

// GeoPoint is the geo sub-object of a customer address.
type GeoPoint struct {
	Lat Coordinate `json:"lat"`
	Lng Coordinate `json:"lng"`
}

// Key returns the weather lookup key for the point.
func (g GeoPoint) Key() GeoKey {
	return GeoKey{Lat: string(g.Lat), Lng: string(g.Lng)}
}

// Address is the address sub-object of a customer payload.
type Address struct {
	Street  string    `json:"street"`
	Suite   string    `json:"suite"`
	City    string    `json:"city"`
	Zipcode string    `json:"zipcode"`
	Geo     *GeoPoint `json:"geo,omitempty"`
}

// CompanyInfo is the company sub-object of a customer payload.
type CompanyInfo struct {
	Name        string `json:"name" validate:"required"`
	CatchPhrase string `json:"catchPhrase"`
	BS          string `json:"bs"`
}

// CustomerPayload is a customer profile as returned by the customer source.
type CustomerPayload struct {
	ID       int64        `json:"id" validate:"required,gt=0"`
	Name     string       `json:"name" validate:"required"`
	Username string       `json:"username"`
	Email    string       `json:"email"`
	Phone    string       `json:"phone"`
	Website  string       `json:"website"`
	Address  *Address     `json:"address,omitempty" validate:"-"`
	Company  *CompanyInfo `json:"company,omitempty" validate:"-"`

	// Malformed names fields that were present but did not decode. They are
	// left at their zero value.
	Malformed []string `json:"-" validate:"-"`
}

// Geo returns the customer's coordinates when both address and geo are present.
func (p *CustomerPayload) Geo() (GeoPoint, bool) {
	if p == nil || p.Address == nil || p.Address.Geo == nil {
		return GeoPoint{}, false
	}
	return *p.Address.Geo, true
}

// DecodeCustomer decodes a single customer payload without validating it.
// Validation happens in NormalizeCustomer so every source is held to the
// same rules. Only a body that is not a JSON object, or an id that is not a
// number, is an error; any other field that does not decode is left empty
// and named in Malformed.
func DecodeCustomer(data []byte) (CustomerPayload, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return CustomerPayload{}, fmt.Errorf("%w: decode customer: %v", ErrMalformedPayload, err)
	}
	if top == nil {
		return CustomerPayload{}, fmt.Errorf("%w: decode customer: null body", ErrMalformedPayload)
	}

	var p CustomerPayload
	if raw, ok := top["id"]; ok {
		if err := json.Unmarshal(raw, &p.ID); err != nil {
			return CustomerPayload{}, fmt.Errorf("%w: decode customer id: %v", ErrMalformedPayload, err)
		}
	}

	for _, f := range []struct {
		key string
		dst *string
	}{
		{"name", &p.Name},
		{"username", &p.Username},
		{"email", &p.Email},
		{"phone", &p.Phone},
		{"website", &p.Website},
	} {
		raw, ok := top[f.key]
		if !ok || isJSONNull(raw) {
			continue
		}
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			p.Malformed = append(p.Malformed, f.key)
			continue
		}
		*f.dst = v
	}

	if raw, ok := top["address"]; ok && !isJSONNull(raw) {
		addr, malformed := decodeAddress(raw)
		p.Address = addr
		p.Malformed = append(p.Malformed, malformed...)
	}

	if raw, ok := top["company"]; ok && !isJSONNull(raw) {
		var c CompanyInfo
		if err := json.Unmarshal(raw, &c); err != nil {
			p.Malformed = append(p.Malformed, "company")
		} else {
			p.Company = &c
		}
	}
	return p, nil
}

// decodeAddress decodes the address and its geo sub-object separately, so a
// bad geo keeps the street address.
func decodeAddress(raw json.RawMessage) (*Address, []string) {
	var shape struct {
		Street  string          `json:"street"`
		Suite   string          `json:"suite"`
		City    string          `json:"city"`
		Zipcode string          `json:"zipcode"`
		Geo     json.RawMessage `json:"geo"`
	}
	if err := json.Unmarshal(raw, &shape); err != nil {
		return nil, []string{"address"}
	}

	addr := &Address{Street: shape.Street, Suite: shape.Suite, City: shape.City, Zipcode: shape.Zipcode}
	if len(shape.Geo) == 0 || isJSONNull(shape.Geo) {
		return addr, nil
	}
	var g GeoPoint
	if err := json.Unmarshal(shape.Geo, &g); err != nil {
		return addr, []string{"address.geo"}
	}
	addr.Geo = &g
	return addr, nil
}

func isJSONNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// DecodeCustomers decodes a JSON array of customer payloads. Elements that
// do not decode are skipped and counted; a body that is not an array is an
// error.
func DecodeCustomers(data []byte) ([]CustomerPayload, int, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, 0, fmt.Errorf("%w: decode customer list: %v", ErrMalformedPayload, err)
	}
	out := make([]CustomerPayload, 0, len(raws))
	skipped := 0
	for _, raw := range raws {
		p, err := DecodeCustomer(raw)
		if err != nil {
			skipped++
			continue
		}
		out = append(out, p)
	}
	return out, skipped, nil
}

// NormalizeCustomer validates a payload and returns a copy with invalid
// sub-objects removed. The input is not modified.
func NormalizeCustomer(p CustomerPayload) (CustomerPayload, []Issue, error) {
	if err := validate.Struct(p); err != nil {
		if len(p.Malformed) > 0 {
			return CustomerPayload{}, nil, fmt.Errorf("%w: customer: %v (undecodable: %s)", ErrMalformedPayload, err, strings.Join(p.Malformed, ", "))
		}
		return CustomerPayload{}, nil, fmt.Errorf("%w: customer: %v", ErrMalformedPayload, err)
	}

	key := strconv.FormatInt(p.ID, 10)
	var issues []Issue

	for _, field := range p.Malformed {
		table := "customers"
		if field == "company" {
			table = "companies"
		}
		issues = append(issues, Issue{Kind: KindMalformedPayload, Table: table, Key: key, Reason: field + " did not decode"})
	}
	p.Malformed = nil

	if p.Company != nil {
		c := *p.Company
		if err := validate.Struct(c); err != nil {
			issues = append(issues, Issue{Kind: KindMalformedPayload, Table: "companies", Key: key, Reason: "company without name"})
			p.Company = nil
		} else {
			p.Company = &c
		}
	}

	if p.Address != nil {
		a := *p.Address
		if a.Geo != nil {
			g := *a.Geo
			if g.Lat == "" || g.Lng == "" {
				issues = append(issues, Issue{Kind: KindMalformedPayload, Table: "customers", Key: key, Reason: "geo without lat/lng"})
				a.Geo = nil
			} else {
				a.Geo = &g
			}
		}
		p.Address = &a
	}

	return p, issues, nil
}

// WeatherCoord is the coord sub-object of a weather payload.
type WeatherCoord struct {
	Lat OptionalFloat `json:"lat"`
	Lon OptionalFloat `json:"lon"`
}

// WeatherCondition is one element of the weather array.
type WeatherCondition struct {
	Main        string `json:"main"`
	Description string `json:"description"`
}

// WeatherMain is the main sub-object of a weather payload.
type WeatherMain struct {
	Temp     OptionalFloat `json:"temp"`
	Humidity OptionalFloat `json:"humidity"`
}

// WeatherPayload is a current-weather observation. Each sub-object is
// optional and decoded independently.
type WeatherPayload struct {
	Coord      *WeatherCoord      `json:"coord,omitempty"`
	Conditions []WeatherCondition `json:"weather,omitempty"`
	Main       *WeatherMain       `json:"main,omitempty"`
}

// DecodeWeather decodes a weather payload. Only a body that is not a JSON
// object is an error; malformed sub-objects decode as absent.
func DecodeWeather(data []byte) (WeatherPayload, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return WeatherPayload{}, fmt.Errorf("%w: decode weather: %v", ErrMalformedPayload, err)
	}
	if top == nil {
		return WeatherPayload{}, fmt.Errorf("%w: decode weather: null body", ErrMalformedPayload)
	}

	var p WeatherPayload
	if raw, ok := top["coord"]; ok {
		var c WeatherCoord
		if json.Unmarshal(raw, &c) == nil {
			p.Coord = &c
		}
	}
	if raw, ok := top["weather"]; ok {
		var conds []WeatherCondition
		if json.Unmarshal(raw, &conds) == nil {
			p.Conditions = conds
		}
	}
	if raw, ok := top["main"]; ok {
		var m WeatherMain
		if json.Unmarshal(raw, &m) == nil {
			p.Main = &m
		}
	}
	return p, nil
}

// Latitude returns coord.lat, or nil.
func (p *WeatherPayload) Latitude() *float64 {
	if p == nil || p.Coord == nil {
		return nil
	}
	return p.Coord.Lat.Ptr()
}

// Longitude returns coord.lon, or nil.
func (p *WeatherPayload) Longitude() *float64 {
	if p == nil || p.Coord == nil {
		return nil
	}
	return p.Coord.Lon.Ptr()
}

// Temperature returns main.temp, or nil.
func (p *WeatherPayload) Temperature() *float64 {
	if p == nil || p.Main == nil {
		return nil
	}
	return p.Main.Temp.Ptr()
}

// Humidity returns main.humidity rounded to an integer percentage, or nil.
func (p *WeatherPayload) Humidity() *int64 {
	if p == nil || p.Main == nil || !p.Main.Humidity.Valid {
		return nil
	}
	h := int64(math.Round(p.Main.Humidity.Value))
	return &h
}

// Condition returns the first weather condition's main and description.
func (p *WeatherPayload) Condition() (main, description string) {
	if p == nil || len(p.Conditions) == 0 {
		return "", ""
	}
	return p.Conditions[0].Main, p.Conditions[0].Description
}
