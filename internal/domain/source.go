package domain

import "context"

// CustomerSource looks up customer profiles by id. Implementations return
// an error wrapping ErrNotFound when the id is unknown.
type CustomerSource interface {
	FetchCustomer(ctx context.Context, id int64) (CustomerPayload, error)
}

// WeatherSource looks up the current weather at a location. Any error means
// the observation is absent for that location.
type WeatherSource interface {
	FetchWeather(ctx context.Context, geo GeoPoint) (WeatherPayload, error)
}

// CustomerDirectory is an in-memory CustomerSource, typically filled from a
// single bulk fetch of every customer.
type CustomerDirectory map[int64]CustomerPayload

// NewCustomerDirectory indexes payloads by id. The first payload for an id wins.
func NewCustomerDirectory(payloads []CustomerPayload) CustomerDirectory {
	dir := make(CustomerDirectory, len(payloads))
	for _, p := range payloads {
		if _, ok := dir[p.ID]; ok {
			continue
		}
		dir[p.ID] = p
	}
	return dir
}

func (d CustomerDirectory) FetchCustomer(_ context.Context, id int64) (CustomerPayload, error) {
	p, ok := d[id]
	if !ok {
		return CustomerPayload{}, ErrNotFound
	}
	return p, nil
}
