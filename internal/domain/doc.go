// Package domain models denormalized sales records and the normalized
// relational entities derived from them.
//
// # Data Source
//
// Sales rows arrive as a flat CSV with one row per order line:
//
//	order_id,customer_id,product_id,quantity,price,order_date
//	2334,5,40,3,35.6,2022-06-21
//
// Each row is enriched with two externally sourced payloads:
//
//   - a customer profile keyed by customer_id, carrying a nested address
//     (with geo coordinates) and a nested company;
//   - a current-weather observation keyed by the customer's geo coordinates.
//
// # Absence
//
// Every nesting level is optional. A missing customer, a customer without an
// address, an address without geo coordinates, a customer without a company,
// and a missing weather observation are all valid states represented by nil
// pointers. Absence is reported as an [Issue] and never fails a run.
//
// Coordinates are kept as the decimal strings the customer source returns.
// Two coordinate pairs are the same location only when both strings match, so
// "-31.8129" and "-31.81290" are looked up separately. This keeps the
// per-location weather lookup free of float formatting surprises.
//
// # Projection
//
// Enriched records are projected into five entity collections:
//
//	Company        natural key (name, catch_phrase, bs); surrogate id assigned by the store
//	Customer       customer_id; first occurrence wins
//	Product        product_id; first observed price wins
//	Order          order_id; conflicting duplicates are a [DataIntegrityError]
//	WeatherRecord  one per order with a weather payload; deterministic id
//
// Companies are deduplicated on the full tuple, so two companies sharing a
// name but differing in tagline remain distinct rows. Customers reference a
// company by name only; the store resolves that name to the lowest matching
// company id.
//
// # ID Generation
//
// Weather record IDs are deterministic SHA-256 hashes of
// order|customer|lat|lng|date. Re-running the pipeline over the same input
// produces the same IDs, which lets the store skip rows it already holds
// (ON CONFLICT DO NOTHING). See [weatherID].
package domain
