package audit

import (
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// GeoIPCountry resolves countries from a MaxMind country or city database.
type GeoIPCountry struct {
	db *geoip2.Reader
}

func OpenGeoIP(path string) (*GeoIPCountry, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip db: %w", err)
	}
	return &GeoIPCountry{db: db}, nil
}

func (g *GeoIPCountry) Country(ip string) string {
	if g == nil || g.db == nil {
		return ""
	}
	parsed := net.ParseIP(ip)
	if parsed == nil || parsed.IsLoopback() || parsed.IsPrivate() {
		return ""
	}
	rec, err := g.db.Country(parsed)
	if err != nil {
		return ""
	}
	return rec.Country.IsoCode
}

func (g *GeoIPCountry) Close() error {
	if g == nil || g.db == nil {
		return nil
	}
	return g.db.Close()
}
