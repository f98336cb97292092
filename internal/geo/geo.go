// Package geo resolves exit IPs to countries with a local MaxMind database.
package geo

import (
	"net"
	"sync"

	"github.com/oschwald/geoip2-golang"

	"github.com/ResistanceIsUseless/BlockHawk/internal/errors"
)

// Resolver looks up ISO country codes in a GeoIP2 or GeoLite2 Country (or
// City) database. It is safe for concurrent use.
type Resolver struct {
	db   *geoip2.Reader
	path string
	once sync.Once
}

// Open loads the database at path.
func Open(path string) (*Resolver, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, errors.NewFileError(errors.ErrorFileReadFailed, "cannot open GeoIP database", path, err)
	}
	return &Resolver{db: db, path: path}, nil
}

// Country returns the ISO code for ip, or "" when ip is not an address or
// the database has no record for it.
func (r *Resolver) Country(ip string) string {
	if r == nil || r.db == nil {
		return ""
	}
	addr := net.ParseIP(ip)
	if addr == nil {
		return ""
	}
	record, err := r.db.Country(addr)
	if err != nil || record == nil {
		return ""
	}
	return record.Country.IsoCode
}

// Path is the database file the resolver was opened from.
func (r *Resolver) Path() string {
	return r.path
}

// Close releases the database. Calling it again is a no-op.
func (r *Resolver) Close() error {
	var err error
	r.once.Do(func() {
		err = r.db.Close()
	})
	return err
}
