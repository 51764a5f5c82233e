package chrono

import "time"

// API is the source of the current time and of the timezone portal
// timestamps are rendered in.
//
// note: fault injection point
type API interface {
	Now() time.Time
	Location() *time.Location
}

type StandardImpl struct {
	location *time.Location
}

// NewStandardImpl loads the named IANA timezone, an empty name means UTC.
func NewStandardImpl(tz string) (StandardImpl, error) {
	if tz == "" {
		return StandardImpl{location: time.UTC}, nil
	}
	location, err := time.LoadLocation(tz)
	if err != nil {
		return StandardImpl{}, err
	}
	return StandardImpl{location: location}, nil
}

func (s StandardImpl) Now() time.Time {
	return time.Now().In(s.location)
}

func (s StandardImpl) Location() *time.Location {
	return s.location
}

// FixedImpl always reports the same time, for tests.
type FixedImpl struct {
	Time time.Time
}

func (f FixedImpl) Now() time.Time {
	return f.Time
}

func (f FixedImpl) Location() *time.Location {
	return f.Time.Location()
}
