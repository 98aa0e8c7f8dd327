package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	PointType           = "Point"
	MaxStationNameLen   = 100
	MaxAddressLen       = 255
	MaxConnectorTypeLen = 100
	MinPowerOutputKW    = 0.1
	earthRadiusKM       = 6371.0

	StatusActive      = "Active"
	StatusInactive    = "Inactive"
	StatusMaintenance = "Under Maintenance"
	StatusComingSoon  = "Coming Soon"
)

// Statuses lists every accepted station status in display order.
var Statuses = []string{StatusActive, StatusInactive, StatusMaintenance, StatusComingSoon}

// Location is a GeoJSON point. Coordinates are [longitude, latitude].
type Location struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
	Address     string     `json:"address,omitempty"`
}

func (l Location) Longitude() float64 { return l.Coordinates[0] }
func (l Location) Latitude() float64  { return l.Coordinates[1] }

// OwnerRef identifies the user who created a station. Listings populate the
// owner's email and it serialises as {"_id","email"}; elsewhere it is the bare id.
type OwnerRef struct {
	ID    string
	Email string
}

func (o OwnerRef) MarshalJSON() ([]byte, error) {
	if o.Email == "" {
		return json.Marshal(o.ID)
	}
	return json.Marshal(struct {
		ID    string `json:"_id"`
		Email string `json:"email"`
	}{o.ID, o.Email})
}

func (o *OwnerRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &o.ID)
	}
	var populated struct {
		ID    string `json:"_id"`
		Email string `json:"email"`
	}
	if err := json.Unmarshal(data, &populated); err != nil {
		return err
	}
	o.ID, o.Email = populated.ID, populated.Email
	return nil
}

// Station is a charging station record.
type Station struct {
	ID            string    `json:"_id"`
	Name          string    `json:"name"`
	Location      Location  `json:"location"`
	Status        string    `json:"status"`
	PowerOutput   float64   `json:"powerOutput"`
	ConnectorType string    `json:"connectorType"`
	CreatedBy     OwnerRef  `json:"createdBy"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// StationInput is the client payload for create and partial update. It has no
// owner field; the owner always comes from the authenticated identity.
type StationInput struct {
	Name          *string        `json:"name"`
	Location      *LocationInput `json:"location"`
	Status        *string        `json:"status"`
	PowerOutput   *float64       `json:"powerOutput"`
	ConnectorType *string        `json:"connectorType"`
}

type LocationInput struct {
	Type        *string   `json:"type"`
	Coordinates []float64 `json:"coordinates"`
	Address     *string   `json:"address"`
}

// NewStation builds a station from a create payload, applying defaults.
func NewStation(in StationInput) (*Station, error) {
	s := &Station{
		Status:   StatusActive,
		Location: Location{Type: PointType},
	}
	if in.Location == nil || in.Location.Coordinates == nil {
		return nil, &ValidationError{Messages: []string{"Please provide coordinates (longitude, latitude)"}}
	}
	problems := s.merge(in)
	problems = append(problems, s.problems(in.PowerOutput == nil)...)
	if len(problems) > 0 {
		return nil, &ValidationError{Messages: problems}
	}
	return s, nil
}

// Apply merges the non-nil fields of in onto s and validates the result.
// Location subfields merge individually.
func (s *Station) Apply(in StationInput) error {
	problems := s.merge(in)
	problems = append(problems, s.problems(false)...)
	if len(problems) > 0 {
		return &ValidationError{Messages: problems}
	}
	return nil
}

func (s *Station) merge(in StationInput) []string {
	var problems []string

	if in.Name != nil {
		s.Name = strings.TrimSpace(*in.Name)
	}
	if in.Status != nil {
		s.Status = *in.Status
	}
	if in.PowerOutput != nil {
		s.PowerOutput = *in.PowerOutput
	}
	if in.ConnectorType != nil {
		s.ConnectorType = strings.TrimSpace(*in.ConnectorType)
	}
	if loc := in.Location; loc != nil {
		if loc.Type != nil {
			s.Location.Type = *loc.Type
		}
		if loc.Coordinates != nil {
			if len(loc.Coordinates) != 2 {
				problems = append(problems, "Location coordinates must be an array of two numbers: [longitude, latitude]")
			} else {
				s.Location.Coordinates = [2]float64{loc.Coordinates[0], loc.Coordinates[1]}
			}
		}
		if loc.Address != nil {
			s.Location.Address = strings.TrimSpace(*loc.Address)
		}
	}
	return problems
}

// problems runs every field rule. powerMissing is set when a create payload
// carried no power output at all.
func (s *Station) problems(powerMissing bool) []string {
	var p []string
	if s.Name == "" {
		p = append(p, "Please provide a station name")
	} else if utf8.RuneCountInString(s.Name) > MaxStationNameLen {
		p = append(p, fmt.Sprintf("Station name cannot be more than %d characters", MaxStationNameLen))
	}
	if s.Location.Type != PointType {
		p = append(p, "Location type must be 'Point'")
	}
	if !ValidCoordinates(s.Location.Longitude(), s.Location.Latitude()) {
		p = append(p, "Coordinates must be an array of two numbers: [longitude, latitude] within valid range.")
	}
	if utf8.RuneCountInString(s.Location.Address) > MaxAddressLen {
		p = append(p, fmt.Sprintf("Address cannot be more than %d characters", MaxAddressLen))
	}
	if !ValidStatus(s.Status) {
		p = append(p, fmt.Sprintf("%s is not a supported status. Supported statuses are: %s.", s.Status, strings.Join(Statuses, ", ")))
	}
	if powerMissing {
		p = append(p, "Please specify the power output in kW")
	} else if math.IsNaN(s.PowerOutput) || s.PowerOutput < MinPowerOutputKW {
		p = append(p, "Power output must be a positive value")
	}
	if s.ConnectorType == "" {
		p = append(p, "Please specify the connector type")
	} else if utf8.RuneCountInString(s.ConnectorType) > MaxConnectorTypeLen {
		p = append(p, fmt.Sprintf("Connector type cannot be more than %d characters", MaxConnectorTypeLen))
	}
	return p
}

func ValidCoordinates(lng, lat float64) bool {
	return lng >= -180 && lng <= 180 && lat >= -90 && lat <= 90
}

func ValidStatus(status string) bool {
	for _, s := range Statuses {
		if s == status {
			return true
		}
	}
	return false
}

// DistanceKM returns the great-circle distance between two points in kilometres.
func DistanceKM(lng1, lat1, lng2, lat2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKM * math.Asin(math.Min(1, math.Sqrt(a)))
}

// ValidationError collects every failed field rule.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Messages))
	for i, m := range e.Messages {
		msgs[i] = strings.TrimSuffix(m, ".")
	}
	return "Invalid input data. " + strings.Join(msgs, ". ")
}

// ListFilter narrows a station listing. The zero value lists everything.
type ListFilter struct {
	OwnerID       string
	Near          *[2]float64
	MaxDistanceKM float64
}
