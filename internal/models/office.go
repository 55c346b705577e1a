package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/paulmach/orb"
)

// Default map center for new offices (La Paz).
const (
	DefaultLatitude  = -16.5
	DefaultLongitude = -68.15
)

type Office struct {
	ID         string
	Name       string
	Address    string
	Department string
	City       string
	Zone       string
	Capacity   int
	Facilities string
	Latitude   float64
	Longitude  float64
	POIs       []POI
	Verdict    *RiskVerdict // nil until first evaluated
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// OfficeDetails holds the descriptive fields an office edit may change. A nil
// coordinate keeps the current one.
type OfficeDetails struct {
	Name       string
	Address    string
	Department string
	City       string
	Zone       string
	Capacity   int
	Facilities string
	Latitude   *float64
	Longitude  *float64
}

// Apply copies d onto o. POIs and verdict are left alone.
func (d OfficeDetails) Apply(o *Office) {
	o.Name = d.Name
	o.Address = d.Address
	o.Department = d.Department
	o.City = d.City
	o.Zone = d.Zone
	o.Capacity = d.Capacity
	o.Facilities = d.Facilities
	if d.Latitude != nil {
		o.Latitude = *d.Latitude
	}
	if d.Longitude != nil {
		o.Longitude = *d.Longitude
	}
}

// officeDocument is the stored shape. Verdict fields are flattened onto the
// record, matching documents written by earlier versions of the app.
type officeDocument struct {
	ID               string    `json:"id"`
	Name             string    `json:"nombre"`
	Address          string    `json:"direccion"`
	Department       string    `json:"departamento"`
	City             string    `json:"ciudad"`
	Zone             string    `json:"zona"`
	Capacity         int       `json:"aforo"`
	Facilities       string    `json:"instalaciones"`
	Latitude         float64   `json:"lat"`
	Longitude        float64   `json:"lng"`
	POIs             []POI     `json:"pois"`
	RiskTotal        string    `json:"riesgoTotal,omitempty"`
	RiskResidual     string    `json:"riesgoResidual,omitempty"`
	RiskGeographic   string    `json:"riesgoGeografico,omitempty"`
	ExistingControls []string  `json:"controlesExistentes,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

func (o Office) MarshalJSON() ([]byte, error) {
	doc := officeDocument{
		ID:         o.ID,
		Name:       o.Name,
		Address:    o.Address,
		Department: o.Department,
		City:       o.City,
		Zone:       o.Zone,
		Capacity:   o.Capacity,
		Facilities: o.Facilities,
		Latitude:   o.Latitude,
		Longitude:  o.Longitude,
		POIs:       o.POIs,
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	}
	if doc.POIs == nil {
		doc.POIs = []POI{}
	}
	if o.Verdict != nil {
		doc.RiskTotal = string(o.Verdict.Total)
		doc.RiskResidual = string(o.Verdict.Residual)
		doc.RiskGeographic = string(o.Verdict.Geographic)
		doc.ExistingControls = o.Verdict.Controls
	}
	return json.Marshal(doc)
}

func (o *Office) UnmarshalJSON(data []byte) error {
	var doc officeDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*o = Office{
		ID:         doc.ID,
		Name:       doc.Name,
		Address:    doc.Address,
		Department: doc.Department,
		City:       doc.City,
		Zone:       doc.Zone,
		Capacity:   doc.Capacity,
		Facilities: doc.Facilities,
		Latitude:   doc.Latitude,
		Longitude:  doc.Longitude,
		POIs:       doc.POIs,
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}
	if o.POIs == nil {
		o.POIs = []POI{}
	}
	if doc.RiskTotal != "" {
		controls := doc.ExistingControls
		if controls == nil {
			controls = []string{}
		}
		o.Verdict = &RiskVerdict{
			Total:      RiskLevel(doc.RiskTotal),
			Residual:   RiskLevel(doc.RiskResidual),
			Geographic: GeoRisk(doc.RiskGeographic),
			Controls:   controls,
		}
	}
	return nil
}

// Center returns the office position in orb's (lng, lat) order.
func (o *Office) Center() orb.Point {
	return orb.Point{o.Longitude, o.Latitude}
}

// Clone returns a deep copy; POIs and verdict are owned by the office and
// never shared between copies.
func (o Office) Clone() Office {
	out := o
	out.POIs = append([]POI(nil), o.POIs...)
	if out.POIs == nil {
		out.POIs = []POI{}
	}
	if o.Verdict != nil {
		v := o.Verdict.Clone()
		out.Verdict = &v
	}
	return out
}

func (o *Office) Validate() error {
	var errs []error
	if strings.TrimSpace(o.ID) == "" {
		errs = append(errs, fmt.Errorf("id is required"))
	}
	if strings.TrimSpace(o.Name) == "" {
		errs = append(errs, fmt.Errorf("nombre is required"))
	}
	if o.Capacity < 0 {
		errs = append(errs, fmt.Errorf("aforo must be >= 0, got %d", o.Capacity))
	}
	if err := validateCoordinates(o.Latitude, o.Longitude); err != nil {
		errs = append(errs, err)
	}
	seen := make(map[string]bool, len(o.POIs))
	for _, p := range o.POIs {
		if err := p.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if seen[p.ID] {
			errs = append(errs, fmt.Errorf("duplicate poi id %s", p.ID))
		}
		seen[p.ID] = true
	}
	if o.Verdict != nil {
		if _, ok := ParseRiskLevel(string(o.Verdict.Total)); !ok {
			errs = append(errs, fmt.Errorf("invalid riesgoTotal %q", o.Verdict.Total))
		}
		if _, ok := ParseRiskLevel(string(o.Verdict.Residual)); !ok {
			errs = append(errs, fmt.Errorf("invalid riesgoResidual %q", o.Verdict.Residual))
		}
		if _, ok := ParseGeoRisk(string(o.Verdict.Geographic)); !ok {
			errs = append(errs, fmt.Errorf("invalid riesgoGeografico %q", o.Verdict.Geographic))
		}
	}
	return errors.Join(errs...)
}
