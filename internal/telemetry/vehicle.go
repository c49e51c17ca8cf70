package telemetry

// Vehicle is the public view of a position row.
type Vehicle struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	LastUpdate string          `json:"lastUpdate"`
	Location   VehicleLocation `json:"location"`
	Status     VehicleStatus   `json:"status"`
}

type VehicleLocation struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address"`
}

type VehicleStatus struct {
	Speed    float64 `json:"speed"`
	Unit     string  `json:"unit"`
	Heading  float64 `json:"heading"`
	Ignition bool    `json:"ignition"`
	Engine   string  `json:"engine"`
}

// Vehicles translates the provider payload. A missing position list yields an
// empty, non-nil slice.
func (r *PositionsResponse) Vehicles() []Vehicle {
	if r == nil {
		return []Vehicle{}
	}
	vehicles := make([]Vehicle, 0, len(r.Result.Position))
	for _, p := range r.Result.Position {
		v := Vehicle{
			Location: VehicleLocation{
				Lat:     p.Latitude,
				Lng:     p.Longitude,
				Address: p.Address,
			},
			Status: VehicleStatus{
				Speed:    p.Speed,
				Unit:     p.SpeedMeasure,
				Heading:  p.Heading,
				Ignition: p.Ignition == "ON",
				Engine:   p.EngineStatus,
			},
		}
		if p.Unit != nil {
			v.ID = p.Unit.UID
			v.Name = p.Unit.Name
			v.LastUpdate = p.Unit.LastReportedTimeUTC
		}
		vehicles = append(vehicles, v)
	}
	return vehicles
}
