package route

// Stop is one job location presented to the solver.
type Stop struct {
	JobID       string  `json:"job_id"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	ServiceMins int     `json:"service_mins"`
	WindowStart string  `json:"window_start,omitempty"` // HH:MM
	WindowEnd   string  `json:"window_end,omitempty"`
}

// VehicleProfile carries the constraints derived from preferences.
type VehicleProfile struct {
	CapacityKg     float64 `json:"capacity_kg"`
	MaxDistanceKm  float64 `json:"max_distance_km"`
	StartLatitude  float64 `json:"start_latitude"`
	StartLongitude float64 `json:"start_longitude"`
	DepartureTime  string  `json:"departure_time"` // HH:MM
}

// Request is the solver input.
type Request struct {
	Stops   []Stop         `json:"stops"`
	Vehicle VehicleProfile `json:"vehicle"`
	Date    string         `json:"date"`
}

// Waypoint is one ordered visit in the solved route.
type Waypoint struct {
	Seq           int     `json:"seq"`
	JobID         string  `json:"job_id"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	ArrivalTime   string  `json:"arrival_time"`   // HH:MM
	DepartureTime string  `json:"departure_time"` // HH:MM
	LegMins       int     `json:"leg_mins"`
	LegKm         float64 `json:"leg_km"`
}

// Result is the route stage output embedded in the plan record.
type Result struct {
	Waypoints []Waypoint `json:"waypoints"`
	TotalKm   float64    `json:"total_km"`
	TotalMins int        `json:"total_mins"`
	Reasoning string     `json:"reasoning"`
}
