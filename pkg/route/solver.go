package route

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// Solver plans a visiting order with timing for a set of stops.
//
// Preconditions: every stop has coordinates and a non-negative service
// time; the request carries at least one stop. Postconditions: the result
// contains one waypoint per stop with strictly increasing Seq starting at
// 1, arrival before departure at every waypoint, and aggregate totals
// consistent with the per-leg values. A real time-windowed capacitated
// VRP engine can be substituted here without touching the orchestrator.
type Solver interface {
	Solve(ctx context.Context, req Request) (*Result, error)
}

// StandInSolver is a deterministic stand-in, not a real VRP solver: it
// keeps the given stop order and derives leg times from straight-line
// distance at an assumed average speed.
type StandInSolver struct {
	// AvgSpeedKmh is the assumed travel speed. Zero means 35 km/h.
	AvgSpeedKmh float64
}

// Solve fabricates waypoint timings for the stops in their given order.
func (m *StandInSolver) Solve(_ context.Context, req Request) (*Result, error) {
	if len(req.Stops) == 0 {
		return nil, errors.New("no stops to route")
	}

	speed := m.AvgSpeedKmh
	if speed <= 0 {
		speed = 35
	}

	departure, err := time.Parse("15:04", req.Vehicle.DepartureTime)
	if err != nil {
		departure, _ = time.Parse("15:04", "08:00")
	}

	prevLat, prevLon := req.Vehicle.StartLatitude, req.Vehicle.StartLongitude
	cursor := departure

	var (
		waypoints []Waypoint
		totalKm   float64
		totalMins int
	)

	for i, stop := range req.Stops {
		legKm := haversineKm(prevLat, prevLon, stop.Latitude, stop.Longitude)
		legMins := int(math.Ceil(legKm / speed * 60))

		arrival := cursor.Add(time.Duration(legMins) * time.Minute)
		depart := arrival.Add(time.Duration(stop.ServiceMins) * time.Minute)

		waypoints = append(waypoints, Waypoint{
			Seq:           i + 1,
			JobID:         stop.JobID,
			Latitude:      stop.Latitude,
			Longitude:     stop.Longitude,
			ArrivalTime:   arrival.Format("15:04"),
			DepartureTime: depart.Format("15:04"),
			LegMins:       legMins,
			LegKm:         round1(legKm),
		})

		totalKm += legKm
		totalMins += legMins + stop.ServiceMins
		prevLat, prevLon = stop.Latitude, stop.Longitude
		cursor = depart
	}

	return &Result{
		Waypoints: waypoints,
		TotalKm:   round1(totalKm),
		TotalMins: totalMins,
		Reasoning: fmt.Sprintf("Visited %d stops in dispatch order at an assumed %.0f km/h", len(req.Stops), speed),
	}, nil
}

// haversineKm is the great-circle distance between two coordinates.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKm = 6371

	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
