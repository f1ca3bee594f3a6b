// Package monitor watches the station's status boundary and logs power
// changes, trips and a periodic per-track summary.
package monitor

import (
	"context"
	"sort"
	"sync"
	"time"

	"commandstation-go/bus"
	"commandstation-go/types"
)

var (
	topicConfigMonitor = bus.T("config", "monitor")
	topicStationState  = bus.T("station", "state")
	topicTrackStatus   = bus.T("station", "track", "+", "status")
	topicTrackTrip     = bus.T("station", "track", "+", "event", "trip")
)

const defaultInterval = 10 * time.Second

type Service struct {
	Interval time.Duration // summary period; 0 => 10s

	mu     sync.Mutex
	state  types.StationState
	tracks map[string]types.TrackStatus
	trips  map[string]int
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfigMonitor)
	defer conn.Unsubscribe(cfgSub)
	stateSub := conn.Subscribe(topicStationState)
	defer conn.Unsubscribe(stateSub)
	statusSub := conn.Subscribe(topicTrackStatus)
	defer conn.Unsubscribe(statusSub)
	tripSub := conn.Subscribe(topicTrackTrip)
	defer conn.Unsubscribe(tripSub)

	interval := s.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			println("[monitor] stopping")
			return
		case <-tick.C:
			s.summary()
		case msg := <-stateSub.Channel():
			if st, ok := msg.Payload.(types.StationState); ok {
				s.mu.Lock()
				s.state = st
				s.mu.Unlock()
				println("[monitor] station", st.Level, st.Status)
			}
		case msg := <-statusSub.Channel():
			if st, ok := msg.Payload.(types.TrackStatus); ok {
				s.onStatus(st)
			}
		case msg := <-tripSub.Channel():
			if ev, ok := msg.Payload.(types.TripEvent); ok {
				s.mu.Lock()
				s.trips[ev.Track]++
				n := s.trips[ev.Track]
				s.mu.Unlock()
				println("[monitor] trip on", ev.Track, "at", ev.CurrentMA, "mA, count", n)
			}
		case msg := <-cfgSub.Channel():
			// Change summary interval if needed
			if m, ok := msg.Payload.(map[string]any); ok {
				if iv, ok := m["interval"]; ok {
					if secs, ok := iv.(float64); ok && secs > 0 {
						tick.Reset(time.Duration(secs * float64(time.Second)))
						println("[monitor] summary interval set to", secs, "seconds")
					}
				}
			}
		}
	}
}

// onStatus records st and logs power transitions.
func (s *Service) onStatus(st types.TrackStatus) {
	s.mu.Lock()
	prev, seen := s.tracks[st.Track]
	s.tracks[st.Track] = st
	s.mu.Unlock()

	if seen && prev.Powered == st.Powered && prev.Tripped == st.Tripped {
		return
	}
	switch {
	case st.Tripped:
		println("[monitor]", st.Track, "tripped")
	case st.Powered:
		println("[monitor]", st.Track, "power on")
	default:
		println("[monitor]", st.Track, "power off")
	}
}

func (s *Service) summary() {
	s.mu.Lock()
	names := make([]string, 0, len(s.tracks))
	for n := range s.tracks {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		st := s.tracks[n]
		println("[monitor]", n, "powered", st.Powered, "current", st.CurrentMA, "mA pending", st.Pending,
			"active", st.Active, "trips", st.Trips, "refused", st.Refused)
	}
	s.mu.Unlock()
}

// Track returns the last status seen for name.
func (s *Service) Track(name string) (types.TrackStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.tracks[name]
	return st, ok
}

// Trips counts trip events seen for name since Start.
func (s *Service) Trips(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trips[name]
}

func (s *Service) State() types.StationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start the monitor service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	s.mu.Lock()
	s.tracks = map[string]types.TrackStatus{}
	s.trips = map[string]int{}
	s.mu.Unlock()
	go s.serviceLoop(ctx, conn)
	return nil
}
