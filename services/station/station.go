// Package station runs the command station: it builds the configured tracks
// on a board, paces their waveforms from the board timers and serves the
// submission and status boundaries on the bus.
package station

import (
	"context"
	"time"

	"commandstation-go/bus"
	"commandstation-go/errcode"
	"commandstation-go/services/station/internal/platform"
	"commandstation-go/services/station/internal/power"
	"commandstation-go/services/station/internal/setups"
	"commandstation-go/services/station/internal/track"
	"commandstation-go/types"
	"commandstation-go/x/timex"
)

// -----------------------------------------------------------------------------
// Entry point
// -----------------------------------------------------------------------------

// Run builds the selected setup on the default board and serves it until ctx
// is cancelled.
func Run(ctx context.Context, conn *bus.Connection) {
	s, err := New(conn, platform.Default(), setups.SelectedSetup, &track.Default)
	if err != nil {
		println("[station] setup failed:", err.Error())
		s.pubState("error", string(errcode.Of(err)))
		return
	}
	if err := s.Start(ctx); err != nil {
		println("[station] start failed:", err.Error())
		s.pubState("error", string(errcode.Of(err)))
		return
	}
	s.Run(ctx)
}

// SelectedBoard names the board wiring this build was made for.
func SelectedBoard() string { return setups.SelectedSetup.Board }

// -----------------------------------------------------------------------------
// Station
// -----------------------------------------------------------------------------

const statusRefresh = time.Second

type Station struct {
	conn  *bus.Connection
	board platform.Board
	cfg   types.StationConfig
	reg   *track.Registry

	last [track.MaxTracks]types.TrackStatus
	sent [track.MaxTracks]bool
}

// New builds one track per configured role and registers it in reg. On error
// the returned Station can still publish state but has no tracks.
func New(conn *bus.Connection, board platform.Board, cfg types.StationConfig, reg *track.Registry) (*Station, error) {
	s := &Station{conn: conn, board: board, cfg: cfg, reg: reg}
	if s.cfg.LoopInterval <= 0 {
		s.cfg.LoopInterval = time.Millisecond
	}
	if len(cfg.Tracks) == 0 || len(cfg.Tracks) > int(track.MaxTracks) {
		return s, errcode.Invalid("station", "expected one or two tracks")
	}

	var built []*track.Track
	for _, tc := range cfg.Tracks {
		id := track.IDFor(tc.Role)
		if reg.Get(id) != nil || contains(built, id) {
			return s, errcode.Invalid("station", "two tracks share role "+tc.Role.String())
		}
		hw, err := board.Hardware(int(id), tc)
		if err != nil {
			return s, err
		}
		t, err := track.New(id, tc, hw)
		if err != nil {
			return s, &errcode.E{C: errcode.Of(err), Op: "station", Msg: "track " + tc.Role.String(), Err: err}
		}
		built = append(built, t)
	}
	for _, t := range built {
		reg.Register(t)
	}
	return s, nil
}

func contains(ts []*track.Track, id track.ID) bool {
	for _, t := range ts {
		if t.ID() == id {
			return true
		}
	}
	return false
}

// Start configures every track and hands the timers to the board. Tracks
// come up unpowered.
func (s *Station) Start(ctx context.Context) error {
	var err error
	s.reg.Each(func(t *track.Track) {
		if err == nil {
			err = t.Start()
		}
	})
	if err != nil {
		return err
	}
	reg := s.reg
	return s.board.Start(ctx, func(slot int) { reg.Dispatch(track.ID(slot)) })
}

// Registry exposes the tracks this station serves.
func (s *Station) Registry() *track.Registry { return s.reg }

// -----------------------------------------------------------------------------
// Main loop
// -----------------------------------------------------------------------------

// Run is the cooperative main loop: power supervision and status on every
// tick, control requests as they arrive.
func (s *Station) Run(ctx context.Context) {
	trackSub := s.conn.Subscribe(trackCtrlWildcard())
	defer s.conn.Unsubscribe(trackSub)
	stationSub := s.conn.Subscribe(stationCtrlWildcard())
	defer s.conn.Unsubscribe(stationSub)

	tick := time.NewTicker(s.cfg.LoopInterval)
	defer tick.Stop()

	println("[station] running on", s.board.Name())
	s.pubState("running", "ok")
	s.poll()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return
		case <-tick.C:
			s.poll()
		case m := <-trackSub.Channel():
			s.handleTrackControl(m)
		case m := <-stationSub.Channel():
			s.handleStationControl(m)
		}
	}
}

// poll runs each track's supervisor and publishes what changed.
func (s *Station) poll() {
	s.reg.Each(func(t *track.Track) {
		switch t.Check() {
		case power.TripEdge:
			ma := t.CurrentMA()
			println("[station]", t.Name(), "overcurrent trip at", ma, "mA")
			s.conn.Publish(s.conn.NewMessage(
				trackTrip(t.Name()),
				types.TripEvent{Track: t.Name(), CurrentMA: ma, TSms: s.board.Clock().NowMs()},
				false,
			))
		case power.RetryEdge:
			println("[station]", t.Name(), "power retry")
		}
		s.pubStatus(t)
	})
}

// pubStatus publishes t's retained status when any field other than the
// timestamp has changed since the last publication, and at least every
// statusRefresh otherwise.
func (s *Station) pubStatus(t *track.Track) {
	st := t.Status()
	prev := s.last[t.ID()]
	stale := timex.Every(st.TSms, prev.TSms, statusRefresh)
	prev.TSms = st.TSms
	if s.sent[t.ID()] && prev == st && !stale {
		return
	}
	s.last[t.ID()], s.sent[t.ID()] = st, true
	s.conn.Publish(s.conn.NewMessage(trackStatus(t.Name()), st, true))
}

func (s *Station) pubState(level, status string) {
	var ts int64
	if s.board != nil {
		ts = s.board.Clock().NowMs()
	}
	s.conn.Publish(s.conn.NewMessage(
		topicState(),
		types.StationState{Level: level, Status: status, TSms: ts},
		true,
	))
}

func (s *Station) shutdown() {
	s.reg.Each(func(t *track.Track) {
		t.SetPower(false)
		s.pubStatus(t)
	})
	s.pubState("stopped", "ok")
	println("[station] stopped")
}

// -----------------------------------------------------------------------------
// Control
// -----------------------------------------------------------------------------

func (s *Station) handleTrackControl(m *bus.Message) {
	// station/track/<name>/control/<verb>
	if m.Topic.Len() != 5 {
		s.replyErr(m, errcode.InvalidTopic)
		return
	}
	name, _ := m.Topic.At(2).(string)
	verb, _ := m.Topic.At(4).(string)

	t := s.reg.Lookup(name)
	if t == nil {
		s.replyErr(m, errcode.UnknownTrack)
		return
	}
	if verb == "status" {
		if m.CanReply() {
			s.conn.Reply(m, t.Status(), false)
		}
		return
	}
	err := s.control(t, verb, m.Payload)
	s.replyFromError(m, err)
	if err == nil {
		s.pubStatus(t)
	}
}

func (s *Station) control(t *track.Track, verb string, payload any) error {
	switch verb {
	case "enqueue":
		p, err := As[types.PacketSubmit](payload)
		if err != nil {
			return err
		}
		return t.Enqueue(p.Bytes, p.Repeats)
	case "refresh":
		p, err := As[types.RefreshSet](payload)
		if err != nil {
			return err
		}
		return t.Refresh(p.Register, p.Bytes)
	case "forget":
		p, err := As[types.RefreshClear](payload)
		if err != nil {
			return err
		}
		return t.Forget(p.Register)
	case "power":
		p, err := As[types.PowerSet](payload)
		if err != nil {
			return err
		}
		t.SetPower(p.On)
		println("[station]", t.Name(), "power", onOff(p.On))
		return nil
	case "brake":
		p, err := As[types.BrakeSet](payload)
		if err != nil {
			return err
		}
		return t.SetBrake(p.On)
	case "estop":
		println("[station]", t.Name(), "emergency stop")
		return t.EmergencyStop()
	}
	return errcode.Unsupported
}

// handleStationControl applies power and estop to every track.
func (s *Station) handleStationControl(m *bus.Message) {
	// station/control/<verb>
	verb, _ := m.Topic.At(2).(string)
	switch verb {
	case "power", "estop":
	default:
		s.replyErr(m, errcode.Unsupported)
		return
	}
	var first error
	s.reg.Each(func(t *track.Track) {
		if err := s.control(t, verb, m.Payload); err != nil && first == nil {
			first = err
		}
		s.pubStatus(t)
	})
	s.replyFromError(m, first)
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
