package types

// ---- Station state (retained) ----

type StationState struct {
	Level  string `json:"level"`  // "idle", "running", "stopped", "error"
	Status string `json:"status"` // freeform short code
	TSms   int64  `json:"ts_ms"`
}

// ---- Track status (retained) ----

// TrackStatus is published under station/track/<name>/status whenever one of
// its fields changes.
type TrackStatus struct {
	Track     string `json:"track"`
	Powered   bool   `json:"powered"`
	Tripped   bool   `json:"tripped"`
	Braking   bool   `json:"braking"`
	CurrentMA int32  `json:"current_ma"`
	Trips     uint32 `json:"trips"`
	Refused   uint32 `json:"refused"` // malformed packets the encoder skipped
	Pending   int    `json:"pending"` // one-shot packets waiting
	Active    int    `json:"active"`  // refresh registers in use
	TSms      int64  `json:"ts_ms"`
}

// TripEvent is published (non-retained) on each Normal -> Tripped edge.
type TripEvent struct {
	Track     string `json:"track"`
	CurrentMA int32  `json:"current_ma"`
	TSms      int64  `json:"ts_ms"`
}

// ---- Control payloads (station/track/<name>/control/<verb>) ----

// PacketSubmit queues a one-shot packet. Bytes include the checksum.
// Repeats of 0 means once.
type PacketSubmit struct {
	Bytes   []byte `json:"bytes"`
	Repeats uint8  `json:"repeats,omitempty"`
}

// RefreshSet loads a packet into a refresh register (1..N).
type RefreshSet struct {
	Register int    `json:"register"`
	Bytes    []byte `json:"bytes"`
}

type RefreshClear struct {
	Register int `json:"register"` // 0 clears every register
}

type PowerSet struct {
	On bool `json:"on"`
}

type BrakeSet struct {
	On bool `json:"on"`
}

// Generic replies
type OKReply struct {
	OK bool `json:"ok"`
}
type ErrorReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}
