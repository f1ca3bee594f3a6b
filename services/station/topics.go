package station

import "commandstation-go/bus"

func T(tokens ...bus.Token) bus.Topic { return bus.T(tokens...) }

func topicState() bus.Topic { return T("station", "state") }

// station/track/<name>/...
func trackBase(name string) bus.Topic { return T("station", "track", name) }

func trackStatus(name string) bus.Topic { return trackBase(name).Append("status") }
func trackTrip(name string) bus.Topic   { return trackBase(name).Append("event", "trip") }

// station/track/<name>/control/<verb>
func trackCtrl(name, verb string) bus.Topic { return trackBase(name).Append("control", verb) }

// station/track/+/control/+
func trackCtrlWildcard() bus.Topic { return T("station", "track", "+", "control", "+") }

// station/control/<verb> acts on every track.
func stationCtrl(verb string) bus.Topic { return T("station", "control", verb) }

func stationCtrlWildcard() bus.Topic { return T("station", "control", "+") }
