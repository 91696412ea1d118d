package relay

import "time"

// heartbeatWindow is how far in the past a session/machine heartbeat's
// client-supplied time may be before it's ignored outright (§5: "Session/
// machine heartbeats older than 10 minutes are ignored", §8 invariant 8).
const heartbeatWindow = 10 * time.Minute

// clampHeartbeatTime validates a client-supplied heartbeat timestamp
// (epoch milliseconds). A time too far in the future is clamped to now;
// a time too far in the past is rejected (§4.5: "time within ±10
// minutes of now, clamped to now if in future, ignored if too old").
func clampHeartbeatTime(clientTimeMs int64) (activeAtMs int64, ok bool) {
	now := time.Now()
	clientTime := msToTime(clientTimeMs)

	if clientTime.Before(now.Add(-heartbeatWindow)) {
		return 0, false
	}
	if clientTime.After(now) {
		return now.UnixMilli(), true
	}
	return clientTimeMs, true
}

func msToTime(ms int64) time.Time {
	return time.UnixMilli(ms)
}
