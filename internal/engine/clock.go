package engine

import "time"

// Clock abstracts wall time so tests can drive the tick loop
// deterministically.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// KST is the calendar zone for daily records. Driver-days roll over at
// Korean midnight regardless of the device's zone.
var KST = time.FixedZone("KST", 9*60*60)
