package engine

import "truckvoice-backend/internal/models"

// AlertConfig controls the driving-time alert cycle. Disabling alerts
// suppresses notifications only; accounting is unaffected.
type AlertConfig struct {
	Enabled         bool
	IntervalMinutes int
}

// DefaultAlertConfig matches the regulatory 2-hour guidance cycle.
var DefaultAlertConfig = AlertConfig{Enabled: true, IntervalMinutes: 120}

type AlertKind string

const (
	AlertPre  AlertKind = "pre"  // approaching the boundary, plan a stop
	AlertMain AlertKind = "main" // boundary reached, rest now
)

// Alert is one fired notification. DrivingSeconds is the total driving
// time at the moment it fired.
type Alert struct {
	Kind           AlertKind
	DrivingSeconds int64
}

// Tolerance before the cycle boundary within which the main alert fires,
// so a driver is not told to rest one tick after the boundary passed.
const mainAlertToleranceSeconds int64 = 60

// preAlertOffsetMinutes returns where in the cycle the pre-alert sits.
// Short cycles warn 10 minutes before the boundary; the standard
// intervals use their conventional offsets.
func preAlertOffsetMinutes(intervalMinutes int) int {
	switch intervalMinutes {
	case 30:
		return 20
	case 60:
		return 50
	case 90:
		return 80
	case 120:
		return 110
	default:
		offset := intervalMinutes - 10
		if offset < 1 {
			offset = 1
		}
		return offset
	}
}

// checkAlerts fires edge-triggered pre and main alerts against total
// driving seconds. The last-fired markers hold the absolute total at
// fire time, so a marker before the current trigger point means this
// cycle has not alerted yet.
func (e *Engine) checkAlerts(totalDriving int64) {
	if !e.alertCfg.Enabled || e.state != models.StateDriving {
		return
	}
	cycle := int64(e.alertCfg.IntervalMinutes) * 60
	if cycle <= 0 || totalDriving <= 0 {
		return
	}

	base := (totalDriving / cycle) * cycle
	preAt := base + int64(preAlertOffsetMinutes(e.alertCfg.IntervalMinutes))*60
	mainAt := base + cycle - mainAlertToleranceSeconds

	if totalDriving >= preAt && e.lastPreAlertAt < preAt {
		e.lastPreAlertAt = totalDriving
		e.emitAlert(Alert{Kind: AlertPre, DrivingSeconds: totalDriving})
	}
	if totalDriving >= mainAt && e.lastMainAlertAt < mainAt {
		e.lastMainAlertAt = totalDriving
		e.emitAlert(Alert{Kind: AlertMain, DrivingSeconds: totalDriving})
	}
}

func (e *Engine) emitAlert(a Alert) {
	select {
	case e.alerts <- a:
	default:
		// Consumer stalled; alerts are advisory, drop rather than block
		// the tick.
	}
}
