package models

// DriverState is what the driver is physically doing. Whether the driver
// accepts incoming calls is tracked separately as Reachable, so a sleeping
// driver that toggled "do not disturb" off is still marked Sleeping here.
type DriverState string

const (
	StateDriving  DriverState = "driving"
	StateResting  DriverState = "resting"
	StateSleeping DriverState = "sleeping"
	StateOffline  DriverState = "offline"
)

func (s DriverState) Valid() bool {
	switch s {
	case StateDriving, StateResting, StateSleeping, StateOffline:
		return true
	}
	return false
}

// MaxDailySeconds caps any single duration counter at 24 hours. Values
// beyond it come from corrupted persistence or clock jumps, not driving.
const MaxDailySeconds int64 = 86400

func ClampSeconds(v int64) int64 {
	if v < 0 {
		return 0
	}
	if v > MaxDailySeconds {
		return MaxDailySeconds
	}
	return v
}

// SessionStatus is the persisted accounting snapshot for one driver. The
// duration columns hold accumulated whole segments only; the segment in
// progress is derived from RestStartTime / LastStatusUpdate at read time.
type SessionStatus struct {
	DriverID         string      `json:"driver_id" db:"driver_id"`
	State            DriverState `json:"state" db:"state"`
	Reachable        bool        `json:"reachable" db:"reachable"`
	DrivingTimeSecs  int64       `json:"driving_time_seconds" db:"driving_time_seconds"`
	RestTimeSecs     int64       `json:"rest_time_seconds" db:"rest_time_seconds"`
	SleepTimeSecs    int64       `json:"sleep_time_seconds" db:"sleep_time_seconds"`
	RestStartTime    *int64      `json:"rest_start_time,omitempty" db:"rest_start_time"`
	SleepStartTime   *int64      `json:"sleep_start_time,omitempty" db:"sleep_start_time"`
	LastStatusUpdate int64       `json:"last_status_update" db:"last_status_update"`
	UpdatedAt        int64       `json:"updated_at" db:"updated_at"`
}

// DailyRecord is one driver-day of totals, keyed by (driver_id, record_date)
// where record_date is a KST calendar date in YYYY-MM-DD form.
type DailyRecord struct {
	ID              int    `json:"id" db:"id"`
	DriverID        string `json:"driver_id" db:"driver_id"`
	RecordDate      string `json:"record_date" db:"record_date"`
	DrivingTimeSecs int64  `json:"driving_time_seconds" db:"driving_time_seconds"`
	RestTimeSecs    int64  `json:"rest_time_seconds" db:"rest_time_seconds"`
	SleepTimeSecs   int64  `json:"sleep_time_seconds" db:"sleep_time_seconds"`
	CreatedAt       int64  `json:"created_at" db:"created_at"`
	UpdatedAt       int64  `json:"updated_at" db:"updated_at"`
}
