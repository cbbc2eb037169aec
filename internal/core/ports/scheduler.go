package ports

import (
	"time"
)

type SchedulerService interface {
	Start()
	Stop()
	// ScheduleRecovery runs recoverFunc every interval until Stop is called.
	ScheduleRecovery(interval time.Duration, recoverFunc func()) error
	WhenNextRecovery() time.Time
}
