package summary

import "time"

// SetNowFunc pins the service clock in tests.
func SetNowFunc(svc *Service, f func() time.Time) {
	svc.nowFunc = f
}
