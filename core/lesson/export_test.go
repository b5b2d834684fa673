package lesson

import "time"

// SetNow replaces the clock of the package until the returned func is called.
func SetNow(now func() time.Time) (restore func()) {
	nowFunc = now
	return func() { nowFunc = time.Now }
}
