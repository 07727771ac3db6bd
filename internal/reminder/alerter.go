package reminder

import (
	"context"
	"log"
)

// Alerter is the platform alert capability. RequestPermission is asked at
// most once per session by the scanner; Alert carries a stable dedup tag so
// the platform can suppress duplicates on its side too.
type Alerter interface {
	RequestPermission(ctx context.Context) (bool, error)
	Alert(ctx context.Context, title, body, tag string) error
}

// LogAlerter writes alerts to the process log. It stands in where no real
// platform alert capability exists (headless runs, tests that only care
// about firing).
type LogAlerter struct{}

func (LogAlerter) RequestPermission(ctx context.Context) (bool, error) {
	return true, nil
}

func (LogAlerter) Alert(ctx context.Context, title, body, tag string) error {
	log.Printf("reminder alert [%s]: %s - %s", tag, title, body)
	return nil
}
