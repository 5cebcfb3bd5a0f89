package hub

import (
	"github.com/prometheus/client_golang/prometheus"

	"go-content-push/internal/infrastructure/logger"
)

// deliver runs send for one client, containing errors and panics so a single
// failing client never stops a fan-out.
func deliver(log logger.Logger, failures prometheus.Counter, target string, send func() error) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("panic while delivering to %s: %v", target, r)
			failures.Inc()
			ok = false
		}
	}()

	if err := send(); err != nil {
		log.Warnf("failed to deliver to %s: %v", target, err)
		failures.Inc()
		return false
	}
	return true
}
