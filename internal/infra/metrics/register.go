package metrics

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	mu         sync.Mutex
	collectors []prometheus.Collector
	registered = map[prometheus.Registerer]bool{}
)

// register queues collectors; each metrics file calls it from init.
func register(cs ...prometheus.Collector) {
	collectors = append(collectors, cs...)
}

// RegisterWith adds every queued collector to reg. A second call for the
// same registry is a no-op, and collectors already present are skipped.
func RegisterWith(reg prometheus.Registerer) error {
	mu.Lock()
	defer mu.Unlock()
	if registered[reg] {
		return nil
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			var dup prometheus.AlreadyRegisteredError
			if !errors.As(err, &dup) {
				return err
			}
		}
	}
	registered[reg] = true
	return nil
}

// MustRegister registers with the default registry served by Handler.
func MustRegister() {
	if err := RegisterWith(prometheus.DefaultRegisterer); err != nil {
		panic(err)
	}
}
