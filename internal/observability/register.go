package observability

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// registrar registers collectors in sequence and keeps the first failure,
// so a constructor can declare every metric before checking one error.
type registrar struct {
	reg prometheus.Registerer
	err error
}

// add registers c under name. When an equivalent collector is already
// registered with the same concrete type, the existing one is returned so
// that a second collector on one registry shares series with the first.
func add[C prometheus.Collector](r *registrar, name string, c C) C {
	if r.err != nil {
		return c
	}
	err := r.reg.Register(c)
	if err == nil {
		return c
	}
	var are prometheus.AlreadyRegisteredError
	if !errors.As(err, &are) {
		r.err = fmt.Errorf("register %s: %w", name, err)
		return c
	}
	existing, ok := are.ExistingCollector.(C)
	if !ok {
		r.err = fmt.Errorf("collector %s already registered with incompatible type", name)
		return c
	}
	return existing
}
