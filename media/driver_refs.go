package media

import (
	"fmt"
	"sync"

	"github.com/pion/mediadevices/pkg/driver"
	"go.viam.com/utils"
)

// DriverInUseError is returned when closing a session whose driver is still referenced by
// another session. The driver stays open.
type DriverInUseError struct {
	label string
}

func (err *DriverInUseError) Error() string {
	return fmt.Sprintf("driver is still in use: %q", err.label)
}

// driverRefs tracks how many sessions reference each driver so that the last one out
// closes it.
var driverRefs = struct {
	mu   sync.Mutex
	refs map[string]utils.RefCountedValue
}{
	refs: map[string]utils.RefCountedValue{},
}

func refDriver(d driver.Driver) {
	driverRefs.mu.Lock()
	defer driverRefs.mu.Unlock()

	label := d.Info().Label
	if rcv, ok := driverRefs.refs[label]; ok {
		rcv.Ref()
		return
	}
	driverRefs.refs[label] = utils.NewRefCountedValue(d)
	driverRefs.refs[label].Ref()
}

// derefDriver drops a reference and closes the driver if it was the last one.
func derefDriver(d driver.Driver) error {
	driverRefs.mu.Lock()
	defer driverRefs.mu.Unlock()

	label := d.Info().Label
	rcv, ok := driverRefs.refs[label]
	if !ok {
		return d.Close()
	}
	if rcv.Deref() {
		delete(driverRefs.refs, label)
		return d.Close()
	}
	return &DriverInUseError{label}
}
