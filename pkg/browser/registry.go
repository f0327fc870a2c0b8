package browser

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/srodi/tabmem/pkg/types"
)

// Registry maps each browser kind to the driver that controls it.
type Registry map[types.BrowserKind]Driver

// DefaultRegistry wires go-rod for Chromium and WebDriver BiDi for Firefox.
func DefaultRegistry(logger logrus.FieldLogger) Registry {
	return Registry{
		types.Chromium: NewRodDriver(logger),
		types.Firefox:  NewBiDiDriver(logger),
	}
}

// Driver returns the driver registered for kind.
func (r Registry) Driver(kind types.BrowserKind) (Driver, error) {
	d, ok := r[kind]
	if !ok {
		return nil, fmt.Errorf("no driver registered for %s", kind)
	}
	return d, nil
}
