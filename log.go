package olsr

import (
	"net/netip"

	"go.uber.org/zap"
)

// componentLogger names a sub-component logger the way the teacher's
// log.Printf("node %d: ...") calls key every line by node id — here the key
// is a component name plus structured fields instead of an interpolated
// string.
func componentLogger(base *zap.Logger, component string, self netip.Addr) *zap.Logger {
	if base == nil {
		base = zap.NewNop()
	}
	return base.Named(component).With(zap.String("node", self.String()))
}
