package poller

import (
	"errors"

	"github.com/SynapticNetworks/threadctl/internal/gateway"
)

func isPositionFault(err error) bool {
	return errors.Is(err, gateway.ErrPosition)
}
