//go:build !openbsd

package sandbox

import (
	"github.com/pftabled/pftabled/log"
)

func confine(paths Paths) error {
	log.Debug("sandbox: pledge and unveil are only available on OpenBSD")
	return nil
}
