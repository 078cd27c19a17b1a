package embedding

import (
	"fmt"

	"golang.org/x/sys/cpu"

	"imgsearch/internal/domain"
)

// Backend is the compute path an encoder was initialised with.
type Backend string

const (
	BackendAccelerated Backend = "accelerated"
	BackendGeneric     Backend = "generic"
)

// DetectBackend resolves a device preference ("auto", "accelerated" or
// "generic") once, at encoder construction. "auto" picks the accelerated
// path when the CPU has wide vector units.
func DetectBackend(preference string) (Backend, error) {
	switch preference {
	case "", "auto":
		if hasVectorUnits() {
			return BackendAccelerated, nil
		}
		return BackendGeneric, nil
	case string(BackendAccelerated):
		return BackendAccelerated, nil
	case string(BackendGeneric):
		return BackendGeneric, nil
	default:
		return "", fmt.Errorf("%w: unknown device %q", domain.ErrInvalidConfig, preference)
	}
}

func hasVectorUnits() bool {
	return cpu.X86.HasAVX2 || cpu.ARM64.HasASIMD
}

// device is the hint sent to a remote embedding server.
func (b Backend) device() string {
	if b == BackendAccelerated {
		return "cuda"
	}
	return "cpu"
}
