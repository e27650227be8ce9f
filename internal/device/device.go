// Package device describes the compute device local training runs on.
// Only general-purpose CPU execution is implemented; the description is
// used for run logs and does not change training results.
package device

import (
	"fmt"
	"strings"

	"github.com/klauspost/cpuid/v2"

	"fedlocal/internal/common"
)

// Kind names a compute device family.
type Kind string

const CPU Kind = "cpu"

// Parse validates a configured device name. The empty string and "auto"
// select the CPU.
func Parse(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto", "cpu":
		return CPU, nil
	default:
		return "", fmt.Errorf("%w: unsupported device %q", common.ErrInvalidArgument, name)
	}
}

// Info summarises the host processor.
type Info struct {
	Kind          Kind
	Brand         string
	PhysicalCores int
	LogicalCores  int
	AVX2          bool
	AVX512        bool
}

// Detect reads the processor features of the current host.
func Detect() Info {
	return Info{
		Kind:          CPU,
		Brand:         cpuid.CPU.BrandName,
		PhysicalCores: cpuid.CPU.PhysicalCores,
		LogicalCores:  cpuid.CPU.LogicalCores,
		AVX2:          cpuid.CPU.Supports(cpuid.AVX2),
		AVX512:        cpuid.CPU.Supports(cpuid.AVX512F, cpuid.AVX512DQ),
	}
}

// Fields flattens the description into hclog key/value pairs.
func (i Info) Fields() []interface{} {
	return []interface{}{
		"device", string(i.Kind),
		"brand", i.Brand,
		"physical_cores", i.PhysicalCores,
		"logical_cores", i.LogicalCores,
		"avx2", i.AVX2,
		"avx512", i.AVX512,
	}
}
