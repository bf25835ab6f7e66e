package npu

import (
	"fmt"
	"github.com/swdee/go-rknnconvert"
	"syscall"
	"unsafe"
)

// CoreType selects a group of CPU cores on big.LITTLE SoCs
type CoreType int

const (
	FastCores CoreType = 0
	SlowCores CoreType = 1
	AllCores  CoreType = 2
)

// cpuMasks are the fast, slow and all core masks of each platform. SoCs
// without big.LITTLE use the same mask for all three.
var cpuMasks = map[rknnconvert.Platform][3]uintptr{
	rknnconvert.RK3588: {0b11110000, 0b00001111, 0b11111111},
	rknnconvert.RK3582: {0b00110000, 0b00001111, 0b00111111},
	rknnconvert.RK3576: {0b11110000, 0b00001111, 0b11111111},
	rknnconvert.RK3568: {0b00001111, 0b00001111, 0b00001111},
	rknnconvert.RK3566: {0b00001111, 0b00001111, 0b00001111},
	rknnconvert.RK3562: {0b00001111, 0b00001111, 0b00001111},
	rknnconvert.RV1106: {0b00000001, 0b00000001, 0b00000001},
	rknnconvert.RV1103: {0b00000001, 0b00000001, 0b00000001},
}

// CPUMask returns the affinity mask of the given core type on a platform
func CPUMask(p rknnconvert.Platform, ct CoreType) (uintptr, error) {

	masks, ok := cpuMasks[p]

	if !ok || ct < FastCores || ct > AllCores {
		return 0, fmt.Errorf("no cpu mask for platform %q core type %d", p, ct)
	}

	return masks[ct], nil
}

// SetCPUAffinity sets the CPU Affinity mask of the program to run on the specified
// cores
func SetCPUAffinity(mask uintptr) error {

	_, _, err := syscall.RawSyscall(syscall.SYS_SCHED_SETAFFINITY, 0,
		unsafe.Sizeof(mask), uintptr(unsafe.Pointer(&mask)))

	if err != 0 {
		return fmt.Errorf("failed to set CPU affinity: %w", err)
	}

	return nil
}

// SetCPUAffinityByPlatform pins the program to the given core type of the
// platform, used to keep pre and post processing on the fast cores
func SetCPUAffinityByPlatform(p rknnconvert.Platform, ct CoreType) error {

	mask, err := CPUMask(p, ct)

	if err != nil {
		return err
	}

	return SetCPUAffinity(mask)
}
