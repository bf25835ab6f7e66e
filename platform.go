package rknnconvert

import (
	"fmt"
	"strings"
)

// Platform is the Rockchip target the RKNN model is compiled for
type Platform string

// target platforms accepted by rknn-toolkit2
const (
	RK3562 Platform = "rk3562"
	RK3566 Platform = "rk3566"
	RK3568 Platform = "rk3568"
	RK3576 Platform = "rk3576"
	RK3582 Platform = "rk3582"
	RK3588 Platform = "rk3588"
	RV1103 Platform = "rv1103"
	RV1106 Platform = "rv1106"
)

// npuCores lists the number of NPU cores available on each platform
var npuCores = map[Platform]int{
	RK3562: 1,
	RK3566: 1,
	RK3568: 1,
	RK3576: 2,
	RK3582: 3,
	RK3588: 3,
	RV1103: 1,
	RV1106: 1,
}

// ParsePlatform takes a platform string such as "RK3588" and returns the
// matching Platform
func ParsePlatform(s string) (Platform, error) {

	p := Platform(strings.ToLower(strings.TrimSpace(s)))

	if !p.Valid() {
		return "", fmt.Errorf("unknown platform: %s", s)
	}

	return p, nil
}

// Valid reports whether the platform is a known target
func (p Platform) Valid() bool {
	_, ok := npuCores[p]
	return ok
}

// NPUCores returns the number of NPU cores on the platform, or zero if the
// platform is unknown
func (p Platform) NPUCores() int {
	return npuCores[p]
}

func (p Platform) String() string {
	return string(p)
}

// UnmarshalText implements encoding.TextUnmarshaler so platforms can be read
// from config files and flags
func (p *Platform) UnmarshalText(text []byte) error {

	parsed, err := ParsePlatform(string(text))

	if err != nil {
		return err
	}

	*p = parsed
	return nil
}
