//go:build !linux

package gpio

import "fmt"

const DefaultChip = "gpiochip0"

// NewCdevDriver is only available on Linux.
func NewCdevDriver(chipName string) (Driver, error) {
	return nil, fmt.Errorf("gpio: character device backend unsupported on this platform")
}
