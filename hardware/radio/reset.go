package radio

import (
	"time"

	"github.com/juju/errors"
	gpio "github.com/temoto/gpio-cdev-go"
)

// RFM69 wants at least 100us high on RESET then 5ms before SPI access,
// bridge firmware also reboots on this line so both are generous.
const (
	ResetPulseWidth = 100 * time.Millisecond
	resetSettle     = 100 * time.Millisecond
)

// ResetPulse power-cycles radio module via GPIO line before transport Init.
// Empty chipPath means reset line is not wired, no-op.
func ResetPulse(chipPath string, pin uint32) error {
	if chipPath == "" {
		return nil
	}
	chip, err := gpio.Open(chipPath, "rfgate")
	if err != nil {
		return &Error{Op: "reset", Err: errors.Annotatef(err, "gpio open chip=%s", chipPath)}
	}
	defer chip.Close()
	return resetPulse(chip, pin, ResetPulseWidth, time.Sleep)
}

func resetPulse(chip gpio.Chiper, pin uint32, width time.Duration, sleep func(time.Duration)) error {
	lines, err := chip.OpenLines(gpio.GPIOHANDLE_REQUEST_OUTPUT, "rfgate-reset", pin)
	if err != nil {
		return &Error{Op: "reset", Err: errors.Annotatef(err, "gpio pin=%d", pin)}
	}
	defer lines.Close()
	set := lines.SetFunc(pin)
	set(1)
	if err = lines.Flush(); err != nil {
		return &Error{Op: "reset", Err: errors.Annotate(err, "gpio high")}
	}
	sleep(width)
	set(0)
	if err = lines.Flush(); err != nil {
		return &Error{Op: "reset", Err: errors.Annotate(err, "gpio low")}
	}
	sleep(resetSettle)
	return nil
}
