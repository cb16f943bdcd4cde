package domain

import "github.com/pkg/errors"

// HungerPolicy decides what the dispatch loop does when nothing is processing.
type HungerPolicy string

const (
	// Keep looping immediately.
	HungerNone HungerPolicy = ""
	// Pause for a fixed interval before the next cycle.
	HungerSleep HungerPolicy = "sleep"
	// Stop the loop after the current cycle.
	HungerExit HungerPolicy = "exit"
)

func ParseHungerPolicy(s string) (HungerPolicy, error) {
	switch HungerPolicy(s) {
	case HungerNone, HungerSleep, HungerExit:
		return HungerPolicy(s), nil
	}
	return HungerNone, errors.Errorf("unknown hunger policy %q, expected one of sleep, exit or empty", s)
}
