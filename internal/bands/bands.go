// SPDX-License-Identifier: MIT

// Package bands reduces frequency-domain capture buffers to a handful of
// named band energies and publishes the latest result to concurrent readers.
package bands

import (
	"encoding/json"
	"errors"
	"fmt"
)

// FrequencyBands is an immutable snapshot of the mean bin magnitude in each
// of the three perceptual bands for one capture tick. The zero value is the
// state before any capture has been processed.
type FrequencyBands struct {
	Bass   float64 `json:"bass"`
	Mid    float64 `json:"mid"`
	Treble float64 `json:"treble"`
}

// JSON renders the snapshot as {"bass":..,"mid":..,"treble":..}. It returns
// "{}" if the value cannot be encoded.
func (b FrequencyBands) JSON() string {
	data, err := json.Marshal(b)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// IsZero reports whether no band carries any energy.
func (b FrequencyBands) IsZero() bool {
	return b == FrequencyBands{}
}

// Band is a named inclusive frequency range. LowHz and HighHz are compared
// against bin frequencies computed by the Analyzer.
type Band struct {
	Name   string  `yaml:"name"`
	LowHz  float64 `yaml:"low_hz"`
	HighHz float64 `yaml:"high_hz"`
}

// Contains reports whether freq lies within [LowHz, HighHz].
func (b Band) Contains(freq float64) bool {
	return freq >= b.LowHz && freq <= b.HighHz
}

// Names of the bands projected into FrequencyBands.
const (
	BassName   = "bass"
	MidName    = "mid"
	TrebleName = "treble"
)

// MaxBands bounds the size of a band table so that per-call accumulators
// can live on the stack.
const MaxBands = 16

// DefaultBands returns the reference bass/mid/treble table.
func DefaultBands() []Band {
	return []Band{
		{Name: BassName, LowHz: 20, HighHz: 250},
		{Name: MidName, LowHz: 251, HighHz: 4000},
		{Name: TrebleName, LowHz: 4001, HighHz: 20000},
	}
}

// ErrInvalidBands is wrapped by every error returned from ValidateBands.
var ErrInvalidBands = errors.New("invalid band table")

// ValidateBands checks that a table is non-empty, fits in MaxBands, has
// unique non-empty names and holds ascending, non-overlapping ranges.
func ValidateBands(table []Band) error {
	if len(table) == 0 {
		return fmt.Errorf("%w: no bands defined", ErrInvalidBands)
	}
	if len(table) > MaxBands {
		return fmt.Errorf("%w: %d bands exceeds the maximum of %d", ErrInvalidBands, len(table), MaxBands)
	}

	seen := make(map[string]struct{}, len(table))
	for i, b := range table {
		if b.Name == "" {
			return fmt.Errorf("%w: band %d has no name", ErrInvalidBands, i)
		}
		if _, dup := seen[b.Name]; dup {
			return fmt.Errorf("%w: duplicate band name %q", ErrInvalidBands, b.Name)
		}
		seen[b.Name] = struct{}{}

		if b.LowHz < 0 || b.HighHz < b.LowHz {
			return fmt.Errorf("%w: band %q has range [%g, %g]", ErrInvalidBands, b.Name, b.LowHz, b.HighHz)
		}
		if i > 0 && b.LowHz <= table[i-1].HighHz {
			return fmt.Errorf("%w: band %q overlaps or precedes %q", ErrInvalidBands, b.Name, table[i-1].Name)
		}
	}
	return nil
}
