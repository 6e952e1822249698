// SPDX-License-Identifier: MIT
package bands

import (
	"fmt"
	"math"
)

// DefaultRateDivisor converts a capture rate into the Nyquist frequency on
// the scale the band edges are expressed in. Capture taps report their
// sampling rate in millihertz, so halving and dividing by 1000 yields Hz.
const DefaultRateDivisor = 2000.0

// Analyzer maps interleaved real/imaginary FFT bytes onto a band table.
// It holds no mutable state; Process and Levels are safe to call from any
// number of goroutines.
type Analyzer struct {
	table   []Band
	divisor float64

	// Positions of bass, mid and treble in table, -1 when absent.
	bass, mid, treble int
}

// NewAnalyzer validates the band table and returns an analyzer for it.
// A divisor <= 0 selects DefaultRateDivisor.
func NewAnalyzer(table []Band, divisor float64) (*Analyzer, error) {
	if err := ValidateBands(table); err != nil {
		return nil, err
	}
	if math.IsNaN(divisor) || math.IsInf(divisor, 0) {
		return nil, fmt.Errorf("rate divisor must be finite, got %v", divisor)
	}
	if divisor <= 0 {
		divisor = DefaultRateDivisor
	}

	a := &Analyzer{
		table:   append([]Band(nil), table...),
		divisor: divisor,
		bass:    -1,
		mid:     -1,
		treble:  -1,
	}
	for i, b := range a.table {
		switch b.Name {
		case BassName:
			a.bass = i
		case MidName:
			a.mid = i
		case TrebleName:
			a.treble = i
		}
	}
	return a, nil
}

// NewDefaultAnalyzer returns an analyzer over DefaultBands.
func NewDefaultAnalyzer() *Analyzer {
	a, err := NewAnalyzer(DefaultBands(), DefaultRateDivisor)
	if err != nil {
		panic(err) // DefaultBands is always valid
	}
	return a
}

// Bands returns a copy of the analyzer's band table.
func (a *Analyzer) Bands() []Band {
	return append([]Band(nil), a.table...)
}

// Process computes the bass/mid/treble snapshot for one capture buffer.
//
// The buffer holds one signed 8-bit (real, imag) pair per bin, DC first. A
// trailing unpaired byte is ignored. An empty buffer or a samplingRate <= 0
// yields the zero snapshot. Process never fails and does not retain buf.
func (a *Analyzer) Process(buf []byte, samplingRate int) FrequencyBands {
	var (
		sums   [MaxBands]float64
		counts [MaxBands]int
	)
	a.accumulate(buf, samplingRate, sums[:len(a.table)], counts[:len(a.table)])

	return FrequencyBands{
		Bass:   mean(sums[:], counts[:], a.bass),
		Mid:    mean(sums[:], counts[:], a.mid),
		Treble: mean(sums[:], counts[:], a.treble),
	}
}

// Levels is Process generalised to the full band table: it returns one
// mean magnitude per configured band, in table order.
func (a *Analyzer) Levels(buf []byte, samplingRate int) []float64 {
	var (
		sums   [MaxBands]float64
		counts [MaxBands]int
	)
	a.accumulate(buf, samplingRate, sums[:len(a.table)], counts[:len(a.table)])

	levels := make([]float64, len(a.table))
	for i := range levels {
		levels[i] = mean(sums[:], counts[:], i)
	}
	return levels
}

// accumulate sums bin magnitudes into the band they fall in.
func (a *Analyzer) accumulate(buf []byte, samplingRate int, sums []float64, counts []int) {
	numBins := len(buf) / 2
	if numBins == 0 || samplingRate <= 0 {
		return
	}

	nyquist := float64(samplingRate) / a.divisor
	resolution := nyquist / float64(numBins)

	for i := range numBins {
		freq := float64(i) * resolution
		band := a.classify(freq)
		if band < 0 {
			continue
		}
		re := float64(int8(buf[2*i]))
		im := float64(int8(buf[2*i+1]))
		sums[band] += math.Hypot(re, im)
		counts[band]++
	}
}

// classify returns the index of the band containing freq, or -1.
func (a *Analyzer) classify(freq float64) int {
	for i, b := range a.table {
		if freq < b.LowHz {
			return -1 // table is ascending
		}
		if freq <= b.HighHz {
			return i
		}
	}
	return -1
}

func mean(sums []float64, counts []int, i int) float64 {
	if i < 0 || counts[i] == 0 {
		return 0
	}
	return sums[i] / float64(counts[i])
}
