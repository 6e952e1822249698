// SPDX-License-Identifier: MIT

// Package utils holds signal generators and helpers shared by tests.
package utils

import "math"

// GenerateSineWave returns size int32 samples of a sine at 90% of full
// scale.
func GenerateSineWave(size int, sampleRate, frequency float64) []int32 {
	buffer := make([]int32, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = int32(math.Sin(2*math.Pi*frequency*t) * math.MaxInt32 * 0.9)
	}
	return buffer
}

// GenerateComplexWave returns a 440Hz fundamental with its second and third
// harmonics.
func GenerateComplexWave(size int, sampleRate float64) []int32 {
	buffer := make([]int32, size)
	for i := range buffer {
		tm := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*440*tm)*0.5 +
			math.Sin(2*math.Pi*880*tm)*0.3 +
			math.Sin(2*math.Pi*1320*tm)*0.2
		buffer[i] = int32(signal * math.MaxInt32 * 0.9)
	}
	return buffer
}

// SineFloat returns size float64 samples of a sine with the given
// amplitude.
func SineFloat(size int, sampleRate, frequency, amplitude float64) []float64 {
	buffer := make([]float64, size)
	for i := range buffer {
		buffer[i] = amplitude * math.Sin(2*math.Pi*frequency*float64(i)/sampleRate)
	}
	return buffer
}

// Interleave duplicates a mono signal across channels.
func Interleave(mono []int32, channels int) []int32 {
	out := make([]int32, len(mono)*channels)
	for i, s := range mono {
		for ch := range channels {
			out[i*channels+ch] = s
		}
	}
	return out
}

// FindPeakBin returns the index of the largest magnitude in
// [startBin, endBin].
func FindPeakBin(magnitudes []float64, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}
	if startBin < 0 {
		startBin = 0
	}
	if endBin >= len(magnitudes) {
		endBin = len(magnitudes) - 1
	}

	peakBin := startBin
	peakValue := magnitudes[startBin]
	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}
	return peakBin
}
