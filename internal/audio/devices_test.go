// SPDX-License-Identifier: MIT
package audio

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/gordonklaus/portaudio"
)

func stubDevices(t *testing.T, infos []*portaudio.DeviceInfo, err error) {
	t.Helper()
	orig, origDefault := paDevicesFunc, paDefaultInputFunc
	t.Cleanup(func() {
		paDevicesFunc = orig
		paDefaultInputFunc = origDefault
	})
	paDevicesFunc = func() ([]*portaudio.DeviceInfo, error) { return infos, err }
	paDefaultInputFunc = func() (*portaudio.DeviceInfo, error) {
		if err != nil {
			return nil, err
		}
		return infos[0], nil
	}
}

var testInfos = []*portaudio.DeviceInfo{
	{Name: "Monitor of Built-in Audio", MaxInputChannels: 2, DefaultSampleRate: 44100},
	{Name: "Speakers", MaxOutputChannels: 2, DefaultSampleRate: 48000},
	{Name: "Headset", MaxInputChannels: 1, MaxOutputChannels: 2, DefaultSampleRate: 16000},
}

func TestHostDevices(t *testing.T) {
	stubDevices(t, testInfos, nil)

	devices, err := HostDevices()
	if err != nil {
		t.Fatalf("HostDevices error: %v", err)
	}
	if len(devices) != len(testInfos) {
		t.Fatalf("got %d devices, want %d", len(devices), len(testInfos))
	}
	for i, d := range devices {
		if d.ID != i {
			t.Errorf("Device ID mismatch: got %d, want %d", d.ID, i)
		}
		if d.Name != testInfos[i].Name {
			t.Errorf("Device %d name = %q", i, d.Name)
		}
	}
	if kinds := []string{devices[0].Kind(), devices[1].Kind(), devices[2].Kind()}; strings.Join(kinds, ",") != "Input,Output,Input/Output" {
		t.Errorf("unexpected kinds %v", kinds)
	}
}

func TestHostDevices_paDevicesError(t *testing.T) {
	stubDevices(t, nil, errors.New("mock error"))

	_, err := HostDevices()
	if err == nil || !strings.Contains(err.Error(), "mock error") {
		t.Errorf("expected mock error, got %v", err)
	}
}

func TestInputDevice(t *testing.T) {
	stubDevices(t, testInfos, nil)

	tests := []struct {
		id      int
		want    string
		wantErr bool
	}{
		{-1, "Monitor of Built-in Audio", false},
		{0, "Monitor of Built-in Audio", false},
		{2, "Headset", false},
		{1, "", true}, // output only
		{3, "", true},
		{-2, "", true},
	}
	for _, tt := range tests {
		info, err := InputDevice(tt.id)
		if tt.wantErr {
			if err == nil {
				t.Errorf("InputDevice(%d) expected error", tt.id)
			}
			continue
		}
		if err != nil || info.Name != tt.want {
			t.Errorf("InputDevice(%d) = %v, %v; want %s", tt.id, info, err, tt.want)
		}
	}
}

func TestListDevices(t *testing.T) {
	stubDevices(t, testInfos, nil)

	var buf bytes.Buffer
	if err := ListDevices(&buf); err != nil {
		t.Fatalf("ListDevices: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"[0] Monitor of Built-in Audio (Input)", "[1] Speakers (Output)", "Default sample rate: 16000 Hz"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
