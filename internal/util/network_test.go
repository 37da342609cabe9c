package util

import "testing"

func TestClassifyListenHost(t *testing.T) {
	tests := []struct {
		host string
		want Exposure
	}{
		{"", ExposureAllInterfaces},
		{"0.0.0.0", ExposureAllInterfaces},
		{"::", ExposureAllInterfaces},
		{"[::]", ExposureAllInterfaces},
		{"localhost", ExposureLoopback},
		{"LOCALHOST", ExposureLoopback},
		{"127.0.0.1", ExposureLoopback},
		{"127.8.8.8", ExposureLoopback},
		{"::1", ExposureLoopback},
		{"[::1]", ExposureLoopback},
		{"10.1.2.3", ExposurePrivate},
		{"192.168.0.10", ExposurePrivate},
		{"fd00::1", ExposurePrivate},
		{"169.254.1.1", ExposurePrivate},
		{"8.8.8.8", ExposurePublic},
		{"auth.example.com", ExposurePublic},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			if got := ClassifyListenHost(tt.host); got != tt.want {
				t.Errorf("ClassifyListenHost(%q) = %v, want %v", tt.host, got, tt.want)
			}
		})
	}
}

func TestExposureString(t *testing.T) {
	if ExposurePublic.String() != "public" {
		t.Errorf("ExposurePublic.String() = %q", ExposurePublic.String())
	}
	if Exposure(99).String() != "unknown" {
		t.Errorf("unknown exposure String() = %q", Exposure(99).String())
	}
}
