package notify

import "testing"

func TestForType(t *testing.T) {
	tests := []struct {
		kind string
		want Notifier
	}{
		{"desktop", Desktop{}},
		{"log", Log{}},
		{"", Nop{}},
		{"unknown", Nop{}},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			if got := ForType(tt.kind); got != tt.want {
				t.Errorf("ForType(%q) = %T, expected %T", tt.kind, got, tt.want)
			}
		})
	}
}

func TestNopIsSilent(t *testing.T) {
	var n Notifier = Nop{}
	n.RecordingStarted()
	n.RecordingStopped()
	n.Error("ignored")
}
