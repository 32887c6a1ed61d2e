package audio

import (
	"testing"
	"time"
)

func constantFrame(v float64, n int) AmplitudeFrame {
	frame := make(AmplitudeFrame, n)
	for i := range frame {
		frame[i] = v
	}
	return frame
}

func TestSilenceDetector_Speech(t *testing.T) {
	d := NewSilenceDetector(nil)
	now := time.Unix(1000, 0)

	state := SpeechState{}
	for i := 1; i <= 5; i++ {
		now = now.Add(100 * time.Millisecond)
		state = d.Sample(constantFrame(0.4, 160), state, now)
		if !state.IsSpeaking {
			t.Fatalf("Expected speech on frame %d", i)
		}
		if state.ContinuousSpeechFrames != i {
			t.Errorf("Expected %d continuous frames, got %d", i, state.ContinuousSpeechFrames)
		}
		if !state.LastSpeechAt.Equal(now) {
			t.Errorf("Expected LastSpeechAt %v, got %v", now, state.LastSpeechAt)
		}
		if state.SilenceDuration != 0 {
			t.Errorf("Expected no silence while speaking, got %v", state.SilenceDuration)
		}
	}
}

func TestSilenceDetector_SpeechToSilence(t *testing.T) {
	d := NewSilenceDetector(nil)
	start := time.Unix(1000, 0)

	state := d.Sample(constantFrame(0.4, 160), SpeechState{}, start)
	state = d.Sample(constantFrame(0.4, 160), state, start.Add(100*time.Millisecond))
	if state.ContinuousSpeechFrames != 2 {
		t.Fatalf("Expected 2 continuous frames, got %d", state.ContinuousSpeechFrames)
	}

	state = d.Sample(constantFrame(0.01, 160), state, start.Add(450*time.Millisecond))
	if state.IsSpeaking {
		t.Error("Expected silence")
	}
	if state.ContinuousSpeechFrames != 0 {
		t.Errorf("Expected continuous frames to reset, got %d", state.ContinuousSpeechFrames)
	}
	if state.SilenceDuration != 350*time.Millisecond {
		t.Errorf("Expected 350ms silence, got %v", state.SilenceDuration)
	}
	if !state.LastSpeechAt.Equal(start.Add(100 * time.Millisecond)) {
		t.Errorf("Expected LastSpeechAt to stay at last speech, got %v", state.LastSpeechAt)
	}
}

func TestSilenceDetector_Threshold(t *testing.T) {
	tests := []struct {
		name      string
		amplitude float64
		speaking  bool
	}{
		{"well below", 0.05, false},
		{"just below", 0.149, false},
		{"just above", 0.16, true},
		{"loud", 0.9, true},
	}

	d := NewSilenceDetector(DefaultVADConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := d.Sample(constantFrame(tt.amplitude, 80), SpeechState{}, time.Unix(0, 0))
			if state.IsSpeaking != tt.speaking {
				t.Errorf("Expected speaking=%v for amplitude %f", tt.speaking, tt.amplitude)
			}
		})
	}
}

func TestSilenceDetector_EmptyFrameIsSilence(t *testing.T) {
	d := NewSilenceDetector(nil)
	state := d.Sample(nil, SpeechState{ContinuousSpeechFrames: 4}, time.Unix(0, 0))
	if state.IsSpeaking || state.ContinuousSpeechFrames != 0 {
		t.Errorf("Expected empty frame to count as silence, got %+v", state)
	}
	if state.SilenceDuration != 0 {
		t.Errorf("Expected zero silence without prior speech, got %v", state.SilenceDuration)
	}
}

func TestSilenceDetector_DoesNotMutatePrev(t *testing.T) {
	d := NewSilenceDetector(nil)
	prev := SpeechState{ContinuousSpeechFrames: 3}
	d.Sample(constantFrame(0.5, 10), prev, time.Unix(0, 0))
	if prev.ContinuousSpeechFrames != 3 {
		t.Error("Expected prev to be left untouched")
	}
}

func TestDefaultVADConfig(t *testing.T) {
	config := DefaultVADConfig()
	if config.VolumeThreshold != 0.15 {
		t.Errorf("Expected default VolumeThreshold 0.15, got %f", config.VolumeThreshold)
	}
	if config.PollInterval != 100*time.Millisecond {
		t.Errorf("Expected default PollInterval 100ms, got %v", config.PollInterval)
	}
}

func TestSilenceDetector_Gap(t *testing.T) {
	d := NewSilenceDetector(nil)
	start := time.Unix(1000, 0)
	prev := SpeechState{IsSpeaking: true, LastSpeechAt: start, ContinuousSpeechFrames: 7}

	next := d.Gap(prev, start.Add(300*time.Millisecond))
	if next.ContinuousSpeechFrames != 7 {
		t.Errorf("Expected speech run to be kept, got %d", next.ContinuousSpeechFrames)
	}
	if next.SilenceDuration != 300*time.Millisecond {
		t.Errorf("Expected silence to grow to 300ms, got %v", next.SilenceDuration)
	}
	if !next.LastSpeechAt.Equal(start) {
		t.Error("Expected LastSpeechAt to be unchanged")
	}

	if zero := d.Gap(SpeechState{}, start); zero.SilenceDuration != 0 {
		t.Errorf("Expected no silence without prior speech, got %v", zero.SilenceDuration)
	}
}
