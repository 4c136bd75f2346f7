package segment

import (
	"bytes"
	"testing"
	"time"
)

func TestInitialState(t *testing.T) {
	seg := New()

	if seg.State() != StateConnected {
		t.Errorf("Expected initial state Connected, got %s", seg.State())
	}

	if seg.State().Accepting() {
		t.Error("Connected state should not accept audio")
	}
}

func TestListenTransitions(t *testing.T) {
	seg := New()

	if err := seg.Listen(); err != nil {
		t.Fatalf("Failed to listen from Connected: %v", err)
	}

	if seg.State() != StateListening {
		t.Errorf("Expected Listening, got %s", seg.State())
	}

	// Listening -> Listening is allowed
	if err := seg.Listen(); err != nil {
		t.Errorf("Listen while Listening should be a no-op, got %v", err)
	}

	// Speaking -> Listen is rejected
	if err := seg.StartSpeech(); err != nil {
		t.Fatalf("Failed to start speech: %v", err)
	}
	if err := seg.Listen(); err == nil {
		t.Error("Expected error listening from Speaking state")
	}
}

func TestStartSpeechDuplicate(t *testing.T) {
	seg := New()
	seg.Listen()

	if err := seg.StartSpeech(); err != nil {
		t.Fatalf("Failed to start speech: %v", err)
	}

	seg.Feed([]byte{1, 2})

	// Resent marker must not reset the buffer
	if err := seg.StartSpeech(); err != nil {
		t.Errorf("Duplicate speech_start should be a no-op, got %v", err)
	}

	if seg.BufferedBytes() != 2 {
		t.Errorf("Expected 2 buffered bytes after duplicate marker, got %d", seg.BufferedBytes())
	}
}

func TestStartSpeechFromConnected(t *testing.T) {
	seg := New()

	if err := seg.StartSpeech(); err == nil {
		t.Error("Expected error starting speech from Connected state")
	}
}

func TestFeedImplicitStart(t *testing.T) {
	seg := New()
	seg.Listen()

	started, err := seg.Feed([]byte{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("Failed to feed: %v", err)
	}
	if !started {
		t.Error("Expected implicit speech start on first frame")
	}
	if seg.State() != StateSpeaking {
		t.Errorf("Expected Speaking after feed, got %s", seg.State())
	}

	started, err = seg.Feed([]byte{5, 6})
	if err != nil {
		t.Fatalf("Failed to feed second frame: %v", err)
	}
	if started {
		t.Error("Second frame should not report a start")
	}

	if seg.BufferedBytes() != 6 {
		t.Errorf("Expected 6 buffered bytes, got %d", seg.BufferedBytes())
	}
}

func TestFeedRejectedStates(t *testing.T) {
	seg := New()

	if _, err := seg.Feed([]byte{1}); err == nil {
		t.Error("Expected error feeding in Connected state")
	}

	seg.Listen()
	seg.StartSpeech()
	seg.EndSpeech()

	if _, err := seg.Feed([]byte{1}); err == nil {
		t.Error("Expected error feeding in Flushing state")
	}
}

func TestEndSpeechCopiesBuffer(t *testing.T) {
	seg := New()
	seg.Listen()
	seg.Feed([]byte{1, 2, 3, 4})

	utterance, ok := seg.EndSpeech()
	if !ok {
		t.Fatal("Expected utterance from EndSpeech")
	}

	if !bytes.Equal(utterance, []byte{1, 2, 3, 4}) {
		t.Errorf("Unexpected utterance bytes: %v", utterance)
	}

	if seg.State() != StateFlushing {
		t.Errorf("Expected Flushing after EndSpeech, got %s", seg.State())
	}

	// The returned slice must be detached from the internal buffer
	seg.Complete()
	seg.Feed([]byte{9, 9, 9, 9})
	if !bytes.Equal(utterance, []byte{1, 2, 3, 4}) {
		t.Error("EndSpeech result was mutated by later feeds")
	}
}

func TestEndSpeechWithoutSpeaking(t *testing.T) {
	seg := New()
	seg.Listen()

	if _, ok := seg.EndSpeech(); ok {
		t.Error("EndSpeech while Listening should report ok=false")
	}
}

func TestCompleteReturnsToListening(t *testing.T) {
	seg := New()
	seg.Listen()
	seg.Feed([]byte{1, 2})
	seg.EndSpeech()

	seg.Complete()

	if seg.State() != StateListening {
		t.Errorf("Expected Listening after Complete, got %s", seg.State())
	}

	if seg.BufferedBytes() != 0 {
		t.Errorf("Expected empty buffer after Complete, got %d bytes", seg.BufferedBytes())
	}

	// Complete outside of Flushing is a no-op
	seg.Complete()
	if seg.State() != StateListening {
		t.Errorf("Expected state unchanged by stray Complete, got %s", seg.State())
	}
}

func TestTimedOut(t *testing.T) {
	current := time.Now()
	clock := func() time.Time { return current }

	seg := New(WithChunkTimeout(100*time.Millisecond), WithClock(clock))
	seg.Listen()

	if seg.TimedOut() {
		t.Error("Listening session should never report a timeout")
	}

	seg.Feed([]byte{1, 2})

	if seg.TimedOut() {
		t.Error("Fresh chunk should not report a timeout")
	}

	current = current.Add(50 * time.Millisecond)
	if seg.TimedOut() {
		t.Error("Should not time out before the threshold")
	}

	current = current.Add(60 * time.Millisecond)
	if !seg.TimedOut() {
		t.Error("Expected timeout after the threshold elapsed")
	}

	// Another chunk resets the watchdog
	seg.Feed([]byte{3, 4})
	if seg.TimedOut() {
		t.Error("New chunk should reset the silence watchdog")
	}
}

func TestFlushingFor(t *testing.T) {
	current := time.Now()
	clock := func() time.Time { return current }

	seg := New(WithClock(clock))
	seg.Listen()

	if d := seg.FlushingFor(); d != 0 {
		t.Errorf("Expected zero flush duration while listening, got %v", d)
	}

	seg.Feed([]byte{1, 2})
	seg.EndSpeech()

	current = current.Add(40 * time.Millisecond)
	if d := seg.FlushingFor(); d != 40*time.Millisecond {
		t.Errorf("Expected flush duration 40ms, got %v", d)
	}

	seg.Complete()
	if d := seg.FlushingFor(); d != 0 {
		t.Errorf("Expected zero flush duration after completion, got %v", d)
	}
}

func TestCloseIsTerminal(t *testing.T) {
	seg := New()
	seg.Listen()
	seg.Feed([]byte{1, 2})

	seg.Close()

	if seg.State() != StateClosed {
		t.Errorf("Expected Closed, got %s", seg.State())
	}

	if err := seg.Listen(); err == nil {
		t.Error("Expected error listening after close")
	}
	if _, err := seg.Feed([]byte{1}); err == nil {
		t.Error("Expected error feeding after close")
	}
	if err := seg.StartSpeech(); err == nil {
		t.Error("Expected error starting speech after close")
	}
}

func TestAcceptingStates(t *testing.T) {
	tests := []struct {
		state     State
		accepting bool
	}{
		{StateConnected, false},
		{StateListening, true},
		{StateSpeaking, true},
		{StateFlushing, false},
		{StateClosed, false},
	}

	for _, tt := range tests {
		if tt.state.Accepting() != tt.accepting {
			t.Errorf("State %s: expected Accepting()=%v", tt.state, tt.accepting)
		}
	}
}
