package recognizer

import (
	"context"
	"testing"
	"time"

	"github.com/audiorelay/speech-gateway/internal/codec"
)

func TestSimulatedBatch(t *testing.T) {
	sim := NewSimulatedWith(10*time.Millisecond, "canned transcript")

	if err := sim.Probe(context.Background()); err != nil {
		t.Errorf("Simulated probe should never fail, got %v", err)
	}

	text, err := sim.RecognizeBatch(context.Background(), make([]byte, 640), codec.DefaultFormat)
	if err != nil {
		t.Fatalf("Simulated recognition failed: %v", err)
	}
	if text != "canned transcript" {
		t.Errorf("Expected canned transcript, got %q", text)
	}
}

func TestSimulatedBatchCanceled(t *testing.T) {
	sim := NewSimulatedWith(time.Second, "never delivered")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := sim.RecognizeBatch(ctx, make([]byte, 640), codec.DefaultFormat)
	if !IsTimeout(err) {
		t.Errorf("Expected timeout classification for canceled recognition, got %v", err)
	}
}

func TestSimulatedStream(t *testing.T) {
	sim := NewSimulatedWith(10*time.Millisecond, "canned transcript")

	results := make(chan resultMsg, 1)
	stream, err := sim.OpenStream(context.Background(), "session-1", codec.DefaultFormat,
		func(sessionID, text string, isFinal bool) {
			results <- resultMsg{sessionID, text, isFinal}
		}, nil)
	if err != nil {
		t.Fatalf("Failed to open simulated stream: %v", err)
	}

	if err := stream.Send(make([]byte, 640)); err != nil {
		t.Fatalf("Failed to send: %v", err)
	}

	if err := stream.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}

	select {
	case res := <-results:
		if !res.isFinal || res.text != "canned transcript" {
			t.Errorf("Unexpected result: %+v", res)
		}
		if res.sessionID != "session-1" {
			t.Errorf("Result tagged with wrong session: %s", res.sessionID)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for simulated final result")
	}

	if err := stream.Send(make([]byte, 320)); err == nil {
		t.Error("Expected error sending on closed stream")
	}
}

func TestSimulatedStreamNoAudio(t *testing.T) {
	sim := NewSimulatedWith(time.Millisecond, "canned transcript")

	results := make(chan resultMsg, 1)
	stream, err := sim.OpenStream(context.Background(), "session-1", codec.DefaultFormat,
		func(sessionID, text string, isFinal bool) {
			results <- resultMsg{sessionID, text, isFinal}
		}, nil)
	if err != nil {
		t.Fatalf("Failed to open simulated stream: %v", err)
	}

	// Closing without any audio resolves the utterance as silence
	if err := stream.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}

	select {
	case res := <-results:
		if res.text != "" {
			t.Errorf("Expected empty transcript for silent stream, got %q", res.text)
		}
		if !res.isFinal {
			t.Error("Expected final result for silent stream")
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for silent stream result")
	}
}
