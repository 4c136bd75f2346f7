package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Standalone fake recognition backend for manual testing. Serves the
// batch multipart endpoint and the streaming WebSocket endpoint with
// canned transcripts.

type alternative struct {
	Transcript string  `json:"transcript"`
	Confidence float32 `json:"confidence"`
}

type recognitionResult struct {
	Alternatives []alternative `json:"alternatives"`
}

type recognitionResponse struct {
	Results []recognitionResult `json:"results"`
}

func batchHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(10 << 20); err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	sampleRate := r.FormValue("sample_rate")
	channels := r.FormValue("channels")
	language := r.FormValue("language")

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Error getting audio file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	audioData, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Error reading audio file", http.StatusInternalServerError)
		return
	}

	log.Printf("🎤 BATCH RECOGNITION REQUEST:")
	log.Printf("    Filename: %s", header.Filename)
	log.Printf("    Audio Size: %d bytes", len(audioData))
	log.Printf("    Sample Rate: %s", sampleRate)
	log.Printf("    Channels: %s", channels)
	log.Printf("    Language: %s", language)

	// Simulate processing time
	time.Sleep(200 * time.Millisecond)

	response := recognitionResponse{
		Results: []recognitionResult{
			{Alternatives: []alternative{
				{Transcript: fmt.Sprintf("Test transcript for %d bytes of audio", len(audioData)), Confidence: 0.95},
			}},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)

	log.Printf("✅ BATCH RESPONSE SENT")
	log.Println("---")
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type streamMessage struct {
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
	Error   string `json:"error,omitempty"`
}

func streamHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// First message must be the JSON config frame
	var config map[string]interface{}
	if err := conn.ReadJSON(&config); err != nil {
		log.Printf("Bad config frame: %v", err)
		return
	}
	log.Printf("🔌 STREAM OPENED: session=%v sample_rate=%v", config["session_id"], config["sample_rate"])

	audioBytes := 0
	interimSent := false

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			log.Printf("Stream closed: %v", err)
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			audioBytes += len(data)

			// Emit one interim result once some audio has arrived
			if !interimSent && audioBytes > 8000 {
				interimSent = true
				conn.WriteJSON(streamMessage{Text: "Test interim", IsFinal: false})
			}

		case websocket.TextMessage:
			// An end frame asks for the final transcript
			conn.WriteJSON(streamMessage{
				Text:    fmt.Sprintf("Test final transcript for %d bytes of audio", audioBytes),
				IsFinal: true,
			})
			log.Printf("✅ FINAL RESULT SENT: %d audio bytes", audioBytes)
			return
		}
	}
}

func main() {
	http.HandleFunc("/v1/audio/transcriptions", batchHandler)
	http.HandleFunc("/v1/audio/stream", streamHandler)

	port := ":9000"
	log.Printf("🚀 Test Recognition Server starting on port %s", port)
	log.Printf("📡 Batch endpoint:  http://localhost%s/v1/audio/transcriptions", port)
	log.Printf("📡 Stream endpoint: ws://localhost%s/v1/audio/stream", port)
	log.Println("💡 Update your config to point recognition at these endpoints")

	if err := http.ListenAndServe(port, nil); err != nil {
		log.Fatal("Server failed to start:", err)
	}
}
