// Dictation client: continuous Arabic speech-to-text into a text field on
// stdout. The underlying transcription sessions time out on their own; the
// controller relaunches them so dictation keeps flowing until Enter or
// Ctrl-C.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"

	"madrasa-audio/capture"
	"madrasa-audio/dictation"
	"madrasa-audio/gemini"

	"github.com/joho/godotenv"
)

// consoleField is a dictation target that mirrors its text to the terminal.
type consoleField struct {
	mu   sync.Mutex
	text string
}

func (f *consoleField) ID() string { return "console" }

func (f *consoleField) Text() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.text
}

func (f *consoleField) SetText(s string) {
	f.mu.Lock()
	f.text = s
	f.mu.Unlock()
	fmt.Printf("\r\033[K📝 %s", s)
}

func main() {
	lang := flag.String("lang", "ar-SA", "Speech recognition language code")
	flag.Parse()

	_ = godotenv.Load()
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		log.Fatal("GEMINI_API_KEY environment variable is required")
	}

	field := &consoleField{}
	ctrl := dictation.NewController(
		gemini.RecognizerFactory(apiKey, capture.SoxDevice{}),
		*lang,
	)
	ctrl.OnError = func(msg string) {
		fmt.Println()
		log.Printf("❌ %s", msg)
	}
	ctrl.OnStateChange = func(fieldID string) {
		if fieldID == "" {
			fmt.Println()
			log.Println("🔇 Dictation stopped")
		} else {
			log.Println("🎤 Dictation listening, speak now (Enter to stop)")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ctrl.Toggle(ctx, field); err != nil {
		log.Fatalf("Failed to start dictation: %v", err)
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	enter := make(chan struct{})
	go func() {
		bufio.NewReader(os.Stdin).ReadString('\n')
		close(enter)
	}()

	select {
	case <-interrupt:
	case <-enter:
	}

	ctrl.Stop()
	fmt.Printf("Final text: %s\n", field.Text())
}
