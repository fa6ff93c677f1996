package gemini

import (
	"strings"
	"testing"
)

func TestPayloadPartsText(t *testing.T) {
	p := TextPayload("قل هو الله أحد")
	parts, err := p.parts("Analyze this verse.")
	if err != nil {
		t.Fatalf("parts failed: %v", err)
	}
	if len(parts) != 1 {
		t.Fatalf("expected a single text part, got %d", len(parts))
	}
	if !strings.Contains(parts[0].Text, "قل هو الله أحد") {
		t.Errorf("verse text missing from prompt part: %q", parts[0].Text)
	}
	if !strings.HasPrefix(parts[0].Text, "Analyze this verse.") {
		t.Errorf("prompt not leading the part: %q", parts[0].Text)
	}
}

func TestPayloadPartsInline(t *testing.T) {
	p := InlinePayload([]byte{0x25, 0x50, 0x44, 0x46}, "application/pdf")
	parts, err := p.parts("Extract the verse.")
	if err != nil {
		t.Fatalf("parts failed: %v", err)
	}
	if len(parts) != 2 {
		t.Fatalf("expected prompt + blob parts, got %d", len(parts))
	}
	if parts[0].Text != "Extract the verse." {
		t.Errorf("prompt part: %q", parts[0].Text)
	}
	if parts[1].InlineData == nil || parts[1].InlineData.MIMEType != "application/pdf" {
		t.Error("inline blob not carried through")
	}
}

func TestPayloadPartsRejectsEmptyAndAmbiguous(t *testing.T) {
	if _, err := (Payload{}).parts("p"); err == nil {
		t.Error("empty payload accepted")
	}

	both := TextPayload("text")
	both.Inline = InlinePayload([]byte{1}, "audio/webm").Inline
	if _, err := both.parts("p"); err == nil {
		t.Error("payload with both sides set accepted")
	}
}
