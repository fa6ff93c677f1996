package gemini

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"google.golang.org/genai"
)

const (
	flashModel = "gemini-3-flash-preview"
	proModel   = "gemini-3-pro-preview"
	ttsModel   = "gemini-2.5-flash-preview-tts"
)

// ErrNoContent is returned when a remote call succeeds but yields nothing
// usable (empty extraction, empty analysis).
var ErrNoContent = errors.New("remote returned no content")

// Payload is the tagged union handed to analysis calls: either plain text or
// an inline binary blob (image, PDF, recorded audio). Exactly one side is
// set.
type Payload struct {
	Text   string
	Inline *genai.Blob
}

// TextPayload wraps plain verse text.
func TextPayload(text string) Payload {
	return Payload{Text: text}
}

// InlinePayload wraps raw bytes with their MIME type.
func InlinePayload(data []byte, mimeType string) Payload {
	return Payload{Inline: &genai.Blob{Data: data, MIMEType: mimeType}}
}

// parts assembles the request parts for a prompt plus this payload.
func (p Payload) parts(prompt string) ([]*genai.Part, error) {
	switch {
	case p.Inline != nil && p.Text != "":
		return nil, fmt.Errorf("payload has both text and inline data")
	case p.Inline != nil:
		return []*genai.Part{{Text: prompt}, {InlineData: p.Inline}}, nil
	case p.Text != "":
		return []*genai.Part{{Text: prompt + "\n\nContent: " + p.Text}}, nil
	default:
		return nil, fmt.Errorf("payload is empty")
	}
}

// Word is one token of a word-by-word verse breakdown.
type Word struct {
	Arabic          string `json:"arabic"`
	Transliteration string `json:"transliteration"`
	TamilMeaning    string `json:"tamilMeaning"`
	EnglishMeaning  string `json:"englishMeaning"`
}

// HifzChallenge is memorization guidance for a verse.
type HifzChallenge struct {
	OriginalVerse  string `json:"originalVerse"`
	TipsTamil      string `json:"tipsTamil"`
	TipsEnglish    string `json:"tipsEnglish"`
	TajweedTamil   string `json:"tajweedTamil"`
	TajweedEnglish string `json:"tajweedEnglish"`
	TartilTamil    string `json:"tartilTamil"`
	TartilEnglish  string `json:"tartilEnglish"`
}

// RecitationFeedback is the audit verdict for a recorded recitation.
type RecitationFeedback struct {
	FeedbackTamil   string `json:"feedbackTamil"`
	FeedbackEnglish string `json:"feedbackEnglish"`
	AccuracyScore   int    `json:"accuracyScore"`
}

// Tafsir is a bilingual exegesis of a verse.
type Tafsir struct {
	TamilTafsir   string `json:"tamilTafsir"`
	EnglishTafsir string `json:"englishTafsir"`
}

// Analyzer wraps the one-shot Gemini calls: verse analysis, memorization
// coaching, recitation audit, exegesis, grammar, translation, text
// extraction and speech synthesis. Failures are terminal for the invocation;
// there is no automatic retry.
type Analyzer struct {
	client *genai.Client
}

// NewAnalyzer creates an analyzer bound to the given API key.
func NewAnalyzer(ctx context.Context, apiKey string) (*Analyzer, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &Analyzer{client: client}, nil
}

const analyzeVersePrompt = `Analyze this Quran verse. Split it word-by-word. For each word, provide the Arabic text, transliteration, precise Tamil meaning, and precise English meaning.
Return only JSON format that matches the following schema.`

// AnalyzeVerse splits a verse word by word with Tamil and English meanings.
func (a *Analyzer) AnalyzeVerse(ctx context.Context, p Payload) ([]Word, error) {
	parts, err := p.parts(analyzeVersePrompt)
	if err != nil {
		return nil, err
	}

	wordProps := map[string]*genai.Schema{
		"arabic":          {Type: genai.TypeString},
		"transliteration": {Type: genai.TypeString},
		"tamilMeaning":    {Type: genai.TypeString},
		"englishMeaning":  {Type: genai.TypeString},
	}
	resp, err := a.client.Models.GenerateContent(ctx, flashModel,
		[]*genai.Content{{Parts: parts}},
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema: &genai.Schema{
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type:       genai.TypeObject,
					Properties: wordProps,
					Required:   []string{"arabic", "transliteration", "tamilMeaning", "englishMeaning"},
				},
			},
		})
	if err != nil {
		return nil, fmt.Errorf("verse analysis failed: %w", err)
	}

	var words []Word
	if err := sonic.Unmarshal([]byte(resp.Text()), &words); err != nil {
		return nil, fmt.Errorf("verse analysis returned malformed JSON: %w", err)
	}
	return words, nil
}

const hifzPrompt = `You are an expert Quran Hifz (memorization) and Tajweed coach. Analyze the following verse and provide guidance:
1. Provide the original Arabic verse.
2. Provide memorization tips in Tamil and English for this specific verse.
3. Provide Tajweed rules (தஜ்வீத் விதிகள்) specific to this verse in Tamil and English.
4. Provide Tartil guidance (தர்த்தீல் வழிகாட்டுதல்) on how to recite with proper melody and pace in Tamil and English.
Return JSON.`

// AnalyzeHifzChallenge produces memorization guidance. customRules, when
// non-empty, are the user's personal Tajweed emphases.
func (a *Analyzer) AnalyzeHifzChallenge(ctx context.Context, p Payload, customRules string) (*HifzChallenge, error) {
	prompt := hifzPrompt
	if customRules != "" {
		prompt += "\n\nApply these custom Tajweed rules from the student:\n" + customRules
	}
	parts, err := p.parts(prompt)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Models.GenerateContent(ctx, proModel,
		[]*genai.Content{{Parts: parts}},
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			ThinkingConfig:   &genai.ThinkingConfig{ThinkingBudget: genai.Ptr[int32](4000)},
			ResponseSchema: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"originalVerse":  {Type: genai.TypeString},
					"tipsTamil":      {Type: genai.TypeString},
					"tipsEnglish":    {Type: genai.TypeString},
					"tajweedTamil":   {Type: genai.TypeString},
					"tajweedEnglish": {Type: genai.TypeString},
					"tartilTamil":    {Type: genai.TypeString},
					"tartilEnglish":  {Type: genai.TypeString},
				},
				Required: []string{"originalVerse", "tipsTamil", "tipsEnglish",
					"tajweedTamil", "tajweedEnglish", "tartilTamil", "tartilEnglish"},
			},
		})
	if err != nil {
		return nil, fmt.Errorf("hifz analysis failed: %w", err)
	}

	var challenge HifzChallenge
	if err := sonic.Unmarshal([]byte(resp.Text()), &challenge); err != nil {
		return nil, fmt.Errorf("hifz analysis returned malformed JSON: %w", err)
	}
	return &challenge, nil
}

const auditPromptFmt = `Compare this audio recitation against the target Quranic verse: %q.
Check for:
1. Accuracy (any skipped or wrong words).
2. Basic Tajweed suggestions (Ghunnah, Mad, Qalqalah etc).
Provide feedback in both Tamil (தமிழ்) and English plus an overall accuracy score from 0 to 100. Highlight specific areas of improvement. Be encouraging.`

// AuditRecitation scores a recorded recitation against the target verse.
func (a *Analyzer) AuditRecitation(ctx context.Context, verseText string, recording *genai.Blob, customRules string) (*RecitationFeedback, error) {
	if recording == nil || len(recording.Data) == 0 {
		return nil, fmt.Errorf("%w: no recording provided", ErrNoContent)
	}

	prompt := fmt.Sprintf(auditPromptFmt, verseText)
	if customRules != "" {
		prompt += "\n\nAlso check these custom Tajweed rules from the student:\n" + customRules
	}

	resp, err := a.client.Models.GenerateContent(ctx, flashModel,
		[]*genai.Content{{Parts: []*genai.Part{
			{Text: prompt},
			{InlineData: recording},
		}}},
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"feedbackTamil":   {Type: genai.TypeString},
					"feedbackEnglish": {Type: genai.TypeString},
					"accuracyScore":   {Type: genai.TypeInteger},
				},
				Required: []string{"feedbackTamil", "feedbackEnglish", "accuracyScore"},
			},
		})
	if err != nil {
		return nil, fmt.Errorf("recitation audit failed: %w", err)
	}

	var feedback RecitationFeedback
	if err := sonic.Unmarshal([]byte(resp.Text()), &feedback); err != nil {
		return nil, fmt.Errorf("recitation audit returned malformed JSON: %w", err)
	}
	if feedback.AccuracyScore < 0 {
		feedback.AccuracyScore = 0
	} else if feedback.AccuracyScore > 100 {
		feedback.AccuracyScore = 100
	}
	return &feedback, nil
}

const tafsirPrompt = `Provide a comprehensive Tafsir (exegesis) for this Quran verse.
Give the full explanation in Tamil and in English, covering context of revelation, meaning, and practical lessons.
Return JSON.`

// GenerateTafsir produces a bilingual exegesis for a verse.
func (a *Analyzer) GenerateTafsir(ctx context.Context, p Payload) (*Tafsir, error) {
	parts, err := p.parts(tafsirPrompt)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Models.GenerateContent(ctx, flashModel,
		[]*genai.Content{{Parts: parts}},
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"tamilTafsir":   {Type: genai.TypeString},
					"englishTafsir": {Type: genai.TypeString},
				},
				Required: []string{"tamilTafsir", "englishTafsir"},
			},
		})
	if err != nil {
		return nil, fmt.Errorf("tafsir generation failed: %w", err)
	}

	var tafsir Tafsir
	if err := sonic.Unmarshal([]byte(resp.Text()), &tafsir); err != nil {
		return nil, fmt.Errorf("tafsir returned malformed JSON: %w", err)
	}
	return &tafsir, nil
}

const grammarPrompt = `Perform a deep linguistic and grammatical analysis of this Quranic verse.
1. Root Words (வேர்ச் சொற்கள்): Extract the 3-letter roots for key words and explain their core meanings.
2. Grammar (இலக்கணம்): Explain the Nahw (sentence structure) and Sarf (word morphology) in simple terms.
3. Learning Tips: Provide 3-4 specific tips on how to learn these Arabic patterns using English and Tamil grammar analogies.
Provide the output in a clean Markdown format with clear headings. Use both English and Tamil for explanations.`

// AnalyzeGrammar performs a deep Nahw/Sarf analysis, returned as Markdown.
func (a *Analyzer) AnalyzeGrammar(ctx context.Context, p Payload) (string, error) {
	parts, err := p.parts(grammarPrompt)
	if err != nil {
		return "", err
	}

	resp, err := a.client.Models.GenerateContent(ctx, proModel,
		[]*genai.Content{{Parts: parts}},
		&genai.GenerateContentConfig{
			ThinkingConfig: &genai.ThinkingConfig{ThinkingBudget: genai.Ptr[int32](32768)},
		})
	if err != nil {
		return "", fmt.Errorf("grammar analysis failed: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", ErrNoContent
	}
	return text, nil
}

const translatePrompt = `Provide a full detailed translation and explanation for this Quran verse in both Tamil and English.
Structure it as:
1. Full English Translation
2. Full Tamil Translation (தமிழ் விளக்கம்)
3. Brief Context/Benefit (பயன்)`

// TranslateVerse produces a full bilingual translation with context.
func (a *Analyzer) TranslateVerse(ctx context.Context, p Payload) (string, error) {
	parts, err := p.parts(translatePrompt)
	if err != nil {
		return "", err
	}

	resp, err := a.client.Models.GenerateContent(ctx, flashModel,
		[]*genai.Content{{Parts: parts}}, nil)
	if err != nil {
		return "", fmt.Errorf("translation failed: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", ErrNoContent
	}
	return text, nil
}

const extractPrompt = `Extract only the text content from this input. If it is a Quran verse, provide the full Arabic text followed by its simple meaning. Do not include any JSON or metadata. Just raw text for a screen reader.`

// ExtractText flattens any payload into plain text suitable for reading
// aloud.
func (a *Analyzer) ExtractText(ctx context.Context, p Payload) (string, error) {
	parts, err := p.parts(extractPrompt)
	if err != nil {
		return "", err
	}

	resp, err := a.client.Models.GenerateContent(ctx, flashModel,
		[]*genai.Content{{Parts: parts}}, nil)
	if err != nil {
		return "", fmt.Errorf("text extraction failed: %w", err)
	}
	return resp.Text(), nil
}

// Synthesize converts text to PCM16LE mono audio @24kHz. An empty result
// with a nil error means the model produced no audio for this input.
func (a *Analyzer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	resp, err := a.client.Models.GenerateContent(ctx, ttsModel,
		[]*genai.Content{{Parts: []*genai.Part{{Text: text}}}},
		&genai.GenerateContentConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &genai.SpeechConfig{
				VoiceConfig: &genai.VoiceConfig{
					PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: "Kore"},
				},
			},
		})
	if err != nil {
		return nil, fmt.Errorf("speech synthesis failed: %w", err)
	}

	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData.Data, nil
			}
		}
	}
	return nil, nil
}
