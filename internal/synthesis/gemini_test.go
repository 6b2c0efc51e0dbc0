package synthesis

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/genai"
)

type fakeGenerator struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
	resp     *genai.GenerateContentResponse
	err      error
}

func (f *fakeGenerator) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.contents = contents
	f.config = config
	return f.resp, f.err
}

func TestGeminiCapabilityComplete(t *testing.T) {
	generator := &fakeGenerator{resp: &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: "model", Parts: []*genai.Part{{Text: `{"sql":"SELECT 1 LIMIT 1"}`}}},
		}},
	}}
	capability := newGeminiCapability(generator, GeminiConfig{Temperature: 0.2})

	completion, err := capability.Complete(context.Background(), Prompt{System: "sys", User: "find parts"})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if completion.Text != `{"sql":"SELECT 1 LIMIT 1"}` || completion.Provider != providerGemini {
		t.Fatalf("unexpected completion %+v", completion)
	}
	if generator.model != "gemini-2.5-flash" {
		t.Fatalf("model = %q", generator.model)
	}
	if generator.config.ResponseMIMEType != "application/json" {
		t.Fatalf("ResponseMIMEType = %q", generator.config.ResponseMIMEType)
	}
	if len(generator.contents) != 1 || generator.contents[0].Parts[0].Text != "find parts" {
		t.Fatalf("contents = %+v", generator.contents)
	}
}

func TestGeminiCapabilityErrors(t *testing.T) {
	capability := newGeminiCapability(&fakeGenerator{err: errors.New("quota exceeded")}, GeminiConfig{})
	if _, err := capability.Complete(context.Background(), Prompt{}); err == nil {
		t.Fatal("expected transport error")
	}
	capability = newGeminiCapability(&fakeGenerator{resp: &genai.GenerateContentResponse{}}, GeminiConfig{})
	if _, err := capability.Complete(context.Background(), Prompt{}); err == nil {
		t.Fatal("expected error for empty candidates")
	}
}

func TestGeminiCapabilityClassifiesFailures(t *testing.T) {
	cases := []struct {
		name string
		gen  *fakeGenerator
		want ErrorKind
	}{
		{name: "unavailable", gen: &fakeGenerator{err: genai.APIError{Code: 503, Status: "UNAVAILABLE"}}, want: KindTransport},
		{name: "rate limited", gen: &fakeGenerator{err: genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED"}}, want: KindTransport},
		{name: "bad request", gen: &fakeGenerator{err: genai.APIError{Code: 400, Status: "INVALID_ARGUMENT"}}, want: KindMalformed},
		{name: "no candidates", gen: &fakeGenerator{resp: &genai.GenerateContentResponse{}}, want: KindMalformed},
		{name: "max tokens", gen: &fakeGenerator{resp: &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonMaxTokens}},
		}}, want: KindMalformed},
		{name: "unclassified", gen: &fakeGenerator{err: errors.New("dial tcp: refused")}, want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := newGeminiCapability(tc.gen, GeminiConfig{}).Complete(context.Background(), Prompt{})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := KindOf(err); got != tc.want {
				t.Fatalf("KindOf() = %q, want %q (err=%v)", got, tc.want, err)
			}
		})
	}
}
