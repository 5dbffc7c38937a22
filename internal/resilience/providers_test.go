package resilience_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/resonate/internal/resilience"
	"github.com/MrWong99/resonate/pkg/provider/llm"
	llmmock "github.com/MrWong99/resonate/pkg/provider/llm/mock"
	"github.com/MrWong99/resonate/pkg/provider/stt"
	sttmock "github.com/MrWong99/resonate/pkg/provider/stt/mock"
	"github.com/MrWong99/resonate/pkg/provider/tts"
	ttsmock "github.com/MrWong99/resonate/pkg/provider/tts/mock"
)

var errUpstream = errors.New("upstream down")

func TestSTT_FailsOverToFallback(t *testing.T) {
	t.Parallel()

	primary := &sttmock.Provider{Err: errUpstream}
	backup := &sttmock.Provider{Transcripts: []string{"hello from backup"}}

	f := resilience.NewSTT("primary", primary, resilience.BreakerConfig{})
	f.Add("backup", backup)

	got, err := f.Transcribe(context.Background(), stt.Request{Audio: []byte("wav"), Format: "wav"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got != "hello from backup" {
		t.Errorf("transcript = %q", got)
	}
	if len(primary.Calls()) != 1 || len(backup.Calls()) != 1 {
		t.Errorf("calls: primary %d, backup %d; want 1 and 1",
			len(primary.Calls()), len(backup.Calls()))
	}
}

func TestSTT_PrimaryPreferred(t *testing.T) {
	t.Parallel()

	primary := &sttmock.Provider{Transcripts: []string{"primary text"}}
	backup := &sttmock.Provider{Transcripts: []string{"backup text"}}

	f := resilience.NewSTT("primary", primary, resilience.BreakerConfig{})
	f.Add("backup", backup)

	got, err := f.Transcribe(context.Background(), stt.Request{Audio: []byte("wav")})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got != "primary text" {
		t.Errorf("transcript = %q; want the primary's", got)
	}
	if len(backup.Calls()) != 0 {
		t.Error("backup should not be called while the primary is healthy")
	}
}

func TestSTT_AllFail(t *testing.T) {
	t.Parallel()

	f := resilience.NewSTT("primary", &sttmock.Provider{Err: errUpstream}, resilience.BreakerConfig{})
	f.Add("backup", &sttmock.Provider{Err: errUpstream})

	_, err := f.Transcribe(context.Background(), stt.Request{Audio: []byte("wav")})
	if !errors.Is(err, resilience.ErrAllProvidersFailed) {
		t.Errorf("err = %v; want ErrAllProvidersFailed", err)
	}
}

func TestTTS_FailsOverToFallback(t *testing.T) {
	t.Parallel()

	primary := &ttsmock.Provider{Err: errUpstream}
	backup := &ttsmock.Provider{Audio: []byte("mp3-bytes")}

	f := resilience.NewTTS("primary", primary, resilience.BreakerConfig{})
	f.Add("backup", backup)

	res, err := f.Synthesize(context.Background(), tts.Request{Text: "hi", Voice: "alloy"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(res.Audio) != "mp3-bytes" {
		t.Errorf("audio = %q", res.Audio)
	}

	// The fallback must see the same request.
	calls := backup.Calls()
	if len(calls) != 1 || calls[0].Text != "hi" || calls[0].Voice != "alloy" {
		t.Errorf("backup calls = %+v", calls)
	}
}

func TestLLM_StreamFailsOver(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{StreamErr: errUpstream}
	backup := &llmmock.Provider{StreamChunks: []llm.Chunk{
		{Text: "fall"},
		{Text: "back", FinishReason: "stop"},
	}}

	f := resilience.NewLLM("primary", primary, resilience.BreakerConfig{})
	f.Add("backup", backup)

	ch, err := f.StreamCompletion(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("StreamCompletion: %v", err)
	}

	var text string
	for chunk := range ch {
		text += chunk.Text
	}
	if text != "fallback" {
		t.Errorf("streamed text = %q", text)
	}
}

func TestLLM_Complete(t *testing.T) {
	t.Parallel()

	f := resilience.NewLLM("only", &llmmock.Provider{CompleteText: "done"}, resilience.BreakerConfig{})

	got, err := f.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "done" {
		t.Errorf("completion = %q", got)
	}
}
