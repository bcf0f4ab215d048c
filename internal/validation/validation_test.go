package validation

import (
	"errors"
	"strings"
	"testing"

	"github.com/fedutinova/avatarcast/internal/common"
)

func TestValidateRenderRequest_AppliesDefaults(t *testing.T) {
	params, errs := ValidateRenderRequest(RenderRequest{Text: "  Olá mundo  ", Language: "pt-BR"})
	if len(errs) > 0 {
		t.Fatalf("unexpected validation errors: %v", errs)
	}

	if params.Text != "Olá mundo" {
		t.Errorf("expected trimmed text, got %q", params.Text)
	}
	if params.Language != "pt-BR" {
		t.Errorf("expected pt-BR, got %s", params.Language)
	}
	if params.Voice.Style != DefaultVoiceStyle || params.Voice.Speed != DefaultVoiceSpeed {
		t.Errorf("expected default voice, got %+v", params.Voice)
	}
	if params.Avatar != DefaultAvatar || params.Camera != DefaultCamera || params.Lighting != DefaultLighting {
		t.Errorf("expected default presets, got %+v", params)
	}
	if params.Output.Resolution != DefaultResolution || params.Output.Codec != DefaultCodec {
		t.Errorf("expected default output, got %+v", params.Output)
	}
}

func TestValidateRenderRequest_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		req   RenderRequest
		field string
	}{
		{"empty text", RenderRequest{Text: "", Language: "pt-BR"}, "text"},
		{"blank text", RenderRequest{Text: "   \n", Language: "pt-BR"}, "text"},
		{"over-length text", RenderRequest{Text: strings.Repeat("á", MaxTextLength+1), Language: "pt-BR"}, "text"},
		{"unsupported locale", RenderRequest{Text: "hello", Language: "en-US"}, "language"},
		{"missing language", RenderRequest{Text: "Olá"}, "language"},
		{"garbage language", RenderRequest{Text: "Olá", Language: "not a tag"}, "language"},
		{"unknown avatar", RenderRequest{Text: "Olá", Language: "pt-BR", Avatar: "robot"}, "avatar"},
		{"bad camera", RenderRequest{Text: "Olá", Language: "pt-BR", Camera: "drone"}, "camera"},
		{"bad lighting", RenderRequest{Text: "Olá", Language: "pt-BR", Lighting: "neon"}, "lighting"},
		{"bad voice style", RenderRequest{Text: "Olá", Language: "pt-BR", Voice: VoiceRequest{Style: "whisper"}}, "voice.style"},
		{"voice too fast", RenderRequest{Text: "Olá", Language: "pt-BR", Voice: VoiceRequest{Speed: 3}}, "voice.speed"},
		{"bad resolution", RenderRequest{Text: "Olá", Language: "pt-BR", Output: OutputOption{Resolution: "8k"}}, "output.resolution"},
		{"bad codec", RenderRequest{Text: "Olá", Language: "pt-BR", Output: OutputOption{Codec: "mpeg2"}}, "output.codec"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errs := ValidateRenderRequest(tt.req)
			if len(errs) == 0 {
				t.Fatalf("expected validation error")
			}
			if !errors.Is(errs, common.ErrValidation) {
				t.Fatalf("expected errors.Is(ErrValidation)")
			}
			found := false
			for _, e := range errs {
				if e.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected error on field %q, got %v", tt.field, errs)
			}
		})
	}
}

func TestValidateRenderRequest_MaxLengthCountsRunes(t *testing.T) {
	_, errs := ValidateRenderRequest(RenderRequest{Text: strings.Repeat("ç", MaxTextLength), Language: "pt-BR"})
	if len(errs) > 0 {
		t.Fatalf("text of exactly %d runes must be accepted: %v", MaxTextLength, errs)
	}
}

func TestCanonicalLanguage(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"pt-BR", "pt-BR", false},
		{"pt-br", "pt-BR", false},
		{"pt", "pt-BR", false},
		{"pt-PT", "pt-PT", false},
		{"en-US", "", true},
		{"es-ES", "", true},
		{"", "", true},
	}

	for _, test := range tests {
		got, err := CanonicalLanguage(test.in)
		if (err != nil) != test.wantErr {
			t.Errorf("CanonicalLanguage(%q) error = %v, wantErr %v", test.in, err, test.wantErr)
			continue
		}
		if got != test.want {
			t.Errorf("CanonicalLanguage(%q) = %q, want %q", test.in, got, test.want)
		}
	}
}

func TestAvatarsByCategory(t *testing.T) {
	if got := AvatarsByCategory(""); len(got) != len(Avatars) {
		t.Fatalf("expected full catalog, got %d presets", len(got))
	}

	safety := AvatarsByCategory("safety")
	if len(safety) != 1 || safety[0].ID != "br_safety_carlos" {
		t.Fatalf("unexpected safety presets: %+v", safety)
	}
	if got := AvatarsByCategory("sports"); len(got) != 0 {
		t.Fatalf("expected no presets for unknown category, got %+v", got)
	}

	for _, a := range Avatars {
		if _, errs := ValidateRenderRequest(RenderRequest{Text: "Olá", Language: "pt-BR", Avatar: a.ID}); len(errs) > 0 {
			t.Errorf("catalog avatar %s rejected: %v", a.ID, errs)
		}
	}
}
