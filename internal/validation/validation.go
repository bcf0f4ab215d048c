package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/language"

	"github.com/fedutinova/avatarcast/internal/common"
	"github.com/fedutinova/avatarcast/internal/job"
)

const (
	MaxTextLength = 5000
	MinVoiceSpeed = 0.5
	MaxVoiceSpeed = 2.0
)

// SupportedLanguage is the only locale family the synthesis and animation
// stages are tuned for.
var SupportedLanguage = language.Portuguese

// Defaults applied to omitted presets.
const (
	DefaultVoiceStyle = "neutral"
	DefaultVoiceSpeed = 1.0
	DefaultAvatar     = "br_corporate_ana"
	DefaultCamera     = "medium"
	DefaultLighting   = "studio"
	DefaultResolution = "1080p"
	DefaultCodec      = "h264"
)

// Avatar is one preset the render stage knows how to load.
type Avatar struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Gender   string `json:"gender"`
}

// Avatars is the preset catalog accepted by the render stage.
var Avatars = []Avatar{
	{ID: "br_corporate_ana", Name: "Ana Paula - Executiva", Category: "business", Gender: "female"},
	{ID: "br_safety_carlos", Name: "Carlos Silva - Segurança", Category: "safety", Gender: "male"},
	{ID: "br_healthcare_julia", Name: "Júlia Costa - Saúde", Category: "healthcare", Gender: "female"},
	{ID: "br_education_pedro", Name: "Pedro Almeida - Educação", Category: "education", Gender: "male"},
	{ID: "br_casual_marina", Name: "Marina Santos - Informal", Category: "casual", Gender: "female"},
}

// AvatarsByCategory returns the presets in category, or all of them when
// category is empty.
func AvatarsByCategory(category string) []Avatar {
	out := make([]Avatar, 0, len(Avatars))
	for _, a := range Avatars {
		if category == "" || a.Category == category {
			out = append(out, a)
		}
	}
	return out
}

// RenderRequest is the submission payload.
type RenderRequest struct {
	Text     string       `json:"text" validate:"required"`
	Language string       `json:"language" validate:"required,locale"`
	Voice    VoiceRequest `json:"voice"`
	Avatar   string       `json:"avatar" validate:"omitempty,avatar"`
	Camera   string       `json:"camera" validate:"omitempty,oneof=closeup medium wide"`
	Lighting string       `json:"lighting" validate:"omitempty,oneof=studio soft dramatic natural"`
	Output   OutputOption `json:"output"`
}

type VoiceRequest struct {
	Style string  `json:"style" validate:"omitempty,oneof=neutral friendly formal energetic"`
	Speed float64 `json:"speed" validate:"omitempty,min=0.5,max=2"`
}

type OutputOption struct {
	Resolution string `json:"resolution" validate:"omitempty,oneof=720p 1080p 1440p 4k"`
	Codec      string `json:"codec" validate:"omitempty,oneof=h264 h265 vp9"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var messages []string
	for _, err := range e {
		messages = append(messages, err.Error())
	}
	return strings.Join(messages, "; ")
}

// Is lets callers match any rejection with errors.Is(err, common.ErrValidation).
func (e ValidationErrors) Is(target error) bool {
	return target == common.ErrValidation
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("locale", func(fl validator.FieldLevel) bool {
		_, err := CanonicalLanguage(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("avatar", func(fl validator.FieldLevel) bool {
		return isAvatar(fl.Field().String())
	})
	return v
}

// CanonicalLanguage parses a BCP 47 tag and accepts it only when it belongs
// to the supported locale family. Bare "pt" canonicalizes to "pt-BR".
func CanonicalLanguage(tag string) (string, error) {
	t, err := language.Parse(strings.TrimSpace(tag))
	if err != nil {
		return "", fmt.Errorf("invalid language tag %q", tag)
	}
	base, _ := t.Base()
	want, _ := SupportedLanguage.Base()
	if base != want {
		return "", fmt.Errorf("unsupported language %q", tag)
	}
	if region, conf := t.Region(); conf == language.Exact {
		return base.String() + "-" + region.String(), nil
	}
	return base.String() + "-BR", nil
}

func isAvatar(id string) bool {
	for _, a := range Avatars {
		if a.ID == id {
			return true
		}
	}
	return false
}

// ValidateRenderRequest checks the payload and returns the normalized job
// parameters. Nothing is persisted here.
func ValidateRenderRequest(req RenderRequest) (job.Params, ValidationErrors) {
	var errs ValidationErrors

	text := strings.TrimSpace(req.Text)
	req.Text = text
	if n := utf8.RuneCountInString(text); n > MaxTextLength {
		errs = append(errs, ValidationError{
			Field:   "text",
			Message: fmt.Sprintf("text exceeds maximum length of %d characters, got %d", MaxTextLength, n),
		})
	}

	if err := validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return job.Params{}, append(errs, ValidationError{Field: "request", Message: err.Error()})
		}
		for _, fe := range fieldErrs {
			errs = append(errs, ValidationError{
				Field:   fieldPath(fe),
				Message: messageFor(fe),
			})
		}
	}
	if len(errs) > 0 {
		return job.Params{}, errs
	}

	lang, _ := CanonicalLanguage(req.Language)
	return job.Params{
		Text:     text,
		Language: lang,
		Voice: job.Voice{
			Style: orDefault(req.Voice.Style, DefaultVoiceStyle),
			Speed: speedOrDefault(req.Voice.Speed),
		},
		Avatar:   orDefault(req.Avatar, DefaultAvatar),
		Camera:   orDefault(req.Camera, DefaultCamera),
		Lighting: orDefault(req.Lighting, DefaultLighting),
		Output: job.Output{
			Resolution: orDefault(req.Output.Resolution, DefaultResolution),
			Codec:      orDefault(req.Output.Codec, DefaultCodec),
		},
	}, nil
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "locale":
		return fmt.Sprintf("unsupported language %q, expected a %s locale", fe.Value(), SupportedLanguage)
	case "avatar":
		return fmt.Sprintf("unknown avatar preset %q", fe.Value())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "min", "max":
		return fmt.Sprintf("must be between %.1f and %.1f", MinVoiceSpeed, MaxVoiceSpeed)
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func speedOrDefault(v float64) float64 {
	if v == 0 {
		return DefaultVoiceSpeed
	}
	return v
}
