package validator

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	govalidator "github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/smquiz/quiz-backend/internal/model"
)

var (
	trans     ut.Translator
	setupOnce sync.Once
)

// customTag is a domain validation tag with its English message.
// {0} in message is replaced by the JSON field name.
type customTag struct {
	name    string
	valid   func(string) bool
	message string
}

var customTags = []customTag{
	{
		name:    "question_type",
		valid:   func(s string) bool { return model.QuestionType(s).Valid() },
		message: "{0} must be one of mcq, output or integer",
	},
	{
		name:    "trigger",
		valid:   func(s string) bool { return model.Trigger(s).Valid() },
		message: "{0} must be one of manual, timeout or violation_limit",
	},
}

// Setup registers JSON field naming, English translations and the domain
// tags on Gin's binding engine. Safe to call more than once.
func Setup() {
	setupOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*govalidator.Validate)
		if !ok {
			return
		}

		v.RegisterTagNameFunc(jsonFieldName)

		enLocale := en.New()
		trans, _ = ut.New(enLocale, enLocale).GetTranslator("en")
		_ = en_translations.RegisterDefaultTranslations(v, trans)

		for _, tag := range customTags {
			register(v, tag)
		}
	})
}

func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	return name
}

func register(v *govalidator.Validate, tag customTag) {
	_ = v.RegisterValidation(tag.name, func(fl govalidator.FieldLevel) bool {
		return tag.valid(fl.Field().String())
	})
	_ = v.RegisterTranslation(tag.name, trans,
		func(t ut.Translator) error {
			return t.Add(tag.name, tag.message, true)
		},
		func(t ut.Translator, fe govalidator.FieldError) string {
			msg, _ := t.T(tag.name, fe.Field())
			return msg
		},
	)
}

// TranslateErrors maps a binding error to field name -> message. Errors
// that are not validation failures (bad JSON, wrong types) land under
// "detail".
func TranslateErrors(err error) map[string]string {
	var ve govalidator.ValidationErrors
	if !errors.As(err, &ve) {
		return map[string]string{"detail": err.Error()}
	}

	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		if trans == nil {
			fields[fe.Field()] = fe.Error()
			continue
		}
		fields[fe.Field()] = fe.Translate(trans)
	}
	return fields
}

// Bind decodes and validates the JSON body into dst.
func Bind(c *gin.Context, dst any) map[string]string {
	if err := c.ShouldBindJSON(dst); err != nil {
		return TranslateErrors(err)
	}
	return nil
}

// BindQuery decodes and validates query parameters into dst.
func BindQuery(c *gin.Context, dst any) map[string]string {
	if err := c.ShouldBindQuery(dst); err != nil {
		return TranslateErrors(err)
	}
	return nil
}
