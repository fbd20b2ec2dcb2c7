package validator

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/nulzo/modelmart/internal/price"
)

// trans is a private global translator
var trans ut.Translator

// ChainChecker reports whether a network name is accepted for deployments.
type ChainChecker interface {
	Supported(name string) bool
}

// InitValidator configures gin's validator engine with json field names,
// English messages and the marketplace tags "chain" and "decimal".
func InitValidator(chains ChainChecker) error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
	}

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	locale := en.New()
	uni := ut.New(locale, locale)
	trans, _ = uni.GetTranslator("en")

	if err := en_translations.RegisterDefaultTranslations(v, trans); err != nil {
		return err
	}

	if err := v.RegisterValidation("chain", func(fl validator.FieldLevel) bool {
		return chains.Supported(fl.Field().String())
	}); err != nil {
		return err
	}
	if err := v.RegisterValidation("decimal", func(fl validator.FieldLevel) bool {
		return price.Valid(fl.Field().String())
	}); err != nil {
		return err
	}

	if err := registerMessage(v, "chain", "{0} is not a supported chain"); err != nil {
		return err
	}
	return registerMessage(v, "decimal", "{0} must be a non-negative decimal with at most 6 decimal places, up to 1000000000")
}

func registerMessage(v *validator.Validate, tag, text string) error {
	return v.RegisterTranslation(tag, trans,
		func(ut ut.Translator) error {
			return ut.Add(tag, text, true)
		},
		func(ut ut.Translator, fe validator.FieldError) string {
			msg, _ := ut.T(tag, fe.Field())
			return msg
		},
	)
}

// ParseValidationError converts raw technical errors into a clean map.
// Nested fields keep their dotted path below the root struct.
func ParseValidationError(err error) map[string]string {
	errMap := make(map[string]string)

	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		for _, e := range validationErrors {
			ns := e.Namespace()

			if i := strings.Index(ns, "."); i != -1 {
				ns = ns[i+1:]
			}

			msg := e.Error()
			if trans != nil {
				msg = e.Translate(trans)
			}

			if e.Tag() == "oneof" {
				msg = fmt.Sprintf("must be one of [%s]", strings.ReplaceAll(e.Param(), " ", ", "))
			}

			errMap[ns] = msg
		}
		return errMap
	}

	errMap["body"] = "Invalid request body format. Please fix your payload."
	return errMap
}
