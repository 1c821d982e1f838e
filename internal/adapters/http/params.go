package httpadapter

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	"github.com/kirillkom/property-desk/internal/core/domain"
)

func pathParam(r *http.Request, name string) (string, error) {
	var value string
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), &value, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "path parameter "+name, err)
	}
	return value, nil
}

func pathInt(r *http.Request, name string) (int, error) {
	var value int
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), &value, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
	if err != nil {
		return 0, domain.WrapError(domain.ErrInvalidInput, "path parameter "+name, err)
	}
	return value, nil
}

// queryInt binds an optional integer query parameter, keeping fallback when
// the parameter is absent.
func queryInt(r *http.Request, name string, fallback int) (int, error) {
	var value *int
	if err := runtime.BindQueryParameter("form", true, false, name, r.URL.Query(), &value); err != nil {
		return 0, domain.WrapError(domain.ErrInvalidInput, "query parameter "+name, err)
	}
	if value == nil {
		return fallback, nil
	}
	if *value < 0 {
		return 0, domain.NewError(domain.ErrInvalidInput, "query parameter "+name, fmt.Sprintf("%s must be >= 0", name))
	}
	return *value, nil
}
