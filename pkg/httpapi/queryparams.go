package httpapi

import (
	"fmt"
	"net/url"
	"strconv"
)

// QueryParamParser collects every invalid query parameter in one pass.
type QueryParamParser struct {
	Errors []Error
}

func NewQueryParamParser() *QueryParamParser {
	return &QueryParamParser{Errors: []Error{}}
}

func (p *QueryParamParser) Int(vals url.Values, def int, queryParam string) int {
	v, err := parseQueryParam(vals, strconv.Atoi, def, queryParam)
	if err != nil {
		p.Errors = append(p.Errors, Error{
			Field:  queryParam,
			Detail: fmt.Sprintf("Query param %q must be a valid integer (%s)", queryParam, err.Error()),
		})
	}
	return v
}

// IntRange is Int with inclusive bounds.
func (p *QueryParamParser) IntRange(vals url.Values, def, minimum, maximum int, queryParam string) int {
	before := len(p.Errors)
	v := p.Int(vals, def, queryParam)
	if len(p.Errors) > before {
		return v
	}
	if v < minimum || v > maximum {
		p.Errors = append(p.Errors, Error{
			Field:  queryParam,
			Detail: fmt.Sprintf("Query param %q must be between %d and %d", queryParam, minimum, maximum),
		})
	}
	return v
}

func parseQueryParam[T any](vals url.Values, parse func(v string) (T, error), def T, queryParam string) (T, error) {
	if !vals.Has(queryParam) || vals.Get(queryParam) == "" {
		return def, nil
	}
	return parse(vals.Get(queryParam))
}
