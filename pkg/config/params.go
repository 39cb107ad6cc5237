package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Flattened parameter names accepted by FromParams
const (
	ParamDataSource     = "dataSource"
	ParamClassifierType = "classifierType"
	ParamBasePath       = "basePath"
	ParamDefaultCat     = "defaultCat"
	ParamGramSize       = "gramSize"
	ParamAlpha          = "alpha"
)

var requiredParams = []string{ParamDataSource, ParamClassifierType, ParamBasePath, ParamDefaultCat}

// FromParams builds a configuration from a flattened parameter set.
// dataSource, classifierType, basePath and defaultCat are required;
// unknown names are rejected.
func FromParams(params map[string]string) (*Config, error) {
	for _, key := range requiredParams {
		if strings.TrimSpace(params[key]) == "" {
			return nil, missing(key)
		}
	}

	cfg := DefaultConfig()
	if err := cfg.ApplyParams(params); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyParams overrides classifier settings from a flattened parameter set
func (c *Config) ApplyParams(params map[string]string) error {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		val := strings.TrimSpace(params[key])

		switch key {
		case ParamDataSource:
			c.Classifier.DataSource = strings.ToLower(val)
		case ParamClassifierType:
			c.Classifier.ClassifierType = strings.ToLower(val)
		case ParamBasePath:
			c.Classifier.BasePath = val
		case ParamDefaultCat:
			c.Classifier.DefaultCategory = val
		case ParamGramSize:
			n, err := strconv.Atoi(val)
			if err != nil {
				return invalid(key, "not an integer: %q", val)
			}
			c.Classifier.GramSize = n
		case ParamAlpha:
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return invalid(key, "not a number: %q", val)
			}
			c.Classifier.Alpha = f
		default:
			return &Error{Key: key, Err: fmt.Errorf("unknown parameter")}
		}
	}
	return nil
}

// ParseParams splits "k=v,k=v" into a parameter set
func ParseParams(s string) (map[string]string, error) {
	params := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, &Error{Key: pair, Err: fmt.Errorf("expected key=value")}
		}
		params[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return params, nil
}
