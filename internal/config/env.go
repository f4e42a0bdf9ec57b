package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
)

// EnvPrefix prefixes every environment variable derived from the yaml layout
const EnvPrefix = "WSBRIDGE"

// ProxyPortEnv overrides proxy.port; it is supplied by the hosting platform
// and therefore carries no prefix.
const ProxyPortEnv = "PROXY_PORT"

// LoadEnv loads configuration from environment variables
func LoadEnv(cfg *Config) error {
	if err := loadEnvStruct(reflect.ValueOf(cfg).Elem(), EnvPrefix); err != nil {
		return err
	}

	if val := os.Getenv(ProxyPortEnv); val != "" {
		port, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid int value for %s: %v", ProxyPortEnv, err)
		}
		cfg.Proxy.Port = port
	}
	return nil
}

// envKey derives the variable name for a field from its yaml tag
func envKey(prefix string, field reflect.StructField) (string, bool) {
	yamlTag := field.Tag.Get("yaml")
	if yamlTag == "" || yamlTag == "-" {
		return "", false
	}
	name := strings.Split(yamlTag, ",")[0]
	return fmt.Sprintf("%s_%s", prefix, strings.ToUpper(name)), true
}

// loadEnvStruct recursively loads environment variables into a struct
func loadEnvStruct(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		if !field.CanSet() {
			continue
		}

		key, ok := envKey(prefix, t.Field(i))
		if !ok {
			continue
		}

		switch field.Kind() {
		case reflect.Struct:
			if err := loadEnvStruct(field, key); err != nil {
				return err
			}

		case reflect.Ptr:
			if field.Type().Elem().Kind() != reflect.Struct {
				continue
			}
			if field.IsNil() {
				if !hasEnvVarsWithPrefix(key) {
					continue
				}
				field.Set(reflect.New(field.Type().Elem()))
			}
			if err := loadEnvStruct(field.Elem(), key); err != nil {
				return err
			}

		default:
			val := os.Getenv(key)
			if val == "" {
				continue
			}
			if err := setField(field, key, val); err != nil {
				return err
			}
		}
	}

	return nil
}

// setField parses val into a scalar or slice field
func setField(field reflect.Value, key, val string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(val)

	case reflect.Int, reflect.Int64:
		intVal, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid int value for %s: %v", key, err)
		}
		field.SetInt(intVal)

	case reflect.Float64:
		floatVal, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("invalid float value for %s: %v", key, err)
		}
		field.SetFloat(floatVal)

	case reflect.Bool:
		boolVal, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("invalid bool value for %s: %v", key, err)
		}
		field.SetBool(boolVal)

	case reflect.Slice:
		// comma-separated scalars; slices of structs (routes) are file-only
		elem := field.Type().Elem().Kind()
		if elem != reflect.String && elem != reflect.Int {
			return nil
		}
		parts := strings.Split(val, ",")
		slice := reflect.MakeSlice(field.Type(), len(parts), len(parts))
		for i, part := range parts {
			if err := setField(slice.Index(i), key, strings.TrimSpace(part)); err != nil {
				return err
			}
		}
		field.Set(slice)
	}
	return nil
}

// hasEnvVarsWithPrefix checks if any environment variables exist with the given prefix
func hasEnvVarsWithPrefix(prefix string) bool {
	prefix = prefix + "_"
	for _, env := range os.Environ() {
		if strings.HasPrefix(env, prefix) {
			return true
		}
	}
	return false
}

// EnvExample generates example environment variables for the configuration
func EnvExample(cfg *Config) []string {
	examples := []string{ProxyPortEnv + "=8080"}
	generateEnvExamples(reflect.TypeOf(cfg).Elem(), EnvPrefix, &examples)
	return examples
}

// generateEnvExamples recursively generates example environment variables
func generateEnvExamples(t reflect.Type, prefix string, examples *[]string) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		key, ok := envKey(prefix, field)
		if !ok {
			continue
		}

		switch field.Type.Kind() {
		case reflect.String:
			*examples = append(*examples, fmt.Sprintf("%s=value", key))
		case reflect.Int, reflect.Int64:
			*examples = append(*examples, fmt.Sprintf("%s=123", key))
		case reflect.Float64:
			*examples = append(*examples, fmt.Sprintf("%s=1.5", key))
		case reflect.Bool:
			*examples = append(*examples, fmt.Sprintf("%s=true", key))
		case reflect.Struct:
			generateEnvExamples(field.Type, key, examples)
		case reflect.Ptr:
			if field.Type.Elem().Kind() == reflect.Struct {
				generateEnvExamples(field.Type.Elem(), key, examples)
			}
		}
	}
}
