package config

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Manager collects raw configuration values from several sources before
// they are unmarshaled into a Config.
type Manager struct {
	values map[string]interface{}
	mu     sync.RWMutex
}

// NewManager creates a new configuration manager
func NewManager() *Manager {
	return &Manager{
		values: make(map[string]interface{}),
	}
}

// Set sets a configuration value
func (m *Manager) Set(key string, value interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = value
}

// Get gets a configuration value
func (m *Manager) Get(key string) (interface{}, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, exists := m.values[key]
	return value, exists
}

// LoadFromEnv loads PREFIX_SOME_KEY variables as "some_key".
func (m *Manager) LoadFromEnv(prefix string) {
	for _, env := range os.Environ() {
		key, value, ok := strings.Cut(env, "=")
		if !ok {
			continue
		}

		if prefix != "" {
			if !strings.HasPrefix(key, prefix+"_") {
				continue
			}
			key = strings.TrimPrefix(key, prefix+"_")
		}

		m.Set(strings.ToLower(key), value)
	}
}

// LoadFromJSON loads configuration from JSON file
func (m *Manager) LoadFromJSON(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var values map[string]interface{}
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("failed to parse JSON config: %w", err)
	}

	m.loadFromMap("", values)
	return nil
}

// loadFromMap recursively loads configuration from a map
func (m *Manager) loadFromMap(prefix string, values map[string]interface{}) {
	for key, value := range values {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}

		if nested, ok := value.(map[string]interface{}); ok {
			m.loadFromMap(fullKey, nested)
		} else {
			m.Set(fullKey, value)
		}
	}
}

// Unmarshal unmarshals configuration into a struct
func (m *Manager) Unmarshal(prefix string, target interface{}) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	targetValue := reflect.ValueOf(target)
	if targetValue.Kind() != reflect.Ptr {
		return fmt.Errorf("target must be a pointer")
	}

	targetValue = targetValue.Elem()
	if targetValue.Kind() != reflect.Struct {
		return fmt.Errorf("target must be a pointer to struct")
	}

	targetType := targetValue.Type()

	for i := 0; i < targetType.NumField(); i++ {
		field := targetType.Field(i)
		fieldValue := targetValue.Field(i)

		if !fieldValue.CanSet() {
			continue
		}

		configKey := field.Tag.Get("config")
		if configKey == "" {
			configKey = strings.ToLower(field.Name)
		}

		if prefix != "" {
			configKey = prefix + "." + configKey
		}

		value, exists := m.values[configKey]
		if !exists {
			continue
		}

		if err := setFieldValue(fieldValue, value); err != nil {
			return fmt.Errorf("%s: %w", configKey, err)
		}
	}

	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// setFieldValue sets a reflect.Value from a raw JSON or environment value.
// Unparseable values are errors; they are never silently dropped.
func setFieldValue(field reflect.Value, value interface{}) error {
	if field.Type() == durationType {
		d, err := toDuration(value)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		if str, ok := value.(string); ok {
			field.SetString(str)
		} else {
			field.SetString(fmt.Sprintf("%v", value))
		}

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		switch v := value.(type) {
		case int:
			field.SetInt(int64(v))
		case int64:
			field.SetInt(v)
		case float64:
			field.SetInt(int64(v))
		case string:
			i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer %q", v)
			}
			field.SetInt(i)
		default:
			return fmt.Errorf("cannot use %T as integer", value)
		}

	case reflect.Bool:
		switch v := value.(type) {
		case bool:
			field.SetBool(v)
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("invalid boolean %q", v)
			}
			field.SetBool(b)
		default:
			return fmt.Errorf("cannot use %T as boolean", value)
		}

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type %v", field.Type())
		}
		var items []string
		switch v := value.(type) {
		case string:
			items = splitMethods(v)
		case []interface{}:
			for _, item := range v {
				items = append(items, strings.ToUpper(fmt.Sprintf("%v", item)))
			}
		case []string:
			items = v
		default:
			return fmt.Errorf("cannot use %T as list", value)
		}
		field.Set(reflect.ValueOf(items))

	default:
		return fmt.Errorf("unsupported field type %v", field.Type())
	}

	return nil
}

func toDuration(value interface{}) (time.Duration, error) {
	switch v := value.(type) {
	case time.Duration:
		return v, nil
	case string:
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", v)
		}
		return d, nil
	case float64:
		// JSON numbers are seconds.
		return time.Duration(v * float64(time.Second)), nil
	case int64:
		return time.Duration(v), nil
	}
	return 0, fmt.Errorf("cannot use %T as duration", value)
}
