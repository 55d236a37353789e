package config

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Key describes one configuration key and the ways to set it.
type Key struct {
	Name    string // dotted koanf path, e.g. server.addr
	Type    string
	Default string
	Env     string
	Flag    string // empty when no flag sets the key
}

// EnvVar returns the environment variable that sets key.
func EnvVar(key string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// FlagFor returns the command-line flag that sets key, if any.
func FlagFor(key string) string {
	for flag, k := range flagKeys {
		if k == key {
			return flag
		}
	}
	return ""
}

// Keys lists every configuration key with its default, sorted by name.
// Map-valued keys such as rules.templates are listed once, without an
// environment variable.
func Keys() []Key {
	var keys []Key
	collectKeys(reflect.ValueOf(*Defaults()), "", &keys)
	sort.Slice(keys, func(i, j int) bool { return keys[i].Name < keys[j].Name })
	return keys
}

func collectKeys(v reflect.Value, prefix string, keys *[]Key) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("koanf")
		if tag == "" || tag == "-" {
			continue
		}
		name := prefix + tag
		fv := v.Field(i)

		if fv.Kind() == reflect.Struct {
			collectKeys(fv, name+".", keys)
			continue
		}

		key := Key{Name: name, Type: typeName(fv.Type()), Default: defaultText(fv), Flag: FlagFor(name)}
		if fv.Kind() != reflect.Map {
			key.Env = EnvVar(name)
		}
		*keys = append(*keys, key)
	}
}

func typeName(t reflect.Type) string {
	switch t.Kind() {
	case reflect.Slice:
		return "list of " + typeName(t.Elem())
	case reflect.Map:
		return "map"
	default:
		return t.Kind().String()
	}
}

func defaultText(v reflect.Value) string {
	if v.IsZero() {
		return ""
	}
	switch v.Kind() {
	case reflect.Slice:
		parts := make([]string, v.Len())
		for i := range parts {
			parts[i] = fmt.Sprint(v.Index(i).Interface())
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(v.Interface())
	}
}
