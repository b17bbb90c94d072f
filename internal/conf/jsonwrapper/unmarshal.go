// Package jsonwrapper contains a JSON unmarshaler.
package jsonwrapper

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// differences with respect to the standard package:
// - unknown fields are rejected
// - existing slices are replaced instead of being partially overwritten
// - slices can't be set to null

func resetSlices(v reflect.Value, raw interface{}, path string) error {
	switch v.Kind() {
	case reflect.Slice:
		if raw == nil {
			if path != "" {
				return fmt.Errorf("cannot set slice '%s' to nil", path)
			}
			return fmt.Errorf("cannot set slice to nil")
		}

		if !v.IsNil() {
			v.Set(reflect.Zero(v.Type()))
		}

	case reflect.Struct:
		rawMap, ok := raw.(map[string]interface{})
		if !ok {
			return nil
		}

		vType := v.Type()
		for i := 0; i < v.NumField(); i++ {
			key := strings.Split(vType.Field(i).Tag.Get("json"), ",")[0]
			if key == "" || key == "-" {
				continue
			}

			rawVal, ok := rawMap[key]
			if !ok {
				continue
			}

			fieldPath := key
			if path != "" {
				fieldPath = path + "." + key
			}

			err := resetSlices(v.Field(i), rawVal, fieldPath)
			if err != nil {
				return err
			}
		}
	}

	return nil
}

// Unmarshal decodes JSON.
func Unmarshal(buf []byte, dest interface{}) error {
	var raw interface{}
	err := json.Unmarshal(buf, &raw)
	if err != nil {
		return err
	}

	err = resetSlices(reflect.ValueOf(dest).Elem(), raw, "")
	if err != nil {
		return err
	}

	d := json.NewDecoder(bytes.NewReader(buf))
	d.DisallowUnknownFields()
	return d.Decode(dest)
}
