package transport

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"

	"github.com/rhuss/ribamar/pkg/dispatch"
)

// Content types produced by Encode.
const (
	ContentTypeJSON = "application/json"
	ContentTypeText = "text/plain; charset=utf-8"
)

// Encode renders a handler outcome. Empty outcomes (nil, "", false, zero
// numbers, and nil maps, slices or pointers) return dispatch.ErrEmptyResult.
// Non-nil empty maps and slices are structured values and encode as JSON.
func Encode(out any) (body []byte, contentType string, err error) {
	if IsEmpty(out) {
		return nil, "", dispatch.ErrEmptyResult
	}

	switch v := out.(type) {
	case json.RawMessage:
		return v, ContentTypeJSON, nil
	case []byte:
		return v, ContentTypeText, nil
	}

	rv := reflect.ValueOf(out)
	switch rv.Kind() {
	case reflect.String:
		return []byte(rv.String()), ContentTypeText, nil
	case reflect.Bool:
		return []byte(strconv.FormatBool(rv.Bool())), ContentTypeText, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return []byte(fmt.Sprint(out)), ContentTypeText, nil
	}

	body, err = json.Marshal(out)
	if err != nil {
		return nil, "", fmt.Errorf("encoding outcome: %w", err)
	}
	return body, ContentTypeJSON, nil
}

// IsEmpty reports whether out counts as no content.
func IsEmpty(out any) bool {
	if out == nil {
		return true
	}
	rv := reflect.ValueOf(out)
	switch rv.Kind() {
	case reflect.String:
		return rv.Len() == 0
	case reflect.Bool:
		return !rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() == 0
	case reflect.Map, reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	case reflect.Slice:
		if b, ok := out.([]byte); ok {
			return len(b) == 0
		}
		return rv.IsNil()
	}
	return false
}
