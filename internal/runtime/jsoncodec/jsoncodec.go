package jsoncodec

import (
	"github.com/bytedance/sonic"
)

// The std-compatible config keeps encoding/json semantics: unknown object
// keys are ignored on decode and map keys are sorted on encode.
var defaultConfig = sonic.ConfigStd

func Marshal(v any) ([]byte, error) {
	return defaultConfig.Marshal(v)
}

func MarshalString(v any) (string, error) {
	return defaultConfig.MarshalToString(v)
}

func Unmarshal(data []byte, v any) error {
	return defaultConfig.Unmarshal(data, v)
}

// Valid reports whether data is syntactically valid JSON.
func Valid(data []byte) bool {
	return defaultConfig.Valid(data)
}
