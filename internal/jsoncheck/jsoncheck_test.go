package jsoncheck

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamingValid(t *testing.T) {
	for _, payload := range []string{
		`{"a":1}`,
		`[1,2,3]`,
		`"plain string"`,
		`42`,
		`null`,
		`{"nested":{"deep":[{"x":true},{"y":false}]}}`,
	} {
		assert.NoError(t, Streaming(strings.NewReader(payload)), payload)
	}
}

func TestStreamingInvalid(t *testing.T) {
	for _, payload := range []string{
		`{"a":1`,
		`[1,2,`,
		`{"a" 1}`,
		``,
		`   `,
	} {
		assert.Error(t, Streaming(strings.NewReader(payload)), "%q", payload)
	}
}

func TestStreamingRejectsMultipleTopLevelValues(t *testing.T) {
	for _, payload := range []string{
		`{"a":1}{"b":2}`,
		`[1] [2]`,
		`1 2`,
		`{"a":1} true`,
		`"x" "y"`,
		`null {}`,
	} {
		err := Streaming(strings.NewReader(payload))
		assert.ErrorIs(t, err, ErrTrailingContent, "%q", payload)
	}
}

func TestValidateRejectsMultipleTopLevelValues(t *testing.T) {
	var v Validator

	for _, payload := range []string{
		`{"a":1}{"b":2}`,
		`[1] [2]`,
		`1 2`,
		`{"a":1} true`,
	} {
		err := v.Validate(bytes.NewReader([]byte(payload)))
		require.Error(t, err, "%q", payload)
		assert.ErrorIs(t, err, ErrTrailingContent, "%q", payload)
	}
}

func TestValidateFastPathOnly(t *testing.T) {
	var v Validator

	payloads := []string{`{"a":1}`, `[true,false]`, `"x"`}
	for _, p := range payloads {
		require.NoError(t, v.Validate(bytes.NewReader([]byte(p))))
	}

	assert.Equal(t, uint64(len(payloads)), v.StreamedCount())
	assert.Equal(t, uint64(0), v.DiagnosedCount(), "fallback parse must stay cold for valid payloads")
}

func TestValidateDiagnostic(t *testing.T) {
	var v Validator

	err := v.Validate(bytes.NewReader([]byte(`{"a":1`)))
	require.Error(t, err)
	assert.NotEmpty(t, err.Error())
	assert.Equal(t, uint64(1), v.DiagnosedCount())
}

func TestValidateLargePayload(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i := range 10000 {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(`{"id":1,"body":"some document text"}`)
	}
	buf.WriteByte(']')

	var v Validator
	require.NoError(t, v.Validate(bytes.NewReader(buf.Bytes())))
	assert.Equal(t, uint64(0), v.DiagnosedCount())
}
