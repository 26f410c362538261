package book

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akriventsev/bookshelf/framework/core"
)

func TestEncode_TaggedFormat(t *testing.T) {
	data, err := Encode(Created{ID: "1", Author: "ds"})
	require.NoError(t, err)
	assert.Equal(t, `{"Created":{"id":"1","author":"ds"}}`, string(data))

	data, err = Encode(PageAdded{Content: "<b>first & only</b>"})
	require.NoError(t, err)
	assert.Equal(t, `{"PageAdded":{"content":"<b>first & only</b>"}}`, string(data))
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	events := []Event{
		Created{ID: "1", Author: "ds"},
		Created{ID: "", Author: ""},
		PageAdded{Content: "first page"},
		PageAdded{Content: "юникод \"quoted\"\n"},
	}

	for _, e := range events {
		data, err := Encode(e)
		require.NoError(t, err)

		decoded, err := Decode(data)
		require.NoError(t, err)
		assert.Equal(t, e, decoded)
	}
}

func TestEncode_Stable(t *testing.T) {
	a, err := Encode(Created{ID: "1", Author: "ds"})
	require.NoError(t, err)
	b, err := Encode(Created{ID: "1", Author: "ds"})
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestEncode_Nil(t *testing.T) {
	_, err := Encode(nil)
	assert.True(t, errors.Is(err, core.SerializationError))
}

func TestDecode_Rejects(t *testing.T) {
	cases := map[string]string{
		"malformed":         `{"Created":`,
		"not an object":     `"Created"`,
		"empty envelope":    `{}`,
		"two tags":          `{"Created":{"id":"1","author":"a"},"PageAdded":{"content":"x"}}`,
		"unknown tag":       `{"PageRemoved":{"content":"x"}}`,
		"null payload":      `{"PageAdded":null}`,
		"missing field":     `{"Created":{"id":"1"}}`,
		"unknown field":     `{"PageAdded":{"content":"x","page":2}}`,
		"wrong field type":  `{"Created":{"id":1,"author":"a"}}`,
		"array payload":     `{"PageAdded":["x"]}`,
		"lowercase tag":     `{"created":{"id":"1","author":"a"}}`,
	}

	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			e, err := Decode([]byte(payload))
			assert.Nil(t, e)
			require.Error(t, err)
			assert.True(t, errors.Is(err, core.SerializationError), "got %v", err)
		})
	}
}

func TestEncodeState(t *testing.T) {
	data, err := EncodeState(State{ID: "1", Author: "ds"})
	require.NoError(t, err)
	assert.Equal(t, `{"id":"1","author":"ds","pages":[]}`, string(data))

	s, err := DecodeState(data)
	require.NoError(t, err)
	assert.Equal(t, State{ID: "1", Author: "ds", Pages: []string{}}, s)
}

func TestDecodeState_Invalid(t *testing.T) {
	_, err := DecodeState([]byte("not json"))
	assert.True(t, errors.Is(err, core.SerializationError))
}
