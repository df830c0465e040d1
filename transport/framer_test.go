package transport

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReaderReadMessage(t *testing.T) {
	raw := "Content-Length: 13\r\n\r\n{\"id\":\"abc\"}\n"
	r := NewReader(strings.NewReader(raw))

	body, err := r.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, "{\"id\":\"abc\"}\n", string(body))
}

func TestReaderMultipleFrames(t *testing.T) {
	raw := "Content-Length: 2\r\n\r\nab" + "Content-Length: 3\r\n\r\ncde"
	r := NewReader(strings.NewReader(raw))

	first, err := r.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, "ab", string(first))

	second, err := r.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, "cde", string(second))
}

func TestReaderExtraHeaderIgnored(t *testing.T) {
	raw := "Content-Type: application/vscode-jsonrpc; charset=utf-8\r\nContent-Length: 4\r\n\r\ntest"
	r := NewReader(strings.NewReader(raw))

	body, err := r.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, "test", string(body))
}

func TestReaderMissingContentLength(t *testing.T) {
	raw := "Foo: bar\r\n\r\ntest"
	r := NewReader(strings.NewReader(raw))

	_, err := r.ReadMessage()
	require.Error(t, err)
}

func TestReaderEOFBetweenFrames(t *testing.T) {
	r := NewReader(strings.NewReader(""))
	_, err := r.ReadMessage()
	require.ErrorIs(t, err, io.EOF)
}

func TestWriterWriteMessage(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteMessage([]byte(`{"a":1}`)))
	require.Equal(t, "Content-Length: 7\r\n\r\n{\"a\":1}", buf.String())
}

func TestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	msgs := [][]byte{[]byte(`{"one":1}`), []byte(`{"two":2}`), []byte(`{}`)}
	for _, m := range msgs {
		require.NoError(t, w.WriteMessage(m))
	}

	r := NewReader(&buf)
	for _, want := range msgs {
		got, err := r.ReadMessage()
		require.NoError(t, err)
		require.Equal(t, string(want), string(got))
	}
}
