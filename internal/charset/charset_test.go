package charset

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUTF8Identity(t *testing.T) {
	c, err := Lookup("")
	require.NoError(t, err)
	assert.True(t, c.Identity())

	out, err := c.Convert([]byte("\xEF\xBB\xBFint x;"))
	require.NoError(t, err)
	assert.Equal(t, "int x;", string(out))

	_, err = c.Convert([]byte{'a', 0xff})
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestLatin1(t *testing.T) {
	c, err := Lookup("ISO-8859-1")
	require.NoError(t, err)
	assert.False(t, c.Identity())

	out, err := c.Convert([]byte("/* caf\xe9 */"))
	require.NoError(t, err)
	assert.Equal(t, "/* café */", string(out))
}

func TestUnknownCharset(t *testing.T) {
	_, err := Lookup("no-such-charset")
	assert.True(t, errors.Is(err, ErrUnknown))
}

func TestUTF16(t *testing.T) {
	c, err := Lookup("UTF-16LE")
	require.NoError(t, err)
	out, err := c.Convert([]byte{'a', 0, 'b', 0})
	require.NoError(t, err)
	assert.Equal(t, "ab", string(out))
}
