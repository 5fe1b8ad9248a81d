package tiger

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDigestIsDeterministic(t *testing.T) {
	d1 := New()
	d1.Write([]byte("the quick brown fox"))
	sum1 := d1.Sum(nil)

	d2 := New()
	d2.Write([]byte("the quick "))
	d2.Write([]byte("brown fox"))
	sum2 := d2.Sum(nil)

	require.Equal(t, sum1, sum2)
	require.Len(t, sum1, 24)
}

func TestDigestDiffersOnDifferentInput(t *testing.T) {
	d1 := New()
	d1.Write([]byte("a"))
	d2 := New()
	d2.Write([]byte("b"))

	require.NotEqual(t, d1.Sum(nil), d2.Sum(nil))
}

func TestHashReaderProducesThirtyNineCharBase32(t *testing.T) {
	sum, err := HashReader(strings.NewReader("hello, fscrawl"))
	require.NoError(t, err)
	require.Len(t, sum, 39)
	require.Equal(t, strings.ToUpper(sum), sum)
}

func TestHashReaderEmptyInput(t *testing.T) {
	sum, err := HashReader(strings.NewReader(""))
	require.NoError(t, err)
	require.Len(t, sum, 39)
}

func TestHashReaderMultiLeaf(t *testing.T) {
	data := strings.Repeat("x", leafSize*3+17)
	sum, err := HashReader(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, sum, 39)
}
