package padding_test

import (
	"testing"

	"github.com/mi-e2ee/core/pkg/padding"
	"github.com/stretchr/testify/require"
)

func TestPadUnpadRoundTrip(t *testing.T) {
	a := require.New(t)

	cases := [][]byte{
		nil,
		[]byte("hi"),
		make([]byte, 300),
		make([]byte, 20000),
	}
	for _, p := range cases {
		out, err := padding.Pad(p)
		a.NoError(err)

		got, err := padding.Unpad(out)
		a.NoError(err)
		a.Equal(p, got)
	}
}

func TestPadBelongsToBucketSet(t *testing.T) {
	a := require.New(t)

	allowed := map[int]bool{256: true, 512: true, 1024: true, 2048: true, 4096: true, 8192: true, 16384: true}

	for _, n := range []int{0, 1, 100, 250, 2000, 4000, 8000, 16000} {
		out, err := padding.Pad(make([]byte, n))
		a.NoError(err)
		if len(out) <= 16384 {
			a.Truef(allowed[len(out)], "length %d for plaintext %d not in bucket set", len(out), n)
		} else {
			a.Zero(len(out) % 4096)
		}
	}
}

func TestUnpadRejectsBadMagic(t *testing.T) {
	a := require.New(t)

	out, err := padding.Pad([]byte("x"))
	a.NoError(err)
	out[0] = 'Z'

	_, err = padding.Unpad(out)
	a.ErrorIs(err, padding.ErrBadMagic)
}
