package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	f := Frame{
		Type: AcceptRequest,
		Inst: 3,
		CRnd: Round{Counter: 2, NodeID: 1},
		Seq:  Seq{PropID: 7, ClientID: 9},
		CVal: []byte("hello"),
	}

	b, err := Encode(f)
	require.NoError(t, err)

	got, err := Decode(b)
	require.NoError(t, err)
	require.Equal(t, f, got)
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	b, err := Encode(Frame{Type: "BOGUS"})
	require.NoError(t, err)

	_, err = Decode(b)
	require.Error(t, err)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte{0xff, 0x00, 0x01, 0x02})
	require.Error(t, err)
}

func TestRoundOrdering(t *testing.T) {
	zero := Round{}
	require.True(t, zero.IsZero())

	a := Round{Counter: 1, NodeID: 1}
	b := Round{Counter: 1, NodeID: 2}
	c := Round{Counter: 2, NodeID: 1}

	require.True(t, zero.Less(a))
	require.True(t, a.Less(b))
	require.True(t, b.Less(c))
	require.True(t, a.GreaterOrEqual(a))
	require.False(t, c.Less(a))
}
