package decode_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/x64emu/pathjit/internal/decode"
)

func TestDecodedAccessors(t *testing.T) {
	d := decode.Decoded{
		Rde:           0xabc,
		Op:            decode.OpLeaGvqpM,
		Len:           3,
		Disp:          -8,
		Uimm0:         42,
		ModrmRegister: true,
		RipRelative:   false,
	}
	require.Equal(t, uint8(3), d.Oplength())
	require.Equal(t, decode.OpLeaGvqpM, d.Mopcode())
	require.True(t, d.IsModrmRegister())
	require.False(t, d.IsRipRelative())
}
