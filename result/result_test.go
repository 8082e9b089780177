package result

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeUnpack(t *testing.T) {
	c := Make(430, 616)
	assert.Equal(t, uint32(430), c.Module())
	assert.Equal(t, uint32(616), c.Description())
	assert.Equal(t, ResultInvalidBufferAttributes, c)
	assert.Equal(t, "2430-0616", c.String())
}

func TestKnownRawValues(t *testing.T) {
	// am Busy is the well-known 0x19280.
	assert.Equal(t, Code(0x19280), ResultBusy)
	assert.Equal(t, "2001-0123", ResultSessionClosed.String())
}

func TestIsThroughWrapping(t *testing.T) {
	err := fmt.Errorf("send request: %w", ResultSessionClosed)
	assert.True(t, errors.Is(err, ResultSessionClosed))
	assert.False(t, errors.Is(err, ResultTimeout))
	assert.Equal(t, ResultSessionClosed, FromError(err))
}

func TestFromError(t *testing.T) {
	assert.Equal(t, Success, FromError(nil))
	assert.Equal(t, ResultUnknown, FromError(errors.New("boom")))
	require.NoError(t, Success.Err())
	require.ErrorIs(t, ResultNotSupported.Err(), ResultNotSupported)
}

func TestErrorNames(t *testing.T) {
	assert.Contains(t, ResultInvalidProtocol.Error(), "InvalidProtocol")
	assert.Equal(t, "result 2300-0001", Make(300, 1).Error())
}
