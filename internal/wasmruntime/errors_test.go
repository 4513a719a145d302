package wasmruntime

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTrapRecover(t *testing.T) {
	func() {
		defer func() {
			v := recover()
			trap, ok := AsTrap(v)
			require.True(t, ok)
			require.Equal(t, CodeIntegerDivideByZero, trap.Code)
			require.True(t, errors.Is(trap, ErrRuntimeIntegerDivideByZero))
		}()
		panic(ErrRuntimeIntegerDivideByZero)
	}()
}

func TestHostFuncError(t *testing.T) {
	cause := errors.New("boom")
	err := &HostFuncError{Err: cause}
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "boom")
}
