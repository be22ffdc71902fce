package flexijoin

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigErrorMessage(t *testing.T) {
	err := &ConfigError{Code: BadOptions, Message: "bad combination"}
	assert.Contains(t, err.Error(), "bad combination")
}

func TestCardinalityErrorMessage(t *testing.T) {
	err := &CardinalityError{Side: "L", Index: 3, Observed: 2, Expected: CardExact(1)}
	assert.Contains(t, err.Error(), "side L")
	assert.Equal(t, CardinalityViolation, err.Code())
}

func TestExecutorErrorUnwraps(t *testing.T) {
	cause := errors.New("boom")
	err := &ExecutorError{Side: "R", Index: 1, Err: cause}
	assert.ErrorIs(t, err, cause)
}
