package warehouse

import (
	"testing"

	"github.com/dwhagent/agent/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestClassifyErrorCode(t *testing.T) {
	for _, code := range []int{3001, 3030, 2043, 604, 630} {
		assert.Equal(t, model.ErrorTypeProgramming, ClassifyErrorCode(code), "code %d", code)
	}
	for _, code := range []int{1, 500, 999999} {
		assert.Equal(t, model.ErrorTypeDatabase, ClassifyErrorCode(code), "code %d", code)
	}
}

func TestStripMessagePrefix(t *testing.T) {
	assert.Equal(t, "timeout", stripMessagePrefix("Uncaught exception : timeout"))
	assert.Equal(t, "no colon here", stripMessagePrefix("no colon here"))
	assert.Equal(t, "b:c", stripMessagePrefix("a:b:c"))
}

func TestNewErrQueryFailed(t *testing.T) {
	qf := NewErrQueryFailed(630, "Uncaught … : timeout", "57014")
	assert.Equal(t, model.ErrorTypeProgramming, qf.ErrType)
	assert.Equal(t, "timeout", qf.Message)
	assert.Equal(t, 630, qf.Code)
	assert.Equal(t, "57014", qf.SQLState)
}
