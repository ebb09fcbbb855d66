package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskStateTerminal(t *testing.T) {
	assert.False(t, TaskStateWaiting.Terminal())
	assert.True(t, TaskStateSuccess.Terminal())
	assert.True(t, TaskStateFail.Terminal())
}
