package dockerutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStartTimeoutDefault(t *testing.T) {
	assert.Equal(t, defaultStartTimeout, ContainerOpts{}.startTimeout())
	assert.Equal(t, 5*time.Second, ContainerOpts{StartTimeout: 5 * time.Second}.startTimeout())
}
