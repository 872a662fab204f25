package webhook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExponentialRetryPolicy(t *testing.T) {
	p := ExponentialRetryPolicy{Initial: time.Second, Max: 5 * time.Second}

	assert.Equal(t, time.Second, p.NextDelay(1))
	assert.Equal(t, 2*time.Second, p.NextDelay(2))
	assert.Equal(t, 4*time.Second, p.NextDelay(3))
	assert.Equal(t, 5*time.Second, p.NextDelay(4))
	assert.Equal(t, 5*time.Second, p.NextDelay(10))
}

func TestExponentialRetryPolicyDefaults(t *testing.T) {
	var p ExponentialRetryPolicy
	assert.Equal(t, time.Second, p.NextDelay(1))
	assert.Equal(t, 30*time.Second, p.NextDelay(20))
}
