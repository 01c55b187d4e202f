package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidateCronSchedule(t *testing.T) {
	valid := []string{"0 8,12,18 * * *", "30 5 * * *", "*/15 * * * *", "30 9 * * 1-5"}
	for _, s := range valid {
		assert.NoError(t, ValidateCronSchedule(s), s)
	}

	invalid := []string{"", "0 8 * *", "61 * * * *", "0 0 0 * * *", "daily"}
	for _, s := range invalid {
		assert.Error(t, ValidateCronSchedule(s), s)
	}
}

func TestValidateTimezone(t *testing.T) {
	for _, tz := range []string{"UTC", "Asia/Tokyo", "America/New_York"} {
		assert.NoError(t, ValidateTimezone(tz), tz)
	}
	for _, tz := range []string{"", "Mars/Olympus", "+09:00"} {
		assert.Error(t, ValidateTimezone(tz), tz)
	}
}

func TestValidateDuration(t *testing.T) {
	assert.NoError(t, ValidateDuration(time.Minute, time.Second, time.Hour))
	assert.NoError(t, ValidateDuration(time.Second, time.Second, time.Hour))
	assert.Error(t, ValidateDuration(time.Millisecond, time.Second, time.Hour))
	assert.Error(t, ValidateDuration(2*time.Hour, time.Second, time.Hour))
	assert.Error(t, ValidateDuration(time.Minute, time.Hour, time.Second))
}

func TestValidateIntRange(t *testing.T) {
	assert.NoError(t, ValidateIntRange(1, 1, 65535))
	assert.NoError(t, ValidateIntRange(65535, 1, 65535))
	assert.Error(t, ValidateIntRange(0, 1, 65535))
	assert.Error(t, ValidateIntRange(65536, 1, 65535))
	assert.Error(t, ValidateIntRange(5, 10, 1))
}

func TestValidatePositiveDuration(t *testing.T) {
	assert.NoError(t, ValidatePositiveDuration(time.Nanosecond))
	assert.EqualError(t, ValidatePositiveDuration(0), "duration must be positive, got 0s")
	assert.Error(t, ValidatePositiveDuration(-time.Second))
}

func TestValidateOneOf(t *testing.T) {
	v := ValidateOneOf("claude", "openai")
	assert.NoError(t, v("claude"))
	assert.NoError(t, v("OpenAI"))
	assert.EqualError(t, v("gemini"), "must be one of claude, openai")
}
