package mqtt3

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateTopicName(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		wantErr error
	}{
		{"valid simple", "test", nil},
		{"valid with slash", "test/topic", nil},
		{"valid with multiple levels", "a/b/c/d", nil},
		{"valid starting with slash", "/test", nil},
		{"valid ending with slash", "test/", nil},
		{"valid UTF-8", "sensor/temperatur/°C", nil},
		{"valid max length", strings.Repeat("a", 65535), nil},
		{"empty", "", ErrEmptyTopic},
		{"too long", strings.Repeat("a", 65536), ErrTopicTooLong},
		{"contains +", "test/+/topic", ErrInvalidTopicName},
		{"contains #", "test/#", ErrInvalidTopicName},
		{"contains null", "test\x00topic", ErrInvalidTopicName},
		{"invalid UTF-8", "test/\xff", ErrInvalidTopicName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTopicName(tt.topic)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateTopicFilter(t *testing.T) {
	tests := []struct {
		name    string
		filter  string
		wantErr error
	}{
		{"valid simple", "test", nil},
		{"valid with slash", "test/topic", nil},
		{"valid single wildcard", "+", nil},
		{"valid single wildcard in middle", "test/+/topic", nil},
		{"valid multi wildcard", "#", nil},
		{"valid multi wildcard at end", "test/#", nil},
		{"valid multi level with single", "+/+/+", nil},
		{"valid combined wildcards", "+/test/#", nil},
		{"empty", "", ErrEmptyTopic},
		{"invalid + not alone", "test+", ErrInvalidTopicFilter},
		{"invalid + mixed", "te+st", ErrInvalidTopicFilter},
		{"invalid # not alone", "test#", ErrInvalidTopicFilter},
		{"invalid # not at end", "#/test", ErrInvalidTopicFilter},
		{"invalid # in middle", "test/#/more", ErrInvalidTopicFilter},
		{"contains null", "test\x00filter", ErrInvalidTopicFilter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTopicFilter(tt.filter)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTopicMatch(t *testing.T) {
	tests := []struct {
		filter string
		topic  string
		want   bool
	}{
		{"a/b", "a/b", true},
		{"a/b", "a/c", false},
		{"a/b", "a/b/c", false},
		{"a/b/c", "a/b", false},
		{"a/+", "a/b", true},
		{"a/+", "a/", true},
		{"a/+", "a/b/c", false},
		{"+/+", "a/b", true},
		{"+", "a/b", false},
		{"a/#", "a", true},
		{"a/#", "a/b/c", true},
		{"a/+/#", "a/b", true},
		{"#", "a/b/c", true},
		{"sport/+", "sport", false},
		{"/+", "/finance", true},
		{"+/+", "/finance", true},
		{"+", "/finance", false},
		{"#", "$SYS/uptime", false},
		{"+/uptime", "$SYS/uptime", false},
		{"$SYS/#", "$SYS/uptime", true},
		{"", "a", false},
		{"a", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.filter+" "+tt.topic, func(t *testing.T) {
			assert.Equal(t, tt.want, TopicMatch(tt.filter, tt.topic))
		})
	}
}

func BenchmarkTopicMatch(b *testing.B) {
	for b.Loop() {
		TopicMatch("sensors/+/temperature/#", "sensors/kitchen/temperature/celsius")
	}
}
