package mqtt3

import (
	"errors"
	"strings"
	"unicode/utf8"
)

var (
	ErrInvalidTopicName   = errors.New("invalid topic name")
	ErrInvalidTopicFilter = errors.New("invalid topic filter")
	ErrEmptyTopic         = errors.New("topic cannot be empty")
	ErrTopicTooLong       = errors.New("topic exceeds 65535 bytes")
)

const (
	topicSeparator      = "/"
	singleLevelWildcard = "+"
	multiLevelWildcard  = "#"
)

func validateTopicString(topic string, invalid error) error {
	if topic == "" {
		return ErrEmptyTopic
	}

	if len(topic) > maxUint16 {
		return ErrTopicTooLong
	}

	if !utf8.ValidString(topic) || strings.IndexByte(topic, 0) >= 0 {
		return invalid
	}

	return nil
}

// ValidateTopicName validates a topic a message is published to.
// Topic names cannot contain wildcards.
func ValidateTopicName(topic string) error {
	if err := validateTopicString(topic, ErrInvalidTopicName); err != nil {
		return err
	}

	if strings.ContainsAny(topic, singleLevelWildcard+multiLevelWildcard) {
		return ErrInvalidTopicName
	}

	return nil
}

// ValidateTopicFilter validates a subscription filter. A wildcard must
// occupy a whole level and '#' may only be the last level.
func ValidateTopicFilter(filter string) error {
	if err := validateTopicString(filter, ErrInvalidTopicFilter); err != nil {
		return err
	}

	levels := strings.Split(filter, topicSeparator)

	for i, level := range levels {
		if strings.Contains(level, singleLevelWildcard) && level != singleLevelWildcard {
			return ErrInvalidTopicFilter
		}

		if strings.Contains(level, multiLevelWildcard) {
			if level != multiLevelWildcard || i != len(levels)-1 {
				return ErrInvalidTopicFilter
			}
		}
	}

	return nil
}

// TopicMatch reports whether topic matches filter. Topics starting with '$'
// are not matched by a wildcard in the first level.
func TopicMatch(filter, topic string) bool {
	if filter == "" || topic == "" {
		return false
	}

	if topic[0] == '$' && (filter[0] == '+' || filter[0] == '#') {
		return false
	}

	for {
		flevel, frest, fmore := strings.Cut(filter, topicSeparator)
		if flevel == multiLevelWildcard {
			return true
		}

		tlevel, trest, tmore := strings.Cut(topic, topicSeparator)
		if flevel != singleLevelWildcard && flevel != tlevel {
			return false
		}

		switch {
		case !fmore && !tmore:
			return true
		case !tmore:
			// "a/#" matches "a".
			return frest == multiLevelWildcard
		case !fmore:
			return false
		}

		filter, topic = frest, trest
	}
}
