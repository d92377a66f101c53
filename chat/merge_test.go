package chat_test

import (
	"testing"
	"time"

	"gigs/chat"
	"gigs/entity"

	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2026, 5, 1, 21, 0, 0, 0, time.UTC)

func msg(id string, offset time.Duration) entity.Message {
	return entity.Message{ID: id, BookingID: "booking-1", Kind: entity.MessageKindUser, Content: id, CreatedAt: t0.Add(offset)}
}

func ids(messages []entity.Message) []string {
	out := make([]string, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.ID)
	}
	return out
}

func TestMerge(t *testing.T) {
	testCases := []struct {
		name     string
		existing []entity.Message
		incoming []entity.Message
		expected []string
	}{
		{
			name:     "live message after history",
			existing: []entity.Message{msg("m1", 0), msg("m2", time.Second)},
			incoming: []entity.Message{msg("m3", 2 * time.Second)},
			expected: []string{"m1", "m2", "m3"},
		},
		{
			name:     "socket echo of a message already fetched",
			existing: []entity.Message{msg("m1", 0), msg("m2", time.Second)},
			incoming: []entity.Message{msg("m2", time.Second)},
			expected: []string{"m1", "m2"},
		},
		{
			name:     "late arrival is ordered by timestamp",
			existing: []entity.Message{msg("m1", 0), msg("m3", 2 * time.Second)},
			incoming: []entity.Message{msg("m2", time.Second)},
			expected: []string{"m1", "m2", "m3"},
		},
		{
			name:     "equal timestamps are ordered by id",
			existing: []entity.Message{msg("b", 0)},
			incoming: []entity.Message{msg("a", 0), msg("c", 0)},
			expected: []string{"a", "b", "c"},
		},
		{
			name:     "duplicates within the incoming batch",
			incoming: []entity.Message{msg("m1", 0), msg("m1", 0)},
			expected: []string{"m1"},
		},
		{
			name:     "messages without a server id are ignored",
			existing: []entity.Message{msg("m1", 0)},
			incoming: []entity.Message{msg("", time.Second)},
			expected: []string{"m1"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			existing := append([]entity.Message(nil), tc.existing...)

			merged := chat.Merge(tc.existing, tc.incoming...)

			assert.Equal(t, tc.expected, ids(merged))
			assert.Equal(t, existing, tc.existing, "input must not be modified")
		})
	}
}

func TestMerge_IsIdempotent(t *testing.T) {
	history := []entity.Message{msg("m1", 0), msg("m2", time.Second)}

	once := chat.Merge(nil, history...)
	twice := chat.Merge(once, history...)

	assert.Equal(t, once, twice)
}
