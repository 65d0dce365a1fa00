package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileSQL(t *testing.T) {
	tests := []struct {
		name     string
		filter   Filter
		wantSQL  string
		wantArgs int
	}{
		{
			name:     "nil matches all",
			filter:   nil,
			wantSQL:  "TRUE",
			wantArgs: 0,
		},
		{
			name:     "eq",
			filter:   Eq{Field: "document_id", Value: "d1"},
			wantSQL:  "metadata->>'document_id' = $1",
			wantArgs: 1,
		},
		{
			name:     "ne allows missing field",
			filter:   Ne{Field: "document_id", Value: "d1"},
			wantSQL:  "(metadata->>'document_id' IS NULL OR metadata->>'document_id' <> $1)",
			wantArgs: 1,
		},
		{
			name:     "in",
			filter:   StrIn("course_id", []string{"CS101", "CS102"}),
			wantSQL:  "metadata->>'course_id' = ANY($1)",
			wantArgs: 1,
		},
		{
			name:     "empty in matches nothing",
			filter:   In{Field: "course_id"},
			wantSQL:  "FALSE",
			wantArgs: 0,
		},
		{
			name:     "exists",
			filter:   Exists{Field: "document_id"},
			wantSQL:  "COALESCE(metadata->>'document_id', '') <> ''",
			wantArgs: 0,
		},
		{
			name: "and of eq and in",
			filter: And{
				Eq{Field: "collection", Value: "course"},
				StrIn("course_id", []string{"CS101"}),
			},
			wantSQL:  "(metadata->>'collection' = $1 AND metadata->>'course_id' = ANY($2))",
			wantArgs: 2,
		},
		{
			name: "or with missing",
			filter: Or{
				Missing{Field: "course_id"},
				Eq{Field: "user_id", Value: "42"},
			},
			wantSQL:  "(COALESCE(metadata->>'course_id', '') = '' OR metadata->>'user_id' = $1)",
			wantArgs: 1,
		},
		{
			name:     "field name sanitized",
			filter:   Eq{Field: "a'; DROP TABLE chunks;--", Value: "x"},
			wantSQL:  "metadata->>'aDROPTABLEchunks' = $1",
			wantArgs: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var args []interface{}
			sql, err := compileSQL(tt.filter, &args)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Len(t, args, tt.wantArgs)
		})
	}
}

func TestMatches(t *testing.T) {
	meta := map[string]interface{}{
		"document_id": "d1",
		"course_id":   "CS101",
		"user_id":     "42",
		"is_chunk":    true,
	}

	assert.True(t, Matches(nil, meta))
	assert.True(t, Matches(Eq{Field: "document_id", Value: "d1"}, meta))
	assert.False(t, Matches(Eq{Field: "document_id", Value: "d2"}, meta))
	assert.True(t, Matches(Eq{Field: "is_chunk", Value: true}, meta))
	assert.True(t, Matches(Ne{Field: "document_id", Value: "d2"}, meta))
	assert.True(t, Matches(Ne{Field: "absent", Value: "x"}, meta))
	assert.True(t, Matches(StrIn("course_id", []string{"CS101", "CS102"}), meta))
	assert.False(t, Matches(StrIn("course_id", []string{"CS200"}), meta))
	assert.False(t, Matches(In{Field: "course_id"}, meta))
	assert.True(t, Matches(Exists{Field: "user_id"}, meta))
	assert.False(t, Matches(Exists{Field: "absent"}, meta))
	assert.True(t, Matches(Missing{Field: "absent"}, meta))
	assert.True(t, Matches(And{
		Eq{Field: "document_id", Value: "d1"},
		Exists{Field: "course_id"},
	}, meta))
	assert.True(t, Matches(Or{
		Eq{Field: "document_id", Value: "nope"},
		Eq{Field: "user_id", Value: "42"},
	}, meta))
	assert.False(t, Matches(Or{}, meta))
}
