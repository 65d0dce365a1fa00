package search

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/studyhub-platform/studyindexer/internal/auth"
	"github.com/studyhub-platform/studyindexer/internal/vectorstore"
)

func chunk(meta map[string]interface{}) map[string]interface{} { return meta }

func TestScopedFilterAdminBypass(t *testing.T) {
	base := vectorstore.Eq{Field: "document_type", Value: "lecture"}
	got := ScopedFilter(auth.Identity{UserID: "a1", Role: auth.RoleAdmin}, base)
	assert.Equal(t, vectorstore.Filter(base), got)

	got = ScopedFilter(auth.Identity{UserID: "t1", Role: auth.RoleTeacher}, nil)
	assert.Nil(t, got)
}

func TestScopedFilterStudentSeesEnrolledCourses(t *testing.T) {
	student := auth.Identity{UserID: "u1", Role: auth.RoleStudent, Courses: []string{"CS101"}}
	f := ScopedFilter(student, nil)

	assert.True(t, vectorstore.Matches(f, chunk(map[string]interface{}{
		"course_id": "CS101", "user_id": "someone-else",
	})))
	assert.False(t, vectorstore.Matches(f, chunk(map[string]interface{}{
		"course_id": "CS999", "user_id": "someone-else",
	})))
}

func TestScopedFilterStudentSeesGeneralAndOwn(t *testing.T) {
	student := auth.Identity{UserID: "u1", Role: auth.RoleStudent}
	f := ScopedFilter(student, nil)

	// No course attached: visible to everyone.
	assert.True(t, vectorstore.Matches(f, chunk(map[string]interface{}{
		"user_id": "someone-else",
	})))
	// Own upload into a foreign course: still visible to the uploader.
	assert.True(t, vectorstore.Matches(f, chunk(map[string]interface{}{
		"course_id": "CS999", "user_id": "u1",
	})))
}

func TestScopedFilterBlocksForeignPersonalChunks(t *testing.T) {
	student := auth.Identity{UserID: "u2", Role: auth.RoleStudent, Courses: []string{"CS101"}}
	f := ScopedFilter(student, nil)

	// Another user's personal chunk carries no course_id; it must stay
	// hidden even when the query names its physical collection directly.
	assert.False(t, vectorstore.Matches(f, chunk(map[string]interface{}{
		"collection": "personal", "user_id": "u1",
	})))
	// The caller's own personal chunks stay visible.
	assert.True(t, vectorstore.Matches(f, chunk(map[string]interface{}{
		"collection": "personal", "user_id": "u2",
	})))
	// Course and general chunks are unaffected by the personal guard.
	assert.True(t, vectorstore.Matches(f, chunk(map[string]interface{}{
		"collection": "course", "course_id": "CS101", "user_id": "u1",
	})))
}

func TestScopedFilterCombinesWithBase(t *testing.T) {
	student := auth.Identity{UserID: "u1", Role: auth.RoleStudent, Courses: []string{"CS101"}}
	base := vectorstore.Eq{Field: "document_type", Value: "lecture"}
	f := ScopedFilter(student, base)

	assert.True(t, vectorstore.Matches(f, chunk(map[string]interface{}{
		"document_type": "lecture", "course_id": "CS101",
	})))
	// Base filter still applies.
	assert.False(t, vectorstore.Matches(f, chunk(map[string]interface{}{
		"document_type": "assignment", "course_id": "CS101",
	})))
}
