package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/studyhub-platform/studyindexer/internal/auth"
	"github.com/studyhub-platform/studyindexer/internal/models"
)

func record(meta models.DocumentMetadata) *models.StatusRecord {
	return &models.StatusRecord{DocumentID: "d1", Status: models.StatusCompleted, Metadata: meta}
}

func TestCanView(t *testing.T) {
	student := auth.Identity{UserID: "u1", Role: auth.RoleStudent, Courses: []string{"CS101"}}
	admin := auth.Identity{UserID: "a1", Role: auth.RoleAdmin}

	tests := []struct {
		name string
		id   auth.Identity
		rec  *models.StatusRecord
		want bool
	}{
		{"admin sees all", admin,
			record(models.DocumentMetadata{Collection: models.CollectionPersonal, UserID: "u9"}), true},
		{"own upload", student,
			record(models.DocumentMetadata{Collection: models.CollectionCourse, CourseID: "CS999", UserID: "u1"}), true},
		{"enrolled course", student,
			record(models.DocumentMetadata{Collection: models.CollectionCourse, CourseID: "CS101", UserID: "u2"}), true},
		{"foreign course", student,
			record(models.DocumentMetadata{Collection: models.CollectionCourse, CourseID: "CS999", UserID: "u2"}), false},
		{"general doc", student,
			record(models.DocumentMetadata{Collection: models.CollectionGeneral, UserID: "u2"}), true},
		{"foreign personal", student,
			record(models.DocumentMetadata{Collection: models.CollectionPersonal, UserID: "u2"}), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, canView(tt.id, tt.rec))
		})
	}
}

func TestSplitTags(t *testing.T) {
	assert.Nil(t, splitTags(""))
	assert.Equal(t, []string{"bio", "week-1"}, splitTags("bio, week-1"))
	assert.Equal(t, []string{"solo"}, splitTags("solo,,"))
}
