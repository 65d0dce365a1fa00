package indexer

import (
	"fmt"
	"regexp"

	"github.com/studyhub-platform/studyindexer/internal/models"
)

var (
	courseCodeRe = regexp.MustCompile(`^[A-Za-z]{2,10}[0-9]{2,4}$`)
	tagRe        = regexp.MustCompile(`^[A-Za-z0-9_-]{1,50}$`)
)

const maxTags = 10

// validateMetadata normalizes and checks upload metadata in place,
// filling in defaults for omitted optional fields.
func validateMetadata(meta *models.DocumentMetadata, defaultCollection string) error {
	if meta.Collection == "" {
		meta.Collection = defaultCollection
	}

	switch meta.Collection {
	case models.CollectionGeneral, models.CollectionPersonal:
	case models.CollectionCourse:
		if meta.CourseID == "" {
			return fmt.Errorf("%w: course collection requires course_id", ErrInvalidDocument)
		}
	default:
		return fmt.Errorf("%w: unknown collection %q", ErrInvalidDocument, meta.Collection)
	}

	if meta.CourseID != "" && !courseCodeRe.MatchString(meta.CourseID) {
		return fmt.Errorf("%w: malformed course code %q", ErrInvalidDocument, meta.CourseID)
	}

	if len(meta.Tags) > maxTags {
		return fmt.Errorf("%w: at most %d tags allowed", ErrInvalidDocument, maxTags)
	}
	for _, tag := range meta.Tags {
		if !tagRe.MatchString(tag) {
			return fmt.Errorf("%w: malformed tag %q", ErrInvalidDocument, tag)
		}
	}

	if meta.Collection == models.CollectionPersonal {
		if meta.Personal == nil {
			meta.Personal = &models.PersonalMetadata{FolderPath: "/", Importance: 3}
		}
		if meta.Personal.FolderPath == "" {
			meta.Personal.FolderPath = "/"
		}
		if meta.Personal.Importance < 1 || meta.Personal.Importance > 5 {
			return fmt.Errorf("%w: importance must be 1-5, got %d", ErrInvalidDocument, meta.Personal.Importance)
		}
	}

	return nil
}
