// Package search applies caller-identity access scoping to vector filters.
package search

import (
	"github.com/studyhub-platform/studyindexer/internal/auth"
	"github.com/studyhub-platform/studyindexer/internal/models"
	"github.com/studyhub-platform/studyindexer/internal/vectorstore"
)

// ScopedFilter narrows a base filter to what the caller may see. Admins and
// teachers search unrestricted. Students see chunks that belong to one of
// their enrolled courses, carry no course at all, or were uploaded by them.
// Personal chunks are visible only to their owner, no matter which physical
// collection the query names.
func ScopedFilter(id auth.Identity, base vectorstore.Filter) vectorstore.Filter {
	if id.Role == auth.RoleAdmin || id.Role == auth.RoleTeacher {
		return base
	}

	scope := vectorstore.And{
		vectorstore.Or{
			vectorstore.StrIn("course_id", id.Courses),
			vectorstore.Missing{Field: "course_id"},
			vectorstore.Eq{Field: "user_id", Value: id.UserID},
		},
		vectorstore.Or{
			vectorstore.Ne{Field: "collection", Value: models.CollectionPersonal},
			vectorstore.Eq{Field: "user_id", Value: id.UserID},
		},
	}

	if base == nil {
		return scope
	}
	return vectorstore.And{base, scope}
}
