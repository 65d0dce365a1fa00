package queue

const (
	TypeDocumentIndex   = "document:index"
	TypeDocumentReindex = "document:reindex"
	TypeDocumentDelete  = "document:delete"
)

type DocumentIndexPayload struct {
	DocumentID string `json:"document_id"`
	UserID     string `json:"user_id"`
}

type DocumentReindexPayload struct {
	DocumentID string `json:"document_id"`
	UserID     string `json:"user_id"`
}

type DocumentDeletePayload struct {
	DocumentID string `json:"document_id"`
	UserID     string `json:"user_id"`
}
