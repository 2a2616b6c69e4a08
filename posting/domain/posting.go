package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	MaxContentLength     = 50
	MaxDisplayNameLength = 20
	// RecentLimit é o teto de linhas devolvidas na listagem.
	RecentLimit = 100
)

// Posting é o único texto (書き初め) de um autor anônimo.
type Posting struct {
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	IsMine      bool      `json:"is_mine"`
}

// Diagnostics são dados opcionais da origem, guardados só para diagnóstico.
type Diagnostics struct {
	SourceAddress  string
	UserAgent      string
	AcceptLanguage string
}

// Store é o gateway de armazenamento.
//
// CreateOrReplace precisa ser atômico por identidade: escritas concorrentes para
// o mesmo autor são serializadas, created_at é gravado uma vez e updated_at cresce
// estritamente a cada escrita. Sem linha não é erro: FindByIdentity devolve
// found=false e DeleteByIdentity devolve 0.
type Store interface {
	CreateOrReplace(ctx context.Context, id uuid.UUID, displayName, content string, diag *Diagnostics) (Posting, error)
	FindByIdentity(ctx context.Context, id uuid.UUID) (p Posting, found bool, err error)
	FindRecent(ctx context.Context, limit int) ([]Posting, error)
	DeleteByIdentity(ctx context.Context, id uuid.UUID) (int64, error)
}
