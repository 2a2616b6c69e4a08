package application

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	rldomain "kakizome/middleware/ratelimit/domain"
	"kakizome/posting/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultDisplayName é usado quando o autor não informa nome.
const DefaultDisplayName = "名無し"

// Throttle é a parte do rate limit que o serviço usa
// (satisfeita por ratelimit/application.Service).
type Throttle interface {
	Decide(ctx context.Context, address string, class rldomain.Class, operation string) (rldomain.Decision, error)
}

// Service orquestra validação, rate limit e o Store, traduzindo os resultados
// do armazenamento para erros de domínio. Não guarda estado mutável.
type Service struct {
	Store    domain.Store
	Throttle Throttle
	Log      *zap.Logger
}

type UpsertInput struct {
	Identity    uuid.UUID
	DisplayName string
	Content     string
	// Address vazio = origem desconhecida, sem rate limit.
	Address     string
	Diagnostics *domain.Diagnostics
}

func (s Service) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

// Upsert cria ou substitui a postagem do autor.
func (s Service) Upsert(ctx context.Context, in UpsertInput) (domain.Posting, error) {
	if in.Identity == uuid.Nil {
		return domain.Posting{}, domain.ErrInternal
	}
	if err := s.throttle(ctx, in.Address, rldomain.ClassWrite, "upsert"); err != nil {
		return domain.Posting{}, err
	}

	name, err := validate(in.DisplayName, in.Content)
	if err != nil {
		return domain.Posting{}, err
	}

	p, err := s.Store.CreateOrReplace(ctx, in.Identity, name, in.Content, in.Diagnostics)
	if err != nil {
		return domain.Posting{}, s.storageErr("create_or_replace", err)
	}
	p.IsMine = true
	return p, nil
}

// Get devolve a postagem do próprio autor.
func (s Service) Get(ctx context.Context, id uuid.UUID, address string) (domain.Posting, error) {
	if id == uuid.Nil {
		return domain.Posting{}, domain.ErrInternal
	}
	if err := s.throttle(ctx, address, rldomain.ClassRead, "get"); err != nil {
		return domain.Posting{}, err
	}

	p, found, err := s.Store.FindByIdentity(ctx, id)
	if err != nil {
		return domain.Posting{}, s.storageErr("find_by_identity", err)
	}
	if !found {
		return domain.Posting{}, domain.ErrNotFound
	}
	p.IsMine = true
	return p, nil
}

// List devolve as postagens mais recentes de todos os autores.
// viewer = uuid.Nil quando o request não tem identidade; nesse caso nada é "meu".
func (s Service) List(ctx context.Context, viewer uuid.UUID, address string) ([]domain.Posting, error) {
	if err := s.throttle(ctx, address, rldomain.ClassRead, "list"); err != nil {
		return nil, err
	}

	list, err := s.Store.FindRecent(ctx, domain.RecentLimit)
	if err != nil {
		return nil, s.storageErr("find_recent", err)
	}
	if list == nil {
		list = []domain.Posting{}
	}
	for i := range list {
		list[i].IsMine = viewer != uuid.Nil && list[i].UserID == viewer
	}
	return list, nil
}

// Delete remove a postagem do autor. Apagar o que não existe é ErrNotFound.
func (s Service) Delete(ctx context.Context, id uuid.UUID, address string) error {
	if id == uuid.Nil {
		return domain.ErrInternal
	}
	if err := s.throttle(ctx, address, rldomain.ClassWrite, "delete"); err != nil {
		return err
	}

	n, err := s.Store.DeleteByIdentity(ctx, id)
	if err != nil {
		return s.storageErr("delete_by_identity", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s Service) throttle(ctx context.Context, address string, class rldomain.Class, op string) error {
	if s.Throttle == nil {
		return nil
	}
	dec, err := s.Throttle.Decide(ctx, address, class, op)
	if err != nil {
		s.log().Warn("rate limiter error", zap.String("operation", op), zap.Bool("allowed", dec.Allowed), zap.Error(err))
	}
	if dec.Allowed {
		return nil
	}
	s.log().Debug("rate limited",
		zap.String("operation", op),
		zap.String("class", string(class)),
		zap.String("address", address),
	)
	return &domain.RateLimitedError{RetryAfterSeconds: int(math.Ceil(dec.RetryAfter.Seconds()))}
}

func (s Service) storageErr(op string, err error) error {
	s.log().Error("storage failure", zap.String("op", op), zap.Error(err))
	return &domain.StorageError{Op: op, Err: err}
}

// validate checa conteúdo e depois nome; a primeira violação vence.
// Os limites contam runes (code points), não bytes.
func validate(displayName, content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", &domain.ValidationError{Message: "Content must not be empty"}
	}
	if utf8.RuneCountInString(content) > domain.MaxContentLength {
		return "", &domain.ValidationError{Message: fmt.Sprintf("Content must be %d chars or less", domain.MaxContentLength)}
	}

	name := strings.TrimSpace(displayName)
	if name == "" {
		name = DefaultDisplayName
	}
	if utf8.RuneCountInString(name) > domain.MaxDisplayNameLength {
		return "", &domain.ValidationError{Message: fmt.Sprintf("Display name must be %d chars or less", domain.MaxDisplayNameLength)}
	}
	return name, nil
}
