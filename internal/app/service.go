package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"mindgraph/api/internal/auth"
	"mindgraph/api/internal/config"
	"mindgraph/api/internal/idp"
	"mindgraph/api/internal/store"
)

// MindmapCard is the List summary; node data is never included.
type MindmapCard struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type CreateMindmapResult struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	RootNodeID int64  `json:"rootNodeId"`
}

type NodeView struct {
	ID        int64   `json:"id"`
	ParentID  *int64  `json:"parentId"`
	Content   string  `json:"content"`
	PositionX float64 `json:"positionX"`
	PositionY float64 `json:"positionY"`
	Radius    int     `json:"radius"`
}

type MindmapDetail struct {
	ID    int64      `json:"id"`
	Name  string     `json:"name"`
	Nodes []NodeView `json:"nodes"`
}

type UpdateMindmapResult struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type dataStore interface {
	EnsureUserBySubject(context.Context, string) (store.User, error)
	ListMindmapsByUser(context.Context, int64) ([]store.Mindmap, error)
	CreateMindmapWithRoot(context.Context, int64, string) (store.Mindmap, store.Node, error)
	GetMindmap(context.Context, int64) (store.Mindmap, error)
	ListNodesByMindmap(context.Context, int64) ([]store.Node, error)
	RenameMindmap(context.Context, int64, string) (store.Mindmap, error)
	DeleteMindmapCascade(context.Context, int64) error
	Ping(ctx context.Context) error
}

type revocationStore interface {
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
}

type Service struct {
	cfg         config.Config
	store       dataStore
	revocations revocationStore
	provider    idp.Provider
}

func New(cfg config.Config, dataStore *store.PostgresStore, provider idp.Provider) *Service {
	return &Service{
		cfg:         cfg,
		store:       dataStore,
		revocations: dataStore,
		provider:    provider,
	}
}

// NewWithRevocations wires an external revocation backend (Redis) in place of
// the Postgres fallback table.
func NewWithRevocations(cfg config.Config, dataStore *store.PostgresStore, revocations revocationStore, provider idp.Provider) *Service {
	return &Service{
		cfg:         cfg,
		store:       dataStore,
		revocations: revocations,
		provider:    provider,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Authenticate verifies a bearer token and rejects revoked ones.
func (s *Service) Authenticate(ctx context.Context, token string) (auth.Claims, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return auth.Claims{}, err
	}
	revoked, err := s.revocations.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return auth.Claims{}, err
	}
	if revoked {
		return auth.Claims{}, auth.ErrInvalidToken
	}
	return claims, nil
}

// Login proxies credentials to the identity provider and returns its opaque
// payload. The service never inspects or stores the credentials.
func (s *Service) Login(ctx context.Context, email, password string) (map[string]any, error) {
	if email == "" || password == "" {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Email and password required", nil)
	}
	payload, err := s.provider.Login(ctx, email, password)
	if errors.Is(err, idp.ErrInvalidCredentials) {
		return nil, domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid credentials", nil)
	}
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// Logout revokes the token's JTI until the token would have expired anyway.
func (s *Service) Logout(ctx context.Context, claims auth.Claims) error {
	return s.revocations.RevokeAccessToken(ctx, claims.JTI, time.Unix(claims.Exp, 0))
}

// resolveUser maps verified claims to the local user record, creating one on
// first sight. Repeated calls with the same subject return the same user; the
// store's unique key keeps concurrent first-calls from creating two rows.
func (s *Service) resolveUser(ctx context.Context, claims auth.Claims) (store.User, error) {
	subject := claims.Subject()
	if subject == "" {
		return store.User{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
	}
	return s.store.EnsureUserBySubject(ctx, subject)
}

func (s *Service) ListMindmaps(ctx context.Context, claims auth.Claims) ([]MindmapCard, error) {
	user, err := s.resolveUser(ctx, claims)
	if err != nil {
		return nil, err
	}
	mindmaps, err := s.store.ListMindmapsByUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	cards := make([]MindmapCard, 0, len(mindmaps))
	for _, m := range mindmaps {
		cards = append(cards, MindmapCard{ID: m.ID, Name: m.Name, UpdatedAt: m.UpdatedAt})
	}
	return cards, nil
}

func (s *Service) CreateMindmap(ctx context.Context, claims auth.Claims, name string) (CreateMindmapResult, error) {
	user, err := s.resolveUser(ctx, claims)
	if err != nil {
		return CreateMindmapResult{}, err
	}
	if strings.TrimSpace(name) == "" {
		return CreateMindmapResult{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Mindmap name is required", nil)
	}
	mindmap, root, err := s.store.CreateMindmapWithRoot(ctx, user.ID, name)
	if err != nil {
		return CreateMindmapResult{}, err
	}
	return CreateMindmapResult{ID: mindmap.ID, Name: mindmap.Name, RootNodeID: root.ID}, nil
}

// ownedMindmap confirms existence before ownership so a non-existent id never
// reads as Forbidden.
func (s *Service) ownedMindmap(ctx context.Context, user store.User, mindmapID int64) (store.Mindmap, error) {
	mindmap, err := s.store.GetMindmap(ctx, mindmapID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Mindmap{}, domainError(http.StatusNotFound, "NOT_FOUND", "Mindmap not found", nil)
	}
	if err != nil {
		return store.Mindmap{}, err
	}
	if mindmap.UserID != user.ID {
		return store.Mindmap{}, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	return mindmap, nil
}

func (s *Service) GetMindmap(ctx context.Context, claims auth.Claims, mindmapID int64) (MindmapDetail, error) {
	user, err := s.resolveUser(ctx, claims)
	if err != nil {
		return MindmapDetail{}, err
	}
	mindmap, err := s.ownedMindmap(ctx, user, mindmapID)
	if err != nil {
		return MindmapDetail{}, err
	}
	nodes, err := s.store.ListNodesByMindmap(ctx, mindmap.ID)
	if err != nil {
		return MindmapDetail{}, err
	}
	views := make([]NodeView, 0, len(nodes))
	for _, n := range nodes {
		views = append(views, NodeView{
			ID:        n.ID,
			ParentID:  n.ParentID,
			Content:   n.Content,
			PositionX: n.PositionX,
			PositionY: n.PositionY,
			Radius:    n.Radius,
		})
	}
	return MindmapDetail{ID: mindmap.ID, Name: mindmap.Name, Nodes: views}, nil
}

// UpdateMindmap replaces the name and refreshes updatedAt. Unlike Create it
// does not validate the name.
func (s *Service) UpdateMindmap(ctx context.Context, claims auth.Claims, mindmapID int64, name string) (UpdateMindmapResult, error) {
	user, err := s.resolveUser(ctx, claims)
	if err != nil {
		return UpdateMindmapResult{}, err
	}
	if _, err := s.ownedMindmap(ctx, user, mindmapID); err != nil {
		return UpdateMindmapResult{}, err
	}
	updated, err := s.store.RenameMindmap(ctx, mindmapID, name)
	if errors.Is(err, sql.ErrNoRows) {
		// lost a race against Delete
		return UpdateMindmapResult{}, domainError(http.StatusNotFound, "NOT_FOUND", "Mindmap not found", nil)
	}
	if err != nil {
		return UpdateMindmapResult{}, err
	}
	return UpdateMindmapResult{ID: updated.ID, Name: updated.Name, UpdatedAt: updated.UpdatedAt}, nil
}

func (s *Service) DeleteMindmap(ctx context.Context, claims auth.Claims, mindmapID int64) error {
	user, err := s.resolveUser(ctx, claims)
	if err != nil {
		return err
	}
	if _, err := s.ownedMindmap(ctx, user, mindmapID); err != nil {
		return err
	}
	err = s.store.DeleteMindmapCascade(ctx, mindmapID)
	if errors.Is(err, sql.ErrNoRows) {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Mindmap not found", nil)
	}
	return err
}
