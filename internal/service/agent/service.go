package agent

import (
	"context"
	"errors"
	"strings"
	"time"

	"lead-routing-backend/internal/database"
	internaljwt "lead-routing-backend/internal/jwt"
	"lead-routing-backend/internal/model"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const defaultMaxConcurrentChats = 5

type Service struct {
	repo Repository
	now  func() time.Time
}

var createTokenWithRefresh = internaljwt.CreateTokenWithRefresh

// SetTokenIssuer overrides token creation, mainly so tests can skip the
// Redis-backed refresh flow.
func SetTokenIssuer(issuer func(internaljwt.Agent, internaljwt.Role, int64) (internaljwt.TokenResponse, error)) {
	if issuer == nil {
		createTokenWithRefresh = internaljwt.CreateTokenWithRefresh
		return
	}
	createTokenWithRefresh = issuer
}

func New(db *database.Database) *Service {
	return &Service{
		repo: NewDynamoRepository(db),
		now:  time.Now,
	}
}

func NewWithRepository(repo Repository, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo: repo,
		now:  now,
	}
}

func (s *Service) Create(ctx context.Context, params CreateAgentParams) (model.AgentItem, error) {
	name := strings.TrimSpace(params.Name)
	email := normalizeEmail(params.Email)
	password := strings.TrimSpace(params.Password)
	pipeline := strings.TrimSpace(params.PipelineType)

	if name == "" || email == "" || password == "" || pipeline == "" {
		return model.AgentItem{}, newError(ErrorCodeValidation, "missing required fields", nil)
	}

	if _, err := s.repo.GetAgentByEmail(ctx, email); err == nil {
		return model.AgentItem{}, newError(ErrorCodeConflict, "email already in use", nil)
	} else if !errors.Is(err, ErrNotFound) {
		return model.AgentItem{}, newError(ErrorCodeInternal, "failed to check email", err)
	}

	max := params.MaxConcurrentChats
	if max <= 0 {
		max = defaultMaxConcurrentChats
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), 10)
	if err != nil {
		return model.AgentItem{}, newError(ErrorCodeInternal, "failed to hash password", err)
	}

	item := model.AgentItem{
		AgentID:            uuid.NewString(),
		Name:               name,
		Email:              email,
		PasswordHash:       string(hash),
		PipelineType:       pipeline,
		IsOnline:           false,
		IsActive:           true,
		CurrentChatCount:   0,
		MaxConcurrentChats: max,
		CreatedAt:          s.now().UTC().Format(time.RFC3339),
	}

	if err := s.repo.CreateAgent(ctx, item); err != nil {
		return model.AgentItem{}, newError(ErrorCodeInternal, "failed to create agent", err)
	}
	return item, nil
}

func (s *Service) SignIn(ctx context.Context, params SignInParams) (SignInResult, error) {
	email := normalizeEmail(params.Email)
	password := strings.TrimSpace(params.Password)

	if email == "" || password == "" {
		return SignInResult{}, newError(ErrorCodeValidation, "missing required fields", nil)
	}

	agent, err := s.repo.GetAgentByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return SignInResult{}, newError(ErrorCodeUnauthorized, "invalid credentials", nil)
		}
		return SignInResult{}, newError(ErrorCodeInternal, "failed to load agent", err)
	}
	if !agent.IsActive {
		return SignInResult{}, newError(ErrorCodeUnauthorized, "agent is deactivated", nil)
	}

	if bcrypt.CompareHashAndPassword([]byte(agent.PasswordHash), []byte(password)) != nil {
		return SignInResult{}, newError(ErrorCodeUnauthorized, "invalid credentials", nil)
	}

	tokens, err := createTokenWithRefresh(internaljwt.Agent{
		Id:    agent.AgentID,
		Email: agent.Email,
	}, internaljwt.RoleAgent, 0)
	if err != nil {
		return SignInResult{}, newError(ErrorCodeInternal, "failed to issue tokens", err)
	}

	return SignInResult{Agent: agent, Tokens: tokens}, nil
}

func (s *Service) Get(ctx context.Context, agentID string) (model.AgentItem, error) {
	if strings.TrimSpace(agentID) == "" {
		return model.AgentItem{}, newError(ErrorCodeValidation, "agentId is required", nil)
	}
	agent, err := s.repo.GetAgent(ctx, agentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.AgentItem{}, newError(ErrorCodeNotFound, "agent not found", err)
		}
		return model.AgentItem{}, newError(ErrorCodeInternal, "failed to load agent", err)
	}
	return agent, nil
}

func (s *Service) List(ctx context.Context) ([]model.AgentItem, error) {
	agents, err := s.repo.ListAgents(ctx)
	if err != nil {
		return nil, newError(ErrorCodeInternal, "failed to list agents", err)
	}
	return agents, nil
}

func (s *Service) SetActive(ctx context.Context, agentID string, active bool) (model.AgentItem, error) {
	agent, err := s.Get(ctx, agentID)
	if err != nil {
		return model.AgentItem{}, err
	}
	if err := s.repo.SetActive(ctx, agentID, active); err != nil {
		return model.AgentItem{}, newError(ErrorCodeInternal, "failed to update agent", err)
	}
	agent.IsActive = active
	return agent, nil
}

func (s *Service) SetMaxConcurrentChats(ctx context.Context, agentID string, max int) (model.AgentItem, error) {
	if max <= 0 {
		return model.AgentItem{}, newError(ErrorCodeValidation, "maxConcurrentChats must be positive", nil)
	}
	agent, err := s.Get(ctx, agentID)
	if err != nil {
		return model.AgentItem{}, err
	}
	if err := s.repo.SetMaxConcurrentChats(ctx, agentID, max); err != nil {
		return model.AgentItem{}, newError(ErrorCodeInternal, "failed to update agent", err)
	}
	agent.MaxConcurrentChats = max
	return agent, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
