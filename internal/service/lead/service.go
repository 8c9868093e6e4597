package lead

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"lead-routing-backend/internal/database"
	"lead-routing-backend/internal/model"
	"lead-routing-backend/internal/phone"

	"github.com/google/uuid"
)

type ErrorCode string

const (
	ErrorCodeValidation ErrorCode = "validation_error"
	ErrorCodeNotFound   ErrorCode = "not_found"
	ErrorCodeConflict   ErrorCode = "conflict"
	ErrorCodeInternal   ErrorCode = "internal_error"
)

type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

type ResolveParams struct {
	Phone    string
	NameHint string
	Pipeline string
}

type ResolveResult struct {
	Lead    model.LeadItem
	Created bool
}

type CreateLeadParams struct {
	Name     string
	Phone    string
	Pipeline string
	Tags     []string
}

type UpdateLeadParams struct {
	Name     *string
	Pipeline *string
	Tags     *[]string
}

type Service struct {
	repo            Repository
	defaultPipeline string
	now             func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(db *database.Database, defaultPipeline string) *Service {
	return NewWithRepository(NewDynamoRepository(db), defaultPipeline, time.Now)
}

func NewWithRepository(repo Repository, defaultPipeline string, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:            repo,
		defaultPipeline: defaultPipeline,
		now:             now,
		locks:           make(map[string]*sync.Mutex),
	}
}

// suffixLock serializes resolve-or-create per phone suffix so that two
// concurrent webhooks for the same number cannot create duplicate leads.
func (s *Service) suffixLock(suffix string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[suffix]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[suffix] = lock
	}
	return lock
}

// ResolveOrCreate maps an incoming phone number to an existing lead or
// creates a new one. Candidates come from the suffix index; the first
// candidate that matches wins, so two leads matching the same incoming
// number resolve deterministically by index order.
func (s *Service) ResolveOrCreate(ctx context.Context, params ResolveParams) (ResolveResult, error) {
	digits := phone.Normalize(params.Phone)
	if digits == "" {
		return ResolveResult{}, newError(ErrorCodeValidation, "phone number is required", nil)
	}

	suffix := phone.Suffix(digits, model.PhoneSuffixLength)

	lock := s.suffixLock(suffix)
	lock.Lock()
	defer lock.Unlock()

	candidates, err := s.repo.FindByPhoneSuffix(ctx, suffix)
	if err != nil {
		return ResolveResult{}, newError(ErrorCodeInternal, "failed to search leads", err)
	}

	for _, candidate := range candidates {
		if phone.Match(candidate.Phone, digits) {
			return ResolveResult{Lead: candidate}, nil
		}
	}

	name := strings.TrimSpace(params.NameHint)
	if name == "" {
		name = phone.FallbackName(digits)
	}

	pipeline := strings.TrimSpace(params.Pipeline)
	if pipeline == "" {
		pipeline = s.defaultPipeline
	}

	now := s.now().UTC()
	nowStr := now.Format(time.RFC3339)

	item := model.LeadItem{
		LeadID:      uuid.NewString(),
		Name:        name,
		Phone:       digits,
		PhoneSuffix: suffix,
		Pipeline:    pipeline,
		CreatedAt:   nowStr,
		UpdatedAt:   nowStr,
	}

	if err := s.repo.CreateLead(ctx, item); err != nil {
		return ResolveResult{}, newError(ErrorCodeInternal, "failed to create lead", err)
	}

	return ResolveResult{Lead: item, Created: true}, nil
}

func (s *Service) Create(ctx context.Context, params CreateLeadParams) (ResolveResult, error) {
	result, err := s.ResolveOrCreate(ctx, ResolveParams{
		Phone:    params.Phone,
		NameHint: params.Name,
		Pipeline: params.Pipeline,
	})
	if err != nil {
		return ResolveResult{}, err
	}

	if result.Created && len(params.Tags) > 0 {
		result.Lead.Tags = append([]string(nil), params.Tags...)
		if err := s.repo.PutLead(ctx, result.Lead); err != nil {
			return ResolveResult{}, newError(ErrorCodeInternal, "failed to update lead", err)
		}
	}

	return result, nil
}

func (s *Service) Get(ctx context.Context, leadID string) (model.LeadItem, error) {
	if strings.TrimSpace(leadID) == "" {
		return model.LeadItem{}, newError(ErrorCodeValidation, "leadId is required", nil)
	}

	lead, err := s.repo.GetLead(ctx, leadID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.LeadItem{}, newError(ErrorCodeNotFound, "lead not found", err)
		}
		return model.LeadItem{}, newError(ErrorCodeInternal, "failed to load lead", err)
	}
	return lead, nil
}

func (s *Service) Update(ctx context.Context, leadID string, params UpdateLeadParams) (model.LeadItem, error) {
	lead, err := s.Get(ctx, leadID)
	if err != nil {
		return model.LeadItem{}, err
	}

	if params.Name != nil {
		name := strings.TrimSpace(*params.Name)
		if name == "" {
			return model.LeadItem{}, newError(ErrorCodeValidation, "name cannot be empty", nil)
		}
		lead.Name = name
	}
	if params.Pipeline != nil {
		lead.Pipeline = strings.TrimSpace(*params.Pipeline)
	}
	if params.Tags != nil {
		lead.Tags = append([]string(nil), (*params.Tags)...)
	}
	lead.UpdatedAt = s.now().UTC().Format(time.RFC3339)

	if err := s.repo.PutLead(ctx, lead); err != nil {
		return model.LeadItem{}, newError(ErrorCodeInternal, "failed to update lead", err)
	}
	return lead, nil
}

// RecordActivity stamps the lead with the preview of its latest message.
func (s *Service) RecordActivity(ctx context.Context, leadID, preview string, at time.Time) (model.LeadItem, error) {
	atStr := at.UTC().Format(time.RFC3339)
	nowStr := s.now().UTC().Format(time.RFC3339)

	if err := s.repo.SetLastMessage(ctx, leadID, truncatePreview(preview), atStr, nowStr); err != nil {
		return model.LeadItem{}, newError(ErrorCodeInternal, "failed to record lead activity", err)
	}

	lead, err := s.repo.GetLead(ctx, leadID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.LeadItem{}, newError(ErrorCodeNotFound, "lead not found", err)
		}
		return model.LeadItem{}, newError(ErrorCodeInternal, "failed to load lead", err)
	}
	return lead, nil
}

func (s *Service) List(ctx context.Context, limit int) ([]model.LeadItem, error) {
	leads, err := s.repo.ListLeads(ctx, limit)
	if err != nil {
		return nil, newError(ErrorCodeInternal, "failed to list leads", err)
	}
	return leads, nil
}

const previewMaxLen = 120

// truncatePreview cuts on a rune boundary so a multi-byte character
// at the limit never yields invalid UTF-8.
func truncatePreview(body string) string {
	body = strings.TrimSpace(body)
	if utf8.RuneCountInString(body) <= previewMaxLen {
		return body
	}
	return string([]rune(body)[:previewMaxLen])
}
