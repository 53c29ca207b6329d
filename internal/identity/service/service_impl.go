package service

import (
	"context"
	"strings"
	"sync"
	"time"

	identitydomain "github.com/PresidentofMexico/openai-usage-metrics/internal/identity/domain"
	"github.com/PresidentofMexico/openai-usage-metrics/internal/identity/repository"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServiceParam struct {
	fx.In

	LC    fx.Lifecycle `optional:"true"`
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  repository.Repository
}

type nameKey struct {
	first string
	last  string
}

// rosterIndex is an immutable snapshot of the roster, swapped atomically
// on reload so lookups never observe a half-built index.
type rosterIndex struct {
	byEmail map[string]*identitydomain.EmployeeRecord
	byName  map[nameKey]*identitydomain.EmployeeRecord
	stats   identitydomain.RosterStats
}

type Service struct {
	log   *zap.Logger
	genID *snowflake.Node
	repo  repository.Repository

	mu    sync.RWMutex
	index *rosterIndex
}

func New(p ServiceParam) identitydomain.Service {
	s := &Service{
		log:   p.Log.Named("identity.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
	if p.LC != nil {
		p.LC.Append(fx.Hook{OnStart: s.WarmFromStore})
	}
	return s
}

// WarmFromStore loads the persisted roster into the lookup index at
// startup. A missing roster is not an error; resolution degrades to
// Unidentified until one is loaded.
func (s *Service) WarmFromStore(ctx context.Context) error {
	employees, err := s.repo.All(ctx)
	if err != nil {
		s.log.Warn("roster warm-up failed", zap.Error(err))
		return nil
	}
	s.swapIndex(employees)
	return nil
}

func (s *Service) ReplaceRoster(ctx context.Context, employees []identitydomain.EmployeeRecord) (int, error) {
	if len(employees) == 0 {
		return 0, identitydomain.ErrEmptyRoster
	}

	now := time.Now().UTC()
	for i := range employees {
		if employees[i].ID == 0 {
			employees[i].ID = s.genID.Generate()
		}
		employees[i].CreatedAt = now
		employees[i].UpdatedAt = now
		if employees[i].Email != nil {
			normalized := strings.ToLower(strings.TrimSpace(*employees[i].Email))
			if normalized == "" {
				employees[i].Email = nil
			} else {
				employees[i].Email = &normalized
			}
		}
	}

	if err := s.repo.ReplaceAll(ctx, employees); err != nil {
		return 0, err
	}
	s.swapIndex(employees)
	s.log.Info("roster replaced", zap.Int("employees", len(employees)))
	return len(employees), nil
}

func (s *Service) swapIndex(employees []identitydomain.EmployeeRecord) {
	index := &rosterIndex{
		byEmail: make(map[string]*identitydomain.EmployeeRecord, len(employees)),
		byName:  make(map[nameKey]*identitydomain.EmployeeRecord, len(employees)),
	}
	index.stats.Employees = int64(len(employees))
	for i := range employees {
		e := &employees[i]
		if e.Email != nil {
			index.byEmail[strings.ToLower(*e.Email)] = e
		}
		key := nameKey{
			first: strings.ToLower(strings.TrimSpace(e.FirstName)),
			last:  strings.ToLower(strings.TrimSpace(e.LastName)),
		}
		if key.first != "" || key.last != "" {
			if _, exists := index.byName[key]; !exists {
				index.byName[key] = e
			}
		}
		if e.HasBlankDepartment() {
			index.stats.BlankDepartment++
		} else if e.HasExplicitUnknown() {
			index.stats.ExplicitUnknown++
		}
	}

	s.mu.Lock()
	s.index = index
	s.mu.Unlock()
}

// Resolve matches by exact case-folded email, then by (first, last) name
// split from the display name, else Unidentified.
func (s *Service) Resolve(email, displayName string) identitydomain.IdentityOutcome {
	s.mu.RLock()
	index := s.index
	s.mu.RUnlock()
	if index == nil {
		return identitydomain.Unidentified
	}

	if email = strings.ToLower(strings.TrimSpace(email)); email != "" {
		if e, ok := index.byEmail[email]; ok {
			return identitydomain.IdentityOutcome{Matched: true, Employee: e}
		}
	}

	tokens := strings.Fields(strings.TrimSpace(displayName))
	if len(tokens) >= 2 {
		key := nameKey{
			first: strings.ToLower(tokens[0]),
			last:  strings.ToLower(strings.Join(tokens[1:], " ")),
		}
		if e, ok := index.byName[key]; ok {
			return identitydomain.IdentityOutcome{Matched: true, Employee: e}
		}
	}

	return identitydomain.Unidentified
}

// ResolveDepartment applies the roster-wins rule. A matched employee's
// non-blank department is used verbatim, including the explicit literal
// "Unknown". A blank roster department leaves the raw export's value
// untouched.
func (s *Service) ResolveDepartment(outcome identitydomain.IdentityOutcome, rawDepartment string) string {
	if outcome.Matched && outcome.Employee != nil && !outcome.Employee.HasBlankDepartment() {
		return *outcome.Employee.Department
	}
	return rawDepartment
}

// Generic tool-specific placeholders that lose to any real org unit.
var placeholderDepartments = map[string]struct{}{
	"general":        {},
	"unassigned":     {},
	"openai user":    {},
	"blueflame user": {},
}

func isPlaceholderDepartment(v string) bool {
	_, ok := placeholderDepartments[strings.ToLower(strings.TrimSpace(v))]
	return ok
}

// PrimaryDepartment picks one department when a person's records disagree
// across tools: the first non-placeholder, non-Unknown value in input
// order wins; failing that, the first named placeholder; failing that,
// Unknown.
func (s *Service) PrimaryDepartment(values []string) string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || v == identitydomain.DeptUnknown || isPlaceholderDepartment(v) {
			continue
		}
		return v
	}
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" && v != identitydomain.DeptUnknown {
			return v
		}
	}
	return identitydomain.DeptUnknown
}

func (s *Service) Stats(ctx context.Context) (identitydomain.RosterStats, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.index == nil {
		return identitydomain.RosterStats{}, nil
	}
	return s.index.stats, nil
}

// ListUnidentified returns usage subjects with no roster match by email or
// name, with their aggregated usage, for manual department assignment.
func (s *Service) ListUnidentified(ctx context.Context) ([]identitydomain.UnidentifiedUsage, error) {
	rows, err := s.repo.UsageByUser(ctx)
	if err != nil {
		return nil, err
	}

	unidentified := make([]identitydomain.UnidentifiedUsage, 0)
	for _, row := range rows {
		email := ""
		if strings.Contains(row.UserKey, "@") {
			email = row.UserKey
		}
		if outcome := s.Resolve(email, row.DisplayName); outcome.Matched {
			continue
		}
		unidentified = append(unidentified, row)
	}
	return unidentified, nil
}
