package masterdata

import (
	"context"

	"github.com/campusledger/campusledger/internal/shared"
)

// Service handles reference-data business rules.
type Service struct {
	repo RepositoryPort
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// CreateSession validates and stores an academic session.
func (s *Service) CreateSession(ctx context.Context, sess AcademicSession) (*AcademicSession, error) {
	if sess.Name == "" {
		return nil, shared.ValidationError("session name required")
	}
	if sess.StartDate.IsZero() || sess.EndDate.IsZero() {
		return nil, shared.ValidationError("session start and end dates required")
	}
	if !sess.EndDate.After(sess.StartDate) {
		return nil, shared.ValidationError("session end date must be after start date")
	}
	return s.repo.CreateSession(ctx, sess)
}

// ListSessions returns all sessions for the branch.
func (s *Service) ListSessions(ctx context.Context, branchID int64) ([]AcademicSession, error) {
	return s.repo.ListSessions(ctx, branchID)
}

// GetSession returns one session.
func (s *Service) GetSession(ctx context.Context, branchID, id int64) (*AcademicSession, error) {
	return s.repo.GetSession(ctx, branchID, id)
}

// CreateClass validates and stores a class.
func (s *Service) CreateClass(ctx context.Context, c Class) (*Class, error) {
	if c.Name == "" {
		return nil, shared.ValidationError("class name required")
	}
	if _, err := s.repo.GetSession(ctx, c.BranchID, c.SessionID); err != nil {
		return nil, err
	}
	return s.repo.CreateClass(ctx, c)
}

// ListClasses returns classes, optionally filtered by session.
func (s *Service) ListClasses(ctx context.Context, branchID, sessionID int64) ([]Class, error) {
	return s.repo.ListClasses(ctx, branchID, sessionID)
}

// CreateStudent validates and stores a student.
func (s *Service) CreateStudent(ctx context.Context, st Student) (*Student, error) {
	if st.Name == "" {
		return nil, shared.ValidationError("student name required")
	}
	if st.AdmissionNo == "" {
		return nil, shared.ValidationError("admission number required")
	}
	if _, err := s.repo.GetClass(ctx, st.BranchID, st.ClassID); err != nil {
		return nil, err
	}
	if st.ConcessionID > 0 {
		if _, err := s.repo.GetConcession(ctx, st.BranchID, st.ConcessionID); err != nil {
			return nil, err
		}
	}
	return s.repo.CreateStudent(ctx, st)
}

// ListStudents returns students, optionally filtered by class.
func (s *Service) ListStudents(ctx context.Context, branchID, classID int64) ([]Student, error) {
	return s.repo.ListStudents(ctx, branchID, classID)
}

// GetStudent returns one student.
func (s *Service) GetStudent(ctx context.Context, branchID, id int64) (*Student, error) {
	return s.repo.GetStudent(ctx, branchID, id)
}

// CreateFeeGroup validates and stores a fee group.
func (s *Service) CreateFeeGroup(ctx context.Context, g FeeGroup) (*FeeGroup, error) {
	if g.Name == "" {
		return nil, shared.ValidationError("fee group name required")
	}
	switch g.Periodicity {
	case PeriodicityMonthly, PeriodicityQuarterly, PeriodicityOneTime:
	default:
		return nil, shared.ValidationError("unknown periodicity %q", g.Periodicity)
	}
	if g.Amount <= 0 {
		return nil, shared.ValidationError("fee group amount must be positive")
	}
	for _, classID := range g.ClassIDs {
		if _, err := s.repo.GetClass(ctx, g.BranchID, classID); err != nil {
			return nil, err
		}
	}
	return s.repo.CreateFeeGroup(ctx, g)
}

// GetFeeGroup returns one fee group.
func (s *Service) GetFeeGroup(ctx context.Context, branchID, id int64) (*FeeGroup, error) {
	return s.repo.GetFeeGroup(ctx, branchID, id)
}

// GetClass returns one class.
func (s *Service) GetClass(ctx context.Context, branchID, id int64) (*Class, error) {
	return s.repo.GetClass(ctx, branchID, id)
}

// ListFeeGroups returns all fee groups for the branch.
func (s *Service) ListFeeGroups(ctx context.Context, branchID int64) ([]FeeGroup, error) {
	return s.repo.ListFeeGroups(ctx, branchID)
}

// CreateConcession validates and stores a concession category.
func (s *Service) CreateConcession(ctx context.Context, c ConcessionCategory) (*ConcessionCategory, error) {
	if c.Name == "" {
		return nil, shared.ValidationError("concession name required")
	}
	for _, rule := range c.Rules {
		if rule.PercentDiscount < 0 || rule.PercentDiscount > 100 {
			return nil, shared.ValidationError("percent discount must be between 0 and 100")
		}
	}
	return s.repo.CreateConcession(ctx, c)
}

// ListConcessions returns concession categories with rules.
func (s *Service) ListConcessions(ctx context.Context, branchID int64) ([]ConcessionCategory, error) {
	return s.repo.ListConcessions(ctx, branchID)
}

// GetConcession returns one concession category.
func (s *Service) GetConcession(ctx context.Context, branchID, id int64) (*ConcessionCategory, error) {
	return s.repo.GetConcession(ctx, branchID, id)
}

// ActiveSession returns the branch's current academic session.
func (s *Service) ActiveSession(ctx context.Context, branchID int64) (*AcademicSession, error) {
	return s.repo.ActiveSession(ctx, branchID)
}

// ListFeeGroupsForClass returns the fee groups mapped to one class.
func (s *Service) ListFeeGroupsForClass(ctx context.Context, branchID, classID int64) ([]FeeGroup, error) {
	return s.repo.ListFeeGroupsForClass(ctx, branchID, classID)
}
